// Package service renders the systemd unit that runs the daemon.
package service

import (
	"fmt"
	"io"
	"strings"

	"github.com/coreos/go-systemd/v22/unit"

	"github.com/proxyup/proxyup/internal/fsutil"
)

// Options returns the unit running execPath with configDir as its working
// configuration directory.
func Options(execPath, configDir string) []*unit.UnitOption {
	return []*unit.UnitOption{
		unit.NewUnitOption("Unit", "Description", "mihomo Daemon, Another Clash Kernel."),
		unit.NewUnitOption("Unit", "After", "network-online.target"),
		unit.NewUnitOption("Unit", "Wants", "network-online.target"),

		unit.NewUnitOption("Service", "Type", "simple"),
		unit.NewUnitOption("Service", "LimitNPROC", "500"),
		unit.NewUnitOption("Service", "LimitNOFILE", "1000000"),
		unit.NewUnitOption("Service", "Restart", "always"),
		unit.NewUnitOption("Service", "ExecStartPre", "/usr/bin/sleep 1s"),
		unit.NewUnitOption("Service", "ExecStart", fmt.Sprintf("%s -d %s", quote(execPath), quote(configDir))),
		unit.NewUnitOption("Service", "ExecReload", "/bin/kill -HUP $MAINPID"),

		unit.NewUnitOption("Install", "WantedBy", "default.target"),
	}
}

// quote wraps arguments containing whitespace in double quotes, which
// systemd strips when splitting ExecStart.
func quote(arg string) string {
	if !strings.ContainsAny(arg, " \t\"\\") {
		return arg
	}
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`)
	return `"` + r.Replace(arg) + `"`
}

// Render serializes the unit for execPath and configDir.
func Render(execPath, configDir string) ([]byte, error) {
	return io.ReadAll(unit.Serialize(Options(execPath, configDir)))
}

// Write renders the unit and writes it to dest.
func Write(execPath, configDir, dest string) error {
	data, err := Render(execPath, configDir)
	if err != nil {
		return err
	}
	if err := fsutil.EnsureParentDir(dest); err != nil {
		return err
	}
	return fsutil.WriteFileAtomic(dest, data, 0644)
}
