// Package privilege escalates the current process when a target directory
// is not writable by the invoking user.
package privilege

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// These are replaced in tests.
var (
	geteuid  = unix.Geteuid
	access   = unix.Access
	lookPath = exec.LookPath
	execve   = unix.Exec
)

// Writable reports whether the current user may create files in dir. A
// directory that does not exist yet is judged by its nearest existing
// ancestor, since that is where it will be created.
func Writable(dir string) bool {
	for {
		if _, err := os.Stat(dir); err == nil {
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return access(dir, unix.W_OK) == nil
}

// Ensure returns nil when dir is writable or the process already runs as
// root. Otherwise it re-executes the current executable with args through
// sudo; on success Ensure does not return. args should not depend on the
// invoking user's environment, since sudo may reset it.
func Ensure(dir string, args []string) error {
	if Writable(dir) || geteuid() == 0 {
		return nil
	}

	sudo, err := lookPath("sudo")
	if err != nil {
		return fmt.Errorf("%s is not writable and sudo is unavailable: %w", dir, err)
	}

	self, err := os.Executable()
	if err != nil {
		return fmt.Errorf("cannot locate executable: %w", err)
	}

	argv := append([]string{"sudo", "--preserve-env", self}, args...)
	slog.Info("escalating privileges", "dir", dir, "argv", argv)
	if err := execve(sudo, argv, os.Environ()); err != nil {
		return fmt.Errorf("failed to run sudo: %w", err)
	}
	return nil
}
