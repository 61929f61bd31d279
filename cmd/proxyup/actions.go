package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"git.sr.ht/~spc/go-log"
	"github.com/fatih/color"
	"github.com/urfave/cli/v2"
	"golang.org/x/term"

	"github.com/proxyup/proxyup/internal/archive"
	"github.com/proxyup/proxyup/internal/conf"
	"github.com/proxyup/proxyup/internal/fetch"
	"github.com/proxyup/proxyup/internal/fsutil"
	"github.com/proxyup/proxyup/internal/l10n"
	"github.com/proxyup/proxyup/internal/overlay"
	"github.com/proxyup/proxyup/internal/privilege"
	"github.com/proxyup/proxyup/internal/schema"
	"github.com/proxyup/proxyup/internal/service"
)

// ensurePrivilege is replaced in tests.
var ensurePrivilege = privilege.Ensure

// settingsPath returns the absolute path of the settings file named by
// --config.
func settingsPath(c *cli.Context) (string, string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	path, err := filepath.Abs(fsutil.ExpandHome(c.String(cliConfig), home))
	if err != nil {
		return "", "", fmt.Errorf("cannot resolve settings path: %w", err)
	}
	return path, home, nil
}

// loadSettings loads the settings file named by --config with every "~"
// resolved against the user's home directory.
func loadSettings(c *cli.Context) (conf.Settings, error) {
	path, home, err := settingsPath(c)
	if err != nil {
		return conf.Settings{}, err
	}

	log.Debugf("loading settings from %v", path)
	settings, err := conf.Load(path)
	if err != nil {
		return conf.Settings{}, err
	}
	return settings.Resolve(home), nil
}

func newFetchClient() *fetch.Client {
	return &fetch.Client{
		Progress: term.IsTerminal(int(os.Stderr.Fd())),
		Output:   os.Stderr,
	}
}

func report(w io.Writer, prefix, msg string) {
	fmt.Fprintf(w, "%s %s\n", color.GreenString(prefix), msg)
}

// installBinary downloads the daemon executable, decompressing it when the
// release is gzipped.
func installBinary(ctx context.Context, client *fetch.Client, s conf.Settings) error {
	if err := s.RequireBinaryURL(); err != nil {
		return err
	}
	if err := fsutil.EnsureParentDir(s.BinaryPath); err != nil {
		return &schema.IOError{Op: "create directory for", Path: s.BinaryPath, Err: err}
	}

	if !archive.IsGzip(s.RemoteBinaryURL) {
		if _, err := client.ToFile(ctx, s.RemoteBinaryURL, s.BinaryPath); err != nil {
			return &schema.IOError{Op: "download", Path: s.RemoteBinaryURL, Err: err}
		}
		if err := os.Chmod(s.BinaryPath, 0755); err != nil {
			return &schema.IOError{Op: "chmod", Path: s.BinaryPath, Err: err}
		}
		return nil
	}

	gz := s.BinaryPath + ".gz"
	if _, err := client.ToFile(ctx, s.RemoteBinaryURL, gz); err != nil {
		return &schema.IOError{Op: "download", Path: s.RemoteBinaryURL, Err: err}
	}
	if err := archive.Gunzip(gz, s.BinaryPath, 0755); err != nil {
		return &schema.IOError{Op: "extract", Path: gz, Err: err}
	}
	return nil
}

// installConfig downloads the remote daemon configuration and overlays the
// user's settings onto it.
func installConfig(ctx context.Context, client *fetch.Client, s conf.Settings) error {
	path := s.DaemonConfigPath()
	if _, err := client.ToFile(ctx, s.RemoteConfigURL, path); err != nil {
		return &schema.IOError{Op: "download", Path: s.RemoteConfigURL, Err: err}
	}
	return overlay.ApplyFile(path, s.DaemonConfig)
}

func installService(s conf.Settings) error {
	path := s.ServiceUnitPath()
	if err := service.Write(s.BinaryPath, s.ConfigRoot, path); err != nil {
		return &schema.IOError{Op: "write", Path: path, Err: err}
	}
	return nil
}

// escalate re-executes the current command through sudo when one of the
// install locations is not writable. It must run before anything is
// written, so the elevated process starts from scratch.
func escalate(c *cli.Context, s conf.Settings) error {
	path, _, err := settingsPath(c)
	if err != nil {
		return err
	}
	// The elevated process may see a different home directory, so the
	// settings file is passed by absolute path.
	args := []string{
		"--" + cliConfig, path,
		"--" + cliLogLevel, c.String(cliLogLevel),
		c.Command.Name,
	}
	for _, dir := range []string{filepath.Dir(s.BinaryPath), s.ConfigRoot, s.ServiceUnitRoot} {
		if err := ensurePrivilege(dir, args); err != nil {
			return err
		}
	}
	return nil
}

func setupAction(c *cli.Context) error {
	settings, err := loadSettings(c)
	if err != nil {
		return err
	}
	if err := escalate(c, settings); err != nil {
		return err
	}
	w := c.App.Writer
	client := newFetchClient()

	if err := installBinary(c.Context, client, settings); err != nil {
		return err
	}
	report(w, "setup:", l10n.T("Installed %s", settings.BinaryPath))

	if err := installConfig(c.Context, client, settings); err != nil {
		return err
	}
	report(w, "setup:", l10n.T("Wrote %s", settings.DaemonConfigPath()))

	if err := installService(settings); err != nil {
		return err
	}
	report(w, "setup:", l10n.T("Created %s", settings.ServiceUnitPath()))
	report(w, "setup:", l10n.T("Run `systemctl --user daemon-reload && systemctl --user enable --now %s.service` to start it", conf.DaemonName))
	return nil
}

func updateAction(c *cli.Context) error {
	settings, err := loadSettings(c)
	if err != nil {
		return err
	}
	w := c.App.Writer
	client := newFetchClient()

	if c.Bool(cliCore) {
		if err := installBinary(c.Context, client, settings); err != nil {
			return err
		}
		report(w, "update:", l10n.T("Updated %s", settings.BinaryPath))
	}

	if err := installConfig(c.Context, client, settings); err != nil {
		return err
	}
	report(w, "update:", l10n.T("Updated %s", settings.DaemonConfigPath()))
	return nil
}

func applyAction(c *cli.Context) error {
	settings, err := loadSettings(c)
	if err != nil {
		return err
	}

	path := settings.DaemonConfigPath()
	if err := overlay.ApplyFile(path, settings.DaemonConfig); err != nil {
		return err
	}
	report(c.App.Writer, "apply:", l10n.T("Applied overrides to %s", path))
	return nil
}

func uninstallAction(c *cli.Context) error {
	settings, err := loadSettings(c)
	if err != nil {
		return err
	}
	w := c.App.Writer

	var removed uint32
	for _, path := range []string{settings.ServiceUnitPath(), settings.BinaryPath, settings.DaemonConfigPath()} {
		ok, err := fsutil.Remove(path)
		if err != nil {
			return &schema.IOError{Op: "remove", Path: path, Err: err}
		}
		if ok {
			removed++
			report(w, "uninstall:", l10n.T("Removed %s", path))
		} else {
			log.Debugf("%v does not exist", path)
		}
	}
	report(w, "uninstall:", l10n.TN("Removed %d file", "Removed %d files", removed, removed))
	return nil
}

func proxyExportAction(c *cli.Context) error {
	settings, err := loadSettings(c)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, exportCommand(settings.DaemonConfig))
	return nil
}

func proxyUnsetAction(c *cli.Context) error {
	fmt.Fprintln(c.App.Writer, unsetCommand)
	return nil
}

const unsetCommand = "unset https_proxy http_proxy all_proxy"

// exportCommand returns a shell command pointing the conventional proxy
// variables at the daemon's listeners.
func exportCommand(o schema.Overrides) string {
	return fmt.Sprintf(
		"export https_proxy=http://127.0.0.1:%d http_proxy=http://127.0.0.1:%d all_proxy=socks5://127.0.0.1:%d",
		o.Port, o.Port, o.SocksPort,
	)
}
