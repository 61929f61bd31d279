package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"git.sr.ht/~spc/go-log"
	"github.com/fatih/color"
	"github.com/urfave/cli/v2"
	"golang.org/x/term"

	"github.com/proxyup/proxyup/internal/conf"
	"github.com/proxyup/proxyup/internal/l10n"
	"github.com/proxyup/proxyup/internal/schema"
)

// Version is set at build time.
var Version = "0.1.0"

const (
	cliConfig          = "config"
	cliLogLevel        = "log-level"
	cliGenerateManPage = "generate-man-page"
	cliCore            = "core"
)

// Exit codes for user errors. Anything else exits with 1.
const (
	exitBootstrap  = 2
	exitValidation = 3
	exitParse      = 4
)

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "proxyup"
	app.Version = Version
	app.Usage = l10n.T("install and configure a local %s proxy daemon", conf.DaemonName)
	app.HideHelpCommand = true

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    cliConfig,
			Aliases: []string{"c"},
			Value:   "~/.config/proxyup.toml",
			Usage:   l10n.T("read settings from `FILE`"),
		},
		&cli.StringFlag{
			Name:  cliLogLevel,
			Value: "error",
			Usage: l10n.T("set log verbosity to `LEVEL` (error, warn, info, debug, trace)"),
		},
		&cli.BoolFlag{
			Name:   cliGenerateManPage,
			Hidden: true,
		},
	}

	app.Commands = []*cli.Command{
		{
			Name:   "setup",
			Usage:  l10n.T("Download the daemon and its configuration and write the service unit"),
			Action: setupAction,
		},
		{
			Name:  "update",
			Usage: l10n.T("Download the remote configuration again and reapply overrides"),
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:  cliCore,
					Usage: l10n.T("also download the daemon binary again"),
				},
			},
			Action: updateAction,
		},
		{
			Name:   "apply",
			Usage:  l10n.T("Reapply overrides to the local daemon configuration"),
			Action: applyAction,
		},
		{
			Name:   "uninstall",
			Usage:  l10n.T("Remove the daemon binary, its configuration and the service unit"),
			Action: uninstallAction,
		},
		{
			Name:  "proxy",
			Usage: l10n.T("Print shell commands for the proxy environment variables"),
			Subcommands: []*cli.Command{
				{
					Name:   "export",
					Usage:  l10n.T("Print commands exporting the proxy variables"),
					Action: proxyExportAction,
				},
				{
					Name:   "unset",
					Usage:  l10n.T("Print commands unsetting the proxy variables"),
					Action: proxyUnsetAction,
				},
			},
		},
	}

	app.Before = beforeAction
	app.Action = mainAction
	return app
}

func main() {
	app := newApp()
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, errorMessage(err))
		os.Exit(exitCode(err))
	}
}

// beforeAction configures logging and terminal output for every command.
func beforeAction(c *cli.Context) error {
	level, err := log.ParseLevel(c.String(cliLogLevel))
	if err != nil {
		return err
	}
	log.SetLevel(level)

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slogLevel(level)})
	slog.SetDefault(slog.New(handler))

	color.NoColor = !term.IsTerminal(int(os.Stdout.Fd()))
	return nil
}

func mainAction(c *cli.Context) error {
	if c.Bool(cliGenerateManPage) {
		man, err := c.App.ToMan()
		if err != nil {
			return fmt.Errorf("failed to generate man page: %w", err)
		}
		fmt.Fprintln(c.App.Writer, man)
		return nil
	}
	return cli.ShowAppHelp(c)
}

// slogLevel maps the CLI log level onto the level of the default slog
// handler used by the internal packages.
func slogLevel(level log.Level) slog.Level {
	switch {
	case level >= log.LevelDebug:
		return slog.LevelDebug
	case level >= log.LevelInfo:
		return slog.LevelInfo
	case level > log.LevelError:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}

func exitCode(err error) int {
	var bootstrapErr *conf.BootstrapError
	var parseErr *schema.ParseError
	var validationErr *schema.ValidationError

	switch {
	case errors.As(err, &bootstrapErr):
		return exitBootstrap
	case errors.As(err, &parseErr):
		// checked before ValidationError: enum failures are wrapped in both
		return exitParse
	case errors.As(err, &validationErr):
		return exitValidation
	default:
		return 1
	}
}

func errorMessage(err error) string {
	var bootstrapErr *conf.BootstrapError
	if errors.As(err, &bootstrapErr) {
		return color.YellowString("setup:") + " " + err.Error()
	}
	return color.RedString("error:") + " " + err.Error()
}
