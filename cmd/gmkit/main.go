package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/gmkit/internal/logger"
)

func main() {
	if err := newApp().Run(context.Background(), os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:  "gmkit",
		Usage: "Inspect, disassemble and patch GameMonkey script libraries",
		Flags: rootFlags(),
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			return setup(ctx, cmd)
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return cli.ShowAppHelp(cmd)
		},
		Commands: []*cli.Command{
			inspectCmd(),
			disasmCmd(),
			patchCmd(),
			extractCmd(),
			serveCmd(),
			versionCmd(),
		},
	}
}

// setup loads the config file and installs the logger every command reads
// from its context.
func setup(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	path := configFile
	if path == "" {
		path = configPath()
	}
	c, cfgErr := LoadConfig(path)
	if cfgErr != nil && cmd.IsSet("config") {
		return ctx, cli.Exit(fmt.Sprintf("error: %v", cfgErr), 1)
	}
	cfg = c
	applyLoggingConfig(cmd, cfg)

	level, err := logger.ParseLevel(logLevel)
	if err != nil {
		return ctx, cli.Exit(fmt.Sprintf("error: %v", err), 1)
	}
	if debug {
		level = slog.LevelDebug
	}
	format, err := logger.ParseFormat(logFormat)
	if err != nil {
		return ctx, cli.Exit(fmt.Sprintf("error: %v", err), 1)
	}
	log := logger.ForFormat(cmd.Root().ErrWriter, format, level)
	if cfgErr != nil {
		log.Warn("ignoring config file", "path", path, "error", cfgErr)
	}
	return logger.WithContext(ctx, log), nil
}
