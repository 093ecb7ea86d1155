package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/gmkit/internal/level"
	"github.com/samcharles93/gmkit/internal/logger"
	"github.com/samcharles93/gmkit/pkg/gm"
)

func extractCmd() *cli.Command {
	var (
		input    string
		output   string
		encoding string
	)

	return &cli.Command{
		Name:  "extract",
		Usage: "Unpack the compiled scripts of a level container",
		Flags: []cli.Flag{
			inputFlag(&input, "level container (.level.bin)"),
			&cli.StringFlag{
				Name:        "output",
				Aliases:     []string{"o"},
				Usage:       "output directory (default: input path without .bin)",
				Destination: &output,
			},
			sourceEncodingFlag(&encoding),
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			if output == "" {
				output = strings.TrimSuffix(input, ".bin")
				if output == input {
					output = input + ".d"
				}
			}

			data, err := os.ReadFile(input)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: read level: %v", err), 1)
			}
			scripts, err := level.Read(data)
			if errors.Is(err, level.ErrNestedLevel) {
				log.Warn("skipped nested level container", "path", input)
				return nil
			}
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %s: %v", input, err), 1)
			}
			if err := os.MkdirAll(output, 0o755); err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}

			for _, s := range scripts {
				if err := extractScript(output, s, encoding); err != nil {
					return cli.Exit(fmt.Sprintf("error: script %s: %v", s.Name, err), 1)
				}
				log.Info("extracted script", "name", s.Name, "bytes", len(s.Data))
			}
			log.Info("extract complete", "path", output, "scripts", len(scripts))
			return nil
		},
	}
}

// extractScript writes <name>b with the compiled library and <name> with its
// source dump.
func extractScript(dir string, s level.Script, encoding string) error {
	name := filepath.Base(filepath.FromSlash(s.Name))
	if name == "." || name == ".." || name == string(filepath.Separator) {
		return fmt.Errorf("unusable script name %q", s.Name)
	}
	lib, err := gm.Decode(s.Data)
	if err != nil {
		return err
	}
	src, err := decodeSource(lib.Source.Source, encoding)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, name+"b"), s.Data, 0o644); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, name), src, 0o644)
}
