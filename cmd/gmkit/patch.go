package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/gmkit/internal/logger"
	"github.com/samcharles93/gmkit/pkg/gm"
)

// patchRun is the document written by --report.
type patchRun struct {
	RunID     string          `json:"run_id"`
	StartedAt time.Time       `json:"started_at"`
	Input     string          `json:"input"`
	Patch     string          `json:"patch"`
	Output    string          `json:"output"`
	Bytes     int             `json:"bytes"`
	Report    *gm.MergeReport `json:"report"`
}

func patchCmd() *cli.Command {
	var (
		appendNew     bool
		allowNonASCII bool
		reportPath    string
	)

	return &cli.Command{
		Name:      "patch",
		Usage:     "Merge the functions of a patch library into a base library",
		ArgsUsage: "INPUT PATCH OUTPUT",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "append-new",
				Usage:       "append patch functions that have no counterpart in the base",
				Destination: &appendNew,
			},
			&cli.BoolFlag{
				Name:        "allow-non-ascii",
				Usage:       "relocate non-ASCII strings by exact byte match",
				Destination: &allowNonASCII,
			},
			&cli.StringFlag{
				Name:        "report",
				Usage:       "write a JSON merge report to this file",
				Destination: &reportPath,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			if cmd.NArg() != 3 {
				return cli.Exit("usage: gmkit patch INPUT PATCH OUTPUT", 1)
			}
			input, patchPath, output := cmd.Args().Get(0), cmd.Args().Get(1), cmd.Args().Get(2)
			applyPatchConfig(cmd, cfg, &appendNew, &allowNonASCII)

			run := patchRun{
				RunID:     uuid.NewString(),
				StartedAt: time.Now().UTC(),
				Input:     input,
				Patch:     patchPath,
				Output:    output,
			}
			log = log.With("run", run.RunID)

			base, err := gm.Open(input)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: open base library: %v", err), 1)
			}
			patch, err := gm.Open(patchPath)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: open patch library: %v", err), 1)
			}

			opts := gm.MergeOptions{AllowNonASCII: allowNonASCII}
			if appendNew {
				opts.Unmatched = gm.AppendUnmatched
			}
			report, err := gm.Merge(base, patch, opts)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: merge: %v", err), 1)
			}
			logReport(log, report)

			raw, err := gm.Encode(base)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: encode merged library: %v", err), 1)
			}
			if err := writeFileAtomic(output, raw); err != nil {
				return cli.Exit(fmt.Sprintf("error: write output: %v", err), 1)
			}
			log.Info("wrote patched library", "path", output, "bytes", len(raw), "functions", len(base.Functions))

			if reportPath != "" {
				run.Bytes = len(raw)
				run.Report = report
				b, err := json.MarshalIndent(run, "", "  ")
				if err != nil {
					return err
				}
				if err := os.WriteFile(reportPath, append(b, '\n'), 0o644); err != nil {
					return cli.Exit(fmt.Sprintf("error: write report: %v", err), 1)
				}
			}
			return nil
		},
	}
}

func logReport(log logger.Logger, r *gm.MergeReport) {
	for _, m := range r.Merged {
		log.Debug("merged function",
			"name", m.Name,
			"index", m.BaseIndex,
			"base_id", m.BaseID,
			"patch_id", m.PatchID,
			"changed", m.Changed,
		)
	}
	for _, name := range r.Dropped {
		log.Warn("patch function has no counterpart in base; dropped", "name", name)
	}
	for _, name := range r.Appended {
		log.Info("appended patch function", "name", name)
	}
	log.Info("merge complete",
		"merged", len(r.Merged),
		"dropped", len(r.Dropped),
		"appended", len(r.Appended),
		"strings", r.StringTableSize,
	)
}

// writeFileAtomic replaces path with data through a temporary file in the
// same directory. path is untouched when any step fails.
func writeFileAtomic(path string, data []byte) error {
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer func() { _ = os.Remove(tmp) }()

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
