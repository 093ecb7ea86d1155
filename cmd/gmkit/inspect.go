package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/gmkit/pkg/gm"
)

type inspectOutput struct {
	Path    string           `json:"path"`
	Size    int64            `json:"size"`
	Library gm.LibraryInfo   `json:"library"`
	Strings []gm.StringEntry `json:"strings,omitempty"`
}

func inspectCmd() *cli.Command {
	var (
		input       string
		asJSON      bool
		pretty      bool
		showStrings bool
		showSource  bool
		encoding    string
	)

	return &cli.Command{
		Name:  "inspect",
		Usage: "Summarize a compiled library",
		Flags: []cli.Flag{
			inputFlag(&input, "compiled library (.gmb)"),
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "print the summary as JSON",
				Destination: &asJSON,
			},
			&cli.BoolFlag{
				Name:        "pretty",
				Usage:       "indent JSON output",
				Destination: &pretty,
			},
			&cli.BoolFlag{
				Name:        "strings",
				Usage:       "list the string table with offsets",
				Destination: &showStrings,
			},
			&cli.BoolFlag{
				Name:        "source",
				Usage:       "print the embedded source dump instead of the summary",
				Destination: &showSource,
			},
			sourceEncodingFlag(&encoding),
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			w := cmd.Root().Writer
			stat, err := os.Stat(input)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: stat %q: %v", input, err), 1)
			}
			lib, err := gm.Open(input)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: open library: %v", err), 1)
			}

			if showSource {
				src, err := decodeSource(lib.Source.Source, encoding)
				if err != nil {
					return cli.Exit(fmt.Sprintf("error: %v", err), 1)
				}
				_, err = w.Write(src)
				return err
			}

			out := inspectOutput{
				Path:    input,
				Size:    stat.Size(),
				Library: gm.Describe(lib),
			}
			if showStrings {
				out.Strings = lib.Strings.Strings()
			}

			if asJSON {
				var b []byte
				if pretty {
					b, err = json.MarshalIndent(out, "", "  ")
				} else {
					b, err = json.Marshal(out)
				}
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(w, string(b))
				return err
			}
			printInspect(w, out)
			return nil
		},
	}
}

func printInspect(w io.Writer, out inspectOutput) {
	info := out.Library
	fmt.Fprintf(w, "GM Inspect: %s\n", out.Path)
	row(w, "File size", formatBytes(uint64(out.Size)))
	row(w, "Flags", fmt.Sprintf("%#x", info.Flags))
	row(w, "String table", fmt.Sprintf("%s (%d strings)", formatBytes(uint64(info.StringTableSize)), info.StringCount))
	row(w, "Source dump", fmt.Sprintf("%s (flags %#x)", formatBytes(uint64(info.SourceSize)), info.SourceFlags))
	row(w, "Functions", fmt.Sprintf("%d", len(info.Functions)))

	section(w, "Functions")
	fmt.Fprintf(w, "%5s %6s %-28s %6s %6s %6s %8s %5s  %s\n",
		"idx", "id", "name", "params", "locals", "stack", "bytes", "lines", "fingerprint")
	for _, f := range info.Functions {
		name := f.Name
		if len(f.BaseClasses) > 0 {
			name += " : " + strings.Join(f.BaseClasses, ", ")
		}
		fmt.Fprintf(w, "%5d %6d %-28s %6d %6d %6d %8d %5d  %s\n",
			f.Index, f.ID, name, f.Params, f.Locals, f.MaxStack, f.BytecodeLen, f.Lines, f.Fingerprint)
	}

	if len(out.Strings) > 0 {
		section(w, "Strings")
		for _, s := range out.Strings {
			fmt.Fprintf(w, "%8d  %q\n", s.Offset, s.Text)
		}
	}
}

func section(w io.Writer, title string) {
	line := strings.Repeat("-", len(title)+8)
	fmt.Fprintf(w, "\n%s\n--- %s ---\n%s\n", line, title, line)
}

func row(w io.Writer, label, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(w, "%-24s %s\n", label+":", value)
}

func formatBytes(b uint64) string {
	const (
		kb = 1024
		mb = 1024 * kb
	)
	switch {
	case b >= mb:
		return fmt.Sprintf("%.2f MiB", float64(b)/float64(mb))
	case b >= kb:
		return fmt.Sprintf("%.2f KiB", float64(b)/float64(kb))
	default:
		return fmt.Sprintf("%d B", b)
	}
}
