package main

import (
	"context"
	"fmt"
	"io"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/gmkit/pkg/gm"
)

func disasmCmd() *cli.Command {
	var (
		input    string
		function string
		index    int64
	)

	return &cli.Command{
		Name:  "disasm",
		Usage: "Print the bytecode listing of a library",
		Flags: []cli.Flag{
			inputFlag(&input, "compiled library (.gmb)"),
			&cli.StringFlag{
				Name:        "function",
				Aliases:     []string{"f"},
				Usage:       "only list the function with this debug name",
				Destination: &function,
			},
			&cli.Int64Flag{
				Name:        "index",
				Usage:       "only list the function at this index",
				Value:       -1,
				Destination: &index,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			lib, err := gm.Open(input)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: open library: %v", err), 1)
			}

			var fns []int
			switch {
			case function != "" && cmd.IsSet("index"):
				return cli.Exit("error: --function and --index are mutually exclusive", 1)
			case function != "":
				i, ok := lib.FunctionByName(function)
				if !ok {
					return cli.Exit(fmt.Sprintf("error: no function named %q", function), 1)
				}
				fns = []int{i}
			case index >= 0:
				if index >= int64(len(lib.Functions)) {
					return cli.Exit(fmt.Sprintf("error: function index %d out of range (%d functions)", index, len(lib.Functions)), 1)
				}
				fns = []int{int(index)}
			default:
				for i := range lib.Functions {
					fns = append(fns, i)
				}
			}

			w := cmd.Root().Writer
			for _, i := range fns {
				if err := printFunction(w, lib, i); err != nil {
					return cli.Exit(fmt.Sprintf("error: %v", err), 1)
				}
			}
			return nil
		},
	}
}

// printFunction writes a header line for function i followed by one line
// per instruction. Instructions decoded before an error are still printed.
func printFunction(w io.Writer, lib *gm.Library, i int) error {
	f := &lib.Functions[i]
	name, err := lib.FunctionName(i)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "function %d %s (id %d, %d params, %d locals, %d bytes)\n",
		i, name, f.Header.ID, f.Header.NumParams, f.Header.NumLocals, len(f.Bytecode))
	for in, err := range lib.Disassemble(i) {
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "  %s\n", in)
	}
	fmt.Fprintln(w)
	return nil
}
