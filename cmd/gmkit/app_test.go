package main

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/gmkit/pkg/gm"
)

type testFunc struct {
	name string
	id   uint32
	str  string
}

func buildLibrary(t *testing.T, source string, fns ...testFunc) []byte {
	t.Helper()
	var strs []string
	offs := map[string]uint32{}
	var size uint32
	intern := func(s string) uint32 {
		if off, ok := offs[s]; ok {
			return off
		}
		offs[s] = size
		strs = append(strs, s)
		size += uint32(len(s)) + 1
		return offs[s]
	}

	lib := &gm.Library{
		Header: gm.Header{Flags: gm.FlagDebug},
		Source: gm.SourceDump{Source: append([]byte(source), 0)},
	}
	for _, f := range fns {
		code := gm.AppendInstruction(nil, gm.OpPushStr, intern(f.str))
		code = gm.AppendInstruction(code, gm.OpRetV, 0)
		lib.Functions = append(lib.Functions, gm.Function{
			Header:          gm.FunctionHeader{ID: f.id, MaxStackSize: 1},
			Bytecode:        code,
			DebugNameOffset: intern(f.name),
		})
	}
	lib.Strings = gm.BuildStringTable(strs...)
	raw, err := gm.Encode(lib)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	return raw
}

func writeFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// run executes the CLI with an isolated config and returns stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("GMKIT_CONFIG", filepath.Join(t.TempDir(), "none.yaml"))
	var stdout, stderr bytes.Buffer
	app := newApp()
	app.Writer = &stdout
	app.ErrWriter = &stderr
	// keep cli.Exit errors from terminating the test binary
	app.ExitErrHandler = func(context.Context, *cli.Command, error) {}
	err := app.Run(context.Background(), append([]string{"gmkit", "--log-format", "text"}, args...))
	return stdout.String(), err
}

func TestPatchCommand(t *testing.T) {
	dir := t.TempDir()
	base := writeFile(t, dir, "base.gmb", buildLibrary(t, "base", testFunc{"Init", 1, "old"}, testFunc{"Tick", 2, "tock"}))
	patch := writeFile(t, dir, "patch.gmb", buildLibrary(t, "patch", testFunc{"Init", 8, "new"}, testFunc{"Extra", 9, "more"}))
	out := filepath.Join(dir, "out.gmb")
	report := filepath.Join(dir, "report.json")

	if _, err := run(t, "patch", "--report", report, base, patch, out); err != nil {
		t.Fatalf("patch: %v", err)
	}

	lib, err := gm.Open(out)
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	if len(lib.Functions) != 2 || lib.Functions[0].Header.ID != 1 {
		t.Fatalf("unexpected functions: %+v", lib.Functions)
	}
	list, err := lib.Listing(0)
	if err != nil {
		t.Fatal(err)
	}
	if list[0].String() != "0000 BC_PUSHSTR new" {
		t.Fatalf("merged listing: %v", list)
	}

	b, err := os.ReadFile(report)
	if err != nil {
		t.Fatal(err)
	}
	var doc struct {
		RunID  string          `json:"run_id"`
		Report *gm.MergeReport `json:"report"`
	}
	if err := json.Unmarshal(b, &doc); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if doc.RunID == "" || len(doc.Report.Dropped) != 1 || doc.Report.Dropped[0] != "Extra" {
		t.Fatalf("unexpected report: %s", b)
	}
}

func TestPatchCommandAppendNew(t *testing.T) {
	dir := t.TempDir()
	base := writeFile(t, dir, "base.gmb", buildLibrary(t, "", testFunc{"Init", 1, "old"}))
	patch := writeFile(t, dir, "patch.gmb", buildLibrary(t, "", testFunc{"Extra", 9, "more"}))
	out := filepath.Join(dir, "out.gmb")

	if _, err := run(t, "patch", "--append-new", base, patch, out); err != nil {
		t.Fatalf("patch: %v", err)
	}
	lib, err := gm.Open(out)
	if err != nil {
		t.Fatal(err)
	}
	name, err := lib.FunctionName(1)
	if err != nil || name != "Extra" || lib.Functions[1].Header.ID != 2 {
		t.Fatalf("appended function: %q %v %+v", name, err, lib.Functions[1].Header)
	}
}

func TestPatchCommandFailureWritesNothing(t *testing.T) {
	dir := t.TempDir()
	base := writeFile(t, dir, "base.gmb", buildLibrary(t, "", testFunc{"Init", 1, "old"}))
	patch := writeFile(t, dir, "patch.gmb", buildLibrary(t, "", testFunc{"Init", 2, "żółw"}))
	out := filepath.Join(dir, "out.gmb")

	if _, err := run(t, "patch", base, patch, out); err == nil {
		t.Fatal("expected relocation failure")
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Fatalf("output should not exist, stat err = %v", err)
	}

	if _, err := run(t, "patch", base, patch); err == nil {
		t.Fatal("expected usage error with two arguments")
	}
}

func TestPatchCommandRejectsUnknownOpcode(t *testing.T) {
	dir := t.TempDir()
	raw := buildLibrary(t, "", testFunc{"Junk", 1, "old"})
	// the first bytecode word of the only function follows the count and its 32-byte header
	fn := binary.LittleEndian.Uint32(raw[16:])
	binary.LittleEndian.PutUint32(raw[fn+4+32:], 999)
	if _, err := gm.Decode(raw); err != nil {
		t.Fatalf("decode keeps undecodable bytecode: %v", err)
	}

	base := writeFile(t, dir, "base.gmb", raw)
	patch := writeFile(t, dir, "patch.gmb", buildLibrary(t, "", testFunc{"Init", 2, "new"}))
	out := filepath.Join(dir, "out.gmb")

	if _, err := run(t, "patch", base, patch, out); err == nil || !strings.Contains(err.Error(), "unknown instruction") {
		t.Fatalf("expected unknown instruction error, got %v", err)
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Fatalf("output should not exist, stat err = %v", err)
	}
}

func TestDisasmCommand(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "lib.gmb", buildLibrary(t, "", testFunc{"Init", 1, "hello"}, testFunc{"Tick", 2, "tock"}))

	out, err := run(t, "disasm", "--input", path, "--function", "Tick")
	if err != nil {
		t.Fatalf("disasm: %v", err)
	}
	if !strings.Contains(out, "function 1 Tick") || !strings.Contains(out, "0000 BC_PUSHSTR tock") {
		t.Fatalf("unexpected listing:\n%s", out)
	}
	if strings.Contains(out, "hello") {
		t.Fatalf("listing should only contain Tick:\n%s", out)
	}

	out, err = run(t, "disasm", "--input", path)
	if err != nil {
		t.Fatalf("disasm all: %v", err)
	}
	if !strings.Contains(out, "0000 BC_PUSHSTR hello") || !strings.Contains(out, "0008 BC_RETV") {
		t.Fatalf("unexpected listing:\n%s", out)
	}

	if _, err := run(t, "disasm", "--input", path, "--index", "7"); err == nil {
		t.Fatal("expected out of range error")
	}
}

func TestInspectCommand(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "lib.gmb", buildLibrary(t, "global x = 1;", testFunc{"Init", 4, "hello"}))

	out, err := run(t, "inspect", "--input", path, "--json", "--strings")
	if err != nil {
		t.Fatalf("inspect: %v", err)
	}
	var doc inspectOutput
	if err := json.Unmarshal([]byte(out), &doc); err != nil {
		t.Fatalf("decode inspect output: %v\n%s", err, out)
	}
	if len(doc.Library.Functions) != 1 || doc.Library.Functions[0].Name != "Init" || len(doc.Strings) != 2 {
		t.Fatalf("unexpected inspect output: %s", out)
	}

	out, err = run(t, "inspect", "--input", path, "--source", "--source-encoding", "raw")
	if err != nil {
		t.Fatalf("inspect --source: %v", err)
	}
	if out != "global x = 1;" {
		t.Fatalf("source = %q", out)
	}

	out, err = run(t, "inspect", "--input", path)
	if err != nil {
		t.Fatalf("inspect text: %v", err)
	}
	if !strings.Contains(out, "Functions:") || !strings.Contains(out, "Init") {
		t.Fatalf("unexpected text output:\n%s", out)
	}
}

func levelContainer(names string, entries map[uint32][]byte, order []uint32) []byte {
	b := []byte{1}
	b = binary.LittleEndian.AppendUint32(b, uint32(len(names)))
	b = append(b, names...)
	b = binary.LittleEndian.AppendUint32(b, 0)
	b = binary.LittleEndian.AppendUint32(b, uint32(len(order)))
	for _, off := range order {
		b = binary.LittleEndian.AppendUint32(b, off)
		b = binary.LittleEndian.AppendUint32(b, uint32(len(entries[off])))
		b = append(b, entries[off]...)
	}
	return b
}

func TestExtractCommand(t *testing.T) {
	dir := t.TempDir()
	// "\x9a" is "š" in Windows-1250
	script := buildLibrary(t, "print(\"\x9a\");", testFunc{"Init", 1, "hello"})
	lvl := levelContainer("door.gm\x00", map[uint32][]byte{0: script}, []uint32{0})
	path := writeFile(t, dir, "room.level.bin", lvl)

	if _, err := run(t, "extract", "--input", path); err != nil {
		t.Fatalf("extract: %v", err)
	}
	outDir := filepath.Join(dir, "room.level")
	compiled, err := os.ReadFile(filepath.Join(outDir, "door.gmb"))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(compiled, script) {
		t.Fatal("compiled script differs")
	}
	src, err := os.ReadFile(filepath.Join(outDir, "door.gm"))
	if err != nil {
		t.Fatal(err)
	}
	if string(src) != "print(\"š\");" {
		t.Fatalf("source = %q", src)
	}
}

func TestExtractNestedLevelIsSkipped(t *testing.T) {
	dir := t.TempDir()
	lvl := levelContainer("", nil, nil)
	binary.LittleEndian.PutUint32(lvl[5:], 1)
	path := writeFile(t, dir, "nested.level.bin", lvl)
	out := filepath.Join(dir, "out")

	if _, err := run(t, "extract", "--input", path, "--output", out); err != nil {
		t.Fatalf("nested level should be skipped, got %v", err)
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Fatalf("nothing should be written, stat err = %v", err)
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "version:") {
		t.Fatalf("unexpected output %q", out)
	}
}
