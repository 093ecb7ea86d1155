package gm

import (
	"errors"
	"fmt"
)

var (
	ErrFormat     = errors.New("invalid GM library")
	ErrRelocation = errors.New("string relocation failed")
)

// FormatError reports a malformed library. Function is the index of the
// function record being decoded, or -1 outside of the function table.
// Offset is a buffer offset while decoding and a bytecode address while
// walking instructions.
type FormatError struct {
	Function int
	Offset   int
	Msg      string
}

func (e *FormatError) Error() string {
	if e.Function < 0 {
		return fmt.Sprintf("gm: %s at offset %d", e.Msg, e.Offset)
	}
	return fmt.Sprintf("gm: function %d: %s at offset %d", e.Function, e.Msg, e.Offset)
}

func (e *FormatError) Unwrap() error {
	return ErrFormat
}

func formatErrorf(fn, off int, format string, args ...any) error {
	return &FormatError{Function: fn, Offset: off, Msg: fmt.Sprintf(format, args...)}
}

// RelocationError reports a string reference in a patch function that could
// not be moved into the merged string table. Address is the bytecode address
// of the instruction, or -1 for references held in the function record.
type RelocationError struct {
	Function string
	Address  int
	Text     string
	Err      error
}

func (e *RelocationError) Error() string {
	msg := fmt.Sprintf("gm: relocate %q", e.Function)
	if e.Address >= 0 {
		msg += fmt.Sprintf(" at %04d", e.Address)
	}
	if e.Text != "" {
		msg += fmt.Sprintf(" (%q)", e.Text)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RelocationError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrRelocation}
	}
	return []error{ErrRelocation, e.Err}
}
