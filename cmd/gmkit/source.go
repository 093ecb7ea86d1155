package main

import (
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"
	"golang.org/x/text/encoding/charmap"
)

// Source dumps are stored in the code page of the machine that compiled
// them; the shipped games use Windows-1250.
const defaultSourceEncoding = "cp1250"

// decodeSource strips the trailing NUL from a source dump and converts it
// to UTF-8. "raw" returns the bytes unchanged.
func decodeSource(b []byte, encoding string) ([]byte, error) {
	b = trimNUL(b)
	switch strings.ToLower(encoding) {
	case "raw", "":
		return b, nil
	case "cp1250", "windows-1250":
		return charmap.Windows1250.NewDecoder().Bytes(b)
	case "cp1252", "windows-1252":
		return charmap.Windows1252.NewDecoder().Bytes(b)
	case "latin1", "iso-8859-1":
		return charmap.ISO8859_1.NewDecoder().Bytes(b)
	default:
		return nil, fmt.Errorf("unknown source encoding %q (want cp1250, cp1252, latin1 or raw)", encoding)
	}
}

// trimNUL drops the terminator the compiler appends to the source dump.
func trimNUL(b []byte) []byte {
	if n := len(b); n > 0 && b[n-1] == 0 {
		return b[:n-1]
	}
	return b
}

func sourceEncodingFlag(dest *string) *cli.StringFlag {
	return &cli.StringFlag{
		Name:        "source-encoding",
		Usage:       "code page of embedded source dumps (cp1250, cp1252, latin1, raw)",
		Value:       defaultSourceEncoding,
		Destination: dest,
	}
}
