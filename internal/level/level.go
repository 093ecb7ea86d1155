// Package level reads the level containers that ship compiled script
// libraries alongside their level data.
package level

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/cryptobyte"
)

const magic = 1

var (
	ErrNotLevel     = errors.New("level: not a level container")
	ErrNestedLevel  = errors.New("level: nested level container")
	ErrCorruptLevel = errors.New("level: corrupt container")
)

// Script is one compiled script library stored in a level.
type Script struct {
	Name string
	Data []byte
}

// Read returns the scripts of a level container in file order. Containers
// that embed another level return ErrNestedLevel and no scripts. Bytes after
// the last declared script are ignored.
func Read(b []byte) ([]Script, error) {
	s := cryptobyte.String(b)

	var m uint8
	if !s.ReadUint8(&m) {
		return nil, fmt.Errorf("%w: %w", ErrNotLevel, io.ErrUnexpectedEOF)
	}
	if m != magic {
		return nil, fmt.Errorf("%w: magic %d", ErrNotLevel, m)
	}

	namesLen, ok := readU32(&s)
	if !ok {
		return nil, corrupt("names length", len(b)-len(s))
	}
	var names []byte
	if !s.ReadBytes(&names, int(namesLen)) {
		return nil, corrupt("names", len(b)-len(s))
	}

	nested, ok := readU32(&s)
	if !ok {
		return nil, corrupt("nested marker", len(b)-len(s))
	}
	if nested != 0 {
		return nil, ErrNestedLevel
	}

	count, ok := readU32(&s)
	if !ok {
		return nil, corrupt("script count", len(b)-len(s))
	}
	if uint64(count)*8 > uint64(len(s)) {
		return nil, fmt.Errorf("%w: %d scripts declared, %d bytes left", ErrCorruptLevel, count, len(s))
	}

	scripts := make([]Script, 0, count)
	for i := range int(count) {
		at := len(b) - len(s)
		nameOff, ok1 := readU32(&s)
		size, ok2 := readU32(&s)
		var data []byte
		if !ok1 || !ok2 || !s.ReadBytes(&data, int(size)) {
			return nil, corrupt(fmt.Sprintf("script %d", i), at)
		}
		name, err := lookupName(names, nameOff)
		if err != nil {
			return nil, fmt.Errorf("%w: script %d at offset %d: %w", ErrCorruptLevel, i, at, err)
		}
		scripts = append(scripts, Script{Name: name, Data: bytes.Clone(data)})
	}
	return scripts, nil
}

func readU32(s *cryptobyte.String) (uint32, bool) {
	var b []byte
	if !s.ReadBytes(&b, 4) {
		return 0, false
	}
	return binary.LittleEndian.Uint32(b), true
}

func lookupName(names []byte, off uint32) (string, error) {
	if uint64(off) >= uint64(len(names)) {
		return "", fmt.Errorf("name offset %d outside names blob of %d bytes", off, len(names))
	}
	rest := names[off:]
	if i := bytes.IndexByte(rest, 0); i >= 0 {
		rest = rest[:i]
	}
	if len(rest) == 0 {
		return "", fmt.Errorf("empty name at offset %d", off)
	}
	return string(rest), nil
}

func corrupt(what string, off int) error {
	return fmt.Errorf("%w: truncated %s at offset %d", ErrCorruptLevel, what, off)
}
