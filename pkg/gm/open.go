package gm

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Open reads and decodes the library at path. The file is mapped read-only
// when mmap is available and read into memory otherwise; either way the
// returned Library holds its own copy of every field.
func Open(path string) (*Library, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size64 := stat.Size()
	if size64 > int64(int(^uint(0)>>1)) {
		return nil, fmt.Errorf("%s: file too large (%d bytes)", path, size64)
	}
	size := int(size64)
	if size < headerSize {
		return nil, fmt.Errorf("%s: %w", path, formatErrorf(-1, 0, "truncated header: %d bytes", size))
	}

	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ, unix.MAP_SHARED)
	if err == nil {
		lib, decErr := Decode(data)
		if unmapErr := unix.Munmap(data); decErr == nil && unmapErr != nil {
			return nil, unmapErr
		}
		if decErr != nil {
			return nil, fmt.Errorf("%s: %w", path, decErr)
		}
		return lib, nil
	}

	// Fallback path that does not require mmap support.
	data, err = os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	lib, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return lib, nil
}
