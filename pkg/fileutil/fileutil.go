// Package fileutil provides file system utility functions.
package fileutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FindFileCaseInsensitive searches dir for a regular file whose name matches
// filename ignoring case. Game data copied off DOS media is usually all
// upper case.
//
//	path, err := FindFileCaseInsensitive("/games/u8/usecode", "eusecode.flx")
//	// finds "EUSECODE.FLX"
func FindFileCaseInsensitive(dir, filename string) (string, error) {
	// exact name first, it is the common case
	exact := filepath.Join(dir, filename)
	if info, err := os.Stat(exact); err == nil && !info.IsDir() {
		return exact, nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("failed to read directory %s: %w", dir, err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if strings.EqualFold(entry.Name(), filename) {
			return filepath.Join(dir, entry.Name()), nil
		}
	}
	return "", fmt.Errorf("file not found: %s (searched in %s): %w", filename, dir, os.ErrNotExist)
}

// ResolvePath returns path unchanged if it exists, otherwise the entry in
// its directory whose name matches ignoring case.
func ResolvePath(path string) (string, error) {
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}
	return FindFileCaseInsensitive(filepath.Dir(path), filepath.Base(path))
}
