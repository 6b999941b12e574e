// Package atomicio provides atomic file writing via temp file + rename.
package atomicio

import (
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
)

// WriteFile writes data to a file atomically. The data lands in a
// temporary file in the target directory and is renamed into place, so a
// crash mid-write never leaves a partially written file behind.
func WriteFile(name string, data []byte, perm fs.FileMode) (err error) {
	// Same directory keeps the temp file on the same filesystem, which
	// os.Rename requires to be atomic.
	f, err := os.CreateTemp(filepath.Dir(name), "."+filepath.Base(name)+".tmp")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(f.Name())
		}
	}()

	if _, err := f.Write(data); err != nil {
		return err
	}
	if err := f.Chmod(perm); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(f.Name(), name)
}

// WriteJSON marshals v with two-space indentation and writes it
// atomically. Matches the formatting of the hand-maintained JSON files in
// the website repo.
func WriteJSON(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return WriteFile(name, append(data, '\n'), 0o644)
}
