// Package marker persists the content type of an installed directory in a
// hidden sentinel file at its root.
package marker

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/pirakansa/compinst/pkg/descriptor"
)

// FileName is the sentinel file written into every content-managed
// directory.
const FileName = ".install"

// Path returns the marker location for dir.
func Path(dir string) string {
	return filepath.Join(dir, FileName)
}

// Read returns the content type recorded for dir. A missing or unreadable
// marker, or one holding an unknown value, reads as UNSPECIFIED.
func Read(dir string) descriptor.ContentType {
	content, err := os.ReadFile(Path(dir))
	if err != nil {
		return descriptor.Unspecified
	}
	ct, err := descriptor.ParseContentType(strings.TrimSpace(string(content)))
	if err != nil {
		return descriptor.Unspecified
	}
	return ct.OrDefault()
}

// Exists reports whether dir carries a marker.
func Exists(dir string) bool {
	info, err := os.Stat(Path(dir))
	return err == nil && info.Mode().IsRegular()
}

// Write records ct for dir, creating dir when needed. The file is left
// untouched when it already holds the same value; the returned flag tells
// whether it was written.
func Write(dir string, ct descriptor.ContentType) (bool, error) {
	content := []byte(string(ct.OrDefault()))
	existing, err := os.ReadFile(Path(dir))
	if err == nil && bytes.Equal(bytes.TrimSpace(existing), content) {
		return false, nil
	}
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return false, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false, err
	}
	if err := os.WriteFile(Path(dir), content, 0o644); err != nil {
		return false, err
	}
	return true, nil
}

// Find walks root and returns the content types of every marker below it,
// keyed by the directory holding it.
func Find(root string) (map[string]descriptor.ContentType, error) {
	found := map[string]descriptor.ContentType{}
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && d.Name() == FileName {
			dir := filepath.Dir(path)
			found[dir] = Read(dir)
		}
		return nil
	})
	return found, err
}
