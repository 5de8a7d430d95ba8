package shared

import (
	"path/filepath"
	"strings"
	"time"
)

const backupTimestampLayout = "20060102150405"

// BackupRunDir returns the directory one cleanup pass moves orphans into:
// <base>/<name>/<timestamp>. Separate runs never collide in the same second
// unless they back up the same component twice.
func BackupRunDir(base, name string, now time.Time) string {
	ts := now.Format(backupTimestampLayout)
	name = strings.Trim(filepath.ToSlash(name), "/")
	if name == "" {
		return filepath.Join(base, ts)
	}
	return filepath.Join(base, filepath.FromSlash(name), ts)
}
