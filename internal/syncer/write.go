package syncer

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"time"

	"github.com/pirakansa/compinst/internal/cli/shared"
	"github.com/pirakansa/compinst/internal/marker"
)

func applySource(req Request, src Source, now time.Time, opts Options) (string, error) {
	target := filepath.Join(req.DestDir, filepath.FromSlash(src.Path))

	content := src.Content
	if len(req.Filters) > 0 {
		filtered, _, err := req.Filters.Apply(path.Join(req.FilterPrefix, src.Path), content)
		if err != nil {
			return "", err
		}
		content = filtered
	}

	info, err := os.Lstat(target)
	exists := err == nil
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return "", err
	}
	if exists && info.IsDir() {
		return "", fmt.Errorf("%s is a directory", target)
	}
	if exists && req.Mode == ModeKeepExisting {
		return OutcomeKept, nil
	}
	if exists && info.Mode().IsRegular() {
		current, err := os.ReadFile(target)
		if err != nil {
			return "", err
		}
		if shared.SameContent(current, content) {
			return OutcomeUnchanged, nil
		}
	}

	outcome := OutcomeCreated
	if exists {
		outcome = OutcomeUpdated
	}
	if opts.DryRun {
		return outcome, nil
	}
	if exists && !info.Mode().IsRegular() {
		if err := os.Remove(target); err != nil {
			return "", err
		}
	}
	if err := writeTarget(target, content, fileMode(src.Mode), now); err != nil {
		return "", err
	}
	return outcome, nil
}

func fileMode(mode uint32) os.FileMode {
	if mode == 0 {
		return 0o644
	}
	return os.FileMode(mode).Perm()
}

func writeTarget(target string, content []byte, perm os.FileMode, now time.Time) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(target, content, perm); err != nil {
		return err
	}
	if err := os.Chmod(target, perm); err != nil {
		return err
	}
	return os.Chtimes(target, now, now)
}

// removeStale deletes destination entries that were not written in this
// pass and are not preserved. Subdirectories carrying their own marker are
// managed by another pass and skipped.
func removeStale(req Request, written map[string]bool, res *Result, opts Options) error {
	if _, err := os.Stat(req.DestDir); errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	var dirs []string
	err := filepath.WalkDir(req.DestDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == req.DestDir {
			return nil
		}
		rel, err := filepath.Rel(req.DestDir, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			if marker.Exists(p) {
				return filepath.SkipDir
			}
			dirs = append(dirs, rel)
			return nil
		}
		if rel == marker.FileName || written[rel] {
			return nil
		}
		if req.Preserve.Preserves(rel) {
			res.record(OutcomePreserved)
			notify(opts, req.Item, rel, OutcomePreserved)
			return nil
		}
		if !opts.DryRun {
			if err := os.Remove(p); err != nil {
				return err
			}
		}
		res.record(OutcomeDeleted)
		notify(opts, req.Item, rel, OutcomeDeleted)
		return nil
	})
	if err != nil || opts.DryRun {
		return err
	}

	// Deepest first so parents empty out before they are checked.
	sort.Slice(dirs, func(i, j int) bool { return len(dirs[i]) > len(dirs[j]) })
	for _, rel := range dirs {
		if req.Preserve.Preserves(rel) {
			continue
		}
		abs := filepath.Join(req.DestDir, filepath.FromSlash(rel))
		entries, err := os.ReadDir(abs)
		if err != nil || len(entries) > 0 {
			continue
		}
		if err := os.Remove(abs); err != nil {
			return err
		}
	}
	return nil
}
