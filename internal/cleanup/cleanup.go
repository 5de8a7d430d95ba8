// Package cleanup removes on-disk entries of a component root that the
// current descriptor no longer declares. Orphaned directories that may hold
// user data are moved to a backup location instead of being deleted.
package cleanup

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/pirakansa/compinst/internal/cli/shared"
	"github.com/pirakansa/compinst/internal/fault"
	"github.com/pirakansa/compinst/internal/marker"
)

// Action is what happened to one orphan.
type Action string

const (
	ActionDeleted  Action = "deleted"
	ActionBackedUp Action = "backed-up"
	// ActionKept is used for directories that need a backup when no
	// backup dir is configured.
	ActionKept Action = "kept"
)

// Decision records the handling of one orphan.
type Decision struct {
	// Path is relative to the install root, slash separated.
	Path   string
	Dir    bool
	Action Action
	// Backup is the absolute destination of a moved directory.
	Backup string
}

// Options control one cleanup pass.
type Options struct {
	// BackupDir is the base directory orphans are moved into. Each pass
	// uses its own run directory below it, named after Component.
	BackupDir string
	Component string
	DryRun    bool
	Now       func() time.Time
	Logger    zerolog.Logger
	OnOrphan  func(Decision)
}

// Result lists every decision of a pass in walk order.
type Result struct {
	Decisions []Decision
}

// Count returns how many orphans got action a.
func (r *Result) Count(a Action) int {
	n := 0
	for _, d := range r.Decisions {
		if d.Action == a {
			n++
		}
	}
	return n
}

type pass struct {
	root      string
	backupAbs string
	runDir    string
	opts      Options
	result    *Result
}

// Run walks installRoot against the tree built from declared and handles
// every orphan. A missing root is not an error.
func Run(installRoot string, declared []string, opts Options) (*Result, error) {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	root, err := filepath.Abs(installRoot)
	if err != nil {
		return nil, fault.Wrap(err, fault.KindIO, "resolve install root")
	}
	p := &pass{root: root, opts: opts, result: &Result{}}
	if opts.BackupDir != "" {
		backup, err := filepath.Abs(opts.BackupDir)
		if err != nil {
			return nil, fault.Wrap(err, fault.KindIO, "resolve backup dir")
		}
		p.backupAbs = backup
		p.runDir = shared.BackupRunDir(backup, opts.Component, opts.Now())
	}

	info, err := os.Stat(root)
	if os.IsNotExist(err) {
		return p.result, nil
	}
	if err != nil {
		return nil, fault.Wrap(err, fault.KindIO, "stat install root").WithPath(root)
	}
	if !info.IsDir() {
		return nil, fault.New(fault.KindPathConflict, "install root is not a directory").WithPath(root)
	}

	tree := BuildTree(declared)
	if tree.IsTarget {
		return p.result, nil
	}
	if err := p.walk(root, "", tree); err != nil {
		return nil, err
	}
	return p.result, nil
}

func (p *pass) walk(dir, rel string, node *TreeNode) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fault.Wrap(err, fault.KindIO, "read directory").WithPath(dir)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		name := entry.Name()
		abs := filepath.Join(dir, name)
		entryRel := name
		if rel != "" {
			entryRel = rel + "/" + name
		}
		if name == marker.FileName || p.isBackupPath(abs) {
			continue
		}
		child, declared := node.Lookup(name)
		switch {
		case declared && child.IsTarget:
			continue
		case declared && entry.IsDir():
			if err := p.walk(abs, entryRel, child); err != nil {
				return err
			}
			continue
		}
		if err := p.orphan(abs, entryRel, entry); err != nil {
			return err
		}
	}
	return nil
}

// isBackupPath is true for the backup base itself.
func (p *pass) isBackupPath(abs string) bool {
	return p.backupAbs != "" && abs == p.backupAbs
}

// holdsBackup is true when the backup base lies below abs.
func (p *pass) holdsBackup(abs string) bool {
	if p.backupAbs == "" {
		return false
	}
	rel, err := filepath.Rel(abs, p.backupAbs)
	if err != nil || rel == "." || rel == ".." {
		return false
	}
	return !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func (p *pass) orphan(abs, rel string, entry fs.DirEntry) error {
	isDir := entry.IsDir()
	decision := Decision{Path: rel, Dir: isDir, Action: ActionDeleted}
	if isDir && p.holdsBackup(abs) {
		// The backup base sits inside this orphan; only its siblings go.
		return p.walk(abs, rel, &TreeNode{})
	}
	if isDir {
		backup, err := needsBackup(abs)
		if err != nil {
			return err
		}
		switch {
		case backup && p.runDir == "":
			decision.Action = ActionKept
		case backup:
			decision.Action = ActionBackedUp
			decision.Backup = filepath.Join(p.runDir, filepath.FromSlash(rel))
		}
	}

	logger := p.opts.Logger
	if decision.Action == ActionKept {
		logger.Warn().Str("path", rel).Msg("orphan may hold data and no backup dir is set; keeping it")
	} else {
		logger.Info().Str("path", rel).Str("action", string(decision.Action)).Bool("dry_run", p.opts.DryRun).Msg("orphan")
	}
	if !p.opts.DryRun && decision.Action != ActionKept {
		var err error
		switch decision.Action {
		case ActionBackedUp:
			err = moveTree(abs, decision.Backup)
		default:
			err = os.RemoveAll(abs)
		}
		if err != nil {
			return fault.Wrapf(err, fault.KindIO, "%s orphan", decision.Action).WithPath(abs)
		}
	}
	p.result.Decisions = append(p.result.Decisions, decision)
	if p.opts.OnOrphan != nil {
		p.opts.OnOrphan(decision)
	}
	return nil
}

// needsBackup is true when dir has no marker of its own or any marker
// below it asks for DATA or UNSPECIFIED handling.
func needsBackup(dir string) (bool, error) {
	if !marker.Exists(dir) {
		return true, nil
	}
	markers, err := marker.Find(dir)
	if err != nil {
		return false, fault.Wrap(err, fault.KindIO, "scan markers").WithPath(dir)
	}
	for _, ct := range markers {
		if ct.NeedsBackup() {
			return true, nil
		}
	}
	return false, nil
}

// moveTree renames src to dst, copying and removing when a rename is not
// possible, e.g. across devices.
func moveTree(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	if err := copyTree(src, dst); err != nil {
		return err
	}
	return os.RemoveAll(src)
}

func copyTree(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		info, err := d.Info()
		if err != nil {
			return err
		}
		switch {
		case d.IsDir():
			return os.MkdirAll(target, info.Mode().Perm()|0o700)
		case info.Mode()&os.ModeSymlink != 0:
			link, err := os.Readlink(path)
			if err != nil {
				return err
			}
			return os.Symlink(link, target)
		default:
			return copyFile(path, target, info.Mode().Perm())
		}
	})
}

func copyFile(src, dst string, perm os.FileMode) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
