package reconcile

import (
	"os"
	"path/filepath"

	"github.com/pirakansa/compinst/internal/fault"
	"github.com/pirakansa/compinst/internal/policy"
)

const (
	linkCreated       = "created"
	linkReplaced      = "replaced"
	linkUnchanged     = "unchanged"
	linkMissingTarget = "missing-target"
)

// LinkResult reports what happened to one declared link.
type LinkResult struct {
	Name    string
	Target  string
	Outcome string
}

// applyLink points root/link.Name at link.Target. Relative targets are
// taken from the install root and written as absolute paths. An existing
// link with another target is replaced; any other existing entry is a
// conflict. A missing target only logs a warning.
func (e *Engine) applyLink(root string, link policy.Link) (LinkResult, error) {
	name := filepath.Join(root, filepath.FromSlash(link.Name))
	target := link.Target
	if !filepath.IsAbs(target) {
		target = filepath.Join(root, filepath.FromSlash(target))
	}
	res := LinkResult{Name: link.Name, Target: target}
	logger := e.opts.Logger.With().Str("item", "link "+link.Name).Str("path", name).Logger()

	replace := false
	if info, err := os.Lstat(name); err == nil {
		if info.Mode()&os.ModeSymlink == 0 {
			return res, fault.New(fault.KindPathConflict, "exists and is not a symbolic link").WithItem("link " + link.Name).WithPath(name)
		}
		current, err := os.Readlink(name)
		if err != nil {
			return res, fault.Wrap(err, fault.KindIO, "read link").WithPath(name)
		}
		if current == target {
			res.Outcome = linkUnchanged
			return res, nil
		}
		replace = true
	}

	if _, err := os.Stat(target); err != nil {
		logger.Warn().Str("target", target).Msg("Link target does not exist")
		res.Outcome = linkMissingTarget
		return res, nil
	}

	res.Outcome = linkCreated
	if replace {
		res.Outcome = linkReplaced
	}
	if e.opts.DryRun {
		return res, nil
	}
	if replace {
		if err := os.Remove(name); err != nil {
			return res, fault.Wrap(err, fault.KindIO, "remove link").WithPath(name)
		}
	}
	if err := os.MkdirAll(filepath.Dir(name), 0o755); err != nil {
		return res, fault.Wrap(err, fault.KindIO, "create link parent").WithPath(name)
	}
	if err := os.Symlink(target, name); err != nil {
		return res, fault.Wrap(err, fault.KindIO, "create link").WithPath(name)
	}
	logger.Info().Str("target", target).Str("outcome", res.Outcome).Msg("Link")
	return res, nil
}
