package reconcile

import (
	"context"
	"errors"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/pirakansa/compinst/internal/fault"
	"github.com/pirakansa/compinst/pkg/installconf"
)

// InstallAll reconciles every component, at most jobs at a time. Install
// roots must be distinct and must not contain one another. A failing component does not stop the
// others; all failures are joined. Results keep the component order and
// are nil for failed components.
func (e *Engine) InstallAll(ctx context.Context, comps []installconf.Component, jobs int) ([]*ComponentResult, error) {
	roots := make([]string, len(comps))
	for i, comp := range comps {
		roots[i] = e.cfg.ComponentRoot(comp)
		for j := 0; j < i; j++ {
			if nestedRoots(roots[j], roots[i]) {
				return nil, fault.Newf(fault.KindConfig, "components %s and %s have overlapping install roots %s and %s",
					comps[j].Dependency, comp.Dependency, roots[j], roots[i]).WithPath(roots[i])
			}
		}
	}
	if jobs <= 0 {
		jobs = 1
	}

	results := make([]*ComponentResult, len(comps))
	errs := make([]error, len(comps))
	var g errgroup.Group
	g.SetLimit(jobs)
	for i, comp := range comps {
		i, comp := i, comp
		g.Go(func() error {
			res, err := e.Install(ctx, comp)
			results[i], errs[i] = res, err
			if err != nil {
				e.opts.Logger.Error().Err(err).Str("dependency", comp.Dependency).Msg("Component failed")
			}
			return nil
		})
	}
	_ = g.Wait()
	return results, errors.Join(errs...)
}

// nestedRoots reports whether a and b are the same directory or one lies
// inside the other.
func nestedRoots(a, b string) bool {
	return containsPath(a, b) || containsPath(b, a)
}

func containsPath(parent, child string) bool {
	rel, err := filepath.Rel(parent, child)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
