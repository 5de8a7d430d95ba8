package reconcile

import (
	"context"
	"os"
	"path"

	"github.com/pirakansa/compinst/internal/archive"
	"github.com/pirakansa/compinst/internal/fault"
	"github.com/pirakansa/compinst/internal/policy"
	"github.com/pirakansa/compinst/internal/resolve"
	"github.com/pirakansa/compinst/internal/syncer"
)

// materializer turns planned artifact references into sync sources. Module
// and library coordinates are resolved once per component pass.
type materializer struct {
	engine    *Engine
	locations map[string]resolve.ResolvedLocation
}

func (m *materializer) locate(ctx context.Context, dep resolve.Dependency) (resolve.ResolvedLocation, error) {
	key := dep.String()
	if loc, ok := m.locations[key]; ok {
		return loc, nil
	}
	loc, err := m.engine.resolver.Resolve(ctx, dep, m.engine.repos)
	if err != nil {
		return resolve.ResolvedLocation{}, err
	}
	m.locations[key] = loc
	return loc, nil
}

// resolveAll resolves every dependency the plan downloads from, so a
// missing module or library fails the pass before anything is written.
func (m *materializer) resolveAll(ctx context.Context, plan *policy.Plan) error {
	for _, op := range plan.Operations {
		for _, ref := range op.Artifacts {
			if _, err := m.locate(ctx, ref.Dependency); err != nil {
				return wrapItem(err, op.Item)
			}
		}
		for _, lf := range op.Files {
			if lf.File.Artifact == nil {
				continue
			}
			if _, err := m.locate(ctx, lf.File.Artifact.Dependency); err != nil {
				return wrapItem(err, op.Item)
			}
		}
	}
	return nil
}

func (m *materializer) download(ctx context.Context, ref policy.ArtifactRef) ([]byte, string, error) {
	loc, err := m.locate(ctx, ref.Dependency)
	if err != nil {
		return nil, "", err
	}
	url := loc.ArtifactURL(ref.Artifact)
	content, err := m.engine.fetch(ctx, loc.Repository, url)
	return content, url, err
}

// sources collects every file of op. Loose files replace archive entries
// at the same path.
func (m *materializer) sources(ctx context.Context, op policy.Operation) ([]syncer.Source, error) {
	overridden := map[string]bool{}
	for _, lf := range op.Files {
		overridden[lf.Rel] = true
	}

	var out []syncer.Source
	for _, ref := range op.Artifacts {
		content, url, err := m.download(ctx, ref)
		if err != nil {
			return nil, wrapItem(err, op.Item)
		}
		if !ref.Archive {
			out = append(out, syncer.Source{Path: ref.Target, Content: content, Origin: url})
			continue
		}
		entries, err := archive.Read(content, ref.Format)
		if err != nil {
			return nil, fault.Wrap(err, fault.KindIO, "unpack").WithItem(op.Item).WithPath(url)
		}
		if ref.StripFirst {
			entries = archive.StripFirstSegment(entries)
		}
		for _, entry := range entries {
			rel := path.Join(ref.Prefix, entry.Path)
			if overridden[rel] {
				continue
			}
			out = append(out, syncer.Source{Path: rel, Content: entry.Body, Mode: uint32(entry.Mode), Origin: url})
		}
	}

	for _, lf := range op.Files {
		src, err := m.looseFile(ctx, lf)
		if err != nil {
			return nil, wrapItem(err, op.Item)
		}
		out = append(out, src)
	}
	return out, nil
}

func (m *materializer) looseFile(ctx context.Context, lf policy.LooseFile) (syncer.Source, error) {
	if lf.File.Artifact != nil {
		content, url, err := m.download(ctx, *lf.File.Artifact)
		if err != nil {
			return syncer.Source{}, err
		}
		return syncer.Source{Path: lf.Rel, Content: content, Origin: url}, nil
	}
	content, err := os.ReadFile(lf.File.Local)
	if err != nil {
		return syncer.Source{}, fault.Wrap(err, fault.KindIO, "read local file").WithPath(lf.File.Local)
	}
	info, err := os.Stat(lf.File.Local)
	if err != nil {
		return syncer.Source{}, fault.Wrap(err, fault.KindIO, "stat local file").WithPath(lf.File.Local)
	}
	return syncer.Source{Path: lf.Rel, Content: content, Mode: uint32(info.Mode().Perm()), Origin: lf.File.Local}, nil
}

// wrapItem attaches the item name to fault errors that lack one.
func wrapItem(err error, item string) error {
	if fe, ok := err.(*fault.Error); ok && fe.Item == "" {
		return fe.WithItem(item)
	}
	return err
}
