// Package syncer applies a set of source files to a destination directory.
//
// Three modes exist. Mirror writes every source and deletes everything else
// in the destination that is not preserved. Copy writes every source and
// deletes nothing. KeepExisting only creates missing files.
package syncer

import (
	"errors"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pirakansa/compinst/internal/fault"
	"github.com/pirakansa/compinst/internal/filter"
	"github.com/pirakansa/compinst/internal/marker"
	"github.com/pirakansa/compinst/internal/patterns"
	"github.com/pirakansa/compinst/pkg/descriptor"
	"github.com/rs/zerolog"
)

// Mode selects the sync semantics.
type Mode string

const (
	ModeMirror       Mode = "mirror"
	ModeCopy         Mode = "copy"
	ModeKeepExisting Mode = "keep-existing"
)

const (
	OutcomeCreated   = "created"
	OutcomeUpdated   = "updated"
	OutcomeUnchanged = "unchanged"
	OutcomeKept      = "kept"
	OutcomeDeleted   = "deleted"
	OutcomePreserved = "preserved"
)

// Source is one file to place at Path, a slash separated path relative to
// the destination directory.
type Source struct {
	Path    string
	Content []byte
	Mode    uint32
	// Origin names where the file came from, for conflict reports.
	Origin string
}

// Request is one sync pass over one destination directory.
type Request struct {
	Item     string
	DestDir  string
	Sources  []Source
	Exclude  patterns.List
	Preserve patterns.Layers
	Mode     Mode

	// ContentType is recorded in the destination's marker after the pass
	// when WriteMarker is set.
	ContentType descriptor.ContentType
	WriteMarker bool

	// Filters see paths as FilterPrefix/<source path>, i.e. relative to the
	// install root.
	Filters      filter.Chain
	FilterPrefix string
}

// Options control how a pass touches the filesystem.
type Options struct {
	DryRun bool
	Now    func() time.Time
	Logger zerolog.Logger
	OnFile func(FileProgress)
}

// FileProgress describes one processed destination file.
type FileProgress struct {
	Item    string
	Path    string
	Outcome string
}

// Result counts what a pass did.
type Result struct {
	Created       int
	Updated       int
	Unchanged     int
	Kept          int
	Deleted       int
	Preserved     int
	MarkerWritten bool
}

// WorkDone is false when the pass left the destination untouched.
func (r *Result) WorkDone() bool {
	return r.Created+r.Updated+r.Deleted > 0 || r.MarkerWritten
}

// Add accumulates another result.
func (r *Result) Add(other *Result) {
	if other == nil {
		return
	}
	r.Created += other.Created
	r.Updated += other.Updated
	r.Unchanged += other.Unchanged
	r.Kept += other.Kept
	r.Deleted += other.Deleted
	r.Preserved += other.Preserved
	r.MarkerWritten = r.MarkerWritten || other.MarkerWritten
}

// Sync applies req. Duplicate destination paths fail the pass before
// anything is written.
func Sync(req Request, opts Options) (*Result, error) {
	if req.DestDir == "" {
		return nil, errors.New("destination dir is required")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if req.Mode == "" {
		req.Mode = ModeMirror
	}

	sources, err := collectSources(req)
	if err != nil {
		return nil, err
	}

	res := &Result{}
	now := opts.Now()
	written := make(map[string]bool, len(sources))
	for _, src := range sources {
		written[src.Path] = true
		outcome, err := applySource(req, src, now, opts)
		if err != nil {
			return nil, fault.Wrap(err, fault.KindIO, "write file").WithItem(req.Item).WithPath(filepath.Join(req.DestDir, filepath.FromSlash(src.Path)))
		}
		res.record(outcome)
		notify(opts, req.Item, src.Path, outcome)
	}

	if req.Mode == ModeMirror {
		if err := removeStale(req, written, res, opts); err != nil {
			return nil, fault.Wrap(err, fault.KindIO, "remove stale files").WithItem(req.Item).WithPath(req.DestDir)
		}
	}

	if req.WriteMarker {
		changed, err := recordMarker(req, opts)
		if err != nil {
			return nil, fault.Wrap(err, fault.KindIO, "write marker").WithItem(req.Item).WithPath(marker.Path(req.DestDir))
		}
		res.MarkerWritten = changed
	}

	opts.Logger.Debug().
		Str("item", req.Item).
		Str("path", req.DestDir).
		Str("mode", string(req.Mode)).
		Int("created", res.Created).
		Int("updated", res.Updated).
		Int("unchanged", res.Unchanged).
		Int("deleted", res.Deleted).
		Int("preserved", res.Preserved).
		Msg("Synced directory")
	return res, nil
}

// collectSources normalizes paths, detects conflicts and drops excluded
// entries. The result is sorted by path.
func collectSources(req Request) ([]Source, error) {
	byPath := make(map[string]Source, len(req.Sources))
	for _, src := range req.Sources {
		rel, err := normalizeRel(src.Path)
		if err != nil {
			return nil, fault.Wrap(err, fault.KindConfig, "invalid source path").WithItem(req.Item)
		}
		if previous, ok := byPath[rel]; ok {
			return nil, fault.Newf(fault.KindPathConflict, "%s and %s both install %s", describe(previous), describe(src), rel).
				WithItem(req.Item).WithPath(filepath.Join(req.DestDir, filepath.FromSlash(rel)))
		}
		src.Path = rel
		byPath[rel] = src
	}
	for rel, src := range byPath {
		for parent := path.Dir(rel); parent != "."; parent = path.Dir(parent) {
			if other, ok := byPath[parent]; ok {
				return nil, fault.Newf(fault.KindPathConflict, "%s installs file %s where %s needs a directory", describe(other), parent, describe(src)).
					WithItem(req.Item).WithPath(filepath.Join(req.DestDir, filepath.FromSlash(parent)))
			}
		}
	}

	sources := make([]Source, 0, len(byPath))
	for rel, src := range byPath {
		if rel == marker.FileName || req.Exclude.Match(rel) {
			continue
		}
		sources = append(sources, src)
	}
	sort.Slice(sources, func(i, j int) bool { return sources[i].Path < sources[j].Path })
	return sources, nil
}

func describe(src Source) string {
	if src.Origin != "" {
		return src.Origin
	}
	return "a source"
}

func normalizeRel(value string) (string, error) {
	cleaned := path.Clean(strings.TrimPrefix(strings.ReplaceAll(value, "\\", "/"), "/"))
	if cleaned == "." || cleaned == "" || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", errors.New("path " + value + " escapes the destination")
	}
	return cleaned, nil
}

func (r *Result) record(outcome string) {
	switch outcome {
	case OutcomeCreated:
		r.Created++
	case OutcomeUpdated:
		r.Updated++
	case OutcomeUnchanged:
		r.Unchanged++
	case OutcomeKept:
		r.Kept++
	case OutcomeDeleted:
		r.Deleted++
	case OutcomePreserved:
		r.Preserved++
	}
}

func notify(opts Options, item, rel, outcome string) {
	if opts.OnFile != nil {
		opts.OnFile(FileProgress{Item: item, Path: rel, Outcome: outcome})
	}
}

func recordMarker(req Request, opts Options) (bool, error) {
	if opts.DryRun {
		return !marker.Exists(req.DestDir) || marker.Read(req.DestDir) != req.ContentType.OrDefault(), nil
	}
	return marker.Write(req.DestDir, req.ContentType)
}
