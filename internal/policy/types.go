// Package policy decides, per declared item, whether and how it is written
// during a reconciliation pass. It is pure: on-disk state and the target
// platform are passed in.
package policy

import (
	"github.com/pirakansa/compinst/internal/patterns"
	"github.com/pirakansa/compinst/internal/resolve"
	"github.com/pirakansa/compinst/internal/syncer"
	"github.com/pirakansa/compinst/pkg/descriptor"
)

// ItemKind names the descriptor collection an operation comes from.
type ItemKind string

const (
	KindDescriptor ItemKind = "descriptor"
	KindLibs       ItemKind = "libs"
	KindModule     ItemKind = "module"
	KindContainer  ItemKind = "container"
	KindDirectory  ItemKind = "directory"
	KindFile       ItemKind = "file"
	KindLink       ItemKind = "link"
)

// ArtifactRef points at one published file that contributes to an
// operation.
type ArtifactRef struct {
	// Dependency is resolved by the caller before fetching; for items
	// published with the component it is the component coordinate.
	Dependency resolve.Dependency
	Artifact   resolve.Artifact
	// Archive entries are unpacked below Prefix; otherwise the file is
	// written to Target.
	Archive    bool
	Format     string
	StripFirst bool
	Prefix     string
	Target     string
}

// FileItem is a loose file overriding packaged content. Exactly one of
// Local and Artifact is set.
type FileItem struct {
	Name              string
	Local             string
	Artifact          *ArtifactRef
	Path              string
	ContentType       descriptor.ContentType
	Updatable         bool
	ExcludeFromUpdate bool
}

// LooseFile places a FileItem at Rel inside an operation's destination.
type LooseFile struct {
	Rel  string
	File FileItem
}

// Link is a symbolic link Name -> Target relative to the install root.
type Link struct {
	Name   string
	Target string
}

// Operation is one sync pass over one destination directory.
type Operation struct {
	Item        string
	Kind        ItemKind
	DestDir     string
	Artifacts   []ArtifactRef
	Files       []LooseFile
	Exclude     []string
	Preserve    []descriptor.PatternSet
	Mode        syncer.Mode
	ContentType descriptor.ContentType
	WriteMarker bool
	Update      bool
	Link        *Link
}

// ExcludeList compiles the exclude patterns.
func (o Operation) ExcludeList() (patterns.List, error) {
	return patterns.Compile(o.Exclude)
}

// PreserveLayers compiles the preserve stack, innermost layer first.
func (o Operation) PreserveLayers() (patterns.Layers, error) {
	layers := make(patterns.Layers, 0, len(o.Preserve))
	for _, p := range o.Preserve {
		set, err := patterns.NewSet(p.Includes, p.Excludes)
		if err != nil {
			return nil, err
		}
		layers = append(layers, set)
	}
	return layers, nil
}

// PropertyOverride sets Key=Value in properties files matching Pattern.
type PropertyOverride struct {
	Key     string
	Value   string
	Pattern string
}

// Skip records an item that was not planned and why.
type Skip struct {
	Item   string
	Reason string
}

// Plan is the ordered result of one policy evaluation.
type Plan struct {
	Operations []Operation
	Properties []PropertyOverride
	Skipped    []Skip
	// DeclaredPaths are the root-relative paths the component owns; they
	// feed the cleanup tree.
	DeclaredPaths []string
}
