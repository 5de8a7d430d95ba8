package policy

import (
	"fmt"
	"path"
	"strings"

	"github.com/pirakansa/compinst/internal/archive"
	"github.com/pirakansa/compinst/internal/fault"
	"github.com/pirakansa/compinst/internal/platform"
	"github.com/pirakansa/compinst/internal/resolve"
	"github.com/pirakansa/compinst/internal/syncer"
	"github.com/pirakansa/compinst/pkg/descriptor"
)

const (
	reasonNotApplicable = "not applicable for this platform"
	reasonNotUpdatable  = "not updatable"

	fileItemType = "file"
)

// Input is everything a policy evaluation depends on.
type Input struct {
	Descriptor *descriptor.Component
	// Component is the resolved component coordinate; file containers and
	// descriptor file items are published with it.
	Component resolve.Dependency
	// DescriptorFile is the local copy of the component descriptor.
	DescriptorFile string
	IsUpdate       bool
	Platform       platform.Platform
	LocalFiles     []FileItem
	// Exists reports whether a root-relative path is present from an
	// earlier installation. Nil means nothing exists.
	Exists func(rel string) bool
}

// Evaluate turns the descriptor into an ordered list of operations.
func Evaluate(in Input) (*Plan, error) {
	if in.Descriptor == nil {
		return nil, fmt.Errorf("descriptor is required")
	}
	e := &evaluator{in: in, comp: in.Descriptor, plan: &Plan{}}
	if e.in.Exists == nil {
		e.in.Exists = func(string) bool { return false }
	}

	e.fileItems = e.collectFileItems()
	e.addDescriptor()
	e.addLibs()
	for _, mod := range e.comp.Modules {
		if err := e.addModule(mod); err != nil {
			return nil, err
		}
	}
	for _, fc := range e.comp.FileContainers {
		if err := e.addContainer(fc); err != nil {
			return nil, err
		}
	}
	if err := checkOwnedDirs(e.plan.Operations); err != nil {
		return nil, err
	}
	for _, dir := range e.comp.Directories {
		e.addDirectory(dir)
	}
	e.addStandaloneFiles()
	for _, link := range e.comp.Links {
		e.addLink(link)
	}
	for _, prop := range e.comp.Properties {
		if !e.in.Platform.Applies(prop.Classifier, prop.Types) {
			e.skip("property "+prop.Key, reasonNotApplicable)
			continue
		}
		e.plan.Properties = append(e.plan.Properties, PropertyOverride{Key: prop.Key, Value: prop.Value, Pattern: prop.Pattern})
	}

	e.plan.DeclaredPaths = append(e.comp.DeclaredPaths(), e.standalonePaths...)
	return e.plan, nil
}

type evaluator struct {
	in              Input
	comp            *descriptor.Component
	plan            *Plan
	fileItems       []FileItem
	claimed         map[int]bool
	standalonePaths []string
}

func (e *evaluator) skip(item, reason string) {
	e.plan.Skipped = append(e.plan.Skipped, Skip{Item: item, Reason: reason})
}

// collectFileItems merges descriptor file items and local file items that
// apply to the platform.
func (e *evaluator) collectFileItems() []FileItem {
	var items []FileItem
	for _, fi := range e.comp.FileItems {
		name := "file " + fi.FileName()
		if !e.in.Platform.Applies(fi.Classifier, fi.Types) {
			e.skip(name, reasonNotApplicable)
			continue
		}
		items = append(items, FileItem{
			Name: name,
			Artifact: &ArtifactRef{
				Dependency: e.in.Component,
				Artifact:   resolve.Artifact{Name: fi.Name, Type: fileItemType, Ext: fi.Extension, Classifier: fi.Classifier},
			},
			Path:              descriptor.JoinRel(fi.TargetPath, fi.FileName()),
			ContentType:       fi.ContentType.OrDefault(),
			Updatable:         fi.IsUpdatable(),
			ExcludeFromUpdate: fi.ExcludeFromUpdate,
		})
	}
	for _, fi := range e.in.LocalFiles {
		if fi.ContentType == "" {
			fi.ContentType = descriptor.Unspecified
		}
		items = append(items, fi)
	}
	e.claimed = map[int]bool{}
	return items
}

// updateFor reports whether dest is installed over a previous version.
// Items new to an existing installation are installed like on a fresh root.
func (e *evaluator) updateFor(dest string) bool {
	return e.in.IsUpdate && e.in.Exists(dest)
}

// modeFor maps content type and install state to sync semantics. On update
// only IMMUTABLE content may delete what the new version no longer ships,
// and DATA is never overwritten.
func modeFor(ct descriptor.ContentType, update bool) syncer.Mode {
	if !update {
		return syncer.ModeMirror
	}
	switch ct.OrDefault() {
	case descriptor.Immutable:
		return syncer.ModeMirror
	case descriptor.Data:
		return syncer.ModeKeepExisting
	default:
		return syncer.ModeCopy
	}
}

// admit applies the applicability and update filters.
func (e *evaluator) admit(name string, item descriptor.Item, dest string) (update bool, ok bool) {
	if !e.in.Platform.Applies(item.Classifier, item.Types) {
		e.skip(name, reasonNotApplicable)
		return false, false
	}
	update = e.updateFor(dest)
	if update && !item.IsUpdatable() {
		e.skip(name, reasonNotUpdatable)
		return update, false
	}
	return update, true
}

func (e *evaluator) addDescriptor() {
	e.plan.Operations = append(e.plan.Operations, Operation{
		Item:    "descriptor",
		Kind:    KindDescriptor,
		DestDir: e.comp.DescriptorPath,
		Files: []LooseFile{{
			Rel:  e.comp.Metadata.Module + "." + resolve.DescriptorType,
			File: FileItem{Name: "descriptor", Local: e.in.DescriptorFile, ContentType: descriptor.Immutable, Updatable: true},
		}},
		Mode:        syncer.ModeMirror,
		ContentType: descriptor.Immutable,
		WriteMarker: true,
		Update:      e.updateFor(e.comp.DescriptorPath),
	})
}

func (e *evaluator) addLibs() {
	if len(e.comp.Libs) == 0 {
		return
	}
	op := Operation{
		Item:        "libs",
		Kind:        KindLibs,
		DestDir:     e.comp.LibsPath,
		Mode:        syncer.ModeMirror,
		ContentType: descriptor.Immutable,
		WriteMarker: true,
		Update:      e.updateFor(e.comp.LibsPath),
	}
	for _, lib := range e.comp.Libs {
		name := "lib " + lib.Dependency.String()
		if !e.in.Platform.Applies(lib.Classifier, lib.Types) {
			e.skip(name, reasonNotApplicable)
			continue
		}
		op.Artifacts = append(op.Artifacts, ArtifactRef{
			Dependency: toDependency(lib.Dependency),
			Artifact:   resolve.Artifact{Name: lib.Dependency.Module, Type: "jar", Ext: "jar"},
			Target:     lib.TargetName + ".jar",
		})
	}
	e.plan.Operations = append(e.plan.Operations, op)
}

func (e *evaluator) addModule(mod descriptor.Module) error {
	dest := e.comp.ModuleDir(mod)
	name := "module " + mod.Name
	update, ok := e.admit(name, mod.Item, dest)
	if !ok {
		return nil
	}

	op := e.baseOperation(name, KindModule, dest, mod.ContentType, update, mod.ExcludesFromUpdate, mod.Preserve)
	dep := toDependency(mod.Dependency)
	for _, pkg := range mod.Packages {
		if !e.in.Platform.MatchesClassifier(pkg.Classifier) {
			continue
		}
		format, err := archive.FormatFromExt(pkg.Ext)
		if err != nil {
			return fmt.Errorf("%s package %s: %w", name, pkg.Name, err)
		}
		op.Artifacts = append(op.Artifacts, ArtifactRef{
			Dependency: dep,
			Artifact:   resolve.Artifact{Name: pkg.Name, Type: pkg.Type, Ext: pkg.Ext, Classifier: pkg.Classifier},
			Archive:    true,
			Format:     format,
			StripFirst: mod.TargetIncluded,
		})
	}
	for _, jar := range mod.Jars {
		op.Artifacts = append(op.Artifacts, ArtifactRef{
			Dependency: dep,
			Artifact:   resolve.Artifact{Name: jar, Type: "jar", Ext: "jar"},
			Target:     descriptor.JoinRel(mod.JarPath, jar+".jar"),
		})
	}
	if df := mod.DescriptorFile; df != nil {
		art := resolve.Artifact{Name: df.Name, Type: df.Type, Ext: df.Ext, Classifier: df.Classifier}
		if art.Name == "" {
			art.Name = dep.Module
		}
		op.Artifacts = append(op.Artifacts, ArtifactRef{
			Dependency: dep,
			Artifact:   art,
			Target:     descriptor.JoinRel(mod.DescriptorPath, art.Name+"."+art.Ext),
		})
	}
	e.attachFileItems(&op)
	e.plan.Operations = append(e.plan.Operations, op)
	return nil
}

func (e *evaluator) addContainer(fc descriptor.FileContainer) error {
	dest := e.comp.ContainerDir(fc)
	name := "container " + fc.Name
	update, ok := e.admit(name, fc.Item, dest)
	if !ok {
		return nil
	}
	format, err := archive.FormatFromExt(fc.Ext)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}

	op := e.baseOperation(name, KindContainer, dest, fc.ContentType, update, fc.ExcludesFromUpdate, fc.Preserve)
	op.Artifacts = []ArtifactRef{{
		Dependency: e.in.Component,
		Artifact:   resolve.Artifact{Name: fc.Name, Type: fc.ItemType, Ext: fc.Ext, Classifier: fc.Classifier},
		Archive:    true,
		Format:     format,
		StripFirst: fc.TargetIncluded,
	}}
	e.attachFileItems(&op)
	e.plan.Operations = append(e.plan.Operations, op)
	return nil
}

// baseOperation merges the exclude and preserve configuration of the item
// and the component. Item excludes only apply over a previous install.
func (e *evaluator) baseOperation(name string, kind ItemKind, dest string, ct descriptor.ContentType, update bool, excludesFromUpdate []string, preserve descriptor.PatternSet) Operation {
	ct = ct.OrDefault()
	excludes := append([]string(nil), e.comp.Excludes...)
	if update {
		excludes = append(excludes, excludesFromUpdate...)
	}
	var layers []descriptor.PatternSet
	if !preserve.IsEmpty() {
		layers = append(layers, preserve)
	}
	if !e.comp.Preserve.IsEmpty() {
		layers = append(layers, e.comp.Preserve)
	}
	return Operation{
		Item:        name,
		Kind:        kind,
		DestDir:     dest,
		Exclude:     excludes,
		Preserve:    layers,
		Mode:        modeFor(ct, update),
		ContentType: ct,
		WriteMarker: true,
		Update:      update,
	}
}

// attachFileItems moves the file items located below op.DestDir into op.
// On update a file item that must not be replaced is excluded from the
// package and protected by the innermost preserve layer instead.
func (e *evaluator) attachFileItems(op *Operation) {
	var protected []string
	for i, fi := range e.fileItems {
		if e.claimed[i] {
			continue
		}
		rel, ok := within(op.DestDir, fi.Path)
		if !ok {
			continue
		}
		e.claimed[i] = true
		if op.Update && (fi.ExcludeFromUpdate || !fi.Updatable || fi.ContentType == descriptor.Data) {
			if e.in.Exists(fi.Path) {
				op.Exclude = append(op.Exclude, rel)
				protected = append(protected, rel)
				continue
			}
		}
		op.Files = append(op.Files, LooseFile{Rel: rel, File: fi})
	}
	if len(protected) > 0 {
		op.Preserve = append([]descriptor.PatternSet{{Includes: protected}}, op.Preserve...)
	}
}

func (e *evaluator) addDirectory(dir descriptor.DirectoryItem) {
	dest := descriptor.JoinRel(dir.TargetPath)
	name := "directory " + dest
	if !e.in.Platform.Applies(dir.Classifier, dir.Types) {
		e.skip(name, reasonNotApplicable)
		return
	}
	e.plan.Operations = append(e.plan.Operations, Operation{
		Item:        name,
		Kind:        KindDirectory,
		DestDir:     dest,
		Mode:        syncer.ModeCopy,
		ContentType: dir.ContentType.OrDefault(),
		WriteMarker: true,
		Update:      e.updateFor(dest),
	})
}

// addStandaloneFiles writes file items no other operation claimed into
// their own parent directory without touching anything else there.
func (e *evaluator) addStandaloneFiles() {
	for i, fi := range e.fileItems {
		if e.claimed[i] {
			continue
		}
		e.claimed[i] = true
		update := e.updateFor(fi.Path)
		if update && (fi.ExcludeFromUpdate || !fi.Updatable) {
			e.skip(fi.Name, reasonNotUpdatable)
			e.standalonePaths = append(e.standalonePaths, fi.Path)
			continue
		}
		dir, file := path.Split(fi.Path)
		mode := modeFor(fi.ContentType, update)
		if mode == syncer.ModeMirror {
			mode = syncer.ModeCopy
		}
		e.plan.Operations = append(e.plan.Operations, Operation{
			Item:        fi.Name,
			Kind:        KindFile,
			DestDir:     strings.TrimSuffix(dir, "/"),
			Files:       []LooseFile{{Rel: file, File: fi}},
			Mode:        mode,
			ContentType: fi.ContentType,
			Update:      update,
		})
		e.standalonePaths = append(e.standalonePaths, fi.Path)
	}
}

func (e *evaluator) addLink(link descriptor.LinkItem) {
	name := "link " + link.Name
	if !e.in.Platform.Applies(link.Classifier, link.Types) {
		e.skip(name, reasonNotApplicable)
		return
	}
	e.plan.Operations = append(e.plan.Operations, Operation{
		Item:        name,
		Kind:        KindLink,
		DestDir:     descriptor.JoinRel(link.Name),
		ContentType: link.ContentType.OrDefault(),
		Update:      e.updateFor(descriptor.JoinRel(link.Name)),
		Link:        &Link{Name: descriptor.JoinRel(link.Name), Target: link.Target},
	})
}

// within returns p relative to dir when p lies strictly below dir.
// checkOwnedDirs rejects operations that own the same directory or a
// directory nested in another one's. Each of them syncs its whole
// destination, so the later pass would silently replace the earlier one.
func checkOwnedDirs(ops []Operation) error {
	var owners []Operation
	for _, op := range ops {
		switch op.Kind {
		case KindDescriptor, KindLibs, KindModule, KindContainer:
		default:
			continue
		}
		for _, other := range owners {
			if overlaps(other.DestDir, op.DestDir) {
				return fault.Newf(fault.KindPathConflict, "%s and %s both install into %s", other.Item, op.Item, deeper(other.DestDir, op.DestDir)).
					WithItem(op.Item).WithPath(op.DestDir)
			}
		}
		owners = append(owners, op)
	}
	return nil
}

// overlaps reports whether a and b are the same directory or one contains
// the other. The empty path is the install root.
func overlaps(a, b string) bool {
	if a == b || a == "" || b == "" {
		return true
	}
	return strings.HasPrefix(b, a+"/") || strings.HasPrefix(a, b+"/")
}

func deeper(a, b string) string {
	if len(a) > len(b) {
		return a
	}
	if b == "" {
		return "the install root"
	}
	return b
}

func within(dir, p string) (string, bool) {
	if dir == "" {
		return p, p != ""
	}
	if !strings.HasPrefix(p, dir+"/") {
		return "", false
	}
	return strings.TrimPrefix(p, dir+"/"), true
}

func toDependency(d descriptor.Dependency) resolve.Dependency {
	return resolve.Dependency{Group: d.Group, Module: d.Module, Version: d.Version}
}
