package policy

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pirakansa/compinst/internal/fault"
	"github.com/pirakansa/compinst/internal/platform"
	"github.com/pirakansa/compinst/internal/resolve"
	"github.com/pirakansa/compinst/internal/syncer"
	"github.com/pirakansa/compinst/pkg/descriptor"
)

const sampleDescriptor = `
metadata:
  format_version: "1.0"
  group: com.example
  module: app
  version: "1.0.0"
modules:
  - name: A
    dependency:
      version: "1.0.0"
    packages:
      - name: A
  - name: B
    classifier: windows
    dependency:
      version: "1.0.0"
  - name: C
    content_type: DATA
    updatable: false
    dependency:
      version: "1.0.0"
file_containers:
  - name: "y"
    target_path: data/y
    content_type: DATA
libs:
  - dependency:
      group: org.lib
      module: util
      version: "2.1"
`

func parseSample(t *testing.T, data string) *descriptor.Component {
	t.Helper()
	comp, err := descriptor.Parse([]byte(data))
	require.NoError(t, err)
	return comp
}

func exists(paths ...string) func(string) bool {
	set := map[string]bool{}
	for _, p := range paths {
		set[p] = true
	}
	return func(rel string) bool { return set[rel] }
}

func operation(t *testing.T, plan *Plan, item string) Operation {
	t.Helper()
	for _, op := range plan.Operations {
		if op.Item == item {
			return op
		}
	}
	t.Fatalf("operation %q not planned", item)
	return Operation{}
}

func hasOperation(plan *Plan, item string) bool {
	for _, op := range plan.Operations {
		if op.Item == item {
			return true
		}
	}
	return false
}

func TestEvaluateFreshInstallOnLinux(t *testing.T) {
	comp := parseSample(t, sampleDescriptor)
	plan, err := Evaluate(Input{
		Descriptor: comp,
		Component:  resolve.Dependency{Group: "com.example", Module: "app", Version: "1.0.0"},
		Platform:   platform.New("linux", nil),
	})
	require.NoError(t, err)

	assert.True(t, hasOperation(plan, "module A"))
	assert.False(t, hasOperation(plan, "module B"))
	assert.True(t, hasOperation(plan, "module C"))
	assert.Contains(t, plan.Skipped, Skip{Item: "module B", Reason: reasonNotApplicable})

	for _, op := range plan.Operations {
		if op.Kind == KindLink {
			continue
		}
		assert.Equal(t, syncer.ModeMirror, op.Mode, op.Item)
		assert.False(t, op.Update, op.Item)
	}

	modA := operation(t, plan, "module A")
	assert.Equal(t, "modules/A", modA.DestDir)
	require.Len(t, modA.Artifacts, 1)
	assert.True(t, modA.Artifacts[0].Archive)
	assert.Equal(t, "com.example", modA.Artifacts[0].Dependency.Group)
	assert.Equal(t, "zip", modA.Artifacts[0].Format)

	container := operation(t, plan, "container y")
	assert.Equal(t, "data/y", container.DestDir)
	assert.Equal(t, descriptor.Data, container.ContentType)
	assert.Equal(t, "app", container.Artifacts[0].Dependency.Module)
	assert.Equal(t, "container", container.Artifacts[0].Artifact.Type)

	libs := operation(t, plan, "libs")
	assert.Equal(t, descriptor.Immutable, libs.ContentType)
	require.Len(t, libs.Artifacts, 1)
	assert.Equal(t, "org.lib_util_2.1.jar", libs.Artifacts[0].Target)

	desc := operation(t, plan, "descriptor")
	assert.Equal(t, "component", desc.DestDir)
	assert.Equal(t, "app.component", desc.Files[0].Rel)

	assert.Equal(t, []string{"component", "libs", "modules/A", "modules/B", "modules/C", "data/y"}, plan.DeclaredPaths)
}

func TestEvaluateUpdateSkipsNonUpdatableAndKeepsData(t *testing.T) {
	comp := parseSample(t, sampleDescriptor)
	plan, err := Evaluate(Input{
		Descriptor: comp,
		IsUpdate:   true,
		Platform:   platform.New("linux", nil),
		Exists:     exists("component", "libs", "modules/A", "modules/C", "data/y"),
	})
	require.NoError(t, err)

	assert.False(t, hasOperation(plan, "module C"))
	assert.Contains(t, plan.Skipped, Skip{Item: "module C", Reason: reasonNotUpdatable})

	assert.Equal(t, syncer.ModeCopy, operation(t, plan, "module A").Mode)
	assert.Equal(t, syncer.ModeKeepExisting, operation(t, plan, "container y").Mode)
	assert.Equal(t, syncer.ModeMirror, operation(t, plan, "libs").Mode)
}

func TestEvaluateNewItemInExistingInstallIsFresh(t *testing.T) {
	comp := parseSample(t, sampleDescriptor)
	plan, err := Evaluate(Input{
		Descriptor: comp,
		IsUpdate:   true,
		Platform:   platform.New("linux", nil),
		Exists:     exists("component", "modules/A"),
	})
	require.NoError(t, err)

	modC := operation(t, plan, "module C")
	assert.False(t, modC.Update)
	assert.Equal(t, syncer.ModeMirror, modC.Mode)
}

func TestEvaluateConfigurationCopiesOnUpdate(t *testing.T) {
	comp := parseSample(t, `
metadata: {format_version: "1.0", group: g, module: app, version: "1"}
excludes: ["**/*.log"]
preserve:
  includes: ["conf/**"]
modules:
  - name: cfg
    content_type: CONFIGURATION
    dependency: {version: "1"}
    excludes_from_update: ["conf/local.properties"]
    preserve:
      includes: ["conf/**"]
      excludes: ["conf/generated/**"]
`)
	plan, err := Evaluate(Input{
		Descriptor: comp,
		IsUpdate:   true,
		Platform:   platform.New("linux", nil),
		Exists:     exists("modules/cfg"),
	})
	require.NoError(t, err)

	op := operation(t, plan, "module cfg")
	assert.Equal(t, syncer.ModeCopy, op.Mode)
	assert.Equal(t, []string{"**/*.log", "conf/local.properties"}, op.Exclude)
	require.Len(t, op.Preserve, 2)
	assert.Equal(t, []string{"conf/generated/**"}, op.Preserve[0].Excludes)

	layers, err := op.PreserveLayers()
	require.NoError(t, err)
	assert.False(t, layers.Preserves("conf/generated/x.properties"))
	assert.True(t, layers.Preserves("conf/app.properties"))

	fresh, err := Evaluate(Input{Descriptor: comp, Platform: platform.New("linux", nil)})
	require.NoError(t, err)
	assert.Equal(t, []string{"**/*.log"}, operation(t, fresh, "module cfg").Exclude)
}

func TestEvaluateFileItemsOverridePackagedContent(t *testing.T) {
	comp := parseSample(t, `
metadata: {format_version: "1.0", group: g, module: app, version: "1"}
modules:
  - name: web
    dependency: {version: "1"}
    target_included: true
    jars: [core]
file_items:
  - name: settings
    extension: xml
    target_path: modules/web/conf
  - name: motd
    extension: txt
    target_path: etc
`)
	local := FileItem{Name: "file local", Local: "/tmp/local.properties", Path: "modules/web/conf/local.properties", Updatable: true}
	plan, err := Evaluate(Input{
		Descriptor: comp,
		Component:  resolve.Dependency{Group: "g", Module: "app", Version: "1"},
		Platform:   platform.New("linux", nil),
		LocalFiles: []FileItem{local},
	})
	require.NoError(t, err)

	web := operation(t, plan, "module web")
	require.Len(t, web.Files, 2)
	assert.Equal(t, "conf/settings.xml", web.Files[0].Rel)
	assert.Equal(t, "settings", web.Files[0].File.Artifact.Artifact.Name)
	assert.Equal(t, "conf/local.properties", web.Files[1].Rel)
	assert.Equal(t, "libs/core.jar", web.Artifacts[0].Target)

	motd := operation(t, plan, "file motd.txt")
	assert.Equal(t, KindFile, motd.Kind)
	assert.Equal(t, "etc", motd.DestDir)
	assert.Equal(t, syncer.ModeCopy, motd.Mode)
	assert.False(t, motd.WriteMarker)
	assert.Contains(t, plan.DeclaredPaths, "etc/motd.txt")
}

func TestEvaluateProtectsFileItemsExcludedFromUpdate(t *testing.T) {
	comp := parseSample(t, `
metadata: {format_version: "1.0", group: g, module: app, version: "1"}
modules:
  - name: web
    dependency: {version: "1"}
`)
	local := FileItem{Name: "file local", Local: "/tmp/local.properties", Path: "modules/web/conf/local.properties", Updatable: true, ExcludeFromUpdate: true}
	plan, err := Evaluate(Input{
		Descriptor: comp,
		IsUpdate:   true,
		Platform:   platform.New("linux", nil),
		LocalFiles: []FileItem{local},
		Exists:     exists("modules/web", "modules/web/conf/local.properties"),
	})
	require.NoError(t, err)

	web := operation(t, plan, "module web")
	assert.Empty(t, web.Files)
	assert.Contains(t, web.Exclude, "conf/local.properties")
	layers, err := web.PreserveLayers()
	require.NoError(t, err)
	assert.True(t, layers.Preserves("conf/local.properties"))
}

func TestEvaluatePropertiesDirectoriesAndLinks(t *testing.T) {
	comp := parseSample(t, `
metadata: {format_version: "1.0", group: g, module: app, version: "1"}
directories:
  - target_path: var/log
    content_type: DATA
  - target_path: win
    classifier: windows
links:
  - name: current
    target: modules/web
properties:
  - key: db.url
    value: jdbc:pg://db
    pattern: "**/*.properties"
  - key: win.only
    value: "1"
    pattern: "**/*.properties"
    types: [win]
`)
	plan, err := Evaluate(Input{Descriptor: comp, Platform: platform.New("linux", []string{"prod"})})
	require.NoError(t, err)

	dir := operation(t, plan, "directory var/log")
	assert.Equal(t, syncer.ModeCopy, dir.Mode)
	assert.True(t, dir.WriteMarker)
	assert.False(t, hasOperation(plan, "directory win"))

	link := operation(t, plan, "link current")
	require.NotNil(t, link.Link)
	assert.Equal(t, "modules/web", link.Link.Target)

	assert.Equal(t, []PropertyOverride{{Key: "db.url", Value: "jdbc:pg://db", Pattern: "**/*.properties"}}, plan.Properties)
}

func TestEvaluateRejectsItemsSharingADirectory(t *testing.T) {
	cases := map[string]string{
		"same module path": `
modules:
  - name: x
    dependency: {version: "1"}
  - name: x2
    target_path: x
    dependency: {version: "1"}
`,
		"container inside module": `
modules:
  - name: web
    dependency: {version: "1"}
file_containers:
  - name: assets
    target_path: modules/web/static
`,
		"container over libs": `
file_containers:
  - name: bundle
    target_path: libs
libs:
  - dependency: {group: org.lib, module: util, version: "2.1"}
`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			comp := parseSample(t, "metadata: {format_version: \"1.0\", group: g, module: app, version: \"1\"}\n"+body)
			_, err := Evaluate(Input{Descriptor: comp, Platform: platform.New("linux", nil)})
			require.Error(t, err)
			assert.True(t, errors.Is(err, fault.ErrPathConflict), "got %v", err)
		})
	}
}

func TestEvaluateAllowsSiblingDirectories(t *testing.T) {
	comp := parseSample(t, `
metadata: {format_version: "1.0", group: g, module: app, version: "1"}
modules:
  - name: web
    dependency: {version: "1"}
  - name: webapp
    dependency: {version: "1"}
file_containers:
  - name: assets
    target_path: data/assets
`)
	_, err := Evaluate(Input{Descriptor: comp, Platform: platform.New("linux", nil)})
	require.NoError(t, err)
}

func TestEvaluateRejectsUnknownPackageFormat(t *testing.T) {
	comp := parseSample(t, `
metadata: {format_version: "1.0", group: g, module: app, version: "1"}
modules:
  - name: odd
    dependency: {version: "1"}
    packages:
      - ext: rar
`)
	_, err := Evaluate(Input{Descriptor: comp, Platform: platform.New("linux", nil)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "module odd")
}
