package reconcile

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pirakansa/compinst/internal/cleanup"
	"github.com/pirakansa/compinst/internal/fault"
	"github.com/pirakansa/compinst/internal/marker"
	"github.com/pirakansa/compinst/internal/policy"
	"github.com/pirakansa/compinst/internal/syncer"
	"github.com/pirakansa/compinst/internal/transport"
	"github.com/pirakansa/compinst/pkg/descriptor"
	"github.com/pirakansa/compinst/pkg/installconf"
)

const appDescriptor = `metadata:
  format_version: "1.0"
  group: com.example
  module: app
  version: "1.0.0"
modules:
  - name: x
    content_type: IMMUTABLE
    dependency:
      version: "1.0.+"
    packages:
      - name: x
file_containers:
  - name: "y"
    target_path: data/y
    content_type: DATA
properties:
  - key: env
    value: prod
    pattern: "modules/x/**/*.properties"
`

func zipOf(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = f.Write([]byte(files[name]))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func metadataXML(versions ...string) []byte {
	var b strings.Builder
	b.WriteString("<metadata><versioning><versions>")
	for _, v := range versions {
		b.WriteString("<version>" + v + "</version>")
	}
	b.WriteString("</versions></versioning></metadata>")
	return []byte(b.String())
}

// repository is a maven layout served from memory.
type repository struct {
	mu   sync.Mutex
	docs map[string][]byte
}

func (r *repository) set(path string, body []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs[path] = body
}

func newRepository(t *testing.T, descriptorDoc string) (*repository, *httptest.Server) {
	t.Helper()
	repo := &repository{docs: map[string][]byte{}}
	repo.set("/com/example/app/maven-metadata.xml", metadataXML("1.0.0"))
	repo.set("/com/example/app/1.0.0/app-1.0.0-component.component", []byte(descriptorDoc))
	repo.set("/com/example/app/1.0.0/y-1.0.0-container.zip", zipOf(t, map[string]string{
		"seed.txt": "seed",
		"db.txt":   "initial",
	}))
	repo.set("/com/example/x/maven-metadata.xml", metadataXML("1.0.0", "1.0.1"))
	repo.set("/com/example/x/1.0.1/x-1.0.1-package.zip", zipOf(t, map[string]string{
		"bin/run":             "#!/bin/sh\n",
		"conf/app.properties": "env = dev\n",
		"lib/x.jar":           "jar",
	}))

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		repo.mu.Lock()
		body, ok := repo.docs[req.URL.Path]
		repo.mu.Unlock()
		if !ok {
			http.NotFound(w, req)
			return
		}
		_, _ = w.Write(body)
	}))
	t.Cleanup(server.Close)
	return repo, server
}

func testConfig(t *testing.T, url string, comps ...installconf.Component) *installconf.InstallConfig {
	t.Helper()
	base := t.TempDir()
	return &installconf.InstallConfig{
		Version:      1,
		InstallDir:   filepath.Join(base, "server"),
		AdminDir:     filepath.Join(base, "admin"),
		BackupDir:    filepath.Join(base, "backup"),
		OS:           "linux",
		Jobs:         2,
		Repositories: []installconf.Repository{{Name: "releases", Kind: installconf.KindMaven, URL: url}},
		Components:   comps,
		Hooks:        map[string]installconf.HookDef{},
	}
}

func newEngine(t *testing.T, cfg *installconf.InstallConfig, opts Options) *Engine {
	t.Helper()
	opts.Logger = zerolog.Nop()
	e, err := New(cfg, transport.New(transport.Options{}), opts)
	require.NoError(t, err)
	return e
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(b)
}

func modTime(t *testing.T, path string) time.Time {
	t.Helper()
	info, err := os.Stat(path)
	require.NoError(t, err)
	return info.ModTime()
}

func TestInstallThenUpdate(t *testing.T) {
	_, server := newRepository(t, appDescriptor)
	comp := installconf.Component{Dependency: "com.example:app:1.0.+", Path: "app"}
	cfg := testConfig(t, server.URL, comp)
	root := cfg.ComponentRoot(comp)

	first := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	res, err := newEngine(t, cfg, Options{Now: func() time.Time { return first }}).Install(context.Background(), comp)
	require.NoError(t, err)

	assert.False(t, res.Update)
	assert.Equal(t, "com.example:app:1.0.0", res.Component)
	assert.Equal(t, "#!/bin/sh\n", readFile(t, filepath.Join(root, "modules", "x", "bin", "run")))
	assert.Equal(t, "env = prod\n", readFile(t, filepath.Join(root, "modules", "x", "conf", "app.properties")))
	assert.Equal(t, "initial", readFile(t, filepath.Join(root, "data", "y", "db.txt")))
	assert.FileExists(t, filepath.Join(root, "component", "app.component"))
	assert.Equal(t, descriptor.Immutable, marker.Read(filepath.Join(root, "modules", "x")))
	assert.Equal(t, descriptor.Data, marker.Read(filepath.Join(root, "data", "y")))

	// Local changes between the runs.
	stale := filepath.Join(root, "modules", "x", "stale.txt")
	require.NoError(t, os.WriteFile(stale, []byte("old"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "data", "y", "db.txt"), []byte("user edit"), 0o644))
	orphan := filepath.Join(root, "modules", "gone")
	require.NoError(t, os.MkdirAll(orphan, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(orphan, "state"), []byte("keep me"), 0o644))
	_, err = marker.Write(orphan, descriptor.Data)
	require.NoError(t, err)

	second := first.Add(time.Hour)
	var orphans []cleanup.Decision
	res, err = newEngine(t, cfg, Options{
		Now:      func() time.Time { return second },
		OnOrphan: func(_ string, d cleanup.Decision) { orphans = append(orphans, d) },
	}).Install(context.Background(), comp)
	require.NoError(t, err)

	assert.True(t, res.Update)
	assert.NoFileExists(t, stale)
	assert.Equal(t, "user edit", readFile(t, filepath.Join(root, "data", "y", "db.txt")))
	assert.True(t, modTime(t, filepath.Join(root, "modules", "x", "bin", "run")).Equal(first))
	assert.True(t, modTime(t, filepath.Join(root, "data", "y", "seed.txt")).Equal(first))
	assert.Zero(t, res.Sync.Created+res.Sync.Updated)
	assert.Equal(t, 1, res.Sync.Deleted)

	require.Len(t, orphans, 1)
	assert.Equal(t, "modules/gone", orphans[0].Path)
	assert.Equal(t, cleanup.ActionBackedUp, orphans[0].Action)
	assert.Equal(t, "keep me", readFile(t, filepath.Join(orphans[0].Backup, "state")))
}

func TestInstallDryRunLeavesRootUntouched(t *testing.T) {
	_, server := newRepository(t, appDescriptor)
	comp := installconf.Component{Dependency: "com.example:app:1.0.0", Path: "app"}
	cfg := testConfig(t, server.URL, comp)

	var mu sync.Mutex
	var files []syncer.FileProgress
	res, err := newEngine(t, cfg, Options{
		DryRun: true,
		OnFile: func(p syncer.FileProgress) {
			mu.Lock()
			defer mu.Unlock()
			files = append(files, p)
		},
	}).Install(context.Background(), comp)
	require.NoError(t, err)

	assert.NoDirExists(t, cfg.ComponentRoot(comp))
	assert.Equal(t, 6, res.Sync.Created)
	assert.Len(t, files, 6)
}

func TestInstallRejectsUnsupportedDescriptorFormat(t *testing.T) {
	_, server := newRepository(t, strings.Replace(appDescriptor, `format_version: "1.0"`, `format_version: "2.0"`, 1))
	comp := installconf.Component{Dependency: "com.example:app:1.0.0", Path: "app"}
	cfg := testConfig(t, server.URL, comp)

	_, err := newEngine(t, cfg, Options{}).Install(context.Background(), comp)
	require.Error(t, err)
	assert.True(t, errors.Is(err, fault.ErrFormatMismatch), "got %v", err)
	assert.NoDirExists(t, cfg.ComponentRoot(comp))
}

func TestInstallFailsWhenComponentIsUnknown(t *testing.T) {
	_, server := newRepository(t, appDescriptor)
	comp := installconf.Component{Dependency: "com.example:missing:1.0.0", Path: "missing"}
	cfg := testConfig(t, server.URL, comp)

	_, err := newEngine(t, cfg, Options{}).Install(context.Background(), comp)
	assert.True(t, errors.Is(err, fault.ErrResolution), "got %v", err)
}

func TestInstallAllJoinsErrorsAndKeepsGoing(t *testing.T) {
	_, server := newRepository(t, appDescriptor)
	good := installconf.Component{Dependency: "com.example:app:1.0.0", Path: "app"}
	bad := installconf.Component{Dependency: "com.example:missing:1.0.0", Path: "missing"}
	cfg := testConfig(t, server.URL, good, bad)

	results, err := newEngine(t, cfg, Options{}).InstallAll(context.Background(), cfg.Components, cfg.Jobs)
	require.Error(t, err)
	assert.True(t, errors.Is(err, fault.ErrResolution))
	require.Len(t, results, 2)
	require.NotNil(t, results[0])
	assert.Nil(t, results[1])
	assert.FileExists(t, filepath.Join(cfg.ComponentRoot(good), "modules", "x", "bin", "run"))
}

func TestInstallAllRejectsSharedRoots(t *testing.T) {
	_, server := newRepository(t, appDescriptor)
	a := installconf.Component{Dependency: "com.example:app:1.0.0", Path: "shared"}
	b := installconf.Component{Dependency: "com.example:other:1.0.0", Path: "shared/"}
	cfg := testConfig(t, server.URL, a, b)

	_, err := newEngine(t, cfg, Options{}).InstallAll(context.Background(), cfg.Components, 2)
	assert.True(t, errors.Is(err, fault.ErrConfig), "got %v", err)
	assert.NoDirExists(t, filepath.Join(cfg.InstallDir, "shared"))
}

func TestInstallCreatesLinksAndDirectories(t *testing.T) {
	doc := appDescriptor + `directories:
  - target_path: var/log
    content_type: DATA
links:
  - name: current
    target: modules/x
`
	_, server := newRepository(t, doc)
	comp := installconf.Component{Dependency: "com.example:app:1.0.0", Path: "app"}
	cfg := testConfig(t, server.URL, comp)
	root := cfg.ComponentRoot(comp)

	res, err := newEngine(t, cfg, Options{}).Install(context.Background(), comp)
	require.NoError(t, err)

	require.Len(t, res.Links, 1)
	assert.Equal(t, linkCreated, res.Links[0].Outcome)
	target, err := os.Readlink(filepath.Join(root, "current"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "modules", "x"), target)
	assert.Equal(t, descriptor.Data, marker.Read(filepath.Join(root, "var", "log")))

	res, err = newEngine(t, cfg, Options{}).Install(context.Background(), comp)
	require.NoError(t, err)
	assert.Equal(t, linkUnchanged, res.Links[0].Outcome)
	assert.Empty(t, res.Cleanup.Decisions)
}

func TestInstallUpdatesModuleWithoutContentType(t *testing.T) {
	repo, server := newRepository(t, strings.Replace(appDescriptor, "    content_type: IMMUTABLE\n", "", 1))
	comp := installconf.Component{Dependency: "com.example:app:1.0.0", Path: "app"}
	cfg := testConfig(t, server.URL, comp)
	root := cfg.ComponentRoot(comp)
	moduleDir := filepath.Join(root, "modules", "x")

	_, err := newEngine(t, cfg, Options{}).Install(context.Background(), comp)
	require.NoError(t, err)
	assert.Equal(t, descriptor.Unspecified, marker.Read(moduleDir))
	require.NoError(t, os.WriteFile(filepath.Join(moduleDir, "local.txt"), []byte("mine"), 0o644))

	repo.set("/com/example/x/maven-metadata.xml", metadataXML("1.0.0", "1.0.1", "1.0.2"))
	repo.set("/com/example/x/1.0.2/x-1.0.2-package.zip", zipOf(t, map[string]string{
		"bin/run":             "#!/bin/sh\necho 1.0.2\n",
		"conf/app.properties": "env = dev\n",
		"lib/x.jar":           "jar",
	}))

	res, err := newEngine(t, cfg, Options{}).Install(context.Background(), comp)
	require.NoError(t, err)
	assert.True(t, res.Update)
	assert.Equal(t, syncer.ModeCopy, operationFor(t, res, "module x").Mode)
	assert.Equal(t, 1, res.Sync.Updated)
	assert.Equal(t, "#!/bin/sh\necho 1.0.2\n", readFile(t, filepath.Join(moduleDir, "bin", "run")))
	assert.Equal(t, "mine", readFile(t, filepath.Join(moduleDir, "local.txt")))
}

func TestInstallResolvesEveryDependencyBeforeWriting(t *testing.T) {
	_, server := newRepository(t, strings.Replace(appDescriptor, `version: "1.0.+"`, `version: "9.9.+"`, 1))
	comp := installconf.Component{Dependency: "com.example:app:1.0.0", Path: "app", PreInstall: []string{"prepare"}}
	cfg := testConfig(t, server.URL, comp)
	cfg.Hooks["prepare"] = installconf.HookDef{Run: "touch prepared"}
	root := cfg.ComponentRoot(comp)

	_, err := newEngine(t, cfg, Options{}).Install(context.Background(), comp)
	require.Error(t, err)
	assert.True(t, errors.Is(err, fault.ErrResolution), "got %v", err)
	assert.NoDirExists(t, root)
}

func TestInstallWritesDescriptorAfterItems(t *testing.T) {
	repo, server := newRepository(t, appDescriptor)
	comp := installconf.Component{Dependency: "com.example:app:1.0.0", Path: "app"}
	cfg := testConfig(t, server.URL, comp)
	root := cfg.ComponentRoot(comp)
	repo.set("/com/example/x/1.0.1/x-1.0.1-package.zip", []byte("not a zip"))

	_, err := newEngine(t, cfg, Options{}).Install(context.Background(), comp)
	require.Error(t, err)
	assert.NoDirExists(t, filepath.Join(root, "component"))
}

func TestInstallRejectsModulesSharingADirectory(t *testing.T) {
	doc := strings.Replace(appDescriptor, "file_containers:", `  - name: x2
    target_path: x
    dependency:
      group: com.example
      module: x
      version: "1.0.+"
    packages:
      - name: x
file_containers:`, 1)
	_, server := newRepository(t, doc)
	comp := installconf.Component{Dependency: "com.example:app:1.0.0", Path: "app"}
	cfg := testConfig(t, server.URL, comp)

	_, err := newEngine(t, cfg, Options{}).Install(context.Background(), comp)
	require.Error(t, err)
	assert.True(t, errors.Is(err, fault.ErrPathConflict), "got %v", err)
	assert.NoDirExists(t, cfg.ComponentRoot(comp))
}

func TestInstallAllRejectsNestedRoots(t *testing.T) {
	_, server := newRepository(t, appDescriptor)
	inner := installconf.Component{Dependency: "com.example:app:1.0.0", Path: "outer/inner"}
	outer := installconf.Component{Dependency: "com.example:app:1.0.0", Path: "outer"}
	cfg := testConfig(t, server.URL, inner, outer)

	_, err := newEngine(t, cfg, Options{}).InstallAll(context.Background(), cfg.Components, 1)
	assert.True(t, errors.Is(err, fault.ErrConfig), "got %v", err)
	assert.NoDirExists(t, filepath.Join(cfg.InstallDir, "outer"))

	sibling := installconf.Component{Dependency: "com.example:app:1.0.0", Path: "outer-2"}
	assert.False(t, nestedRoots(cfg.ComponentRoot(outer), cfg.ComponentRoot(sibling)))
}

func operationFor(t *testing.T, res *ComponentResult, item string) policy.Operation {
	t.Helper()
	for _, op := range res.Plan.Operations {
		if op.Item == item {
			return op
		}
	}
	t.Fatalf("no operation %q in plan", item)
	return policy.Operation{}
}
