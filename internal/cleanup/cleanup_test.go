package cleanup

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pirakansa/compinst/internal/marker"
	"github.com/pirakansa/compinst/pkg/descriptor"
)

var declaredTree = []string{"component", "libs", "modules/A", "modules/B"}

func fixedNow() time.Time {
	return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func writeMarker(t *testing.T, root, rel string, ct descriptor.ContentType) {
	t.Helper()
	_, err := marker.Write(filepath.Join(root, filepath.FromSlash(rel)), ct)
	require.NoError(t, err)
}

func installedTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeFile(t, root, "component/app.component", "metadata: {}")
	writeFile(t, root, "libs/util.jar", "jar")
	writeFile(t, root, "modules/A/bin/a", "a")
	writeFile(t, root, "modules/B/bin/b", "b")
	writeMarker(t, root, "modules/A", descriptor.Immutable)
	writeMarker(t, root, "modules/B", descriptor.Immutable)
	return root
}

func TestBuildTreeMarksDeepestNode(t *testing.T) {
	tree := BuildTree(declaredTree)

	modules, ok := tree.Lookup("modules")
	require.True(t, ok)
	assert.False(t, modules.IsTarget)
	a, ok := modules.Lookup("A")
	require.True(t, ok)
	assert.True(t, a.IsTarget)
	assert.Empty(t, a.Children)
	libs, ok := tree.Lookup("libs")
	require.True(t, ok)
	assert.True(t, libs.IsTarget)
	_, ok = tree.Lookup("data")
	assert.False(t, ok)
}

func TestRunBacksUpDataOrphan(t *testing.T) {
	root := installedTree(t)
	writeFile(t, root, "modules/C/db/state.bin", "state")
	writeMarker(t, root, "modules/C", descriptor.Data)
	backupDir := filepath.Join(t.TempDir(), "backup")

	result, err := Run(root, declaredTree, Options{BackupDir: backupDir, Component: "app", Now: fixedNow})
	require.NoError(t, err)

	require.Len(t, result.Decisions, 1)
	d := result.Decisions[0]
	assert.Equal(t, "modules/C", d.Path)
	assert.Equal(t, ActionBackedUp, d.Action)
	assert.Equal(t, filepath.Join(backupDir, "app", "20260301120000", "modules", "C"), d.Backup)

	assert.NoDirExists(t, filepath.Join(root, "modules", "C"))
	content, err := os.ReadFile(filepath.Join(d.Backup, "db", "state.bin"))
	require.NoError(t, err)
	assert.Equal(t, "state", string(content))
	assert.FileExists(t, filepath.Join(root, "modules", "A", "bin", "a"))
}

func TestRunDeletesImmutableOrphan(t *testing.T) {
	root := installedTree(t)
	writeFile(t, root, "modules/C/bin/c", "c")
	writeMarker(t, root, "modules/C", descriptor.Immutable)
	backupDir := filepath.Join(t.TempDir(), "backup")

	result, err := Run(root, declaredTree, Options{BackupDir: backupDir, Now: fixedNow})
	require.NoError(t, err)

	require.Len(t, result.Decisions, 1)
	assert.Equal(t, ActionDeleted, result.Decisions[0].Action)
	assert.NoDirExists(t, filepath.Join(root, "modules", "C"))
	assert.NoDirExists(t, backupDir)
}

func TestRunBacksUpWhenNestedMarkerHoldsData(t *testing.T) {
	root := installedTree(t)
	writeFile(t, root, "old/bin/tool", "tool")
	writeFile(t, root, "old/var/data.db", "db")
	writeMarker(t, root, "old", descriptor.Immutable)
	writeMarker(t, root, "old/var", descriptor.Data)

	result, err := Run(root, declaredTree, Options{BackupDir: filepath.Join(root, ".backup"), Now: fixedNow})
	require.NoError(t, err)
	require.Len(t, result.Decisions, 1)
	assert.Equal(t, ActionBackedUp, result.Decisions[0].Action)
}

func TestRunTreatsMissingMarkerAsUnspecified(t *testing.T) {
	root := installedTree(t)
	writeFile(t, root, "custom/notes.txt", "mine")
	writeFile(t, root, "stray.txt", "x")

	result, err := Run(root, declaredTree, Options{BackupDir: filepath.Join(root, ".backup"), Component: "app", Now: fixedNow})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Count(ActionBackedUp))
	assert.Equal(t, 1, result.Count(ActionDeleted))
	assert.FileExists(t, filepath.Join(root, ".backup", "app", "20260301120000", "custom", "notes.txt"))
	assert.NoFileExists(t, filepath.Join(root, "stray.txt"))
	assert.DirExists(t, filepath.Join(root, ".backup"))
}

func TestRunKeepsDataOrphanWithoutBackupDir(t *testing.T) {
	root := installedTree(t)
	writeFile(t, root, "modules/C/db", "state")
	writeMarker(t, root, "modules/C", descriptor.Data)

	result, err := Run(root, declaredTree, Options{Now: fixedNow})
	require.NoError(t, err)
	require.Len(t, result.Decisions, 1)
	assert.Equal(t, ActionKept, result.Decisions[0].Action)
	assert.FileExists(t, filepath.Join(root, "modules", "C", "db"))
}

func TestRunDryRunTouchesNothing(t *testing.T) {
	root := installedTree(t)
	writeFile(t, root, "modules/C/db", "state")
	writeMarker(t, root, "modules/C", descriptor.Data)
	writeFile(t, root, "stray.txt", "x")

	var seen []string
	result, err := Run(root, declaredTree, Options{
		BackupDir: filepath.Join(t.TempDir(), "backup"),
		DryRun:    true,
		Now:       fixedNow,
		OnOrphan:  func(d Decision) { seen = append(seen, d.Path+":"+string(d.Action)) },
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"modules/C:backed-up", "stray.txt:deleted"}, seen)
	assert.Len(t, result.Decisions, 2)
	assert.FileExists(t, filepath.Join(root, "modules", "C", "db"))
	assert.FileExists(t, filepath.Join(root, "stray.txt"))
}

func TestRunLeavesTargetContentAlone(t *testing.T) {
	root := installedTree(t)
	writeFile(t, root, "modules/A/extra/file", "sync owns this")
	writeFile(t, root, "libs/other.jar", "jar")

	result, err := Run(root, declaredTree, Options{Now: fixedNow})
	require.NoError(t, err)
	assert.Empty(t, result.Decisions)
}

func TestRunMissingRootIsNoop(t *testing.T) {
	result, err := Run(filepath.Join(t.TempDir(), "absent"), declaredTree, Options{})
	require.NoError(t, err)
	assert.Empty(t, result.Decisions)
}
