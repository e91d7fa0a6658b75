package watch

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsRelevantChange(t *testing.T) {
	tests := []struct {
		name  string
		event fsnotify.Event
		want  bool
	}{
		{name: "write to source", event: fsnotify.Event{Name: "a.go", Op: fsnotify.Write}, want: true},
		{name: "create source", event: fsnotify.Event{Name: "a.go", Op: fsnotify.Create}, want: true},
		{name: "remove source", event: fsnotify.Event{Name: "a.go", Op: fsnotify.Remove}, want: true},
		{name: "rename source", event: fsnotify.Event{Name: "a.go", Op: fsnotify.Rename}, want: true},
		{name: "chmod source", event: fsnotify.Event{Name: "a.go", Op: fsnotify.Chmod}, want: false},
		{name: "write to other file", event: fsnotify.Event{Name: "README.md", Op: fsnotify.Write}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isRelevantChange(tt.event))
		})
	}
}

func TestAddWatchDirsWithAdder_SkipsIgnoredDirectories(t *testing.T) {
	root := t.TempDir()
	for _, dir := range []string{"pkg/sub", ".git/objects", "node_modules/x"} {
		require.NoError(t, os.MkdirAll(filepath.Join(root, dir), 0o755))
	}

	var added []string
	err := addWatchDirsWithAdder(root, func(path string) error {
		added = append(added, path)
		return nil
	})

	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		root,
		filepath.Join(root, "pkg"),
		filepath.Join(root, "pkg", "sub"),
	}, added)
}

func TestAddWatchDirsWithAdder_IgnoresMissingDirectories(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "missing-dir")
	require.NoError(t, os.MkdirAll(target, 0o755))

	adder := func(path string) error {
		if path == target {
			return fs.ErrNotExist
		}
		return nil
	}

	assert.NoError(t, addWatchDirsWithAdder(root, adder))
}

func TestAddWatchDirs(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "pkg"), 0o755))

	watcher, err := fsnotify.NewWatcher()
	require.NoError(t, err)
	defer watcher.Close()

	require.NoError(t, addWatchDirs(watcher, root))
	assert.ElementsMatch(t, []string{root, filepath.Join(root, "pkg")}, watcher.WatchList())
}
