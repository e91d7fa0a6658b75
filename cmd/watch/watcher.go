package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/LegacyCodeHQ/sequencer/vcs/git"
)

const debounceInterval = 300 * time.Millisecond
const gitStatePollInterval = 500 * time.Millisecond

const sourceExtension = ".go"

var skippedDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"build":        true,
	".idea":        true,
	".vscode":      true,
}

func watchAndRebuild(ctx context.Context, repoPath string, bl *builder) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	if err := addWatchDirs(watcher, repoPath); err != nil {
		return fmt.Errorf("failed to watch directories: %w", err)
	}

	var debounceTimer *time.Timer

	// Outside a git repository only file events trigger rebuilds.
	var gitState <-chan time.Time
	lastSourceState, err := git.SourceState(repoPath, sourceExtension)
	if err != nil {
		bl.logger.Debug("git state unavailable, not polling", "error", err)
	} else {
		gitStateTicker := time.NewTicker(gitStatePollInterval)
		defer gitStateTicker.Stop()
		gitState = gitStateTicker.C
	}

	for {
		select {
		case <-ctx.Done():
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			if event.Has(fsnotify.Create) {
				addIfDirectory(watcher, event.Name)
			}
			if !isRelevantChange(event) {
				continue
			}

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(debounceInterval, func() {
				bl.publish(ctx)
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			bl.logger.Warn("watcher error", "error", err)

		case <-gitState:
			state, err := git.SourceState(repoPath, sourceExtension)
			if err != nil {
				bl.logger.Warn("git state read error", "error", err)
				continue
			}
			if state == lastSourceState {
				continue
			}

			lastSourceState = state
			bl.publish(ctx)
		}
	}
}

func isRelevantChange(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return false
	}
	return filepath.Ext(event.Name) == sourceExtension
}

func addWatchDirs(watcher *fsnotify.Watcher, root string) error {
	return addWatchDirsWithAdder(root, watcher.Add)
}

// addWatchDirsWithAdder walks root and passes every directory to add. Directories that
// disappear during the walk are ignored.
func addWatchDirsWithAdder(root string, add func(string) error) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && skippedDirs[d.Name()] {
			return filepath.SkipDir
		}
		if err := add(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		return nil
	})
}

func addIfDirectory(watcher *fsnotify.Watcher, path string) {
	info, err := os.Stat(path)
	if err != nil {
		return
	}
	if info.IsDir() {
		_ = addWatchDirs(watcher, path)
	}
}
