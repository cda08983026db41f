package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads the configuration when any of the three files change.
// Rapid successive writes (editor save patterns) are coalesced.
type Watcher struct {
	dir      string
	onChange func(*Config)
}

// NewWatcher creates a watcher over the config directory. onChange
// receives every successfully reloaded configuration.
func NewWatcher(dir string, onChange func(*Config)) *Watcher {
	if dir == "" {
		dir = Dir()
	}
	return &Watcher{dir: dir, onChange: onChange}
}

// Watch blocks until ctx is cancelled, reloading on file changes.
func (w *Watcher) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create config watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory, not the files: some platforms drop watches
	// on files replaced by rename-style saves.
	if err := watcher.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch config directory %s: %w", w.dir, err)
	}
	slog.Info("Watching config directory", "dir", w.dir)

	watched := map[string]bool{
		GeneratorFile: true,
		EmbedderFile:  true,
		RepoFile:      true,
	}

	var debounceTimer *time.Timer
	const debounceDelay = 100 * time.Millisecond

	for {
		select {
		case <-ctx.Done():
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return ctx.Err()

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !watched[filepath.Base(event.Name)] {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.AfterFunc(debounceDelay, w.reload)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("Config watcher error", "error", err)
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.dir)
	if err != nil {
		slog.Error("Failed to reload config", "dir", w.dir, "error", err)
		return
	}
	slog.Info("Configuration reloaded", "dir", w.dir)
	if w.onChange != nil {
		w.onChange(cfg)
	}
}
