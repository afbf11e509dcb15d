package prefs

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads preferences when the file changes on disk, so
// acknowledgment-emoji edits made outside the daemon take effect
// without a restart. onReload receives every freshly loaded set.
// Blocks until ctx is cancelled.
func Watch(ctx context.Context, storage *Storage, onReload func(*Preferences)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Watch the directory, not the file: atomic saves replace the file
	// by rename and a file watch would be lost after the first one.
	if err := watcher.Add(storage.dir); err != nil {
		return err
	}

	target := filepath.Base(storage.Path())
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != target {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			slog.Debug("preferences changed on disk, reloading", "op", ev.Op.String())
			onReload(storage.Load())
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("preferences watcher error", "error", err)
		}
	}
}
