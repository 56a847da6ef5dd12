package catalog

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/i474232898/city-weather-poster/internal/logger"
)

const debounceInterval = 200 * time.Millisecond

// Watch reloads the catalog whenever its file changes, until ctx is done.
// The parent directory is watched so editors that replace the file are
// picked up too. onReload, if not nil, is called after every reload attempt.
func (c *Catalog) Watch(ctx context.Context, onReload func(error)) error {
	log := logger.FromContext(ctx)

	dir, name := filepath.Dir(c.path), filepath.Base(c.path)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return err
	}
	log.InfoContext(ctx, "watching catalog for changes", "dir", dir, "file", name)

	var debounceTimer *time.Timer
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

	for {
		var debounceC <-chan time.Time
		if debounceTimer != nil {
			debounceC = debounceTimer.C
		}

		select {
		case <-debounceC:
			debounceTimer = nil
			err := c.Reload(ctx)
			if err != nil {
				log.ErrorContext(ctx, "catalog reload failed, keeping previous catalog", "error", err)
			}
			if onReload != nil {
				onReload(err)
			}

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			log.DebugContext(ctx, "catalog file changed", "event", event.String())
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.NewTimer(debounceInterval)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.WarnContext(ctx, "catalog watcher error", "error", err)

		case <-ctx.Done():
			return nil
		}
	}
}
