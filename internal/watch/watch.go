// Package watch drives the optional fsnotify-based directory watch: files
// landing in Unlocked/ run through the unlock pool automatically, and files
// landing in New/ run through the ingestion router, instead of waiting for
// an explicit API or CLI trigger.
package watch

import (
	"context"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// FileHandler processes one newly-written file. Errors are logged by the
// caller and do not stop the watch.
type FileHandler func(path string) error

// Dir watches one directory non-recursively and calls handle for every
// file that is created or finishes being written, skipping directories.
// Watching stops when ctx is cancelled.
func Dir(ctx context.Context, dir string, handle FileHandler, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(dir); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
				continue
			}
			handleEvent(event.Name, handle, logger)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error("directory watcher error", zap.String("dir", dir), zap.Error(err))
		}
	}
}

// handleEvent waits for the file to stop being written (an exclusive open
// fails while another process still holds it) before invoking handle,
// retrying once after a short delay.
func handleEvent(path string, handle FileHandler, logger *zap.Logger) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return
	}

	f, err := os.OpenFile(path, os.O_RDONLY, os.ModeExclusive)
	if err != nil {
		logger.Debug("file still being written, deferring", zap.String("path", path), zap.Error(err))
		time.Sleep(time.Second)
		f, err = os.OpenFile(path, os.O_RDONLY, os.ModeExclusive)
		if err != nil {
			return
		}
	}
	f.Close()

	if err := handle(path); err != nil {
		logger.Warn("watch handler failed", zap.String("path", path), zap.Error(err))
	}
}
