package ingest

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// videoExtensions are the container types the watch folder picks up.
var videoExtensions = map[string]bool{
	".mp4":  true,
	".mkv":  true,
	".mov":  true,
	".avi":  true,
	".webm": true,
	".m4v":  true,
}

// defaultSettlePolls bounds how long a file may keep changing size before
// it is skipped. A file that never settles must not block the event loop.
const defaultSettlePolls = 30

// recentWindow is how long an ingested path suppresses further events for
// the same file. Writing a file yields both Create and Write events; only
// the first may trigger an ingest.
const recentWindow = time.Minute

// Watcher ingests video files dropped into a watch folder. Every settled
// file is fed through IngestPath with transcoding requested, exactly once.
type Watcher struct {
	dir     string
	service *Service
	logger  *slog.Logger

	// settleWindow is how long a file must stop growing before it is
	// considered fully written; settlePolls caps the number of checks.
	settleWindow time.Duration
	settlePolls  int

	// recent tracks paths already ingested, keyed by ingestion time.
	// Only touched from the Run goroutine.
	recent map[string]time.Time
}

// NewWatcher creates a watcher for dir.
func NewWatcher(dir string, service *Service, logger *slog.Logger) *Watcher {
	return &Watcher{
		dir:          dir,
		service:      service,
		logger:       logger,
		settleWindow: 2 * time.Second,
		settlePolls:  defaultSettlePolls,
		recent:       make(map[string]time.Time),
	}
}

// Run watches the folder until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(w.dir); err != nil {
		return err
	}

	w.logger.Info("watching folder for media", slog.String("dir", w.dir))

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
			if !videoExtensions[strings.ToLower(filepath.Ext(event.Name))] {
				continue
			}
			if w.recentlyIngested(event.Name) {
				continue
			}
			w.handle(ctx, event.Name)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", slog.String("error", err.Error()))
		}
	}
}

// recentlyIngested reports whether path was ingested within the recent
// window, dropping expired entries as it goes.
func (w *Watcher) recentlyIngested(path string) bool {
	at, ok := w.recent[path]
	if !ok {
		return false
	}
	if time.Since(at) > recentWindow {
		delete(w.recent, path)
		return false
	}
	return true
}

// handle waits for the file to settle, then ingests it. Create events fire
// while the file is still being copied in, so size must hold still for a
// full settle window first.
func (w *Watcher) handle(ctx context.Context, path string) {
	if !w.waitSettled(ctx, path) {
		return
	}

	state, err := w.service.IngestPath(ctx, path, true)
	if err != nil {
		w.logger.Warn("watch-folder ingest failed",
			slog.String("path", path),
			slog.String("error", err.Error()))
		return
	}
	w.recent[path] = time.Now()

	w.logger.Info("watch-folder file ingested",
		slog.String("path", path),
		slog.String("job_id", state.ID))
}

// waitSettled polls until the file size holds still across a settle window.
// It gives up after settlePolls checks, so an empty or endlessly growing
// file cannot stall the watcher.
func (w *Watcher) waitSettled(ctx context.Context, path string) bool {
	var lastSize int64 = -1
	for range w.settlePolls {
		info, err := os.Stat(path)
		if err != nil {
			return false
		}
		if info.Size() == lastSize && info.Size() > 0 {
			return true
		}
		lastSize = info.Size()

		select {
		case <-ctx.Done():
			return false
		case <-time.After(w.settleWindow):
		}
	}

	w.logger.Warn("watch-folder file never settled, skipping",
		slog.String("path", path))
	return false
}
