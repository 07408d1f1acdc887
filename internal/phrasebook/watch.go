package phrasebook

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"dotphrase/internal/store"
)

// watchDebounce collapses the burst of events editors produce on save.
const watchDebounce = 100 * time.Millisecond

// Watcher re-imports a phrasebook file whenever it is written.
type Watcher struct {
	path    string
	store   store.Store
	replace bool
	logger  *slog.Logger

	// onImport, if set, receives the outcome of every re-import.
	onImport func(Result, error)
}

// WatchOption configures a Watcher.
type WatchOption func(*Watcher)

// WithLogger sets the watcher's logger.
func WithLogger(l *slog.Logger) WatchOption {
	return func(w *Watcher) { w.logger = l }
}

// OnImport registers a callback run after each re-import.
func OnImport(fn func(Result, error)) WatchOption {
	return func(w *Watcher) { w.onImport = fn }
}

// NewWatcher creates a watcher for path importing into s.
func NewWatcher(path string, s store.Store, replace bool, opts ...WatchOption) *Watcher {
	w := &Watcher{
		path:    path,
		store:   s,
		replace: replace,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run watches until ctx is cancelled. Import errors are logged and
// reported to the OnImport callback; they never stop the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fsw.Close()

	// Watch the directory so atomic rename-over saves are seen
	if err := fsw.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watch directory: %w", err)
	}

	base := filepath.Base(w.path)
	var (
		timer *time.Timer
		fire  <-chan time.Time
	)

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != base {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(watchDebounce)
			} else {
				timer.Reset(watchDebounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			w.reimport(ctx)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("phrasebook watch error", "error", err)
		}
	}
}

func (w *Watcher) reimport(ctx context.Context) {
	res, err := ImportFile(ctx, w.store, w.path, w.replace)
	if err != nil {
		w.logger.Warn("phrasebook reload failed", "path", w.path, "error", err)
	} else {
		w.logger.Info("phrasebook reloaded",
			"path", w.path,
			"added", res.Added,
			"replaced", res.Replaced,
			"skipped", res.Skipped,
		)
	}
	if w.onImport != nil {
		w.onImport(res, err)
	}
}
