package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// fsWatcher is the subset of *fsnotify.Watcher the config watcher uses.
type fsWatcher interface {
	Add(name string) error
	Close() error
	Events() <-chan fsnotify.Event
	Errors() <-chan error
}

// fsnotifyWatcher adapts *fsnotify.Watcher, whose channels are fields, to
// fsWatcher.
type fsnotifyWatcher struct {
	w *fsnotify.Watcher
}

func (f fsnotifyWatcher) Add(name string) error         { return f.w.Add(name) }
func (f fsnotifyWatcher) Close() error                  { return f.w.Close() }
func (f fsnotifyWatcher) Events() <-chan fsnotify.Event { return f.w.Events }
func (f fsnotifyWatcher) Errors() <-chan error          { return f.w.Errors }

func newFsnotifyWatcher() (fsWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return fsnotifyWatcher{w: w}, nil
}

// Watcher reloads the config file held by a Holder when it changes on disk
// or when Reload is called (SIGHUP). A file that fails to load or validate
// is logged and ignored; the previous config stays in effect.
type Watcher struct {
	holder     *Holder
	logger     *slog.Logger
	newWatcher func() (fsWatcher, error)

	// reloadMu serializes file-triggered and signal-triggered reloads.
	reloadMu sync.Mutex
}

// NewWatcher creates a Watcher for the holder's config path.
func NewWatcher(holder *Holder, logger *slog.Logger) *Watcher {
	return &Watcher{
		holder:     holder,
		logger:     logger,
		newWatcher: newFsnotifyWatcher,
	}
}

// Reload re-reads the config file and stores it in the holder. changed
// reports whether the new config differs from the previous one.
func (w *Watcher) Reload() (cfg *Config, changed bool, err error) {
	w.reloadMu.Lock()
	defer w.reloadMu.Unlock()

	cfg, err = LoadOrDefault(w.holder.Path(), w.logger)
	if err != nil {
		return nil, false, fmt.Errorf("reloading config: %w", err)
	}

	cfg, changed = w.holder.Replace(cfg)

	return cfg, changed, nil
}

// Watch blocks until ctx is canceled, calling onReload with each changed
// config. The parent directory is watched rather than the file, so editors
// that save by writing a temp file and renaming it are seen. A config path
// that cannot be watched is logged; Watch then only waits for ctx.
func (w *Watcher) Watch(ctx context.Context, onReload func(*Config)) error {
	path := filepath.Clean(w.holder.Path())
	if w.holder.Path() == "" {
		<-ctx.Done()

		return nil
	}

	watcher, err := w.newWatcher()
	if err != nil {
		return fmt.Errorf("creating config watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		w.logger.Warn("config file changes will not be picked up",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)

		<-ctx.Done()

		return nil
	}

	w.logger.Debug("watching config file", slog.String("path", path))

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events():
			if !ok {
				return nil
			}

			if filepath.Clean(ev.Name) != path || (!ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create)) {
				continue
			}

			w.reloadAndNotify(onReload)

		case watchErr, ok := <-watcher.Errors():
			if !ok {
				return nil
			}

			w.logger.Warn("config watcher error", slog.String("error", watchErr.Error()))
		}
	}
}

func (w *Watcher) reloadAndNotify(onReload func(*Config)) {
	cfg, changed, err := w.Reload()
	if err != nil {
		w.logger.Warn("ignoring invalid config file",
			slog.String("path", w.holder.Path()),
			slog.String("error", err.Error()),
		)

		return
	}

	if !changed {
		return
	}

	w.logger.Info("config file reloaded", slog.String("path", w.holder.Path()))

	if onReload != nil {
		onReload(cfg)
	}
}
