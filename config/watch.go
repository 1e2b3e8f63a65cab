package config

import (
	"context"
	"sync"

	"github.com/flowcore/swarmbus/logging"
	"github.com/flowcore/swarmbus/telemetry"
	"github.com/fsnotify/fsnotify"
)

// ReloadFunc is invoked with the freshly loaded configuration after a
// watched file changes. A non-nil error means the new config was rejected
// (e.g. failed Validate) and the previous configuration remains active.
type ReloadFunc func(RuntimeConfig) error

// Watcher reloads RuntimeConfig from path whenever the underlying file
// changes on disk, using fsnotify for the filesystem event source.
type Watcher struct {
	path      string
	feeder    Feeder
	logger    logging.Logger
	telemetry telemetry.Subject
	onReload  ReloadFunc

	fsw    *fsnotify.Watcher
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewWatcher constructs a Watcher over path, using the feeder selected by
// ForPath. logger and telemetrySubject may be nil.
func NewWatcher(path string, logger logging.Logger, telemetrySubject telemetry.Subject, onReload ReloadFunc) (*Watcher, error) {
	if logger == nil {
		logger = logging.NopLogger{}
	}
	feed, err := ForPath(path)
	if err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(path); err != nil {
		_ = fsw.Close()
		return nil, err
	}

	return &Watcher{
		path:      path,
		feeder:    feed,
		logger:    logger,
		telemetry: telemetrySubject,
		onReload:  onReload,
		fsw:       fsw,
		stopCh:    make(chan struct{}),
	}, nil
}

// Start begins watching in the background. Call Stop to shut it down.
func (w *Watcher) Start() {
	w.wg.Add(1)
	go w.run()
}

func (w *Watcher) run() {
	defer w.wg.Done()
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				w.reload()
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Error("config watcher error", "path", w.path, "error", err)
		case <-w.stopCh:
			return
		}
	}
}

func (w *Watcher) reload() {
	cfg := Default()
	if err := w.feeder.Feed(&cfg); err != nil {
		w.logger.Error("config reload failed", "path", w.path, "error", err)
		return
	}
	if err := cfg.Validate(); err != nil {
		w.logger.Error("reloaded config failed validation, keeping previous config", "path", w.path, "error", err)
		return
	}

	if w.onReload != nil {
		if err := w.onReload(cfg); err != nil {
			w.logger.Error("config reload rejected by handler", "path", w.path, "error", err)
			return
		}
	}

	w.logger.Info("config reloaded", "path", w.path)
	if w.telemetry != nil {
		_ = w.telemetry.NotifyObservers(context.Background(), telemetry.NewEvent(telemetry.EventConfigChange, "config.watcher", map[string]any{
			"path": w.path,
		}))
	}
}

// Stop halts the watcher and releases the underlying fsnotify handle.
func (w *Watcher) Stop() {
	close(w.stopCh)
	_ = w.fsw.Close()
	w.wg.Wait()
}
