package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/ShayCichocki/reqflow/internal/api"
)

// DefaultDebounce collapses editor save bursts into one run.
const DefaultDebounce = 750 * time.Millisecond

// Watcher re-runs the pipeline when files in the watched directories change.
// Runs never overlap: changes seen during a run schedule one more run.
type Watcher struct {
	watcher  *fsnotify.Watcher
	debounce time.Duration
	run      func(ctx context.Context) error
	log      *zap.Logger
}

// NewWatcher starts watching dirs. run is called after each quiet period.
func NewWatcher(dirs []string, debounce time.Duration, log *zap.Logger, run func(ctx context.Context) error) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	for _, d := range dirs {
		if err := fw.Add(d); err != nil {
			fw.Close()
			return nil, fmt.Errorf("watch %s: %w", d, err)
		}
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Watcher{watcher: fw, debounce: debounce, run: run, log: log}, nil
}

// Watch blocks until ctx ends or a run fails fatally. Other run errors are
// logged and the watch continues.
func (w *Watcher) Watch(ctx context.Context) error {
	defer w.watcher.Close()

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !relevant(ev) {
				continue
			}
			w.log.Debug("change detected", zap.String("file", ev.Name), zap.String("op", ev.Op.String()))
			timer.Reset(w.debounce)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watch error", zap.Error(err))

		case <-timer.C:
			w.log.Info("inputs changed, re-running pipeline")
			err := w.run(ctx)
			switch {
			case err == nil:
			case api.IsFatal(err):
				return err
			case errors.Is(err, context.Canceled):
				return nil
			default:
				w.log.Error("run failed", zap.Error(err))
			}
		}
	}
}

func relevant(ev fsnotify.Event) bool {
	return ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) != 0
}
