package scenario

import (
	"context"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/chattrain/chattrain/internal/logging"
)

// Watcher hot-reloads scenario files when they change on disk.
type Watcher struct {
	loader  *Loader
	watcher *fsnotify.Watcher
	logger  logging.Logger
	cancel  context.CancelFunc
}

// NewWatcher starts watching the loader's directory. The watcher stops
// when Close is called or the parent context is cancelled.
func NewWatcher(ctx context.Context, loader *Loader, logger logging.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(loader.dir); err != nil {
		fsw.Close()
		return nil, err
	}

	if logger == nil {
		logger = logging.NopLogger{}
	}

	ctx, cancel := context.WithCancel(ctx)
	w := &Watcher{
		loader:  loader,
		watcher: fsw,
		logger:  logger.WithComponent("scenario-watcher"),
		cancel:  cancel,
	}

	go w.run(ctx)
	return w, nil
}

func (w *Watcher) run(ctx context.Context) {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !isYAML(event.Name) {
				continue
			}
			if event.Op.Has(fsnotify.Write) || event.Op.Has(fsnotify.Create) {
				w.loader.Reload(ctx, event.Name)
			}
			if event.Op.Has(fsnotify.Remove) || event.Op.Has(fsnotify.Rename) {
				// A removed file may carry any id; rebuild the set.
				if err := w.loader.LoadAll(ctx); err != nil {
					w.logger.Warn(ctx, err, "scenario reload after removal failed")
				}
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			if err != nil && !strings.Contains(err.Error(), "closed") {
				w.logger.Warn(ctx, err, "scenario watcher error")
			}

		case <-ctx.Done():
			return
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	w.cancel()
	return w.watcher.Close()
}
