package ruleset

import (
	"context"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/solatis/formguard/internal/rules"
)

// Watcher rebuilds a Source whenever one of its rule files changes and swaps
// the result into a Registry. A reload that fails to load or compile keeps
// the previous rule set in place.
type Watcher struct {
	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	registry *rules.Registry
	src      Source
	files    []string // cleaned absolute paths of src.Paths
	logger   *zap.Logger
	settle   time.Duration
	onReload func(error)
	timer    *time.Timer
	pending  sync.WaitGroup // scheduled or running reloads
	running  bool
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// WatchOption configures a Watcher.
type WatchOption func(*Watcher)

// WithWatchLogger sets the logger. Defaults to a no-op logger.
func WithWatchLogger(logger *zap.Logger) WatchOption {
	return func(w *Watcher) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithSettle sets how long events must stop before a reload. Editors often
// write a file in several steps. Defaults to 200ms.
func WithSettle(d time.Duration) WatchOption {
	return func(w *Watcher) { w.settle = d }
}

// WithOnReload registers a callback run after every reload attempt with its
// error, nil on success.
func WithOnReload(f func(error)) WatchOption {
	return func(w *Watcher) { w.onReload = f }
}

// NewWatcher returns a watcher for src publishing into registry.
func NewWatcher(registry *rules.Registry, src Source, opts ...WatchOption) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		watcher:  fw,
		registry: registry,
		src:      src,
		logger:   zap.NewNop(),
		settle:   200 * time.Millisecond,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	for _, p := range src.Paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			fw.Close()
			return nil, err
		}
		w.files = append(w.files, filepath.Clean(abs))
	}
	return w, nil
}

// Start watches the directories holding the rule files. Directories rather
// than files are watched so that atomic replace-by-rename saves are seen.
// Non-blocking.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	var dirs []string
	for _, f := range w.files {
		if d := filepath.Dir(f); !slices.Contains(dirs, d) {
			dirs = append(dirs, d)
		}
	}
	for _, d := range dirs {
		if err := w.watcher.Add(d); err != nil {
			w.watcher.Close()
			close(w.doneCh)
			return err
		}
		w.logger.Debug("watching rule directory", zap.String("dir", d))
	}

	go w.run(ctx)
	return nil
}

// Stop ends watching and waits for the event loop and any scheduled reload
// to finish. Safe to call on a watcher that was never started.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		w.watcher.Close()
		return
	}
	w.running = false
	if w.timer != nil && w.timer.Stop() {
		w.pending.Done()
	}
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh
	w.pending.Wait()
	if err := w.watcher.Close(); err != nil {
		w.logger.Warn("closing rule watcher", zap.Error(err))
	}
}

// Reload rebuilds the source and publishes it.
func (w *Watcher) Reload() error {
	set, err := Load(w.src)
	if err != nil {
		w.logger.Error("rule reload failed, keeping previous rules", zap.Error(err))
	} else {
		w.registry.Replace(set)
		w.logger.Info("rules reloaded", zap.Strings("paths", w.src.Paths))
	}
	if w.onReload != nil {
		w.onReload(err)
	}
	return err
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("rule watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return
	}
	if !slices.Contains(w.files, filepath.Clean(event.Name)) {
		return
	}
	w.logger.Debug("rule file changed", zap.String("path", event.Name), zap.String("op", event.Op.String()))

	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}
	if w.timer != nil && w.timer.Stop() {
		w.pending.Done()
	}
	w.pending.Add(1)
	w.timer = time.AfterFunc(w.settle, func() {
		defer w.pending.Done()
		_ = w.Reload()
	})
}
