// Package watch re-validates script sources edited outside the store.
package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/t77yq/nitrite-automation/internal/model"
)

const defaultDebounce = 200 * time.Millisecond

// Refresher re-classifies a stored script. *script.Manager implements it.
type Refresher interface {
	Exists(id string) bool
	Refresh(id string) (*model.ScriptRecord, error)
}

// Option customizes a Watcher
type Option func(*Watcher)

// WithDebounce sets how long a burst of writes to one file is coalesced
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		w.debounce = d
	}
}

// WithHandler is called after every successful refresh
func WithHandler(fn func(*model.ScriptRecord)) Option {
	return func(w *Watcher) {
		w.onRefresh = fn
	}
}

// Watcher watches the script directory and refreshes the security snapshot
// of any known script whose source file changes
type Watcher struct {
	logger    *zap.Logger
	dir       string
	refresher Refresher
	fsw       *fsnotify.Watcher
	debounce  time.Duration
	onRefresh func(*model.ScriptRecord)

	mu      sync.Mutex
	pending map[string]*time.Timer
	closed  bool
	wg      sync.WaitGroup
}

// New creates a watcher on dir
func New(dir string, refresher Refresher, logger *zap.Logger, opts ...Option) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	w := &Watcher{
		logger:    logger.Named("watcher"),
		dir:       dir,
		refresher: refresher,
		fsw:       fsw,
		debounce:  defaultDebounce,
		pending:   make(map[string]*time.Timer),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Start runs the event loop until ctx is done or Close is called
func (w *Watcher) Start(ctx context.Context) {
	w.logger.Info("Watching script directory", zap.String("dir", w.dir))
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.loop(ctx)
	}()
}

func (w *Watcher) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Error("File watcher error", zap.Error(err))
		}
	}
}

// scriptID maps a source file name back to its script id
func scriptID(path string) (string, bool) {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return "", false
	}
	ext := filepath.Ext(base)
	if _, ok := model.LanguageForExtension(ext); !ok {
		return "", false
	}
	return strings.TrimSuffix(base, ext), true
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
		return
	}
	id, ok := scriptID(event.Name)
	if !ok || !w.refresher.Exists(id) {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	if t, ok := w.pending[id]; ok {
		t.Reset(w.debounce)
		return
	}
	w.pending[id] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, id)
		w.mu.Unlock()
		w.refresh(id)
	})
}

func (w *Watcher) refresh(id string) {
	rec, err := w.refresher.Refresh(id)
	if err != nil {
		w.logger.Error("Failed to refresh script",
			zap.String("script_id", id),
			zap.Error(err))
		return
	}

	if rec.Security.Validated {
		w.logger.Info("Script source changed",
			zap.String("script_id", id),
			zap.String("risk_level", string(rec.Security.RiskLevel)))
	} else {
		w.logger.Warn("Script source changed and now fails validation",
			zap.String("script_id", id),
			zap.String("risk_level", string(rec.Security.RiskLevel)),
			zap.Strings("warnings", rec.Security.Warnings))
	}

	if w.onRefresh != nil {
		w.onRefresh(rec)
	}
}

// Close stops watching and drops pending refreshes
func (w *Watcher) Close() error {
	w.mu.Lock()
	w.closed = true
	for id, t := range w.pending {
		t.Stop()
		delete(w.pending, id)
	}
	w.mu.Unlock()

	err := w.fsw.Close()
	w.wg.Wait()
	return err
}
