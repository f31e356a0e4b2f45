// Package watcher watches the files location with fsnotify and schedules debounced rebuilds.
package watcher

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultDebounce = 2 * time.Second

var errNotDir = errors.New("not a directory")

// RebuildFunc builds a new store. changed lists the paths whose events were
// coalesced into this rebuild, sorted.
type RebuildFunc func(ctx context.Context, changed []string) error

// Watcher watches one root and calls the rebuild function after changes settle.
// Rebuilds never overlap; changes that arrive during a rebuild schedule one more.
type Watcher struct {
	root       string
	extensions []string
	ignore     []string
	recursive  bool
	debounce   time.Duration
	rebuild    RebuildFunc
	logger     *zap.Logger

	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	timer    *time.Timer
	pending  map[string]struct{}
	started  bool
	trigger  chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithLogger sets a logger for debug output (directory changes, file events, etc.).
func WithLogger(l *zap.Logger) WatcherOption {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithDebounce sets how long changes must settle before a rebuild.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// WithExtensions restricts file events to these extensions (empty = all).
func WithExtensions(exts []string) WatcherOption {
	return func(w *Watcher) { w.extensions = exts }
}

// WithRecursive sets whether subdirectories are watched. Default true.
func WithRecursive(recursive bool) WatcherOption {
	return func(w *Watcher) { w.recursive = recursive }
}

// WithIgnore drops events for paths at or under any of dirs, such as the vector
// store directory when it lives inside the watched root.
func WithIgnore(dirs ...string) WatcherOption {
	return func(w *Watcher) {
		for _, d := range dirs {
			if d == "" {
				continue
			}
			if abs, err := filepath.Abs(d); err == nil {
				w.ignore = append(w.ignore, filepath.Clean(abs))
			}
		}
	}
}

// NewWatcher creates a watcher for root calling rebuild after changes.
func NewWatcher(root string, rebuild RebuildFunc, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		root:      root,
		recursive: true,
		debounce:  defaultDebounce,
		rebuild:   rebuild,
		logger:    zap.NewNop(),
		pending:   make(map[string]struct{}),
		trigger:   make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	if abs, err := filepath.Abs(root); err == nil {
		w.root = abs
	}
	w.root = filepath.Clean(w.root)
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Root returns the watched directory.
func (w *Watcher) Root() string { return w.root }

// Start starts the watcher. It runs until ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return nil
	}
	info, err := os.Stat(w.root)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return &fs.PathError{Op: "watch", Path: w.root, Err: errNotDir}
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	w.watcher = watcher
	if err := w.addTreeLocked(w.root); err != nil {
		_ = watcher.Close()
		w.watcher = nil
		return err
	}
	w.started = true
	w.logger.Debug("watcher starting",
		zap.String("root", w.root), zap.Strings("extensions", w.extensions),
		zap.Bool("recursive", w.recursive), zap.Duration("debounce", w.debounce))

	w.wg.Add(2)
	go w.run(ctx, watcher)
	go w.work(ctx)
	return nil
}

func (w *Watcher) run(ctx context.Context, watcher *fsnotify.Watcher) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			go w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			if err != nil {
				w.logger.Warn("watcher error", zap.Error(err))
			}
		}
	}
}

// work runs rebuilds one at a time.
func (w *Watcher) work(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case <-w.trigger:
		}
		changed := w.takePending()
		if len(changed) == 0 {
			continue
		}
		w.logger.Info("rebuilding after changes", zap.Int("changed", len(changed)))
		if err := w.rebuild(ctx, changed); err != nil {
			w.logger.Error("rebuild failed", zap.Error(err))
		}
	}
}

func (w *Watcher) takePending() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	changed := make([]string, 0, len(w.pending))
	for p := range w.pending {
		changed = append(changed, p)
	}
	clear(w.pending)
	sort.Strings(changed)
	return changed
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	path := filepath.Clean(ev.Name)
	if !w.relevantPath(path) {
		return
	}
	w.logger.Debug("watcher event", zap.String("op", ev.Op.String()), zap.String("path", path))
	switch {
	case ev.Has(fsnotify.Create), ev.Has(fsnotify.Write):
		info, err := os.Stat(path)
		if err == nil && info.IsDir() {
			w.handleNewDirectory(path)
			return
		}
		if w.matchExtension(path) {
			w.schedule(path)
		}
	case ev.Has(fsnotify.Remove), ev.Has(fsnotify.Rename):
		// A removed path cannot be inspected; it may have been a directory.
		if w.matchExtension(path) || filepath.Ext(path) == "" {
			w.schedule(path)
		}
	}
}

// handleNewDirectory watches a directory that appeared under the root and
// schedules a rebuild when it already contains matching files.
func (w *Watcher) handleNewDirectory(dir string) {
	w.mu.Lock()
	if w.watcher != nil && w.recursive {
		if err := w.addTreeLocked(dir); err != nil {
			w.logger.Debug("watcher failed to add directory", zap.String("path", dir), zap.Error(err))
		}
	}
	w.mu.Unlock()

	found := false
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() && w.matchExtension(path) {
			found = true
			return fs.SkipAll
		}
		return nil
	})
	if found {
		w.schedule(dir)
	}
}

// addTreeLocked adds root and, when recursive, its subdirectories.
func (w *Watcher) addTreeLocked(root string) error {
	if !w.recursive {
		return w.watcher.Add(root)
	}
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if w.ignored(path) {
			return fs.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			return err
		}
		w.logger.Debug("watcher added directory", zap.String("path", path))
		return nil
	})
}

// schedule records path and (re)starts the debounce timer.
func (w *Watcher) schedule(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.started {
		return
	}
	w.pending[path] = struct{}{}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		select {
		case w.trigger <- struct{}{}:
		default:
		}
	})
}

func (w *Watcher) relevantPath(path string) bool {
	return (path == w.root || inDir(w.root, path)) && !w.ignored(path)
}

func (w *Watcher) ignored(path string) bool {
	for _, dir := range w.ignore {
		if path == dir || inDir(dir, path) {
			return true
		}
	}
	return false
}

func inDir(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func (w *Watcher) matchExtension(path string) bool {
	return matchExtension(path, w.extensions)
}

func matchExtension(path string, extensions []string) bool {
	if len(extensions) == 0 {
		return true
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	for _, e := range extensions {
		if strings.TrimPrefix(strings.ToLower(e), ".") == ext {
			return true
		}
	}
	return false
}

// Stop stops the watcher, waiting for a running rebuild to return.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	_ = w.watcher.Close()
	w.watcher = nil
	w.started = false
	w.mu.Unlock()
	w.stopOnce.Do(func() { close(w.done) })
	w.wg.Wait()
}
