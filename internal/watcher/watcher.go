// Package watcher feeds FASTA files dropped into inbox directories to a handler,
// one file at a time, after writes have settled.
package watcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const (
	defaultDebounce = 400 * time.Millisecond
	queueSize       = 64
)

// Handler processes one settled file.
type Handler func(ctx context.Context, path string) error

// fingerprint identifies a file version so unchanged files are not handled twice.
type fingerprint struct {
	size    int64
	modTime time.Time
}

// Inbox watches directories and hands new or modified matching files to a Handler.
// Files are handled sequentially by a single worker.
type Inbox struct {
	roots      []string
	extensions []string
	recursive  bool
	ignore     []string
	handle     Handler
	debounce   time.Duration
	logger     *zap.Logger

	watcher   *fsnotify.Watcher
	mu        sync.Mutex
	timers    map[string]*time.Timer
	seen      map[string]fingerprint
	queue     chan string
	done      chan struct{}
	wg        sync.WaitGroup
	started   bool
	closeOnce sync.Once
}

// Option configures an Inbox.
type Option func(*Inbox)

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) Option {
	return func(in *Inbox) { in.logger = l }
}

// WithDebounce sets how long a file must be quiet before it is handled.
func WithDebounce(d time.Duration) Option {
	return func(in *Inbox) { in.debounce = d }
}

// WithIgnore skips events under the given directories, such as a report outbox
// that lives inside an inbox.
func WithIgnore(dirs ...string) Option {
	return func(in *Inbox) { in.ignore = append(in.ignore, dirs...) }
}

// NewInbox creates an inbox over roots. extensions filter file names (empty = all).
func NewInbox(roots, extensions []string, recursive bool, handle Handler, opts ...Option) *Inbox {
	in := &Inbox{
		roots:      roots,
		extensions: extensions,
		recursive:  recursive,
		handle:     handle,
		debounce:   defaultDebounce,
		timers:     make(map[string]*time.Timer),
		seen:       make(map[string]fingerprint),
		queue:      make(chan string, queueSize),
		done:       make(chan struct{}),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(in)
	}
	if in.logger == nil {
		in.logger = zap.NewNop()
	}
	return in
}

// Start begins watching. Roots that do not exist are created. It runs until ctx
// is cancelled or Stop is called.
func (in *Inbox) Start(ctx context.Context) error {
	in.mu.Lock()
	if in.started {
		in.mu.Unlock()
		return nil
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		in.mu.Unlock()
		return err
	}
	in.watcher = w
	for _, root := range in.roots {
		if err := in.addRootLocked(root); err != nil {
			_ = w.Close()
			in.watcher = nil
			in.mu.Unlock()
			return err
		}
	}
	in.started = true
	in.mu.Unlock()

	in.logger.Debug("inbox watching",
		zap.Strings("roots", in.roots),
		zap.Strings("extensions", in.extensions),
		zap.Bool("recursive", in.recursive))

	in.wg.Add(2)
	go in.events(ctx)
	go in.work(ctx)
	return nil
}

func (in *Inbox) addRootLocked(root string) error {
	root = filepath.Clean(root)
	if err := os.MkdirAll(root, 0755); err != nil {
		return err
	}
	if !in.recursive {
		return in.watcher.Add(root)
	}
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() && !in.ignored(path) {
			return in.watcher.Add(path)
		}
		return nil
	})
}

func (in *Inbox) events(ctx context.Context) {
	defer in.wg.Done()
	for {
		select {
		case <-ctx.Done():
			in.Stop()
			return
		case <-in.done:
			return
		case ev, ok := <-in.watcher.Events:
			if !ok {
				return
			}
			in.handleEvent(ev)
		case err, ok := <-in.watcher.Errors:
			if !ok {
				return
			}
			in.logger.Warn("inbox watcher error", zap.Error(err))
		}
	}
}

func (in *Inbox) handleEvent(ev fsnotify.Event) {
	path := filepath.Clean(ev.Name)
	if in.ignored(path) {
		return
	}
	switch {
	case ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write):
		info, err := os.Stat(path)
		if err != nil {
			return
		}
		if info.IsDir() {
			if in.recursive {
				in.mu.Lock()
				if in.watcher != nil {
					_ = in.addRootLocked(path)
				}
				in.mu.Unlock()
				in.scan(path)
			}
			return
		}
		if matchExtension(path, in.extensions) {
			in.schedule(path)
		}
	case ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename):
		in.mu.Lock()
		if t, ok := in.timers[path]; ok {
			t.Stop()
			delete(in.timers, path)
		}
		delete(in.seen, path)
		in.mu.Unlock()
	}
}

func (in *Inbox) ignored(path string) bool {
	for _, dir := range in.ignore {
		if dir != "" && inDir(filepath.Clean(dir), path) {
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
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
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

// schedule (re)arms the quiet-period timer for path.
func (in *Inbox) schedule(path string) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if !in.started {
		return
	}
	if t, ok := in.timers[path]; ok {
		t.Stop()
	}
	in.timers[path] = time.AfterFunc(in.debounce, func() {
		in.mu.Lock()
		delete(in.timers, path)
		in.mu.Unlock()
		in.enqueue(path)
	})
}

func (in *Inbox) enqueue(path string) {
	select {
	case in.queue <- path:
	case <-in.done:
	}
}

// work handles queued files one at a time, skipping versions already handled.
func (in *Inbox) work(ctx context.Context) {
	defer in.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-in.done:
			return
		case path := <-in.queue:
			info, err := os.Stat(path)
			if err != nil {
				continue
			}
			fp := fingerprint{size: info.Size(), modTime: info.ModTime()}
			in.mu.Lock()
			prev, ok := in.seen[path]
			in.mu.Unlock()
			if ok && prev == fp {
				continue
			}
			in.logger.Info("inbox file ready", zap.String("path", path), zap.Int64("bytes", fp.size))
			if err := in.handle(ctx, path); err != nil {
				in.logger.Error("inbox handler failed", zap.String("path", path), zap.Error(err))
				continue
			}
			in.mu.Lock()
			in.seen[path] = fp
			in.mu.Unlock()
		}
	}
}

func (in *Inbox) scan(root string) {
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if in.ignored(path) || (!in.recursive && path != root) {
				return filepath.SkipDir
			}
			return nil
		}
		if matchExtension(path, in.extensions) {
			in.enqueue(path)
		}
		return nil
	})
}

// SyncExisting queues matching files already present in the roots. Call after Start.
func (in *Inbox) SyncExisting() {
	for _, root := range in.Directories() {
		in.scan(filepath.Clean(root))
	}
}

// Directories returns the watched roots.
func (in *Inbox) Directories() []string {
	in.mu.Lock()
	defer in.mu.Unlock()
	return append([]string(nil), in.roots...)
}

// Stop stops watching and waits for the worker to finish the file in progress.
func (in *Inbox) Stop() {
	in.mu.Lock()
	if !in.started {
		in.mu.Unlock()
		return
	}
	in.started = false
	for path, t := range in.timers {
		t.Stop()
		delete(in.timers, path)
	}
	_ = in.watcher.Close()
	in.mu.Unlock()
	in.closeOnce.Do(func() { close(in.done) })
}

// Wait blocks until the watcher goroutines have exited.
func (in *Inbox) Wait() {
	in.wg.Wait()
}
