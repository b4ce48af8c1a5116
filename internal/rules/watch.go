package rules

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// defaultDebounce coalesces the burst of events a single editor save emits.
const defaultDebounce = 50 * time.Millisecond

// watcher watches the directories holding loaded rule files and calls
// onChange once per settled file. Directories are watched instead of the
// files themselves so that editors which save by rename keep being tracked.
type watcher struct {
	fs       *fsnotify.Watcher
	logger   *zap.Logger
	debounce time.Duration
	onChange func(path string)

	mu      sync.Mutex
	files   map[string]bool
	dirs    map[string]bool
	pending map[string]time.Time

	stopCh    chan struct{}
	doneCh    chan struct{}
	closeOnce sync.Once
}

func newWatcher(logger *zap.Logger, debounce time.Duration, onChange func(path string)) (*watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	return &watcher{
		fs:       fsw,
		logger:   logger,
		debounce: debounce,
		onChange: onChange,
		files:    make(map[string]bool),
		dirs:     make(map[string]bool),
		pending:  make(map[string]time.Time),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// add registers a rule file. Its directory is added to the underlying
// watcher the first time it is seen.
func (w *watcher) add(path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.files[path] = true
	dir := filepath.Dir(path)
	if w.dirs[dir] {
		return nil
	}
	if err := w.fs.Add(dir); err != nil {
		return err
	}
	w.dirs[dir] = true
	return nil
}

// start runs the event loop in its own goroutine.
func (w *watcher) start() {
	go w.run()
}

// close stops the event loop and releases the OS watcher. Safe to call
// more than once.
func (w *watcher) close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.stopCh)
		<-w.doneCh
		err = w.fs.Close()
	})
	return err
}

func (w *watcher) run() {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return

		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.Error("rule watcher error", zap.Error(err))

		case <-ticker.C:
			w.flush()
		}
	}
}

func (w *watcher) handleEvent(event fsnotify.Event) {
	path := filepath.Clean(event.Name)

	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.files[path] {
		return
	}

	switch {
	case event.Has(fsnotify.Write), event.Has(fsnotify.Create):
		w.pending[path] = time.Now()
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		// The file may come back through a Create; until then the loaded
		// definition stays in place.
		w.logger.Warn("rule file removed, keeping loaded definition", zap.String("file", path))
	}
}

// flush hands settled paths to onChange outside the lock.
func (w *watcher) flush() {
	now := time.Now()

	w.mu.Lock()
	var ready []string
	for path, at := range w.pending {
		if now.Sub(at) >= w.debounce {
			ready = append(ready, path)
			delete(w.pending, path)
		}
	}
	w.mu.Unlock()

	for _, path := range ready {
		w.onChange(path)
	}
}
