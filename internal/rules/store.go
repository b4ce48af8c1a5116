package rules

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/inderdeep-singh-zomato/memory-bank-mcp/internal/trigger"
)

// ErrNoWritableDir is returned when none of the candidate roots accepts writes.
var ErrNoWritableDir = errors.New("no writable rules directory")

// Listener receives a notification after a rule file change has been
// parsed, validated and published.
type Listener interface {
	RuleChanged(mode string, def *RuleDefinition)
}

// ListenerFunc adapts a function to the Listener interface.
type ListenerFunc func(mode string, def *RuleDefinition)

// RuleChanged implements Listener.
func (f ListenerFunc) RuleChanged(mode string, def *RuleDefinition) { f(mode, def) }

// ValidationResult reports which rule files exist after ValidateRequired.
type ValidationResult struct {
	Valid         bool
	MissingFiles  []string
	ExistingFiles []string
	CreatedFiles  []string
}

// Options configures a Store.
type Options struct {
	// Roots is the ordered list of candidate directories. Discovery looks
	// in each root in order; writes go to the first writable one.
	Roots []string
	// Modes is the list of known mode names, in discovery order.
	Modes []string
	// Templates maps a mode to the content written when its file is
	// missing. Nil means the built-in templates.
	Templates map[string]string
	// Debounce is the quiet period before a changed file is re-read.
	Debounce time.Duration
	Logger   *zap.Logger
}

// Store maintains the live mapping from mode name to its rule definition.
//
// Readers get *RuleDefinition values that are never mutated after being
// published; a file change swaps in a new pointer.
type Store struct {
	roots     []string
	modes     []string
	templates map[string]string
	debounce  time.Duration
	logger    *zap.Logger

	mu      sync.RWMutex
	rules   map[string]*RuleDefinition
	order   []string
	tracked map[string]string // file path -> mode
	watcher *watcher

	rootMu     sync.Mutex
	chosenRoot string

	listenerMu sync.Mutex
	listeners  []listenerEntry
	nextID     int
}

type listenerEntry struct {
	id int
	l  Listener
}

// New creates a Store. Nothing is read from disk until Load is called.
func New(opts Options) *Store {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	modes := opts.Modes
	if len(modes) == 0 {
		modes = DefaultModes
	}

	templates := opts.Templates
	if templates == nil {
		templates = BuiltinTemplates(modes)
	}

	roots := make([]string, 0, len(opts.Roots))
	for _, r := range opts.Roots {
		if r == "" {
			continue
		}
		if abs, err := filepath.Abs(r); err == nil {
			r = abs
		}
		roots = append(roots, filepath.Clean(r))
	}

	return &Store{
		roots:     roots,
		modes:     append([]string(nil), modes...),
		templates: templates,
		debounce:  opts.Debounce,
		logger:    logger,
		rules:     make(map[string]*RuleDefinition),
		tracked:   make(map[string]string),
	}
}

// Roots returns the candidate directories in search order.
func (s *Store) Roots() []string {
	return append([]string(nil), s.roots...)
}

// --- Discovery ---

// Load discovers and parses the rule file of every known mode, replacing
// everything previously loaded. A file that fails to parse or validate
// leaves its mode unavailable; it never aborts the other modes. Files
// that load successfully are watched for changes.
//
// Load only returns an error when ctx is cancelled.
func (s *Store) Load(ctx context.Context) (map[string]*RuleDefinition, error) {
	s.stopWatching()

	loaded := make(map[string]*RuleDefinition, len(s.modes))
	tracked := make(map[string]string, len(s.modes))
	var order []string

	for _, mode := range s.modes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		path, ok := s.locate(mode)
		if !ok {
			s.logger.Debug("rule file not found", zap.String("mode", mode))
			continue
		}

		def, err := s.readDefinition(path, mode)
		if err != nil {
			s.logger.Warn("skipping invalid rule file", zap.String("file", path), zap.Error(err))
			continue
		}

		loaded[mode] = def
		tracked[path] = mode
		order = append(order, mode)
		s.logger.Info("loaded rule file", zap.String("mode", mode), zap.String("file", path))
	}

	w, err := newWatcher(s.logger, s.debounce, s.reload)
	if err != nil {
		s.logger.Warn("rule watching disabled", zap.Error(err))
		w = nil
	}
	if w != nil {
		for path := range tracked {
			if err := w.add(path); err != nil {
				s.logger.Warn("cannot watch rule file", zap.String("file", path), zap.Error(err))
			}
		}
	}

	s.mu.Lock()
	s.rules = loaded
	s.order = order
	s.tracked = tracked
	s.watcher = w
	s.mu.Unlock()

	if w != nil {
		w.start()
	}

	return s.snapshot(), nil
}

// locate returns the first existing rule file for mode across the roots.
func (s *Store) locate(mode string) (string, bool) {
	name := Filename(mode)
	for _, root := range s.roots {
		path := filepath.Join(root, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return path, true
		}
	}
	return "", false
}

// readDefinition reads and parses one rule file.
func (s *Store) readDefinition(path, mode string) (*RuleDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	res := Parse(data, mode)
	if !res.OK() {
		return nil, fmt.Errorf("%s (%s): %w", res.Kind, res.Format, res.Err)
	}
	if umb := res.Definition.Instructions.UMB; umb != nil && umb.Trigger != "" {
		if _, err := trigger.CompileUMB(umb.Trigger); err != nil {
			s.logger.Warn("UMB trigger will never match",
				zap.String("mode", mode), zap.String("file", path), zap.Error(err))
		}
	}
	return res.Definition, nil
}

// reload re-parses a changed file. A failure keeps the previous
// definition in place.
func (s *Store) reload(path string) {
	s.mu.RLock()
	mode, ok := s.tracked[path]
	s.mu.RUnlock()
	if !ok {
		return
	}

	def, err := s.readDefinition(path, mode)
	if err != nil {
		s.logger.Warn("keeping previous rules after failed reload",
			zap.String("mode", mode),
			zap.String("file", path),
			zap.Error(err),
		)
		return
	}

	s.mu.Lock()
	if _, still := s.tracked[path]; !still {
		s.mu.Unlock()
		return
	}
	s.rules[mode] = def
	s.mu.Unlock()

	s.logger.Info("reloaded rule file", zap.String("mode", mode), zap.String("file", path))
	s.notify(mode, def)
}

// --- Validation and template seeding ---

// ValidateRequired reports which rule files exist and creates the missing
// ones from templates. Only modes with neither a file nor a template stay
// missing. When no root is writable the result is still returned, along
// with an error wrapping ErrNoWritableDir.
func (s *Store) ValidateRequired(ctx context.Context) (ValidationResult, error) {
	var res ValidationResult
	var missing []string

	for _, mode := range s.modes {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		name := Filename(mode)
		if _, ok := s.locate(mode); ok {
			res.ExistingFiles = append(res.ExistingFiles, name)
		} else {
			missing = append(missing, name)
		}
	}

	var createErr error
	if len(missing) > 0 {
		created, err := s.CreateMissing(missing)
		createErr = err
		res.CreatedFiles = created

		createdSet := make(map[string]bool, len(created))
		for _, c := range created {
			createdSet[c] = true
		}
		for _, name := range missing {
			if createdSet[name] {
				res.ExistingFiles = append(res.ExistingFiles, name)
			} else {
				res.MissingFiles = append(res.MissingFiles, name)
			}
		}
	}

	res.Valid = len(res.MissingFiles) == 0
	return res, createErr
}

// CreateMissing writes the template of each named rule file into the
// writable root and returns the filenames it created. Files without a
// template are skipped and individual write failures are logged; the
// only error returned is ErrNoWritableDir.
func (s *Store) CreateMissing(filenames []string) ([]string, error) {
	root, err := s.WritableRoot()
	if err != nil {
		s.logger.Warn("cannot create rule files", zap.Strings("files", filenames), zap.Error(err))
		return nil, err
	}

	var created []string
	for _, name := range filenames {
		mode, ok := ModeFromFilename(name)
		if !ok {
			s.logger.Warn("not a rule filename", zap.String("file", name))
			continue
		}
		tpl, ok := s.templates[mode]
		if !ok {
			s.logger.Debug("no template for mode", zap.String("mode", mode))
			continue
		}

		path := filepath.Join(root, name)
		if err := os.WriteFile(path, []byte(tpl), 0o644); err != nil {
			s.logger.Warn("failed to write rule template", zap.String("file", path), zap.Error(err))
			continue
		}
		created = append(created, name)
		s.logger.Info("created rule file from template", zap.String("file", path))
	}

	return created, nil
}

// WritableRoot returns the first candidate root that accepts writes. The
// choice is made on first use and reused afterwards.
func (s *Store) WritableRoot() (string, error) {
	s.rootMu.Lock()
	defer s.rootMu.Unlock()

	if s.chosenRoot != "" {
		return s.chosenRoot, nil
	}

	for _, root := range s.roots {
		if err := probeWritable(root); err != nil {
			s.logger.Debug("rules root not writable", zap.String("root", root), zap.Error(err))
			continue
		}
		s.chosenRoot = root
		s.logger.Info("using rules directory", zap.String("root", root))
		return root, nil
	}

	return "", fmt.Errorf("%w: tried %v", ErrNoWritableDir, s.roots)
}

// ChosenRoot returns the cached writable root, or "" when no write has
// been attempted yet.
func (s *Store) ChosenRoot() string {
	s.rootMu.Lock()
	defer s.rootMu.Unlock()
	return s.chosenRoot
}

// probeWritable creates the directory if needed and checks that a file
// can be created in it.
func probeWritable(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".clinerules-probe-*")
	if err != nil {
		return err
	}
	name := f.Name()
	if err := f.Close(); err != nil {
		_ = os.Remove(name)
		return err
	}
	return os.Remove(name)
}

// --- Queries ---

// Modes returns the loaded modes in discovery order.
func (s *Store) Modes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.order...)
}

// Rules returns the loaded definition for a mode.
func (s *Store) Rules(mode string) (*RuleDefinition, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	def, ok := s.rules[mode]
	return def, ok
}

// HasMode reports whether a mode has loaded rules.
func (s *Store) HasMode(mode string) bool {
	_, ok := s.Rules(mode)
	return ok
}

// Path returns the file a mode was loaded from.
func (s *Store) Path(mode string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for path, m := range s.tracked {
		if m == mode {
			return path, true
		}
	}
	return "", false
}

func (s *Store) snapshot() map[string]*RuleDefinition {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]*RuleDefinition, len(s.rules))
	for k, v := range s.rules {
		out[k] = v
	}
	return out
}

// --- Listeners ---

// Subscribe registers a listener and returns a function that removes it.
func (s *Store) Subscribe(l Listener) func() {
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()

	id := s.nextID
	s.nextID++
	s.listeners = append(s.listeners, listenerEntry{id: id, l: l})

	return func() {
		s.listenerMu.Lock()
		defer s.listenerMu.Unlock()
		for i, e := range s.listeners {
			if e.id == id {
				s.listeners = append(s.listeners[:i], s.listeners[i+1:]...)
				return
			}
		}
	}
}

func (s *Store) notify(mode string, def *RuleDefinition) {
	s.listenerMu.Lock()
	ls := make([]Listener, 0, len(s.listeners))
	for _, e := range s.listeners {
		ls = append(ls, e.l)
	}
	s.listenerMu.Unlock()

	for _, l := range ls {
		l.RuleChanged(mode, def)
	}
}

// --- Lifecycle ---

func (s *Store) stopWatching() {
	s.mu.Lock()
	w := s.watcher
	s.watcher = nil
	s.mu.Unlock()

	if w != nil {
		if err := w.close(); err != nil {
			s.logger.Warn("closing rule watcher", zap.Error(err))
		}
	}
}

// Close stops watching, clears all loaded rules and detaches listeners.
func (s *Store) Close() error {
	s.stopWatching()

	s.mu.Lock()
	s.rules = make(map[string]*RuleDefinition)
	s.order = nil
	s.tracked = make(map[string]string)
	s.mu.Unlock()

	s.listenerMu.Lock()
	s.listeners = nil
	s.listenerMu.Unlock()

	return nil
}
