package rules

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// --- Helpers ---

func ruleJSON(mode, general string) string {
	return `{"mode":"` + mode + `","instructions":{"general":["` + general + `"],"umb":{"trigger":"^UMB$","instructions":[]}}}`
}

func writeRule(t *testing.T, dir, mode, content string) string {
	t.Helper()
	path := filepath.Join(dir, Filename(mode))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newTestStore(t *testing.T, opts Options) *Store {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = zaptest.NewLogger(t)
	}
	if opts.Debounce == 0 {
		opts.Debounce = 10 * time.Millisecond
	}
	s := New(opts)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// --- Discovery ---

func TestLoad_SkipsInvalidFiles(t *testing.T) {
	dir := t.TempDir()
	writeRule(t, dir, "architect", ruleJSON("architect", "design"))
	writeRule(t, dir, "code", ruleJSON("code", "build"))
	writeRule(t, dir, "debug", `{"mode":"code","instructions":{"general":[]}}`)
	writeRule(t, dir, "test", "::: not a rule")

	s := newTestStore(t, Options{Roots: []string{dir}})
	loaded, err := s.Load(context.Background())
	require.NoError(t, err)

	assert.Len(t, loaded, 2)
	assert.Equal(t, []string{"architect", "code"}, s.Modes())
	assert.True(t, s.HasMode("code"))
	assert.False(t, s.HasMode("debug"))
	assert.False(t, s.HasMode("test"))
	assert.False(t, s.HasMode("ask"))

	def, ok := s.Rules("code")
	require.True(t, ok)
	assert.Equal(t, []string{"build"}, def.Instructions.General)
}

func TestLoad_KeepsModeWithUncompilableTrigger(t *testing.T) {
	dir := t.TempDir()
	writeRule(t, dir, "code", `{"mode":"code","instructions":{"general":["build"],"umb":{"trigger":"^(?!x)(UMB)$","instructions":[]}}}`)

	s := newTestStore(t, Options{Roots: []string{dir}, Modes: []string{"code"}})
	_, err := s.Load(context.Background())
	require.NoError(t, err)

	assert.True(t, s.HasMode("code"))
	def, ok := s.Rules("code")
	require.True(t, ok)
	assert.Equal(t, []string{"build"}, def.Instructions.General)
}

func TestLoad_SearchesRootsInOrder(t *testing.T) {
	project := t.TempDir()
	home := t.TempDir()
	writeRule(t, project, "code", ruleJSON("code", "from project"))
	writeRule(t, home, "code", ruleJSON("code", "from home"))
	writeRule(t, home, "ask", ruleJSON("ask", "from home"))

	s := newTestStore(t, Options{Roots: []string{project, home}})
	_, err := s.Load(context.Background())
	require.NoError(t, err)

	code, _ := s.Rules("code")
	assert.Equal(t, []string{"from project"}, code.Instructions.General)
	ask, _ := s.Rules("ask")
	assert.Equal(t, []string{"from home"}, ask.Instructions.General)

	path, ok := s.Path("ask")
	require.True(t, ok)
	assert.Equal(t, filepath.Join(home, ".clinerules-ask"), path)

	// Discovery order follows the configured modes, not the roots.
	assert.Equal(t, []string{"ask", "code"}, s.Modes())
}

func TestLoad_CustomModes(t *testing.T) {
	dir := t.TempDir()
	writeRule(t, dir, "review", ruleJSON("review", "review"))
	writeRule(t, dir, "code", ruleJSON("code", "build"))

	s := newTestStore(t, Options{Roots: []string{dir}, Modes: []string{"review"}})
	_, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"review"}, s.Modes())
}

func TestLoad_CancelledContext(t *testing.T) {
	s := newTestStore(t, Options{Roots: []string{t.TempDir()}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Load(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLoad_RediscoveryPicksUpNewFiles(t *testing.T) {
	dir := t.TempDir()
	s := newTestStore(t, Options{Roots: []string{dir}})

	_, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, s.Modes())

	writeRule(t, dir, "debug", ruleJSON("debug", "investigate"))
	_, err = s.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"debug"}, s.Modes())
}

// --- Validation and templates ---

func TestValidateRequired_CreatesFromTemplates(t *testing.T) {
	dir := t.TempDir()
	writeRule(t, dir, "code", ruleJSON("code", "existing"))

	s := newTestStore(t, Options{Roots: []string{dir}})
	res, err := s.ValidateRequired(context.Background())
	require.NoError(t, err)

	assert.True(t, res.Valid)
	assert.Empty(t, res.MissingFiles)
	assert.ElementsMatch(t, []string{".clinerules-architect", ".clinerules-ask", ".clinerules-debug", ".clinerules-test"}, res.CreatedFiles)
	assert.Len(t, res.ExistingFiles, 5)

	// The existing file is untouched.
	data, err := os.ReadFile(filepath.Join(dir, ".clinerules-code"))
	require.NoError(t, err)
	assert.Equal(t, ruleJSON("code", "existing"), string(data))

	_, err = s.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, DefaultModes, s.Modes())
}

func TestValidateRequired_ModeWithoutTemplateStaysMissing(t *testing.T) {
	dir := t.TempDir()
	s := newTestStore(t, Options{
		Roots:     []string{dir},
		Modes:     []string{"code", "review"},
		Templates: map[string]string{"code": ruleJSON("code", "tpl")},
	})

	res, err := s.ValidateRequired(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, []string{".clinerules-review"}, res.MissingFiles)
	assert.Equal(t, []string{".clinerules-code"}, res.CreatedFiles)
	assert.Equal(t, []string{".clinerules-code"}, res.ExistingFiles)
}

func TestCreateMissing_NoWritableRoot(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	s := newTestStore(t, Options{Roots: []string{filepath.Join(blocker, "sub")}})
	created, err := s.CreateMissing([]string{".clinerules-code"})
	assert.ErrorIs(t, err, ErrNoWritableDir)
	assert.Empty(t, created)
	assert.Equal(t, "", s.ChosenRoot())

	res, err := s.ValidateRequired(context.Background())
	assert.True(t, errors.Is(err, ErrNoWritableDir))
	assert.False(t, res.Valid)
	assert.Len(t, res.MissingFiles, 5)
}

func TestCreateMissing_SkipsBadNames(t *testing.T) {
	dir := t.TempDir()
	s := newTestStore(t, Options{Roots: []string{dir}})

	created, err := s.CreateMissing([]string{"README.md", ".clinerules-nonexistent", ".clinerules-ask"})
	require.NoError(t, err)
	assert.Equal(t, []string{".clinerules-ask"}, created)
}

func TestWritableRoot_FallsBackAndCaches(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))
	fallback := filepath.Join(t.TempDir(), "nested", "rules")

	s := newTestStore(t, Options{Roots: []string{filepath.Join(blocker, "sub"), fallback}})
	root, err := s.WritableRoot()
	require.NoError(t, err)
	assert.Equal(t, fallback, root)
	assert.Equal(t, fallback, s.ChosenRoot())

	entries, err := os.ReadDir(fallback)
	require.NoError(t, err)
	assert.Empty(t, entries, "probe file should be removed")

	again, err := s.WritableRoot()
	require.NoError(t, err)
	assert.Equal(t, root, again)
}

func TestNew_SkipsEmptyRootsAndMakesAbsolute(t *testing.T) {
	s := New(Options{Roots: []string{"", "relative"}})
	roots := s.Roots()
	require.Len(t, roots, 1)
	assert.True(t, filepath.IsAbs(roots[0]))
}

// --- Watching ---

func TestWatch_ReloadsChangedFile(t *testing.T) {
	dir := t.TempDir()
	path := writeRule(t, dir, "code", ruleJSON("code", "v1"))

	s := newTestStore(t, Options{Roots: []string{dir}})

	var mu sync.Mutex
	var changed []string
	s.Subscribe(ListenerFunc(func(mode string, def *RuleDefinition) {
		mu.Lock()
		defer mu.Unlock()
		changed = append(changed, mode+":"+def.Instructions.General[0])
	}))

	_, err := s.Load(context.Background())
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte(ruleJSON("code", "v2")), 0o644))

	require.Eventually(t, func() bool {
		def, ok := s.Rules("code")
		return ok && def.Instructions.General[0] == "v2"
	}, 3*time.Second, 20*time.Millisecond)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(changed) > 0 && changed[len(changed)-1] == "code:v2"
	}, time.Second, 10*time.Millisecond)
}

func TestWatch_InvalidChangeKeepsPrevious(t *testing.T) {
	dir := t.TempDir()
	path := writeRule(t, dir, "code", ruleJSON("code", "v1"))

	s := newTestStore(t, Options{Roots: []string{dir}})
	_, err := s.Load(context.Background())
	require.NoError(t, err)
	before, _ := s.Rules("code")

	require.NoError(t, os.WriteFile(path, []byte(`{"mode":"debug","instructions":{"general":["x"]}}`), 0o644))
	time.Sleep(200 * time.Millisecond)

	after, ok := s.Rules("code")
	require.True(t, ok)
	assert.Same(t, before, after)

	// The watcher is still alive after a rejected change.
	require.NoError(t, os.WriteFile(path, []byte(ruleJSON("code", "v3")), 0o644))
	require.Eventually(t, func() bool {
		def, _ := s.Rules("code")
		return def.Instructions.General[0] == "v3"
	}, 3*time.Second, 20*time.Millisecond)
}

func TestWatch_RemovedFileKeepsDefinition(t *testing.T) {
	dir := t.TempDir()
	path := writeRule(t, dir, "code", ruleJSON("code", "v1"))

	s := newTestStore(t, Options{Roots: []string{dir}})
	_, err := s.Load(context.Background())
	require.NoError(t, err)

	require.NoError(t, os.Remove(path))
	time.Sleep(100 * time.Millisecond)
	assert.True(t, s.HasMode("code"))
}

func TestWatch_IgnoresUntrackedFiles(t *testing.T) {
	dir := t.TempDir()
	writeRule(t, dir, "code", ruleJSON("code", "v1"))

	s := newTestStore(t, Options{Roots: []string{dir}})
	calls := 0
	var mu sync.Mutex
	s.Subscribe(ListenerFunc(func(string, *RuleDefinition) {
		mu.Lock()
		calls++
		mu.Unlock()
	}))
	_, err := s.Load(context.Background())
	require.NoError(t, err)

	writeRule(t, dir, "ask", ruleJSON("ask", "new"))
	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Zero(t, calls)
	assert.False(t, s.HasMode("ask"))
}

// --- Listeners and lifecycle ---

func TestSubscribe_Unsubscribe(t *testing.T) {
	s := newTestStore(t, Options{})
	var got []string
	unsubscribe := s.Subscribe(ListenerFunc(func(mode string, _ *RuleDefinition) {
		got = append(got, mode)
	}))

	s.notify("code", &RuleDefinition{Mode: "code"})
	unsubscribe()
	s.notify("ask", &RuleDefinition{Mode: "ask"})
	unsubscribe()

	assert.Equal(t, []string{"code"}, got)
}

func TestClose_ClearsState(t *testing.T) {
	dir := t.TempDir()
	writeRule(t, dir, "code", ruleJSON("code", "v1"))

	s := newTestStore(t, Options{Roots: []string{dir}})
	_, err := s.Load(context.Background())
	require.NoError(t, err)

	called := false
	s.Subscribe(ListenerFunc(func(string, *RuleDefinition) { called = true }))

	require.NoError(t, s.Close())
	assert.Empty(t, s.Modes())
	assert.False(t, s.HasMode("code"))

	s.notify("code", &RuleDefinition{})
	assert.False(t, called)

	// Closing twice is harmless.
	require.NoError(t, s.Close())
}
