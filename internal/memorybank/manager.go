// Package memorybank manages the markdown files of a project's memory bank
// and reports whether one is available.
//
// All file access goes through a storage.Provider, so the same manager
// works against the local filesystem and a remote SFTP host.
package memorybank

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/inderdeep-singh-zomato/memory-bank-mcp/internal/mode"
	"github.com/inderdeep-singh-zomato/memory-bank-mcp/internal/storage"
)

// DirName is the conventional memory bank directory name.
const DirName = "memory-bank"

var (
	// ErrNotConfigured is returned when no memory bank directory is set.
	ErrNotConfigured = errors.New("memory bank directory not set")
	// ErrFileNotFound is returned when a memory bank file does not exist.
	ErrFileNotFound = errors.New("file not found in memory bank")
	// ErrInvalidName is returned for names that escape the memory bank.
	ErrInvalidName = errors.New("invalid memory bank filename")
)

// StatusSink receives the liveness reported by Probe.
type StatusSink interface {
	SetMemoryBankStatus(status mode.Status)
}

// umbSink is a StatusSink that also tracks an UMB session. While one is
// active the status belongs to the session.
type umbSink interface {
	IsUMBActive() bool
}

// Manager owns the location of the memory bank and the files inside it.
type Manager struct {
	store  storage.Provider
	sink   StatusSink
	logger *zap.Logger

	mu         sync.RWMutex
	dir        string
	customPath string
}

// New creates a manager. sink may be nil.
func New(store storage.Provider, sink StatusSink, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{store: store, sink: sink, logger: logger}
}

// Dir returns the active memory bank directory, or "" when none is set.
func (m *Manager) Dir() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dir
}

// CustomPath returns the path last passed to SetCustomPath.
func (m *Manager) CustomPath() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.customPath
}

// SetCustomPath records a preferred location used by Find.
func (m *Manager) SetCustomPath(p string) {
	m.mu.Lock()
	m.customPath = p
	m.mu.Unlock()
}

// Provider returns the storage backend.
func (m *Manager) Provider() storage.Provider {
	return m.store
}

func (m *Manager) requireDir() (string, error) {
	dir := m.Dir()
	if dir == "" {
		return "", ErrNotConfigured
	}
	return dir, nil
}

// --- Discovery ---

// Find looks for an existing memory bank. It checks, in order: the custom
// path itself, a memory-bank directory inside it, startDir/memory-bank,
// and memory-bank directories one level below startDir (hidden
// directories and node_modules are skipped). It returns "" when nothing
// is found.
func (m *Manager) Find(ctx context.Context, startDir, customPath string) (string, error) {
	if customPath != "" {
		full := m.resolve(startDir, customPath)
		if m.isMemoryBank(ctx, full) {
			return full, nil
		}
		if sub := m.store.Join(full, DirName); m.isMemoryBank(ctx, sub) {
			return sub, nil
		}
	}

	if candidate := m.store.Join(startDir, DirName); m.isMemoryBank(ctx, candidate) {
		return candidate, nil
	}

	entries, err := m.store.ListFiles(ctx, startDir)
	if err != nil {
		if errors.Is(err, storage.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("searching %s: %w", startDir, err)
	}
	for _, name := range entries {
		if strings.HasPrefix(name, ".") || name == "node_modules" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}
		candidate := m.store.Join(startDir, name, DirName)
		if m.isMemoryBank(ctx, candidate) {
			return candidate, nil
		}
	}
	return "", nil
}

func (m *Manager) resolve(base, p string) string {
	if filepath.IsAbs(p) || path.IsAbs(p) {
		return p
	}
	return m.store.Join(base, p)
}

// isMemoryBank reports whether dir is a directory holding at least one
// core file.
func (m *Manager) isMemoryBank(ctx context.Context, dir string) bool {
	info, err := m.store.FileStats(ctx, dir)
	if err != nil || !info.IsDir {
		return false
	}
	files, err := m.store.ListFiles(ctx, dir)
	if err != nil {
		return false
	}
	for _, f := range files {
		for _, core := range storage.CoreFiles {
			if f == core {
				return true
			}
		}
	}
	return false
}

// --- Lifecycle ---

// Initialize creates dir if needed, seeds any missing core files and makes
// dir the active memory bank. Existing files are never overwritten.
func (m *Manager) Initialize(ctx context.Context, dir string) error {
	if err := m.store.CreateDirectory(ctx, dir); err != nil {
		return fmt.Errorf("initializing memory bank: %w", err)
	}

	for _, tpl := range CoreTemplates() {
		target := m.store.Join(dir, tpl.Name)
		exists, err := m.store.Exists(ctx, target)
		if err != nil {
			return fmt.Errorf("initializing memory bank: %w", err)
		}
		if exists {
			continue
		}
		if err := m.store.WriteFile(ctx, target, tpl.Content); err != nil {
			return fmt.Errorf("initializing memory bank: %w", err)
		}
	}

	m.mu.Lock()
	m.dir = dir
	m.mu.Unlock()

	m.logger.Info("memory bank initialized", zap.String("dir", dir), zap.String("storage", m.store.Name()))
	m.refresh(ctx)
	return nil
}

// SetDir makes an existing directory the active memory bank.
func (m *Manager) SetDir(ctx context.Context, dir string) error {
	info, err := m.store.FileStats(ctx, dir)
	if err != nil {
		return fmt.Errorf("setting memory bank directory: %w", err)
	}
	if !info.IsDir {
		return fmt.Errorf("setting memory bank directory: %s is not a directory", dir)
	}

	m.mu.Lock()
	m.dir = dir
	m.mu.Unlock()

	m.logger.Info("memory bank directory set", zap.String("dir", dir))
	m.refresh(ctx)
	return nil
}

// refresh probes unless an UMB session owns the status.
func (m *Manager) refresh(ctx context.Context) {
	if u, ok := m.sink.(umbSink); ok && u.IsUMBActive() {
		m.logger.Debug("UMB active, memory bank status left as is")
		return
	}
	m.Probe(ctx)
}

// Probe checks that the active directory is reachable, reports ACTIVE or
// INACTIVE to the sink and returns it.
func (m *Manager) Probe(ctx context.Context) mode.Status {
	status := mode.StatusInactive
	if dir := m.Dir(); dir != "" {
		ok, err := m.store.Exists(ctx, dir)
		if err != nil {
			m.logger.Warn("memory bank probe failed", zap.String("dir", dir), zap.Error(err))
		}
		if ok {
			status = mode.StatusActive
		}
	}

	if m.sink != nil {
		m.sink.SetMemoryBankStatus(status)
	}
	return status
}

// --- Files ---

// cleanName rejects names that would escape the memory bank directory.
func cleanName(name string) (string, error) {
	n := path.Clean(filepath.ToSlash(strings.TrimSpace(name)))
	if n == "." || n == "" || path.IsAbs(n) || n == ".." || strings.HasPrefix(n, "../") {
		return "", fmt.Errorf("%w %q", ErrInvalidName, name)
	}
	return n, nil
}

func (m *Manager) filePath(dir, name string) (string, error) {
	n, err := cleanName(name)
	if err != nil {
		return "", err
	}
	return m.store.Join(append([]string{dir}, strings.Split(n, "/")...)...), nil
}

// ReadFile returns the content of a memory bank file.
func (m *Manager) ReadFile(ctx context.Context, name string) (string, error) {
	dir, err := m.requireDir()
	if err != nil {
		return "", err
	}
	p, err := m.filePath(dir, name)
	if err != nil {
		return "", err
	}

	exists, err := m.store.Exists(ctx, p)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", fmt.Errorf("%w: %s", ErrFileNotFound, name)
	}
	return m.store.ReadFile(ctx, p)
}

// WriteFile writes a memory bank file and records the update in the
// progress log. A failure to record progress is logged, not returned.
func (m *Manager) WriteFile(ctx context.Context, name, content string) error {
	dir, err := m.requireDir()
	if err != nil {
		return err
	}
	p, err := m.filePath(dir, name)
	if err != nil {
		return err
	}
	if err := m.store.WriteFile(ctx, p, content); err != nil {
		return err
	}

	if err := m.TrackProgress(ctx, "File Update", "Updated "+name); err != nil {
		m.logger.Warn("could not record file update", zap.String("file", name), zap.Error(err))
	}
	return nil
}

// ListFiles returns the markdown files in the memory bank.
func (m *Manager) ListFiles(ctx context.Context) ([]string, error) {
	dir, err := m.requireDir()
	if err != nil {
		return nil, err
	}
	names, err := m.store.ListFiles(ctx, dir)
	if err != nil {
		return nil, err
	}
	out := names[:0]
	for _, n := range names {
		if strings.HasSuffix(n, ".md") {
			out = append(out, n)
		}
	}
	return out, nil
}

// Status reports which core files are present and when the memory bank
// last changed.
func (m *Manager) Status(ctx context.Context) (*storage.Report, error) {
	dir, err := m.requireDir()
	if err != nil {
		return nil, err
	}
	return m.store.Status(ctx, dir)
}

// Backup copies the memory bank into a timestamped directory under
// backupDir, or next to the memory bank when backupDir is empty. It
// returns the backup path.
func (m *Manager) Backup(ctx context.Context, backupDir string) (string, error) {
	dir, err := m.requireDir()
	if err != nil {
		return "", err
	}
	if backupDir == "" {
		backupDir = m.store.Join(dir, "..")
	}

	stamp := strings.NewReplacer(":", "-", ".", "-").Replace(timeNow().UTC().Format("2006-01-02T15:04:05.000Z07:00"))
	target := m.store.Join(backupDir, "memory-bank-backup-"+stamp)

	if err := m.store.CreateBackup(ctx, dir, target); err != nil {
		return "", err
	}
	m.logger.Info("memory bank backed up", zap.String("backup", target))
	return target, nil
}
