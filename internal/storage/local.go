package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"
)

// Local stores files on the local filesystem.
type Local struct {
	logger *zap.Logger
}

var _ Provider = (*Local)(nil)

// NewLocal creates a local filesystem provider.
func NewLocal(logger *zap.Logger) *Local {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Local{logger: logger}
}

func (l *Local) Name() string { return "local" }

func (l *Local) Join(elem ...string) string { return filepath.Join(elem...) }

func (l *Local) Exists(ctx context.Context, path string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("checking %s: %w", path, err)
}

func (l *Local) CreateDirectory(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("creating directory %s: %w", path, err)
	}
	l.logger.Debug("created directory", zap.String("path", path))
	return nil
}

func (l *Local) ReadFile(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", path, err)
	}
	return string(data), nil
}

// WriteFile writes content, creating parent directories as needed.
func (l *Local) WriteFile(ctx context.Context, path, content string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating parent of %s: %w", path, err)
	}
	if err := writeAtomic(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	l.logger.Debug("wrote file", zap.String("path", path))
	return nil
}

// writeAtomic writes data to a temp file in the target directory and
// renames it over path, so readers see either the old or the new content.
func writeAtomic(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

func (l *Local) ListFiles(ctx context.Context, path string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", path, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

func (l *Local) FileStats(ctx context.Context, path string) (FileInfo, error) {
	if err := ctx.Err(); err != nil {
		return FileInfo{}, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return FileInfo{}, fmt.Errorf("stat %s: %w", path, err)
	}
	return FileInfo{ModTime: info.ModTime(), Size: info.Size(), IsDir: info.IsDir()}, nil
}

func (l *Local) Status(ctx context.Context, path string) (*Report, error) {
	rep, err := buildReport(ctx, l, path)
	if err != nil {
		return nil, fmt.Errorf("memory bank status: %w", err)
	}
	return rep, nil
}

func (l *Local) CreateBackup(ctx context.Context, src, dst string) error {
	absSrc, err := filepath.Abs(src)
	if err != nil {
		return fmt.Errorf("backing up %s: %w", src, err)
	}
	absDst, err := filepath.Abs(dst)
	if err != nil {
		return fmt.Errorf("backing up %s: %w", src, err)
	}
	if within(absSrc, absDst, string(filepath.Separator)) {
		return fmt.Errorf("backing up %s to %s: %w", src, dst, ErrBackupInsideSource)
	}
	if err := l.copyTree(ctx, src, dst); err != nil {
		return fmt.Errorf("backing up %s: %w", src, err)
	}
	l.logger.Info("created backup", zap.String("source", src), zap.String("backup", dst))
	return nil
}

func (l *Local) copyTree(ctx context.Context, src, dst string) error {
	if err := l.CreateDirectory(ctx, dst); err != nil {
		return err
	}
	entries, err := os.ReadDir(src)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		from, to := filepath.Join(src, e.Name()), filepath.Join(dst, e.Name())
		if e.IsDir() {
			if err := l.copyTree(ctx, from, to); err != nil {
				return err
			}
			continue
		}
		data, err := os.ReadFile(from)
		if err != nil {
			return err
		}
		if err := os.WriteFile(to, data, 0o644); err != nil {
			return err
		}
	}
	return nil
}

// Close is a no-op for the local filesystem.
func (l *Local) Close() error { return nil }
