package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func seedBank(t *testing.T, p Provider, dir string, files ...string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, p.CreateDirectory(ctx, dir))
	for _, f := range files {
		require.NoError(t, p.WriteFile(ctx, p.Join(dir, f), "# "+f+"\n"))
	}
}

// --- Basic operations ---

func TestLocal_ReadWriteExists(t *testing.T) {
	ctx := context.Background()
	l := NewLocal(zaptest.NewLogger(t))
	path := filepath.Join(t.TempDir(), "nested", "note.md")

	ok, err := l.Exists(ctx, path)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, l.WriteFile(ctx, path, "hello"))
	ok, err = l.Exists(ctx, path)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := l.ReadFile(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, "hello", got)
}

func TestLocal_WriteFileReplacesWithoutLeftovers(t *testing.T) {
	ctx := context.Background()
	l := NewLocal(zaptest.NewLogger(t))
	dir := t.TempDir()
	p := filepath.Join(dir, "progress.md")

	require.NoError(t, l.WriteFile(ctx, p, "first"))
	require.NoError(t, l.WriteFile(ctx, p, "second"))

	got, err := l.ReadFile(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, "second", got)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "no temp files left behind")
	info, err := entries[0].Info()
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())
}

func TestLocal_ReadMissing(t *testing.T) {
	l := NewLocal(nil)
	_, err := l.ReadFile(context.Background(), filepath.Join(t.TempDir(), "nope.md"))
	assert.ErrorIs(t, err, ErrNotExist)
}

func TestLocal_ListFilesSorted(t *testing.T) {
	l := NewLocal(nil)
	dir := t.TempDir()
	seedBank(t, l, dir, "b.md", "a.md")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))

	names, err := l.ListFiles(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.md", "b.md", "sub"}, names)
}

func TestLocal_FileStats(t *testing.T) {
	l := NewLocal(nil)
	dir := t.TempDir()
	path := filepath.Join(dir, "x.md")
	require.NoError(t, os.WriteFile(path, []byte("12345"), 0o644))
	mtime := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, os.Chtimes(path, mtime, mtime))

	info, err := l.FileStats(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, int64(5), info.Size)
	assert.False(t, info.IsDir)
	assert.True(t, info.ModTime.Equal(mtime))
}

func TestLocal_CancelledContext(t *testing.T) {
	l := NewLocal(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := l.ReadFile(ctx, "whatever")
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, l.WriteFile(ctx, "whatever", ""), context.Canceled)
}

// --- Status ---

func TestLocal_StatusComplete(t *testing.T) {
	l := NewLocal(nil)
	dir := t.TempDir()
	seedBank(t, l, dir, CoreFiles...)

	newest := time.Date(2026, 5, 4, 3, 2, 1, 0, time.UTC)
	require.NoError(t, os.Chtimes(filepath.Join(dir, "progress.md"), newest, newest))
	older := newest.Add(-time.Hour)
	for _, f := range CoreFiles {
		if f != "progress.md" {
			require.NoError(t, os.Chtimes(filepath.Join(dir, f), older, older))
		}
	}

	rep, err := l.Status(context.Background(), dir)
	require.NoError(t, err)
	assert.True(t, rep.IsComplete)
	assert.Empty(t, rep.MissingCoreFiles)
	assert.ElementsMatch(t, CoreFiles, rep.CoreFilesPresent)
	assert.Equal(t, "en", rep.Language)
	require.NotNil(t, rep.LastUpdated)
	assert.True(t, rep.LastUpdated.Equal(newest))
}

func TestLocal_StatusPartialAndEmpty(t *testing.T) {
	l := NewLocal(nil)
	dir := t.TempDir()

	rep, err := l.Status(context.Background(), dir)
	require.NoError(t, err)
	assert.False(t, rep.IsComplete)
	assert.Nil(t, rep.LastUpdated)
	assert.Len(t, rep.MissingCoreFiles, len(CoreFiles))

	seedBank(t, l, dir, "progress.md", "notes.md")
	rep, err = l.Status(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"progress.md"}, rep.CoreFilesPresent)
	assert.Len(t, rep.MissingCoreFiles, len(CoreFiles)-1)
	assert.Equal(t, []string{"notes.md", "progress.md"}, rep.Files)
}

func TestLocal_StatusMissingDir(t *testing.T) {
	l := NewLocal(nil)
	_, err := l.Status(context.Background(), filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, ErrNotExist)
}

// --- Backup ---

func TestLocal_CreateBackupCopiesTree(t *testing.T) {
	ctx := context.Background()
	l := NewLocal(nil)
	src := t.TempDir()
	seedBank(t, l, src, "progress.md")
	require.NoError(t, l.WriteFile(ctx, filepath.Join(src, "archive", "old.md"), "old"))

	dst := filepath.Join(t.TempDir(), "backup")
	require.NoError(t, l.CreateBackup(ctx, src, dst))

	got, err := l.ReadFile(ctx, filepath.Join(dst, "archive", "old.md"))
	require.NoError(t, err)
	assert.Equal(t, "old", got)
	got, err = l.ReadFile(ctx, filepath.Join(dst, "progress.md"))
	require.NoError(t, err)
	assert.Equal(t, "# progress.md\n", got)
}

func TestLocal_CreateBackupRejectsTargetInsideSource(t *testing.T) {
	ctx := context.Background()
	l := NewLocal(nil)
	src := t.TempDir()
	seedBank(t, l, src, "progress.md")

	for _, dst := range []string{src, filepath.Join(src, "backup"), filepath.Join(src, "a", "b")} {
		err := l.CreateBackup(ctx, src, dst)
		assert.ErrorIs(t, err, ErrBackupInsideSource, dst)
	}

	names, err := l.ListFiles(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, []string{"progress.md"}, names, "nothing written into the source")

	sibling := src + "-backup"
	t.Cleanup(func() { _ = os.RemoveAll(sibling) })
	assert.NoError(t, l.CreateBackup(ctx, src, sibling), "a sibling sharing the prefix is outside")
}

func TestWithin(t *testing.T) {
	tests := []struct {
		src, dst string
		want     bool
	}{
		{"/a/bank", "/a/bank", true},
		{"/a/bank", "/a/bank/x", true},
		{"/a/bank", "/a/bank-backup", false},
		{"/a/bank", "/a", false},
		{"/", "/anything", true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, within(tt.src, tt.dst, "/"), "%s in %s", tt.dst, tt.src)
	}
}
