// Package storage provides the file backends a memory bank lives on.
//
// Two providers implement the same contract: Local for the machine the
// server runs on and SFTP for a remote host. Paths are provider paths;
// use Provider.Join to build them.
package storage

import (
	"context"
	"errors"
	"io/fs"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// ErrNotExist matches errors for missing paths from every provider.
var ErrNotExist = fs.ErrNotExist

// ErrBackupInsideSource is returned when a backup target lies inside the
// tree being copied.
var ErrBackupInsideSource = errors.New("backup directory is inside the source directory")

// within reports whether the cleaned path dst equals src or lies below it.
func within(src, dst, sep string) bool {
	if dst == src {
		return true
	}
	if !strings.HasSuffix(src, sep) {
		src += sep
	}
	return strings.HasPrefix(dst, src)
}

// CoreFiles are the files a complete memory bank contains.
var CoreFiles = []string{
	"product-context.md",
	"active-context.md",
	"progress.md",
	"decision-log.md",
	"system-patterns.md",
}

// statConcurrency bounds parallel stat calls while building a Report.
const statConcurrency = 4

// FileInfo is the subset of file metadata the memory bank needs.
type FileInfo struct {
	ModTime time.Time
	Size    int64
	IsDir   bool
}

// Report describes the contents of a memory bank directory.
type Report struct {
	Path             string     `json:"path"`
	Files            []string   `json:"files"`
	CoreFilesPresent []string   `json:"core_files_present"`
	MissingCoreFiles []string   `json:"missing_core_files"`
	IsComplete       bool       `json:"is_complete"`
	Language         string     `json:"language"`
	LastUpdated      *time.Time `json:"last_updated,omitempty"`
}

// Provider is a file backend.
type Provider interface {
	// Name identifies the backend in logs and status output.
	Name() string
	// Join joins path elements with the provider's separator.
	Join(elem ...string) string

	Exists(ctx context.Context, path string) (bool, error)
	CreateDirectory(ctx context.Context, path string) error
	ReadFile(ctx context.Context, path string) (string, error)
	WriteFile(ctx context.Context, path, content string) error
	// ListFiles returns the sorted names of the entries in a directory.
	ListFiles(ctx context.Context, path string) ([]string, error)
	FileStats(ctx context.Context, path string) (FileInfo, error)
	Status(ctx context.Context, path string) (*Report, error)
	// CreateBackup copies the tree at src into dst, creating dst. A dst
	// inside src fails with ErrBackupInsideSource.
	CreateBackup(ctx context.Context, src, dst string) error

	Close() error
}

// buildReport lists dir and stats its entries concurrently to find the
// most recent modification time.
func buildReport(ctx context.Context, p Provider, dir string) (*Report, error) {
	files, err := p.ListFiles(ctx, dir)
	if err != nil {
		return nil, err
	}

	rep := &Report{
		Path:     dir,
		Files:    files,
		Language: "en",
	}
	for _, core := range CoreFiles {
		if slices.Contains(files, core) {
			rep.CoreFilesPresent = append(rep.CoreFilesPresent, core)
		} else {
			rep.MissingCoreFiles = append(rep.MissingCoreFiles, core)
		}
	}
	rep.IsComplete = len(rep.MissingCoreFiles) == 0

	if len(files) == 0 {
		return rep, nil
	}

	var (
		mu     sync.Mutex
		latest time.Time
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(statConcurrency)
	for _, name := range files {
		g.Go(func() error {
			info, err := p.FileStats(gctx, p.Join(dir, name))
			if err != nil {
				return err
			}
			mu.Lock()
			if info.ModTime.After(latest) {
				latest = info.ModTime
			}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	rep.LastUpdated = &latest
	return rep, nil
}
