package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound    = errors.New("file not found")
	ErrExists      = errors.New("file already exists")
	ErrInvalidName = errors.New("invalid file name")
)

const (
	stagedPrefix = ".upload-"
	stagedSuffix = ".tmp"
	maxNameBytes = 255
)

// FileInfo describes a stored file.
type FileInfo struct {
	Name       string
	Size       int64
	CreatedAt  time.Time
	ModifiedAt time.Time
}

// Pending is an upload whose bytes are on the backend but not yet visible
// under a name.
type Pending interface {
	Size() int64
	// Publish makes the bytes visible under name. It fails with ErrExists
	// instead of replacing an existing file.
	Publish(ctx context.Context, name string) (*FileInfo, error)
	// Discard drops the bytes. It is a no-op after a successful Publish.
	Discard() error
}

// Store defines the interface for file storage backends.
type Store interface {
	EnsureDir() error
	Stage(ctx context.Context, data io.Reader) (Pending, error)
	Names(ctx context.Context) (map[string]struct{}, error)
	List(ctx context.Context) ([]FileInfo, error)
	Stat(ctx context.Context, name string) (*FileInfo, error)
	Open(ctx context.Context, name string) (io.ReadSeekCloser, *FileInfo, error)
	Delete(ctx context.Context, name string) error
	// SweepStaged removes staged data older than cutoff and returns how many
	// entries were removed.
	SweepStaged(ctx context.Context, cutoff time.Time) (int, error)
}

// ValidateName rejects anything that is not a plain, visible file name
// directly inside the store.
func ValidateName(name string) error {
	switch {
	case name == "",
		len(name) > maxNameBytes,
		strings.HasPrefix(name, "."),
		strings.ContainsAny(name, "/\\\x00"),
		strings.Contains(name, ".."):
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// FileSystemStore stores uploaded files flat in one directory. Names that
// start with a dot are reserved for staged uploads and never listed.
type FileSystemStore struct {
	basePath string
}

// NewFileSystemStore creates a new filesystem storage backend.
func NewFileSystemStore(basePath string) *FileSystemStore {
	return &FileSystemStore{basePath: basePath}
}

// EnsureDir creates the storage directory if it doesn't exist.
func (fs *FileSystemStore) EnsureDir() error {
	if err := os.MkdirAll(fs.basePath, 0755); err != nil {
		return fmt.Errorf("failed to create storage directory %s: %w", fs.basePath, err)
	}
	return nil
}

// Stage streams data into a hidden temp file. A read error (including a size
// limit enforced by the reader) removes the temp file and is returned wrapped.
func (fs *FileSystemStore) Stage(ctx context.Context, data io.Reader) (Pending, error) {
	tmpPath := filepath.Join(fs.basePath, stagedPrefix+uuid.NewString()+stagedSuffix)

	file, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create staging file: %w", err)
	}

	n, err := io.Copy(file, data)
	if err == nil {
		err = ctx.Err()
	}
	if err == nil {
		err = file.Sync()
	}
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("failed to write file: %w", err)
	}

	return &stagedFile{store: fs, path: tmpPath, size: n}, nil
}

type stagedFile struct {
	store     *FileSystemStore
	path      string
	size      int64
	published bool
}

func (s *stagedFile) Size() int64 { return s.size }

// Publish hard-links the staged file to its final name. link(2) fails when
// the target exists, which makes this an atomic create-if-absent.
func (s *stagedFile) Publish(ctx context.Context, name string) (*FileInfo, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	finalPath := s.store.filePath(name)
	if err := os.Link(s.path, finalPath); err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("%w: %s", ErrExists, name)
		}
		return nil, fmt.Errorf("failed to publish file %s: %w", name, err)
	}
	s.published = true
	os.Remove(s.path)

	return s.store.Stat(ctx, name)
}

func (s *stagedFile) Discard() error {
	if s.published {
		return nil
	}
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to discard staged file: %w", err)
	}
	return nil
}

// Names returns the set of visible file names.
func (fs *FileSystemStore) Names(ctx context.Context) (map[string]struct{}, error) {
	entries, err := fs.readDir()
	if err != nil {
		return nil, err
	}
	names := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		names[entry.Name()] = struct{}{}
	}
	return names, nil
}

// List returns metadata for every visible file, sorted by name.
func (fs *FileSystemStore) List(ctx context.Context) ([]FileInfo, error) {
	entries, err := fs.readDir()
	if err != nil {
		return nil, err
	}

	files := make([]FileInfo, 0, len(entries))
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		info, err := entry.Info()
		if err != nil {
			// Removed between ReadDir and Info.
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("failed to stat file %s: %w", entry.Name(), err)
		}
		files = append(files, fs.fileInfo(entry.Name(), info))
	}
	return files, nil
}

// Stat returns metadata for one file.
func (fs *FileSystemStore) Stat(ctx context.Context, name string) (*FileInfo, error) {
	if err := ValidateName(name); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	info, err := os.Stat(fs.filePath(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	fi := fs.fileInfo(name, info)
	return &fi, nil
}

// Open opens a file for reading. The caller closes it.
func (fs *FileSystemStore) Open(ctx context.Context, name string) (io.ReadSeekCloser, *FileInfo, error) {
	info, err := fs.Stat(ctx, name)
	if err != nil {
		return nil, nil, err
	}

	file, err := os.Open(fs.filePath(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, nil, fmt.Errorf("failed to open file %s: %w", name, err)
	}
	return file, info, nil
}

// Delete removes a stored file.
func (fs *FileSystemStore) Delete(ctx context.Context, name string) error {
	if _, err := fs.Stat(ctx, name); err != nil {
		return err
	}
	if err := os.Remove(fs.filePath(name)); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return fmt.Errorf("failed to delete file %s: %w", name, err)
	}
	return nil
}

// SweepStaged removes staged files last written before cutoff.
func (fs *FileSystemStore) SweepStaged(ctx context.Context, cutoff time.Time) (int, error) {
	entries, err := os.ReadDir(fs.basePath)
	if err != nil {
		return 0, fmt.Errorf("failed to read storage directory: %w", err)
	}

	var removed int
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, stagedPrefix) || !strings.HasSuffix(name, stagedSuffix) {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(fs.basePath, name)); err != nil && !os.IsNotExist(err) {
			return removed, fmt.Errorf("failed to remove staged file %s: %w", name, err)
		}
		removed++
	}
	return removed, nil
}

// readDir lists visible regular files.
func (fs *FileSystemStore) readDir() ([]os.DirEntry, error) {
	entries, err := os.ReadDir(fs.basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read storage directory: %w", err)
	}

	visible := entries[:0]
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") || !entry.Type().IsRegular() {
			continue
		}
		visible = append(visible, entry)
	}
	return visible, nil
}

func (fs *FileSystemStore) fileInfo(name string, info os.FileInfo) FileInfo {
	return FileInfo{
		Name:       name,
		Size:       info.Size(),
		CreatedAt:  birthTime(fs.filePath(name), info),
		ModifiedAt: info.ModTime(),
	}
}

func (fs *FileSystemStore) filePath(name string) string {
	return filepath.Join(fs.basePath, name)
}
