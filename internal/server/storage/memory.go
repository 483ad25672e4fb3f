package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps files in memory. It has the same naming rules and
// exclusive-publish semantics as FileSystemStore and is meant for tests.
type MemoryStore struct {
	mu    sync.RWMutex
	files map[string]*memFile
	now   func() time.Time
}

type memFile struct {
	data       []byte
	createdAt  time.Time
	modifiedAt time.Time
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		files: make(map[string]*memFile),
		now:   time.Now,
	}
}

func (m *MemoryStore) EnsureDir() error { return nil }

// Stage buffers data until it is published.
func (m *MemoryStore) Stage(ctx context.Context, data io.Reader) (Pending, error) {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, data); err != nil {
		return nil, fmt.Errorf("failed to write file: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("failed to write file: %w", err)
	}
	return &memPending{store: m, data: buf.Bytes()}, nil
}

type memPending struct {
	store *MemoryStore
	data  []byte
	done  bool
}

func (p *memPending) Size() int64 { return int64(len(p.data)) }

func (p *memPending) Publish(ctx context.Context, name string) (*FileInfo, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	if p.done {
		return nil, fmt.Errorf("staged data already consumed")
	}

	m := p.store
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.files[name]; exists {
		return nil, fmt.Errorf("%w: %s", ErrExists, name)
	}
	now := m.now()
	f := &memFile{data: p.data, createdAt: now, modifiedAt: now}
	m.files[name] = f
	p.done = true

	info := f.info(name)
	return &info, nil
}

func (p *memPending) Discard() error {
	p.data = nil
	return nil
}

func (m *MemoryStore) Names(ctx context.Context) (map[string]struct{}, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make(map[string]struct{}, len(m.files))
	for name := range m.files {
		names[name] = struct{}{}
	}
	return names, nil
}

func (m *MemoryStore) List(ctx context.Context) ([]FileInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	files := make([]FileInfo, 0, len(m.files))
	for name, f := range m.files {
		files = append(files, f.info(name))
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

func (m *MemoryStore) Stat(ctx context.Context, name string) (*FileInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	f, ok := m.files[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	info := f.info(name)
	return &info, nil
}

func (m *MemoryStore) Open(ctx context.Context, name string) (io.ReadSeekCloser, *FileInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	f, ok := m.files[name]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	info := f.info(name)
	return nopCloser{bytes.NewReader(f.data)}, &info, nil
}

func (m *MemoryStore) Delete(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.files[name]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	delete(m.files, name)
	return nil
}

// SweepStaged has nothing to do: staged data never outlives its request.
func (m *MemoryStore) SweepStaged(ctx context.Context, cutoff time.Time) (int, error) {
	return 0, nil
}

func (f *memFile) info(name string) FileInfo {
	return FileInfo{
		Name:       name,
		Size:       int64(len(f.data)),
		CreatedAt:  f.createdAt,
		ModifiedAt: f.modifiedAt,
	}
}

type nopCloser struct {
	*bytes.Reader
}

func (nopCloser) Close() error { return nil }
