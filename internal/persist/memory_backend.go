package persist

import (
	"bytes"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryRevision struct {
	Revision
	data []byte
}

// MemoryBackend implements an in-memory snapshot backend.
type MemoryBackend struct {
	mu        sync.RWMutex
	revisions map[string][]memoryRevision // oldest first
	retain    int
}

// NewMemoryBackend creates a new in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		revisions: make(map[string][]memoryRevision),
	}
}

// SetRetention limits how many revisions are kept per snapshot name.
func (b *MemoryBackend) SetRetention(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.retain = n
}

// Write stores a copy of data.
func (b *MemoryBackend) Write(name string, data []byte) error {
	if err := validateName(name); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.revisions[name] = append(b.revisions[name], memoryRevision{
		Revision: Revision{
			ID:        uuid.New().String(),
			Name:      name,
			Size:      len(data),
			CreatedAt: time.Now().UTC(),
		},
		data: bytes.Clone(data),
	})
	if revs := b.revisions[name]; b.retain > 0 && len(revs) > b.retain {
		b.revisions[name] = append([]memoryRevision(nil), revs[len(revs)-b.retain:]...)
	}
	return nil
}

// Read returns a copy of the newest revision.
func (b *MemoryBackend) Read(name string) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	revs := b.revisions[name]
	if len(revs) == 0 {
		return nil, notFound(name)
	}
	return bytes.Clone(revs[len(revs)-1].data), nil
}

// History lists revisions newest first.
func (b *MemoryBackend) History(name string, limit int) ([]Revision, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	revs := b.revisions[name]
	out := make([]Revision, 0, len(revs))
	for i := len(revs) - 1; i >= 0; i-- {
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, revs[i].Revision)
	}
	return out, nil
}

// Delete removes every revision of name.
func (b *MemoryBackend) Delete(name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.revisions, name)
	return nil
}

// Close is a no-op for memory.
func (b *MemoryBackend) Close() error {
	return nil
}
