package vectorindex

import (
	"context"
	"sync"

	"github.com/xxxsen/docchat/internal/model"
)

type memoryIndex struct {
	mu     sync.RWMutex
	chunks []model.Chunk
}

func init() {
	Register("memory", func(args interface{}, deps Deps) (Index, error) {
		return NewMemory(), nil
	})
}

func NewMemory() Index {
	return &memoryIndex{}
}

func (m *memoryIndex) Type() string {
	return "memory"
}

func (m *memoryIndex) Clear(ctx context.Context) error {
	m.mu.Lock()
	m.chunks = nil
	m.mu.Unlock()
	return nil
}

func (m *memoryIndex) UpsertAll(ctx context.Context, chunks []model.Chunk) error {
	cp := make([]model.Chunk, len(chunks))
	copy(cp, chunks)
	m.mu.Lock()
	m.chunks = cp
	m.mu.Unlock()
	return nil
}

func (m *memoryIndex) Search(ctx context.Context, vector []float32, k int) ([]model.ChunkMatch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return bruteForceTopK(m.chunks, vector, k)
}

func (m *memoryIndex) Close() error {
	return nil
}
