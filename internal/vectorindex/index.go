package vectorindex

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/xxxsen/docchat/internal/config"
	"github.com/xxxsen/docchat/internal/model"
)

// Index is the single shared chunk collection. Ingestion calls Clear and
// then UpsertAll; readers may observe the empty gap in between.
type Index interface {
	Type() string
	Clear(ctx context.Context) error
	// UpsertAll writes chunks as the complete index content in one
	// operation. When two writers race, the one finishing last wins.
	UpsertAll(ctx context.Context, chunks []model.Chunk) error
	// Search returns at most k matches in descending similarity. An empty
	// index yields an empty slice.
	Search(ctx context.Context, vector []float32, k int) ([]model.ChunkMatch, error)
	Close() error
}

// Deps carries shared resources some backends need.
type Deps struct {
	DB *sql.DB
}

type Factory func(args interface{}, deps Deps) (Index, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

func Register(name string, factory Factory) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" || factory == nil {
		return
	}
	registryMu.Lock()
	registry[key] = factory
	registryMu.Unlock()
}

func New(cfg config.VectorIndexConfig, deps Deps) (Index, error) {
	key := strings.ToLower(strings.TrimSpace(cfg.Type))
	if key == "" {
		return nil, fmt.Errorf("vector_index.type is required")
	}
	registryMu.RLock()
	factory := registry[key]
	registryMu.RUnlock()
	if factory == nil {
		return nil, fmt.Errorf("unsupported vector index type: %s", cfg.Type)
	}
	return factory(cfg.Data, deps)
}

func decodeConfig(args interface{}, dst interface{}) error {
	if args == nil {
		return nil
	}
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode index config: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode index config: %w", err)
	}
	return nil
}

// ErrDimensionMismatch means the query vector was produced by a different
// embedding model than the indexed chunks.
var ErrDimensionMismatch = errors.New("query vector dimension does not match index")

func cosineSimilarity(a, b []float32) float32 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

// bruteForceTopK scores every chunk and keeps the k best. Ties keep
// insertion order. Every chunk must have the query's dimension.
func bruteForceTopK(chunks []model.Chunk, vector []float32, k int) ([]model.ChunkMatch, error) {
	type scored struct {
		idx   int
		score float32
	}
	all := make([]scored, 0, len(chunks))
	for i, c := range chunks {
		if len(c.Embedding) != len(vector) {
			return nil, fmt.Errorf("%w: query %d, chunk %d", ErrDimensionMismatch, len(vector), len(c.Embedding))
		}
		all = append(all, scored{idx: i, score: cosineSimilarity(vector, c.Embedding)})
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].score > all[j].score
	})
	if k > len(all) {
		k = len(all)
	}
	out := make([]model.ChunkMatch, 0, k)
	for _, s := range all[:k] {
		out = append(out, toMatch(chunks[s.idx], s.score))
	}
	return out, nil
}

func toMatch(c model.Chunk, score float32) model.ChunkMatch {
	m := model.ChunkMatch{Text: c.Text, Source: c.Source, Score: score}
	if c.Page > 0 {
		p := c.Page
		m.Page = &p
	}
	return m
}
