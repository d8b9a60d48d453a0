package vectorindex

import (
	"context"
	"fmt"

	"github.com/xxxsen/docchat/internal/model"
	"github.com/xxxsen/docchat/internal/pkg/timeutil"
	"github.com/xxxsen/docchat/internal/repo"
)

// pgvectorIndex stores chunks in the document_chunks table of the main
// database.
type pgvectorIndex struct {
	chunks *repo.ChunkRepo
}

func init() {
	Register("pgvector", func(args interface{}, deps Deps) (Index, error) {
		if deps.DB == nil {
			return nil, fmt.Errorf("pgvector index requires a database")
		}
		return &pgvectorIndex{chunks: repo.NewChunkRepo(deps.DB)}, nil
	})
}

func (p *pgvectorIndex) Type() string {
	return "pgvector"
}

func (p *pgvectorIndex) Clear(ctx context.Context) error {
	return p.chunks.DeleteAll(ctx)
}

func (p *pgvectorIndex) UpsertAll(ctx context.Context, chunks []model.Chunk) error {
	return p.chunks.ReplaceAll(ctx, chunks, timeutil.NowUnixMilli())
}

func (p *pgvectorIndex) Search(ctx context.Context, vector []float32, k int) ([]model.ChunkMatch, error) {
	return p.chunks.Search(ctx, vector, k)
}

func (p *pgvectorIndex) Close() error {
	return nil
}
