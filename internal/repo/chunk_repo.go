package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"
	"github.com/pgvector/pgvector-go"

	"github.com/xxxsen/docchat/internal/model"
	"github.com/xxxsen/docchat/internal/pkg/dbutil"
)

const chunkInsertBatch = 500

// chunkReplaceLockKey serialises replacements so the last one to commit owns
// the table.
const chunkReplaceLockKey = 7_304_221

type ChunkRepo struct {
	db *sql.DB
}

func NewChunkRepo(db *sql.DB) *ChunkRepo {
	return &ChunkRepo{db: db}
}

func (r *ChunkRepo) DeleteAll(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM document_chunks`)
	return err
}

// ReplaceAll swaps the table content for chunks in one transaction. A failed
// write leaves the previous content in place.
func (r *ChunkRepo) ReplaceAll(ctx context.Context, chunks []model.Chunk, now int64) error {
	return dbutil.RunInTx(ctx, r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, chunkReplaceLockKey); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM document_chunks`); err != nil {
			return err
		}
		for start := 0; start < len(chunks); start += chunkInsertBatch {
			end := start + chunkInsertBatch
			if end > len(chunks) {
				end = len(chunks)
			}
			rows := make([]map[string]interface{}, 0, end-start)
			for _, c := range chunks[start:end] {
				rows = append(rows, map[string]interface{}{
					"source":    c.Source,
					"page":      c.Page,
					"position":  c.Position,
					"content":   c.Text,
					"embedding": pgvector.NewVector(c.Embedding),
					"ctime":     now,
				})
			}
			sqlStr, args, err := builder.BuildInsert("document_chunks", rows)
			if err != nil {
				return err
			}
			sqlStr, args = dbutil.Finalize(sqlStr, args)
			if _, err := tx.ExecContext(ctx, sqlStr, args...); err != nil {
				return err
			}
		}
		return nil
	})
}

// Search orders by cosine distance; score is reported as cosine similarity.
func (r *ChunkRepo) Search(ctx context.Context, vector []float32, k int) ([]model.ChunkMatch, error) {
	const query = `
		SELECT content, source, page, 1 - (embedding <=> $1) AS score
		FROM document_chunks
		ORDER BY embedding <=> $1, id
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, pgvector.NewVector(vector), k)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	matches := make([]model.ChunkMatch, 0, k)
	for rows.Next() {
		var m model.ChunkMatch
		var page int
		var score float64
		if err := rows.Scan(&m.Text, &m.Source, &page, &score); err != nil {
			return nil, err
		}
		if page > 0 {
			p := page
			m.Page = &p
		}
		m.Score = float32(score)
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

func (r *ChunkRepo) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM document_chunks`).Scan(&n)
	return n, err
}
