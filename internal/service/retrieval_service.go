package service

import (
	"context"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docchat/internal/ai"
	"github.com/xxxsen/docchat/internal/model"
	appErr "github.com/xxxsen/docchat/internal/pkg/errors"
	"github.com/xxxsen/docchat/internal/vectorindex"
)

type RetrievalService struct {
	embedder ai.IEmbedder
	index    vectorindex.Index
}

func NewRetrievalService(embedder ai.IEmbedder, index vectorindex.Index) *RetrievalService {
	return &RetrievalService{embedder: embedder, index: index}
}

// Retrieve returns up to k chunks in descending similarity, ranked from 1.
func (s *RetrievalService) Retrieve(ctx context.Context, query string, k int) ([]model.ChunkMatch, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, appErr.Validation("query is required")
	}
	if k <= 0 {
		return nil, appErr.Validation("k must be positive")
	}
	logger := logutil.GetLogger(ctx)
	vectors, err := s.embedder.Embed(ctx, []string{query}, ai.TaskRetrievalQuery)
	if err != nil {
		logger.Error("embed query failed", zap.Error(err))
		return nil, appErr.Wrap(appErr.ErrEmbeddingService, err)
	}
	if len(vectors) != 1 {
		return nil, appErr.Wrap(appErr.ErrEmbeddingService, errCountMismatch(len(vectors), 1))
	}
	matches, err := s.index.Search(ctx, vectors[0], k)
	if err != nil {
		logger.Error("search index failed", zap.String("index", s.index.Type()), zap.Error(err))
		return nil, appErr.Wrap(appErr.ErrIndexQuery, err)
	}
	if len(matches) > k {
		matches = matches[:k]
	}
	for i := range matches {
		matches[i].Rank = i + 1
	}
	if matches == nil {
		matches = []model.ChunkMatch{}
	}
	logger.Debug("retrieved chunks", zap.Int("k", k), zap.Int("matches", len(matches)))
	return matches, nil
}
