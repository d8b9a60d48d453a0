package embedcache

import (
	"context"
	"fmt"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docchat/internal/ai"
	"github.com/xxxsen/docchat/internal/model"
)

// CacheRepo is satisfied by repo.EmbeddingCacheRepo.
type CacheRepo interface {
	Get(ctx context.Context, modelName, taskType, contentHash string) ([]float32, bool, error)
	Save(ctx context.Context, item *model.EmbeddingCache) error
}

func WrapDBCacheToEmbedder(e ai.IEmbedder, cacheRepo CacheRepo) ai.IEmbedder {
	if e == nil || cacheRepo == nil {
		return e
	}
	return &dbEmbedder{next: e, repo: cacheRepo}
}

type dbEmbedder struct {
	next ai.IEmbedder
	repo CacheRepo
}

// Embed treats cache read failures as misses and write failures as warnings;
// the cache never fails an embedding call on its own.
func (d *dbEmbedder) Embed(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	logger := logutil.GetLogger(ctx)
	modelName := d.next.ModelName()
	out := make([][]float32, len(texts))
	hashes := make([]string, len(texts))
	var missing []int
	for i, text := range texts {
		var name string
		_, hashes[i], name = buildCacheKey(modelName, taskType, text)
		values, ok, err := d.repo.Get(ctx, name, taskType, hashes[i])
		if err != nil {
			logger.Warn("read embedding cache failed", zap.Error(err))
		}
		if err == nil && ok {
			out[i] = values
			continue
		}
		missing = append(missing, i)
	}
	if hits := len(texts) - len(missing); hits > 0 {
		logger.Debug("embedding cache hit (db)", zap.String("task_type", taskType), zap.Int("hits", hits))
	}
	err := fillMisses(out, texts, missing, func(batch []string) ([][]float32, error) {
		res, err := d.next.Embed(ctx, batch, taskType)
		if err != nil {
			return nil, err
		}
		if len(res) != len(batch) {
			return nil, fmt.Errorf("embedder returned %d vectors for %d inputs", len(res), len(batch))
		}
		return res, nil
	})
	if err != nil {
		return nil, err
	}
	_, _, name := buildCacheKey(modelName, taskType, "")
	now := time.Now().Unix()
	for _, idx := range missing {
		if err := d.repo.Save(ctx, &model.EmbeddingCache{
			ModelName:   name,
			TaskType:    taskType,
			ContentHash: hashes[idx],
			Embedding:   out[idx],
			Ctime:       now,
		}); err != nil {
			logger.Warn("failed to cache embedding", zap.Error(err))
		}
	}
	return out, nil
}

func (d *dbEmbedder) ModelName() string {
	return d.next.ModelName()
}
