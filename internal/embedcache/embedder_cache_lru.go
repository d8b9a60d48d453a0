package embedcache

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docchat/internal/ai"
)

func WrapLruCacheToEmbedder(e ai.IEmbedder, size int, ttl time.Duration) ai.IEmbedder {
	if e == nil || size <= 0 || ttl <= 0 {
		return e
	}
	return &lruEmbedder{
		next:  e,
		cache: expirable.NewLRU[string, []float32](size, nil, ttl),
	}
}

type lruEmbedder struct {
	next  ai.IEmbedder
	cache *expirable.LRU[string, []float32]
}

func (l *lruEmbedder) Embed(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	modelName := l.next.ModelName()
	out := make([][]float32, len(texts))
	keys := make([]string, len(texts))
	var missing []int
	for i, text := range texts {
		keys[i], _, _ = buildCacheKey(modelName, taskType, text)
		if cached, ok := l.cache.Get(keys[i]); ok {
			out[i] = cloneEmbedding(cached)
			continue
		}
		missing = append(missing, i)
	}
	if hits := len(texts) - len(missing); hits > 0 {
		logutil.GetLogger(ctx).Debug("embedding cache hit (lru)", zap.String("task_type", taskType), zap.Int("hits", hits))
	}
	err := fillMisses(out, texts, missing, func(batch []string) ([][]float32, error) {
		res, err := l.next.Embed(ctx, batch, taskType)
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
	for _, idx := range missing {
		l.cache.Add(keys[idx], cloneEmbedding(out[idx]))
	}
	return out, nil
}

func (l *lruEmbedder) ModelName() string {
	return l.next.ModelName()
}
