package ai

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

type batchEmbedder struct {
	next      IEmbedder
	batchSize int
	limiter   *rate.Limiter
}

// NewBatchEmbedder splits large inputs into batches of at most batchSize
// texts and waits on limiter before every upstream call. A nil limiter
// means no rate limit.
func NewBatchEmbedder(next IEmbedder, batchSize int, limiter *rate.Limiter) IEmbedder {
	if next == nil {
		return nil
	}
	if batchSize <= 0 {
		batchSize = 32
	}
	return &batchEmbedder{next: next, batchSize: batchSize, limiter: limiter}
}

func (b *batchEmbedder) Embed(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += b.batchSize {
		end := start + b.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		if b.limiter != nil {
			if err := b.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}
		res, err := b.next.Embed(ctx, texts[start:end], taskType)
		if err != nil {
			return nil, err
		}
		if len(res) != end-start {
			return nil, fmt.Errorf("embedder returned %d vectors for %d inputs", len(res), end-start)
		}
		out = append(out, res...)
	}
	return out, nil
}

func (b *batchEmbedder) ModelName() string {
	return b.next.ModelName()
}
