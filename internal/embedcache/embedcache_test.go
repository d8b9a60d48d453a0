package embedcache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/docchat/internal/model"
)

type countingEmbedder struct {
	calls [][]string
	err   error
}

func (c *countingEmbedder) Embed(ctx context.Context, texts []string, taskType string) ([][]float32, error) {
	c.calls = append(c.calls, append([]string(nil), texts...))
	if c.err != nil {
		return nil, c.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = []float32{float32(len(text)), 1}
	}
	return out, nil
}

func (c *countingEmbedder) ModelName() string { return "test-model" }

type memRepo struct {
	items   map[string][]float32
	getErr  error
	saveErr error
}

func (m *memRepo) Get(ctx context.Context, modelName, taskType, contentHash string) ([]float32, bool, error) {
	if m.getErr != nil {
		return nil, false, m.getErr
	}
	v, ok := m.items[modelName+taskType+contentHash]
	return v, ok, nil
}

func (m *memRepo) Save(ctx context.Context, item *model.EmbeddingCache) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.items[item.ModelName+item.TaskType+item.ContentHash] = item.Embedding
	return nil
}

func TestLRUEmbedderOnlyEmbedsMisses(t *testing.T) {
	next := &countingEmbedder{}
	e := WrapLruCacheToEmbedder(next, 16, time.Minute)

	res, err := e.Embed(context.Background(), []string{"a", "bb"}, "Q")
	require.NoError(t, err)
	require.Equal(t, [][]float32{{1, 1}, {2, 1}}, res)

	res, err = e.Embed(context.Background(), []string{"bb", "ccc", "a"}, "Q")
	require.NoError(t, err)
	require.Equal(t, [][]float32{{2, 1}, {3, 1}, {1, 1}}, res)
	require.Equal(t, [][]string{{"a", "bb"}, {"ccc"}}, next.calls)

	// task type is part of the key
	_, err = e.Embed(context.Background(), []string{"a"}, "D")
	require.NoError(t, err)
	require.Len(t, next.calls, 3)
}

func TestLRUEmbedderDisabled(t *testing.T) {
	next := &countingEmbedder{}
	require.Same(t, next, WrapLruCacheToEmbedder(next, 0, time.Minute))
}

func TestDBEmbedderCachesAndToleratesFailures(t *testing.T) {
	next := &countingEmbedder{}
	repo := &memRepo{items: map[string][]float32{}}
	e := WrapDBCacheToEmbedder(next, repo)

	_, err := e.Embed(context.Background(), []string{"x", "yy"}, "D")
	require.NoError(t, err)
	res, err := e.Embed(context.Background(), []string{"yy", "x"}, "D")
	require.NoError(t, err)
	require.Equal(t, [][]float32{{2, 1}, {1, 1}}, res)
	require.Len(t, next.calls, 1)

	repo.getErr = errors.New("db down")
	repo.saveErr = errors.New("db down")
	res, err = e.Embed(context.Background(), []string{"x"}, "D")
	require.NoError(t, err)
	require.Equal(t, [][]float32{{1, 1}}, res)
	require.Len(t, next.calls, 2)
}

func TestDBEmbedderPropagatesEmbedError(t *testing.T) {
	e := WrapDBCacheToEmbedder(&countingEmbedder{err: errors.New("quota")}, &memRepo{items: map[string][]float32{}})
	_, err := e.Embed(context.Background(), []string{"x"}, "D")
	require.EqualError(t, err, "quota")
}
