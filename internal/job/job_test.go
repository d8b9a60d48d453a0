package job

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xxxsen/docchat/internal/filestore"
	"github.com/xxxsen/docchat/internal/model"
	appErr "github.com/xxxsen/docchat/internal/pkg/errors"
	"github.com/xxxsen/docchat/internal/queue"
)

type fakeCleaner struct {
	cutoff int64
	err    error
}

func (f *fakeCleaner) DeleteBefore(ctx context.Context, cutoff int64) (int64, error) {
	f.cutoff = cutoff
	return 3, f.err
}

func TestEmbeddingCacheCleanup(t *testing.T) {
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	cleaner := &fakeCleaner{}
	j := NewEmbeddingCacheCleanupJob(cleaner, 0)
	j.now = func() time.Time { return now }
	require.NoError(t, j.Run(context.Background()))
	assert.Equal(t, now.Add(-30*24*time.Hour).Unix(), cleaner.cutoff)

	cleaner.err = errors.New("db down")
	assert.Error(t, j.Run(context.Background()))
	assert.NoError(t, NewEmbeddingCacheCleanupJob(nil, 1).Run(context.Background()))
}

type fakeStale struct {
	olderThan time.Duration
}

func (f *fakeStale) FailStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	f.olderThan = olderThan
	return 1, nil
}

func TestStaleJobReaperDefaultsThreshold(t *testing.T) {
	q := &fakeStale{}
	j := NewStaleJobReaper(q, 0)
	assert.Equal(t, "stale_job_reaper", j.Name())
	require.NoError(t, j.Run(context.Background()))
	assert.Equal(t, 30*time.Minute, q.olderThan)
}

func TestJobRetentionPurgesJobsAndFiles(t *testing.T) {
	ctx := context.Background()
	q := queue.NewMemory()
	files := filestore.NewLocal(t.TempDir())

	require.NoError(t, files.Save(ctx, "done.txt", strings.NewReader("x"), 1))
	require.NoError(t, files.Save(ctx, "waiting.txt", strings.NewReader("y"), 1))
	done, err := q.Enqueue(ctx, model.JobPayload{Filename: "done.txt", StoragePath: "done.txt"})
	require.NoError(t, err)
	claimed, err := q.Claim(ctx)
	require.NoError(t, err)
	require.Equal(t, done, claimed.ID)
	require.NoError(t, q.Complete(ctx, done))
	waiting, err := q.Enqueue(ctx, model.JobPayload{Filename: "waiting.txt", StoragePath: "waiting.txt"})
	require.NoError(t, err)

	j := NewJobRetentionJob(q, files, time.Hour)
	j.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	require.NoError(t, j.Run(ctx))

	_, err = q.Get(ctx, done)
	assert.True(t, errors.Is(err, appErr.ErrJobNotFound))
	_, err = files.Open(ctx, "done.txt")
	assert.True(t, appErr.IsNotFound(err))

	got, err := q.Get(ctx, waiting)
	require.NoError(t, err)
	assert.Equal(t, model.JobStateQueued, got.State)
	rc, err := files.Open(ctx, "waiting.txt")
	require.NoError(t, err)
	rc.Close()
}
