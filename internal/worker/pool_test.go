package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xxxsen/docchat/internal/model"
	"github.com/xxxsen/docchat/internal/queue"
)

func enqueue(t *testing.T, q queue.Queue, name string) string {
	t.Helper()
	id, err := q.Enqueue(context.Background(), model.JobPayload{Filename: name, StoragePath: name})
	require.NoError(t, err)
	return id
}

func stateOf(t *testing.T, q queue.Queue, id string) model.JobState {
	t.Helper()
	job, err := q.Get(context.Background(), id)
	require.NoError(t, err)
	return job.State
}

func TestRunOnceOutcomes(t *testing.T) {
	q := queue.NewMemory()
	ok := enqueue(t, q, "ok.txt")
	bad := enqueue(t, q, "bad.txt")
	boom := enqueue(t, q, "boom.txt")

	p := NewPool(q, ProcessorFunc(func(ctx context.Context, job *model.Job) error {
		switch job.Payload.Filename {
		case "bad.txt":
			return errors.New("corrupt document")
		case "boom.txt":
			panic("nil map")
		}
		return nil
	}), Config{})

	for i := 0; i < 3; i++ {
		handled, err := p.RunOnce(context.Background())
		require.NoError(t, err)
		assert.True(t, handled)
	}
	handled, err := p.RunOnce(context.Background())
	require.NoError(t, err)
	assert.False(t, handled)

	assert.Equal(t, model.JobStateCompleted, stateOf(t, q, ok))
	assert.Equal(t, model.JobStateFailed, stateOf(t, q, bad))
	assert.Equal(t, model.JobStateFailed, stateOf(t, q, boom))
}

func TestJobTimeout(t *testing.T) {
	q := queue.NewMemory()
	id := enqueue(t, q, "slow.txt")
	p := NewPool(q, ProcessorFunc(func(ctx context.Context, job *model.Job) error {
		<-ctx.Done()
		return ctx.Err()
	}), Config{JobTimeout: 20 * time.Millisecond})
	_, err := p.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.JobStateFailed, stateOf(t, q, id))
}

func TestPoolDrainsQueue(t *testing.T) {
	q := queue.NewMemory()
	var processed atomic.Int32
	var mu sync.Mutex
	seen := map[string]int{}
	p := NewPool(q, ProcessorFunc(func(ctx context.Context, job *model.Job) error {
		mu.Lock()
		seen[job.ID]++
		mu.Unlock()
		processed.Add(1)
		return nil
	}), Config{Concurrency: 4, PollInterval: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)
	ids := make([]string, 0, 20)
	for i := 0; i < 20; i++ {
		ids = append(ids, enqueue(t, q, "doc.txt"))
	}
	require.Eventually(t, func() bool { return processed.Load() == 20 }, 5*time.Second, 10*time.Millisecond)
	p.Stop()

	for _, id := range ids {
		assert.Equal(t, model.JobStateCompleted, stateOf(t, q, id))
		assert.Equal(t, 1, seen[id])
	}
}

func TestStopWaitsForInflightJob(t *testing.T) {
	q := queue.NewMemory()
	id := enqueue(t, q, "doc.txt")
	started := make(chan struct{})
	release := make(chan struct{})
	p := NewPool(q, ProcessorFunc(func(ctx context.Context, job *model.Job) error {
		close(started)
		<-release
		return nil
	}), Config{PollInterval: 10 * time.Millisecond})
	p.Start(context.Background())
	<-started

	stopped := make(chan struct{})
	go func() {
		p.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
		t.Fatal("stop returned before the job finished")
	case <-time.After(50 * time.Millisecond):
	}
	close(release)
	<-stopped
	assert.Equal(t, model.JobStateCompleted, stateOf(t, q, id))
	p.Stop()
}
