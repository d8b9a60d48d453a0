package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/xxxsen/docchat/internal/model"
	appErr "github.com/xxxsen/docchat/internal/pkg/errors"
	"github.com/xxxsen/docchat/internal/pkg/timeutil"
)

type MemoryQueue struct {
	mu      sync.Mutex
	jobs    map[string]*model.Job
	pending []string
	wake    chan struct{}
	now     func() int64
}

func NewMemory() *MemoryQueue {
	return &MemoryQueue{
		jobs: make(map[string]*model.Job),
		wake: make(chan struct{}, 1),
		now:  timeutil.NowUnixMilli,
	}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, payload model.JobPayload) (string, error) {
	job := &model.Job{
		ID:      uuid.NewString(),
		Payload: payload,
		State:   model.JobStateQueued,
		Ctime:   q.now(),
	}
	q.mu.Lock()
	q.jobs[job.ID] = job
	q.pending = append(q.pending, job.ID)
	q.mu.Unlock()
	signal(q.wake)
	return job.ID, nil
}

func (q *MemoryQueue) Claim(ctx context.Context) (*model.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.pending) > 0 {
		id := q.pending[0]
		q.pending = q.pending[1:]
		job, ok := q.jobs[id]
		if !ok || job.State != model.JobStateQueued {
			continue
		}
		if err := job.Transition(model.JobStateActive, q.now()); err != nil {
			return nil, err
		}
		cp := *job
		return &cp, nil
	}
	return nil, nil
}

func (q *MemoryQueue) Complete(ctx context.Context, jobID string) error {
	return q.finish(jobID, model.JobStateCompleted, "")
}

func (q *MemoryQueue) Fail(ctx context.Context, jobID string, reason string) error {
	return q.finish(jobID, model.JobStateFailed, reason)
}

func (q *MemoryQueue) finish(jobID string, to model.JobState, reason string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[jobID]
	if !ok {
		return appErr.ErrJobNotFound
	}
	if err := job.Transition(to, q.now()); err != nil {
		return err
	}
	job.Error = reason
	return nil
}

func (q *MemoryQueue) Get(ctx context.Context, jobID string) (*model.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	job, ok := q.jobs[jobID]
	if !ok {
		return nil, appErr.ErrJobNotFound
	}
	cp := *job
	return &cp, nil
}

func (q *MemoryQueue) FailStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	now := q.now()
	cutoff := now - olderThan.Milliseconds()
	q.mu.Lock()
	defer q.mu.Unlock()
	var n int64
	for _, job := range q.jobs {
		if job.State != model.JobStateActive || job.ClaimedAt >= cutoff {
			continue
		}
		if err := job.Transition(model.JobStateFailed, now); err != nil {
			return n, fmt.Errorf("fail stale job %s: %w", job.ID, err)
		}
		job.Error = staleReason
		n++
	}
	return n, nil
}

func (q *MemoryQueue) PurgeFinished(ctx context.Context, before time.Time) ([]string, error) {
	cutoff := before.UnixMilli()
	q.mu.Lock()
	defer q.mu.Unlock()
	var paths []string
	for id, job := range q.jobs {
		if job.State.IsTerminal() && job.FinishedAt < cutoff {
			paths = append(paths, job.Payload.StoragePath)
			delete(q.jobs, id)
		}
	}
	return paths, nil
}

func (q *MemoryQueue) Wakeups() <-chan struct{} {
	return q.wake
}

func (q *MemoryQueue) Close() error {
	return nil
}
