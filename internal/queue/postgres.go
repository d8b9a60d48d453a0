package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docchat/internal/model"
	"github.com/xxxsen/docchat/internal/pkg/dbutil"
	appErr "github.com/xxxsen/docchat/internal/pkg/errors"
	"github.com/xxxsen/docchat/internal/pkg/timeutil"
	"github.com/xxxsen/docchat/internal/repo"
)

type PostgresQueue struct {
	jobs     *repo.JobRepo
	listener *Listener
	now      func() int64
}

type PostgresOption func(*PostgresQueue)

// WithListener lets idle consumers wake on NOTIFY instead of waiting for
// the next poll.
func WithListener(l *Listener) PostgresOption {
	return func(q *PostgresQueue) {
		q.listener = l
	}
}

func NewPostgres(db *sql.DB, opts ...PostgresOption) *PostgresQueue {
	q := &PostgresQueue{
		jobs: repo.NewJobRepo(db),
		now:  timeutil.NowUnixMilli,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

func (q *PostgresQueue) Enqueue(ctx context.Context, payload model.JobPayload) (string, error) {
	job := &model.Job{
		ID:      uuid.NewString(),
		Payload: payload,
		State:   model.JobStateQueued,
		Ctime:   q.now(),
	}
	if err := q.jobs.Create(ctx, job); err != nil {
		return "", appErr.Wrap(appErr.ErrQueueUnavailable, err)
	}
	if err := q.jobs.Notify(ctx, job.ID); err != nil {
		logutil.GetLogger(ctx).Warn("notify ingest job failed", zap.String("job_id", job.ID), zap.Error(err))
	}
	return job.ID, nil
}

func (q *PostgresQueue) Claim(ctx context.Context) (*model.Job, error) {
	job, err := q.jobs.ClaimNext(ctx, q.now())
	if err != nil {
		return nil, q.classify(err)
	}
	return job, nil
}

func (q *PostgresQueue) Complete(ctx context.Context, jobID string) error {
	return q.finish(ctx, jobID, model.JobStateCompleted, "")
}

func (q *PostgresQueue) Fail(ctx context.Context, jobID string, reason string) error {
	return q.finish(ctx, jobID, model.JobStateFailed, reason)
}

func (q *PostgresQueue) finish(ctx context.Context, jobID string, to model.JobState, reason string) error {
	ok, err := q.jobs.UpdateStateIf(ctx, jobID, model.JobStateActive, to, reason, q.now())
	if err != nil {
		return q.classify(err)
	}
	if ok {
		return nil
	}
	job, err := q.jobs.Get(ctx, jobID)
	if err != nil {
		return q.classify(err)
	}
	return fmt.Errorf("%w: %s -> %s", model.ErrInvalidTransition, job.State, to)
}

func (q *PostgresQueue) Get(ctx context.Context, jobID string) (*model.Job, error) {
	job, err := q.jobs.Get(ctx, jobID)
	if err != nil {
		return nil, q.classify(err)
	}
	return job, nil
}

func (q *PostgresQueue) FailStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	now := q.now()
	n, err := q.jobs.FailStale(ctx, now-olderThan.Milliseconds(), staleReason, now)
	if err != nil {
		return 0, q.classify(err)
	}
	return n, nil
}

func (q *PostgresQueue) PurgeFinished(ctx context.Context, before time.Time) ([]string, error) {
	paths, err := q.jobs.DeleteFinishedBefore(ctx, before.UnixMilli())
	if err != nil {
		return nil, q.classify(err)
	}
	return paths, nil
}

func (q *PostgresQueue) Wakeups() <-chan struct{} {
	if q.listener == nil {
		return nil
	}
	return q.listener.C()
}

func (q *PostgresQueue) Close() error {
	if q.listener == nil {
		return nil
	}
	return q.listener.Close()
}

func (q *PostgresQueue) classify(err error) error {
	if errors.Is(err, appErr.ErrNotFound) {
		return err
	}
	if dbutil.IsUnavailable(err) {
		return appErr.Wrap(appErr.ErrQueueUnavailable, err)
	}
	return err
}
