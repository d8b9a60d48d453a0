package queue

import (
	"context"
	"time"

	"github.com/xxxsen/docchat/internal/model"
)

// Queue is a durable FIFO of ingestion jobs. The queue owns every state
// transition; consumers only report outcomes through Complete and Fail.
type Queue interface {
	Enqueue(ctx context.Context, payload model.JobPayload) (string, error)
	// Claim moves the oldest queued job to active. It returns nil when the
	// queue is empty.
	Claim(ctx context.Context) (*model.Job, error)
	Complete(ctx context.Context, jobID string) error
	Fail(ctx context.Context, jobID string, reason string) error
	Get(ctx context.Context, jobID string) (*model.Job, error)
	// FailStale fails active jobs claimed longer than olderThan ago.
	FailStale(ctx context.Context, olderThan time.Duration) (int64, error)
	// PurgeFinished deletes terminal jobs finished before the cutoff and
	// returns their storage paths.
	PurgeFinished(ctx context.Context, before time.Time) ([]string, error)
	// Wakeups fires when new work may be available. It may be nil.
	Wakeups() <-chan struct{}
	Close() error
}

const staleReason = "worker lost: job exceeded active time limit"

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
