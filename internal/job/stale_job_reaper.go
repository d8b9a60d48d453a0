package job

import (
	"context"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

type StaleFailer interface {
	FailStale(ctx context.Context, olderThan time.Duration) (int64, error)
}

// StaleJobReaper fails jobs whose worker claimed them and then vanished,
// so pollers always reach a terminal state.
type StaleJobReaper struct {
	queue     StaleFailer
	threshold time.Duration
}

func NewStaleJobReaper(queue StaleFailer, threshold time.Duration) *StaleJobReaper {
	return &StaleJobReaper{queue: queue, threshold: threshold}
}

func (j *StaleJobReaper) Name() string {
	return "stale_job_reaper"
}

func (j *StaleJobReaper) Run(ctx context.Context) error {
	threshold := j.threshold
	if threshold <= 0 {
		threshold = 30 * time.Minute
	}
	n, err := j.queue.FailStale(ctx, threshold)
	if err != nil {
		return err
	}
	if n > 0 {
		logutil.GetLogger(ctx).Warn("stale active jobs failed", zap.Int64("count", n), zap.Duration("threshold", threshold))
	}
	return nil
}
