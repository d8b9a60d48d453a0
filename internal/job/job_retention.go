package job

import (
	"context"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

type FinishedPurger interface {
	PurgeFinished(ctx context.Context, before time.Time) ([]string, error)
}

type FileRemover interface {
	Delete(ctx context.Context, key string) error
}

// JobRetentionJob deletes terminal jobs past the retention window together
// with their stored uploads. Purged ids then read as unknown.
type JobRetentionJob struct {
	queue     FinishedPurger
	files     FileRemover
	retention time.Duration
	now       func() time.Time
}

func NewJobRetentionJob(queue FinishedPurger, files FileRemover, retention time.Duration) *JobRetentionJob {
	return &JobRetentionJob{queue: queue, files: files, retention: retention, now: time.Now}
}

func (j *JobRetentionJob) Name() string {
	return "job_retention"
}

func (j *JobRetentionJob) Run(ctx context.Context) error {
	retention := j.retention
	if retention <= 0 {
		retention = 7 * 24 * time.Hour
	}
	paths, err := j.queue.PurgeFinished(ctx, j.now().Add(-retention))
	if err != nil {
		return err
	}
	logger := logutil.GetLogger(ctx)
	removed := 0
	for _, p := range paths {
		if p == "" || j.files == nil {
			continue
		}
		if err := j.files.Delete(ctx, p); err != nil {
			logger.Warn("remove upload failed", zap.String("key", p), zap.Error(err))
			continue
		}
		removed++
	}
	if len(paths) > 0 {
		logger.Info("finished jobs purged", zap.Int("jobs", len(paths)), zap.Int("files", removed))
	}
	return nil
}
