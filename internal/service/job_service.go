package service

import (
	"context"
	"io"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docchat/internal/filestore"
	"github.com/xxxsen/docchat/internal/model"
	appErr "github.com/xxxsen/docchat/internal/pkg/errors"
	"github.com/xxxsen/docchat/internal/queue"
)

// FileTypeChecker reports whether a filename can be ingested.
type FileTypeChecker interface {
	Supports(filename string) bool
}

// JobService accepts uploads and answers status polls.
type JobService struct {
	files filestore.Store
	queue queue.Queue
	types FileTypeChecker
}

func NewJobService(files filestore.Store, q queue.Queue, types FileTypeChecker) *JobService {
	return &JobService{files: files, queue: q, types: types}
}

// Submit stores the upload and enqueues its ingestion. The stored file is
// removed again when the queue cannot accept the job.
func (s *JobService) Submit(ctx context.Context, filename string, r io.Reader, size int64) (string, error) {
	filename = strings.TrimSpace(filename)
	if filename == "" {
		return "", appErr.Validation("file is required")
	}
	if s.types != nil && !s.types.Supports(filename) {
		return "", appErr.Validation("unsupported file type")
	}
	logger := logutil.GetLogger(ctx).With(zap.String("filename", filename))
	key := filestore.NewKey(filename)
	if err := s.files.Save(ctx, key, r, size); err != nil {
		logger.Error("store upload failed", zap.Error(err))
		return "", err
	}
	jobID, err := s.queue.Enqueue(ctx, model.JobPayload{Filename: filename, StoragePath: key})
	if err != nil {
		logger.Error("enqueue ingest job failed", zap.Error(err))
		if derr := s.files.Delete(ctx, key); derr != nil {
			logger.Warn("remove orphan upload failed", zap.String("key", key), zap.Error(derr))
		}
		return "", appErr.Wrap(appErr.ErrQueueUnavailable, err)
	}
	logger.Info("ingest job queued", zap.String("job_id", jobID), zap.String("key", key))
	return jobID, nil
}

// Status is read-only and safe to poll indefinitely.
func (s *JobService) Status(ctx context.Context, jobID string) (model.JobState, error) {
	jobID = strings.TrimSpace(jobID)
	if jobID == "" {
		return "", appErr.ErrJobNotFound
	}
	job, err := s.queue.Get(ctx, jobID)
	if err != nil {
		return "", err
	}
	return job.State, nil
}
