package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docchat/internal/model"
	"github.com/xxxsen/docchat/internal/queue"
)

// Processor handles one claimed job. A nil error completes it.
type Processor interface {
	Process(ctx context.Context, job *model.Job) error
}

type ProcessorFunc func(ctx context.Context, job *model.Job) error

func (f ProcessorFunc) Process(ctx context.Context, job *model.Job) error {
	return f(ctx, job)
}

type Config struct {
	Concurrency  int
	PollInterval time.Duration
	JobTimeout   time.Duration
}

// Pool runs Concurrency consumers that claim jobs from the queue and
// report every outcome back to it.
type Pool struct {
	q    queue.Queue
	proc Processor
	cfg  Config

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

func NewPool(q queue.Queue, proc Processor, cfg Config) *Pool {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	return &Pool{q: q, proc: proc, cfg: cfg}
}

func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}
	p.running = true
	p.stopCh = make(chan struct{})
	logutil.GetLogger(ctx).Info("worker pool started",
		zap.Int("concurrency", p.cfg.Concurrency),
		zap.Duration("poll_interval", p.cfg.PollInterval),
		zap.Duration("job_timeout", p.cfg.JobTimeout))
	for i := 0; i < p.cfg.Concurrency; i++ {
		p.wg.Add(1)
		go p.loop(ctx, i)
	}
}

// Stop signals the consumers and waits for in-flight jobs to finish.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	close(p.stopCh)
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Pool) loop(ctx context.Context, idx int) {
	defer p.wg.Done()
	logger := logutil.GetLogger(ctx).With(zap.Int("worker", idx))
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		default:
		}
		handled, err := p.RunOnce(ctx)
		if err != nil {
			logger.Error("claim job failed", zap.Error(err))
		}
		if handled {
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-p.q.Wakeups():
		case <-ticker.C:
		}
	}
}

// RunOnce claims and processes at most one job. It reports whether a job
// was handled.
func (p *Pool) RunOnce(ctx context.Context) (bool, error) {
	job, err := p.q.Claim(ctx)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}
	logger := logutil.GetLogger(ctx).With(zap.String("job_id", job.ID), zap.String("filename", job.Payload.Filename))
	logger.Info("job claimed")
	start := time.Now()

	procErr := p.process(ctx, job)
	// outcome is reported even when the pool is shutting down
	reportCtx := context.WithoutCancel(ctx)
	if procErr != nil {
		logger.Error("job failed", zap.Error(procErr), zap.Duration("duration", time.Since(start)))
		if err := p.q.Fail(reportCtx, job.ID, procErr.Error()); err != nil {
			logger.Error("mark job failed failed", zap.Error(err))
		}
		return true, nil
	}
	if err := p.q.Complete(reportCtx, job.ID); err != nil {
		logger.Error("mark job completed failed", zap.Error(err))
		return true, nil
	}
	logger.Info("job completed", zap.Duration("duration", time.Since(start)))
	return true, nil
}

func (p *Pool) process(ctx context.Context, job *model.Job) (err error) {
	if p.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.JobTimeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			logutil.GetLogger(ctx).Error("job panicked", zap.String("job_id", job.ID), zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	err = p.proc.Process(ctx, job)
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("job timed out after %s: %w", p.cfg.JobTimeout, err)
	}
	return err
}
