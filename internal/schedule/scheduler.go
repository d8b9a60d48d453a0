package schedule

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

type Job interface {
	Name() string
	Run(ctx context.Context) error
}

type Scheduler interface {
	AddJob(job Job, spec string) error
	Start(ctx context.Context)
	Stop()
}

type entry struct {
	id      cron.EntryID
	job     Job
	running *atomic.Bool
}

// CronScheduler runs maintenance jobs on five-field cron specs. A run is
// skipped while the previous run of the same job is still going.
type CronScheduler struct {
	cron *cron.Cron

	mu      sync.Mutex
	entries map[string]*entry
	ctx     context.Context
}

func NewCronScheduler() *CronScheduler {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	return &CronScheduler{
		cron:    cron.New(cron.WithParser(parser)),
		entries: make(map[string]*entry),
	}
}

func (c *CronScheduler) AddJob(job Job, spec string) error {
	name := job.Name()
	logger := logutil.GetLogger(context.Background()).With(zap.String("job", name), zap.String("spec", spec))
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[name]; ok {
		return fmt.Errorf("job %s already scheduled", name)
	}
	e := &entry{job: job, running: &atomic.Bool{}}
	id, err := c.cron.AddFunc(spec, func() { c.run(c.context(), e, spec) })
	if err != nil {
		logger.Error("schedule job failed", zap.Error(err))
		return err
	}
	e.id = id
	c.entries[name] = e
	logger.Info("job scheduled")
	return nil
}

// RunNow runs a scheduled job immediately, honouring the overlap guard.
func (c *CronScheduler) RunNow(ctx context.Context, name string) error {
	c.mu.Lock()
	e, ok := c.entries[name]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("job %s not scheduled", name)
	}
	return c.run(ctx, e, "manual")
}

func (c *CronScheduler) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	c.mu.Lock()
	c.ctx = ctx
	c.mu.Unlock()
	c.cron.Start()
}

func (c *CronScheduler) Stop() {
	ctx := c.cron.Stop()
	<-ctx.Done()
}

func (c *CronScheduler) context() context.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ctx == nil {
		return context.Background()
	}
	return c.ctx
}

func (c *CronScheduler) run(ctx context.Context, e *entry, spec string) error {
	logger := logutil.GetLogger(ctx).With(
		zap.String("job", e.job.Name()),
		zap.String("spec", spec),
	)
	if !e.running.CompareAndSwap(false, true) {
		logger.Info("job skipped: still running")
		return nil
	}
	defer e.running.Store(false)

	start := time.Now()
	logger.Debug("job started")
	err := e.job.Run(ctx)
	elapsed := time.Since(start)
	if err != nil {
		logger.Error("job finished", zap.Error(err), zap.Duration("duration", elapsed))
		return err
	}
	logger.Debug("job finished", zap.Duration("duration", elapsed))
	return nil
}
