package schedule

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countJob struct {
	name  string
	runs  atomic.Int32
	err   error
	block chan struct{}
}

func (j *countJob) Name() string { return j.name }

func (j *countJob) Run(ctx context.Context) error {
	j.runs.Add(1)
	if j.block != nil {
		<-j.block
	}
	return j.err
}

func TestAddJobRejectsDuplicatesAndBadSpecs(t *testing.T) {
	s := NewCronScheduler()
	require.NoError(t, s.AddJob(&countJob{name: "a"}, "* * * * *"))
	assert.Error(t, s.AddJob(&countJob{name: "a"}, "0 * * * *"))
	assert.Error(t, s.AddJob(&countJob{name: "b"}, "not a spec"))
}

func TestRunNow(t *testing.T) {
	s := NewCronScheduler()
	j := &countJob{name: "a", err: errors.New("boom")}
	require.NoError(t, s.AddJob(j, "0 0 * * *"))
	assert.EqualError(t, s.RunNow(context.Background(), "a"), "boom")
	assert.Equal(t, int32(1), j.runs.Load())
	assert.Error(t, s.RunNow(context.Background(), "missing"))
}

func TestRunNowSkipsOverlappingRun(t *testing.T) {
	s := NewCronScheduler()
	j := &countJob{name: "slow", block: make(chan struct{})}
	require.NoError(t, s.AddJob(j, "0 0 * * *"))
	done := make(chan struct{})
	go func() {
		_ = s.RunNow(context.Background(), "slow")
		close(done)
	}()
	require.Eventually(t, func() bool { return j.runs.Load() == 1 }, time.Second, time.Millisecond)
	require.NoError(t, s.RunNow(context.Background(), "slow"))
	assert.Equal(t, int32(1), j.runs.Load())
	close(j.block)
	<-done
}
