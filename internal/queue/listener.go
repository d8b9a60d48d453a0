package queue

import (
	"context"
	"time"

	"github.com/lib/pq"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docchat/internal/repo"
)

// Listener turns Postgres NOTIFY events on the job channel into wakeups.
type Listener struct {
	l    *pq.Listener
	out  chan struct{}
	done chan struct{}
}

func NewListener(ctx context.Context, connStr string) (*Listener, error) {
	logger := logutil.GetLogger(ctx)
	pl := pq.NewListener(connStr, time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			logger.Warn("job listener event", zap.Int("event", int(ev)), zap.Error(err))
		}
	})
	if err := pl.Listen(repo.JobNotifyChannel); err != nil {
		_ = pl.Close()
		return nil, err
	}
	l := &Listener{
		l:    pl,
		out:  make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go l.loop()
	return l, nil
}

func (l *Listener) loop() {
	for {
		select {
		case <-l.done:
			return
		// a nil notification follows a reconnect; wake anyway since
		// events may have been missed meanwhile
		case _, ok := <-l.l.Notify:
			if !ok {
				return
			}
			signal(l.out)
		}
	}
}

func (l *Listener) C() <-chan struct{} {
	return l.out
}

func (l *Listener) Close() error {
	close(l.done)
	return l.l.Close()
}
