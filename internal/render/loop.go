package render

import (
	"context"
	"sync"

	"github.com/ALEYI17/InfraSight_gpuview/pkg/logutil"
	"go.uber.org/zap"
)

// Loop runs posted operations one at a time, in post order, on a single
// goroutine. Whatever an operation touches belongs to the loop.
type Loop struct {
	name string

	mu      sync.Mutex
	queue   []func()
	stopped bool

	wake     chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
}

func NewLoop(name string) *Loop {
	return &Loop{
		name: name,
		wake: make(chan struct{}, 1),
		stop: make(chan struct{}),
	}
}

// Post queues op and reports whether the loop accepted it. Post never
// blocks.
func (l *Loop) Post(op func()) bool {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, op)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// Run starts the loop goroutine. The returned channel is closed once the
// loop has exited, after ctx is done or Stop was called.
func (l *Loop) Run(ctx context.Context) <-chan struct{} {
	logger := logutil.GetLogger()
	done := make(chan struct{})

	go func() {
		defer close(done)
		logger.Debug("loop started", zap.String("loop", l.name))
		for {
			l.mu.Lock()
			ops := l.queue
			l.queue = nil
			l.mu.Unlock()

			for _, op := range ops {
				select {
				case <-ctx.Done():
					l.Stop()
					return
				case <-l.stop:
					return
				default:
				}
				op()
			}

			select {
			case <-ctx.Done():
				l.Stop()
				return
			case <-l.stop:
				return
			case <-l.wake:
			}
		}
	}()

	return done
}

// Stop makes the loop exit after the operation in progress. Queued
// operations are dropped.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() {
		l.mu.Lock()
		l.stopped = true
		l.queue = nil
		l.mu.Unlock()
		close(l.stop)
	})
}

// Sync waits until every operation posted before it has run. It returns false
// if the loop stopped first.
func (l *Loop) Sync() bool {
	ran := make(chan struct{})
	if !l.Post(func() { close(ran) }) {
		return false
	}
	select {
	case <-ran:
		return true
	case <-l.stop:
		return false
	}
}
