// Package loop provides a single-goroutine event loop with recurring tasks.
//
// Everything posted to a Loop runs on the goroutine that called Run, one
// function at a time and to completion, so state touched only from posted
// functions needs no locking.
package loop

import (
	"context"
	"sync"
	"time"
)

// Loop executes posted work sequentially
type Loop struct {
	queue chan func()
	done  chan struct{}
	once  sync.Once
}

// New creates a loop with the given queue capacity
func New(capacity int) *Loop {
	return &Loop{
		queue: make(chan func(), capacity),
		done:  make(chan struct{}),
	}
}

// Post queues fn for execution. It blocks while the queue is full and
// returns false once the loop has stopped.
func (l *Loop) Post(fn func()) bool {
	select {
	case <-l.done:
		return false
	default:
	}
	select {
	case l.queue <- fn:
		return true
	case <-l.done:
		return false
	}
}

// Run executes queued work until ctx is done
func (l *Loop) Run(ctx context.Context) {
	defer l.stop()
	for {
		select {
		case fn := <-l.queue:
			fn()
		case <-ctx.Done():
			return
		}
	}
}

// Done is closed once Run has returned
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

func (l *Loop) stop() {
	l.once.Do(func() { close(l.done) })
}

// Interval is a recurring task scheduled on a Loop
type Interval struct {
	stop    chan struct{}
	once    sync.Once
	pending chan struct{}
}

// Every runs fn on the loop every d. A tick that fires while the previous
// one is still queued is dropped, so a slow loop sees at most one pending
// tick per interval.
func (l *Loop) Every(d time.Duration, fn func()) *Interval {
	iv := &Interval{
		stop:    make(chan struct{}),
		pending: make(chan struct{}, 1),
	}
	go func() {
		ticker := time.NewTicker(d)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				select {
				case iv.pending <- struct{}{}:
				default:
					continue
				}
				ok := l.Post(func() {
					<-iv.pending
					select {
					case <-iv.stop:
						return
					default:
					}
					fn()
				})
				if !ok {
					return
				}
			case <-iv.stop:
				return
			case <-l.done:
				return
			}
		}
	}()
	return iv
}

// Stop cancels the task. A tick already queued does not run.
func (iv *Interval) Stop() {
	iv.once.Do(func() { close(iv.stop) })
}
