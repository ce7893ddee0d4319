package mesh

import (
	"context"
	"errors"
	"sync"
)

var ErrLoopStopped = errors.New("loop stopped")

// Loop serializes every event touching mesh state onto one goroutine.
// Events posted from the same goroutine run in post order.
type Loop struct {
	events chan func()
	done   chan struct{}
	once   sync.Once
}

func NewLoop(size int) *Loop {
	if size <= 0 {
		size = 64
	}
	return &Loop{
		events: make(chan func(), size),
		done:   make(chan struct{}),
	}
}

// Post enqueues fn. It blocks while the queue is full and reports false once
// the loop has stopped.
func (l *Loop) Post(fn func()) bool {
	select {
	case <-l.done:
		return false
	default:
	}
	select {
	case l.events <- fn:
		return true
	case <-l.done:
		return false
	}
}

// Do runs fn on the loop and waits for it.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	ran := make(chan struct{})
	if !l.Post(func() {
		fn()
		close(ran)
	}) {
		return ErrLoopStopped
	}
	select {
	case <-ran:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		return ErrLoopStopped
	}
}

// Run executes posted events until ctx ends.
func (l *Loop) Run(ctx context.Context) error {
	defer l.once.Do(func() { close(l.done) })
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn := <-l.events:
			fn()
		}
	}
}

func (l *Loop) Done() <-chan struct{} { return l.done }
