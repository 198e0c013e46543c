// Package loop runs callbacks one at a time on a single goroutine.
// Every mutation of the panel's document and settings happens inside a turn.
package loop

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/stephens/tubpanel/internal/log"
)

const defaultQueueSize = 64

// Poster schedules work onto the loop
type Poster interface {
	Post(fn func()) bool
}

// Loop is a serial work queue
type Loop struct {
	work      chan func()
	afterTurn func()

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

// Option configures a Loop
type Option func(*Loop)

// WithAfterTurn runs fn after every turn, e.g. to repaint
func WithAfterTurn(fn func()) Option {
	return func(l *Loop) { l.afterTurn = fn }
}

// WithQueueSize overrides the queue depth
func WithQueueSize(n int) Option {
	return func(l *Loop) {
		if n > 0 {
			l.work = make(chan func(), n)
		}
	}
}

// New creates a loop
func New(opts ...Option) *Loop {
	l := &Loop{
		work: make(chan func(), defaultQueueSize),
		done: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Post queues fn. It returns false once the loop is closed.
// Post may block while the queue is full, so it must not be called from inside a turn.
func (l *Loop) Post(fn func()) bool {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false
	}
	l.mu.Unlock()

	select {
	case l.work <- fn:
		return true
	case <-l.done:
		return false
	}
}

// Do posts fn and waits for it to finish
func (l *Loop) Do(fn func()) bool {
	finished := make(chan struct{})
	if !l.Post(func() {
		defer close(finished)
		fn()
	}) {
		return false
	}
	select {
	case <-finished:
		return true
	case <-l.done:
		return false
	}
}

// Run processes turns until ctx is cancelled or Close is called
func (l *Loop) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			l.Close()
			return
		case <-l.done:
			return
		case fn := <-l.work:
			l.turn(fn)
		}
	}
}

// Close stops the loop. Pending work is discarded.
func (l *Loop) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	close(l.done)
}

// Done is closed when the loop stops
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

func (l *Loop) turn(fn func()) {
	l.safe(fn)
	if l.afterTurn != nil {
		l.safe(l.afterTurn)
	}
}

func (l *Loop) safe(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("ERROR -> %s", fmt.Sprint(r))
			log.Debug("%s", debug.Stack())
		}
	}()
	fn()
}
