// Package limiter caps how many tasks run at once.
//
// Tasks are admitted strictly in submission order. A task's failure never
// affects its siblings, and there is no cancellation: a task that never
// returns holds its slot forever.
package limiter

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"
)

// DefaultConcurrency is the number of repositories checked at once.
const DefaultConcurrency = 5

// Limiter runs scheduled tasks with at most K task bodies executing at once.
type Limiter struct {
	sem         *semaphore.Weighted
	pending     []func()
	wg          sync.WaitGroup
	mu          sync.Mutex
	dispatching bool
}

// New creates a Limiter admitting at most k concurrent tasks.
// Values below 1 are treated as 1.
func New(k int) *Limiter {
	if k < 1 {
		k = 1
	}
	return &Limiter{
		sem: semaphore.NewWeighted(int64(k)),
	}
}

// Future is the settled or pending outcome of one scheduled task.
type Future[T any] struct {
	done  chan struct{}
	value T
	err   error
}

// Wait blocks until the task has settled and returns its outcome.
func (f *Future[T]) Wait() (T, error) {
	<-f.done
	return f.value, f.err
}

// Done is closed once the task has settled.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Schedule queues task on l and returns its Future. A panic inside task is
// recovered and reported as the task's error.
func Schedule[T any](l *Limiter, task func() (T, error)) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}
	l.wg.Add(1)
	l.enqueue(func() {
		defer l.wg.Done()
		defer close(f.done)
		defer func() {
			if r := recover(); r != nil {
				slog.Error("Task panicked", "component", "limiter", "panic", r)
				f.err = fmt.Errorf("task panicked: %v", r)
			}
		}()
		f.value, f.err = task()
	})
	return f
}

// Go queues a task that produces only an error.
func (l *Limiter) Go(task func() error) *Future[struct{}] {
	return Schedule(l, func() (struct{}, error) {
		return struct{}{}, task()
	})
}

// Wait blocks until every task scheduled so far has settled.
func (l *Limiter) Wait() {
	l.wg.Wait()
}

// enqueue appends run to the FIFO queue and starts a dispatcher if none is
// running. The single dispatcher acquires a slot before starting each task,
// so admission order always matches submission order.
func (l *Limiter) enqueue(run func()) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.pending = append(l.pending, run)
	if !l.dispatching {
		l.dispatching = true
		go l.dispatch()
	}
}

func (l *Limiter) dispatch() {
	for {
		l.mu.Lock()
		if len(l.pending) == 0 {
			l.dispatching = false
			l.mu.Unlock()
			return
		}
		run := l.pending[0]
		l.pending[0] = nil
		l.pending = l.pending[1:]
		l.mu.Unlock()

		// Background context: admission is never cancelled.
		if err := l.sem.Acquire(context.Background(), 1); err != nil {
			// Unreachable with a background context.
			panic(err)
		}
		go func() {
			defer l.sem.Release(1)
			run()
		}()
	}
}
