// Package limiter bounds how many calls run against the LLM backend at once.
package limiter

import (
	"container/list"
	"context"
	"sync"
)

// Limiter admits at most maxConcurrent calls at a time. Waiting callers are
// admitted strictly in arrival order.
type Limiter struct {
	mu     sync.Mutex
	max    int
	active int
	queue  list.List // of chan struct{}, closed on admission

	// OnChange, when set, is called with the new counters after every
	// admission, enqueue or release. It runs under the limiter's lock and
	// must not call back into the Limiter.
	OnChange func(active, waiting int)
}

// New creates a Limiter. Values below 1 are treated as 1.
func New(maxConcurrent int) *Limiter {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Limiter{max: maxConcurrent}
}

// Do waits for a free slot, runs fn and returns its error. The slot is
// released when fn returns, whatever the outcome. If ctx ends while waiting,
// Do returns ctx.Err() without running fn; the other waiters keep their order.
func (l *Limiter) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := l.acquire(ctx); err != nil {
		return err
	}
	defer l.release()
	return fn(ctx)
}

func (l *Limiter) acquire(ctx context.Context) error {
	l.mu.Lock()
	if l.active < l.max && l.queue.Len() == 0 {
		l.active++
		l.notifyLocked()
		l.mu.Unlock()
		return nil
	}
	ready := make(chan struct{})
	elem := l.queue.PushBack(ready)
	l.notifyLocked()
	l.mu.Unlock()

	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		l.mu.Lock()
		select {
		case <-ready:
			// Admitted while giving up: pass the slot on.
			l.mu.Unlock()
			l.release()
		default:
			l.queue.Remove(elem)
			l.notifyLocked()
			l.mu.Unlock()
		}
		return ctx.Err()
	}
}

// release hands the slot to the oldest waiter, or frees it.
func (l *Limiter) release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if front := l.queue.Front(); front != nil {
		l.queue.Remove(front)
		close(front.Value.(chan struct{}))
	} else {
		l.active--
	}
	l.notifyLocked()
}

func (l *Limiter) notifyLocked() {
	if l.OnChange != nil {
		l.OnChange(l.active, l.queue.Len())
	}
}

// Max returns the configured concurrency.
func (l *Limiter) Max() int { return l.max }

// Active returns the number of calls currently running.
func (l *Limiter) Active() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active
}

// Waiting returns the number of callers queued for a slot.
func (l *Limiter) Waiting() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.queue.Len()
}
