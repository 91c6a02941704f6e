// Package refresh runs background re-fetches of stale cache entries on a
// small worker pool. Jobs are deduplicated per key while queued or running
// and dropped when the queue is full.
package refresh

import (
	"context"
	"sync"
	"time"
)

const defaultJobTimeout = 15 * time.Second

type Job struct {
	Key     string
	Address string
}

type Refresher struct {
	ch      chan Job
	inFly   sync.Map // key -> struct{}
	do      func(ctx context.Context, j Job)
	timeout time.Duration
	wg      sync.WaitGroup
	mu      sync.RWMutex
	closed  bool
}

func New(capacity int, workerCount int, do func(ctx context.Context, j Job)) *Refresher {
	if capacity <= 0 {
		capacity = 256
	}
	if workerCount <= 0 {
		workerCount = 2
	}
	r := &Refresher{
		ch:      make(chan Job, capacity),
		do:      do,
		timeout: defaultJobTimeout,
	}
	r.wg.Add(workerCount)
	for i := 0; i < workerCount; i++ {
		go r.worker()
	}
	return r
}

// Enqueue reports whether the job was accepted.
func (r *Refresher) Enqueue(j Job) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return false
	}
	if _, exists := r.inFly.LoadOrStore(j.Key, struct{}{}); exists {
		return false
	}
	select {
	case r.ch <- j:
		return true
	default:
		r.inFly.Delete(j.Key)
		return false
	}
}

// Close stops accepting jobs and waits for queued ones to finish or ctx to end.
func (r *Refresher) Close(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.ch)
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Refresher) worker() {
	defer r.wg.Done()
	for j := range r.ch {
		r.run(j)
	}
}

func (r *Refresher) run(j Job) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer func() {
		r.inFly.Delete(j.Key)
		cancel()
	}()
	if r.do != nil {
		r.do(ctx, j)
	}
}
