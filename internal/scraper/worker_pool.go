package scraper

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

type Task[T any] func(ctx context.Context) (T, error)

type Result[T any] struct {
	Value T
	Err   error
}

// WorkerPool runs submitted tasks on a fixed number of workers. With one
// worker, tasks run in submission order. Submit blocks once buffer tasks are
// queued, which bounds the work in flight. Callers must drain the channel
// returned by Run.
type WorkerPool[T any] struct {
	workers int
	tasks   chan Task[T]
	wg      sync.WaitGroup
	mu      sync.RWMutex
	limiter *rate.Limiter
	once    sync.Once
}

func NewWorkerPool[T any](workers, buffer int) *WorkerPool[T] {
	if workers <= 0 {
		workers = 1
	}
	if buffer < 0 {
		buffer = 0
	}
	return &WorkerPool[T]{
		workers: workers,
		tasks:   make(chan Task[T], buffer),
	}
}

// SetRateLimit caps task starts per second across all workers. rps <= 0 removes the cap.
func (p *WorkerPool[T]) SetRateLimit(rps float64) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if rps <= 0 {
		p.limiter = nil
		return
	}
	p.limiter = rate.NewLimiter(rate.Limit(rps), 1)
}

func (p *WorkerPool[T]) Submit(t Task[T]) {
	if p == nil || t == nil {
		return
	}
	p.tasks <- t
}

func (p *WorkerPool[T]) Close() {
	if p == nil {
		return
	}
	p.once.Do(func() {
		close(p.tasks)
	})
}

func (p *WorkerPool[T]) Run(ctx context.Context) <-chan Result[T] {
	out := make(chan Result[T], cap(p.tasks)+p.workers)

	p.wg.Add(p.workers)
	for i := 0; i < p.workers; i++ {
		go func() {
			defer p.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case t, ok := <-p.tasks:
					if !ok {
						return
					}
					p.mu.RLock()
					lim := p.limiter
					p.mu.RUnlock()
					if lim != nil {
						if err := lim.Wait(ctx); err != nil {
							return
						}
					}
					v, err := t(ctx)
					select {
					case <-ctx.Done():
						return
					case out <- Result[T]{Value: v, Err: err}:
					}
				}
			}
		}()
	}

	go func() {
		p.wg.Wait()
		close(out)
	}()

	return out
}
