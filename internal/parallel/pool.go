package parallel

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Job is the unit of work run by a Pool. It should honour ctx.
type Job func(ctx context.Context) error

// Result is the outcome of one job.
type Result struct {
	ID       string
	Err      error
	Duration time.Duration
}

// Pool runs jobs with bounded concurrency.
type Pool struct {
	maxWorkers int
	semaphore  chan struct{}
	wg         sync.WaitGroup
	mu         sync.Mutex
	results    []Result
	errors     []error
	failFast   bool
	ctx        context.Context
	cancel     context.CancelFunc
}

// NewPool creates a pool. maxWorkers <= 0 means no limit. With failFast the
// pool context is cancelled on the first job error and queued jobs are skipped.
func NewPool(ctx context.Context, maxWorkers int, failFast bool) *Pool {
	if maxWorkers < 0 {
		maxWorkers = 0
	}
	ctx, cancel := context.WithCancel(ctx)
	return &Pool{
		maxWorkers: maxWorkers,
		semaphore:  make(chan struct{}, maxWorkers),
		failFast:   failFast,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Submit schedules a job. Jobs submitted after cancellation are dropped.
func (p *Pool) Submit(id string, job Job) {
	select {
	case <-p.ctx.Done():
		return
	default:
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()

		if p.maxWorkers > 0 {
			select {
			case p.semaphore <- struct{}{}:
				defer func() { <-p.semaphore }()
			case <-p.ctx.Done():
				return
			}
		}

		select {
		case <-p.ctx.Done():
			return
		default:
		}

		start := time.Now()
		err := job(p.ctx)
		result := Result{ID: id, Err: err, Duration: time.Since(start)}

		p.mu.Lock()
		defer p.mu.Unlock()
		p.results = append(p.results, result)
		if err != nil {
			p.errors = append(p.errors, fmt.Errorf("%s: %w", id, err))
			if p.failFast {
				p.cancel()
			}
		}
	}()
}

// Wait blocks until every submitted job has finished or been skipped and
// returns the results in completion order plus the wrapped job errors.
func (p *Pool) Wait() ([]Result, []error) {
	p.wg.Wait()
	p.cancel()

	p.mu.Lock()
	defer p.mu.Unlock()
	results := make([]Result, len(p.results))
	copy(results, p.results)
	errs := make([]error, len(p.errors))
	copy(errs, p.errors)
	return results, errs
}

// Cancel stops scheduling; running jobs see their context cancelled.
func (p *Pool) Cancel() {
	p.cancel()
}

// Run is a convenience wrapper: it runs job for every id and returns the
// results once all are done.
func Run(ctx context.Context, maxWorkers int, ids []string, job func(ctx context.Context, id string) error) []Result {
	pool := NewPool(ctx, maxWorkers, false)
	for _, id := range ids {
		pool.Submit(id, func(ctx context.Context) error { return job(ctx, id) })
	}
	results, _ := pool.Wait()
	return results
}
