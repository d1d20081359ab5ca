package main

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"
)

// ExecutorState is the lifecycle state of a SearchExecutor
type ExecutorState int

const (
	StateIdle ExecutorState = iota
	StateRunning
	StateCompleted
	StateFailed
)

func (s ExecutorState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// FailurePolicy decides what a failed run hands back to the caller
type FailurePolicy int

const (
	// DiscardOnFailure drops every result of a run that fails part way
	DiscardOnFailure FailurePolicy = iota
	// ReturnPartial returns the results gathered before the failing query along with the error
	ReturnPartial
)

func (p FailurePolicy) String() string {
	if p == ReturnPartial {
		return "return-partial"
	}
	return "discard-on-failure"
}

// SearchExecutor runs batches of queries one at a time through a shared RateLimiter
type SearchExecutor struct {
	client   SearchClient
	limiter  *RateLimiter
	policy   FailurePolicy
	pageSize int
	timeout  time.Duration
	now      func() time.Time

	mu    sync.Mutex
	state ExecutorState
}

// ExecutorOption configures a SearchExecutor
type ExecutorOption func(*SearchExecutor)

// WithPolicy sets the failure policy
func WithPolicy(p FailurePolicy) ExecutorOption {
	return func(e *SearchExecutor) { e.policy = p }
}

// WithPageSize sets the number of results requested per query
func WithPageSize(n int) ExecutorOption {
	return func(e *SearchExecutor) {
		if n > 0 {
			e.pageSize = n
		}
	}
}

// WithRequestTimeout bounds each individual search call
func WithRequestTimeout(d time.Duration) ExecutorOption {
	return func(e *SearchExecutor) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithClock overrides the time source used for result timestamps
func WithClock(now func() time.Time) ExecutorOption {
	return func(e *SearchExecutor) { e.now = now }
}

// NewExecutor creates an executor for the given client and limiter
func NewExecutor(client SearchClient, limiter *RateLimiter, opts ...ExecutorOption) *SearchExecutor {
	e := &SearchExecutor{
		client:   client,
		limiter:  limiter,
		policy:   DiscardOnFailure,
		pageSize: DefaultPageSize,
		timeout:  DefaultRequestLimit,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// State returns the current lifecycle state
func (e *SearchExecutor) State() ExecutorState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *SearchExecutor) setState(s ExecutorState) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

// Run executes the batch in order. progress, if non-nil, receives the completed percentage
// after each successful query. Any failure ends the run; no query is retried.
func (e *SearchExecutor) Run(ctx context.Context, batch []Query, progress func(int)) ([]ResultRecord, error) {
	e.mu.Lock()
	if e.state == StateRunning {
		e.mu.Unlock()
		return nil, ErrExecutorBusy
	}
	e.state = StateRunning
	e.mu.Unlock()

	results, err := e.run(ctx, batch, progress)
	if err != nil {
		e.setState(StateFailed)
		slog.Warn("Batch failed", "error", err, "collected", len(results), "policy", e.policy)
		if e.policy == ReturnPartial {
			return results, err
		}
		return nil, err
	}

	e.setState(StateCompleted)
	slog.Info("Batch completed", "queries", len(batch), "results", len(results))
	return results, nil
}

func (e *SearchExecutor) run(ctx context.Context, batch []Query, progress func(int)) ([]ResultRecord, error) {
	results := []ResultRecord{}
	total := len(batch)

	for i, q := range batch {
		if ctx.Err() != nil {
			return results, ErrCancelled
		}

		if err := e.limiter.Acquire(ctx); err != nil {
			return results, err
		}

		items, err := e.search(ctx, q)
		if err != nil {
			if ctx.Err() != nil {
				return results, ErrCancelled
			}
			return results, &RequestFailedError{Query: q.Text, Err: err}
		}

		timestamp := e.now().Format(time.RFC3339)
		for _, item := range items {
			results = append(results, ResultRecord{
				Title:       item.Title,
				URL:         item.Link,
				Description: item.Snippet,
				Timestamp:   timestamp,
				Dork:        q.Text,
				Category:    q.Category,
			})
		}

		pct := progressPercent(i+1, total)
		slog.Debug("Query done", "index", i+1, "total", total, "items", len(items), "progress", pct)
		if progress != nil {
			progress(pct)
		}
	}

	return results, nil
}

func (e *SearchExecutor) search(ctx context.Context, q Query) ([]SearchItem, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	return e.client.Search(ctx, q.Text, e.pageSize)
}

func progressPercent(done, total int) int {
	if total == 0 {
		return 100
	}
	return int(math.Round(float64(done) / float64(total) * 100))
}

// Outcome is the terminal result of a background run
type Outcome struct {
	Results []ResultRecord
	Err     error
}

// Job is a batch running on its own goroutine
type Job struct {
	progress chan int
	done     chan Outcome
}

// Progress delivers percentages as queries complete; closed when the run ends
func (j *Job) Progress() <-chan int { return j.progress }

// Done delivers exactly one Outcome
func (j *Job) Done() <-chan Outcome { return j.done }

// Start runs the batch in the background so pacing sleeps never block the caller
func (e *SearchExecutor) Start(ctx context.Context, batch []Query) *Job {
	job := &Job{
		progress: make(chan int, len(batch)),
		done:     make(chan Outcome, 1),
	}
	go func() {
		defer close(job.progress)
		results, err := e.Run(ctx, batch, func(pct int) {
			job.progress <- pct
		})
		job.done <- Outcome{Results: results, Err: err}
		close(job.done)
	}()
	return job
}
