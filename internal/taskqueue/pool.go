package taskqueue

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"runcore/internal/platform/config"
	"runcore/internal/platform/logger"
	"runcore/internal/platform/metrics"
)

// ErrQueueFull is returned by Enqueue when the bounded channel has no room
// and the context is cancelled before a slot frees up.
var ErrQueueFull = errors.New("task queue full")

// ErrStopped is returned by Enqueue after Shutdown has been called.
var ErrStopped = errors.New("task queue stopped")

// RankingHandler recomputes rankings and course stats for a single run,
// satisfied by *ranking.Service.
type RankingHandler interface {
	Recalculate(ctx context.Context, courseID, userID, runRecordID uuid.UUID) error
}

// ImportHandler claims and processes one pending external import,
// satisfied by *importpipeline.Service.
type ImportHandler interface {
	ProcessNext(ctx context.Context) error
}

// Pool is a bounded, channel-backed worker pool. Handlers are idempotent
// by construction (ranking/stats recompute from scratch, import claims are
// atomic), so delivery only needs to be at-least-once.
type Pool struct {
	tasks   chan Task
	ranking RankingHandler
	imports ImportHandler
	retry   config.RetryConfig
	metrics *metrics.Registry

	wg       sync.WaitGroup
	stopOnce sync.Once
	stopped  chan struct{}
}

// New builds a Pool with the given worker count and bounded queue size.
func New(workers, queueSize int, retry config.RetryConfig, ranking RankingHandler, imports ImportHandler, reg *metrics.Registry) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	p := &Pool{
		tasks:   make(chan Task, queueSize),
		ranking: ranking,
		imports: imports,
		retry:   retry,
		metrics: reg,
		stopped: make(chan struct{}),
	}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker(i)
	}
	return p
}

// EnqueueRankingRecalc satisfies ingest.RankingEnqueuer and
// importpipeline.Service's rankings dependency.
func (p *Pool) EnqueueRankingRecalc(ctx context.Context, courseID, userID, runRecordID uuid.UUID) error {
	return p.Enqueue(ctx, Task{
		Kind:          KindRankingRecalc,
		RankingRecalc: &RankingRecalcPayload{CourseID: courseID, UserID: userID, RunRecordID: runRecordID},
	})
}

// EnqueueImportProcess schedules a claim-and-process pass for pending
// imports, triggered whenever internal/importpipeline accepts a new row.
func (p *Pool) EnqueueImportProcess(ctx context.Context, importID uuid.UUID) error {
	return p.Enqueue(ctx, Task{
		Kind:          KindImportProcess,
		ImportProcess: &ImportProcessPayload{ImportID: importID},
	})
}

// Enqueue pushes a task onto the bounded channel, blocking until a slot is
// free, the context is cancelled, or the pool has been shut down.
func (p *Pool) Enqueue(ctx context.Context, t Task) error {
	select {
	case <-p.stopped:
		return ErrStopped
	default:
	}

	select {
	case p.tasks <- t:
		if p.metrics != nil {
			p.metrics.TaskQueueDepth.Inc()
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrQueueFull, ctx.Err())
	case <-p.stopped:
		return ErrStopped
	}
}

// Shutdown stops accepting new tasks and waits for in-flight and already
// queued tasks to drain, or for ctx to expire, following the teacher's
// signal-then-context.WithTimeout drain idiom in every services/*/cmd/main.go.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.stopOnce.Do(func() {
		close(p.stopped)
		close(p.tasks)
	})

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("task queue drain timed out: %w", ctx.Err())
	}
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()
	for task := range p.tasks {
		if p.metrics != nil {
			p.metrics.TaskQueueDepth.Dec()
		}
		p.runWithRetry(task)
	}
}

func (p *Pool) runWithRetry(task Task) {
	attempts := p.retry.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for task.attempt = 0; task.attempt < attempts; task.attempt++ {
		if task.attempt > 0 {
			time.Sleep(p.backoff(task.attempt))
		}

		start := time.Now()
		err := p.dispatch(context.Background(), task)
		if p.metrics != nil {
			p.metrics.TaskDurationSeconds.WithLabelValues(string(task.Kind)).Observe(time.Since(start).Seconds())
		}
		if err == nil {
			return
		}
		lastErr = err
		logger.Warn("background task failed, will retry", "kind", task.Kind, "attempt", task.attempt+1, "max_attempts", attempts, "error", err)
	}

	logger.Error("background task exhausted retries", "kind", task.Kind, "attempts", attempts, "error", lastErr)
}

func (p *Pool) backoff(attempt int) time.Duration {
	initial := p.retry.InitialBackoff
	if initial <= 0 {
		initial = 500 * time.Millisecond
	}
	max := p.retry.MaxBackoff
	if max <= 0 {
		max = 30 * time.Second
	}
	mult := p.retry.BackoffMultiplier
	if mult <= 0 {
		mult = 2
	}

	d := time.Duration(float64(initial) * math.Pow(mult, float64(attempt-1)))
	if d > max {
		d = max
	}
	return d
}

func (p *Pool) dispatch(ctx context.Context, task Task) error {
	switch task.Kind {
	case KindRankingRecalc:
		pl := task.RankingRecalc
		if pl == nil {
			return fmt.Errorf("ranking_recalc task missing payload")
		}
		return p.ranking.Recalculate(ctx, pl.CourseID, pl.UserID, pl.RunRecordID)
	case KindImportProcess:
		return p.imports.ProcessNext(ctx)
	default:
		return fmt.Errorf("unknown task kind %q", task.Kind)
	}
}
