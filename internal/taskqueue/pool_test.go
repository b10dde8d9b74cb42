package taskqueue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"runcore/internal/platform/config"
)

type fakeRankingHandler struct {
	mu    sync.Mutex
	calls []RankingRecalcPayload
	err   error
	errN  int // fail the first errN calls, then succeed
}

func (h *fakeRankingHandler) Recalculate(ctx context.Context, courseID, userID, runRecordID uuid.UUID) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, RankingRecalcPayload{CourseID: courseID, UserID: userID, RunRecordID: runRecordID})
	if h.errN > 0 {
		h.errN--
		return h.err
	}
	return nil
}

func (h *fakeRankingHandler) callCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.calls)
}

type fakeImportHandler struct {
	mu    sync.Mutex
	calls int
}

func (h *fakeImportHandler) ProcessNext(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls++
	return nil
}

func (h *fakeImportHandler) callCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls
}

func fastRetryConfig() config.RetryConfig {
	return config.RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        5 * time.Millisecond,
		BackoffMultiplier: 2,
	}
}

func TestPool_EnqueueRankingRecalc_DispatchesToHandler(t *testing.T) {
	ranking := &fakeRankingHandler{}
	imports := &fakeImportHandler{}
	pool := New(2, 8, fastRetryConfig(), ranking, imports, nil)

	courseID, userID, runID := uuid.New(), uuid.New(), uuid.New()
	require.NoError(t, pool.EnqueueRankingRecalc(context.Background(), courseID, userID, runID))

	require.Eventually(t, func() bool { return ranking.callCount() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, pool.Shutdown(context.Background()))
	assert.Equal(t, courseID, ranking.calls[0].CourseID)
	assert.Equal(t, userID, ranking.calls[0].UserID)
	assert.Equal(t, runID, ranking.calls[0].RunRecordID)
}

func TestPool_EnqueueImportProcess_DispatchesToHandler(t *testing.T) {
	ranking := &fakeRankingHandler{}
	imports := &fakeImportHandler{}
	pool := New(2, 8, fastRetryConfig(), ranking, imports, nil)

	require.NoError(t, pool.EnqueueImportProcess(context.Background(), uuid.New()))
	require.Eventually(t, func() bool { return imports.callCount() == 1 }, time.Second, time.Millisecond)
	require.NoError(t, pool.Shutdown(context.Background()))
}

func TestPool_RetriesFailedTaskUpToMaxAttempts(t *testing.T) {
	ranking := &fakeRankingHandler{err: errors.New("transient"), errN: 2}
	imports := &fakeImportHandler{}
	pool := New(1, 8, fastRetryConfig(), ranking, imports, nil)

	require.NoError(t, pool.EnqueueRankingRecalc(context.Background(), uuid.New(), uuid.New(), uuid.New()))
	require.Eventually(t, func() bool { return ranking.callCount() == 3 }, time.Second, time.Millisecond)

	require.NoError(t, pool.Shutdown(context.Background()))
}

func TestPool_GivesUpAfterMaxAttemptsExhausted(t *testing.T) {
	ranking := &fakeRankingHandler{err: errors.New("permanent"), errN: 100}
	imports := &fakeImportHandler{}
	retry := fastRetryConfig()
	pool := New(1, 8, retry, ranking, imports, nil)

	require.NoError(t, pool.EnqueueRankingRecalc(context.Background(), uuid.New(), uuid.New(), uuid.New()))
	require.Eventually(t, func() bool { return ranking.callCount() == retry.MaxAttempts }, time.Second, time.Millisecond)

	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, retry.MaxAttempts, ranking.callCount())

	require.NoError(t, pool.Shutdown(context.Background()))
}

func TestPool_Shutdown_RejectsFurtherEnqueues(t *testing.T) {
	ranking := &fakeRankingHandler{}
	imports := &fakeImportHandler{}
	pool := New(1, 1, fastRetryConfig(), ranking, imports, nil)

	require.NoError(t, pool.Shutdown(context.Background()))

	err := pool.EnqueueRankingRecalc(context.Background(), uuid.New(), uuid.New(), uuid.New())
	assert.ErrorIs(t, err, ErrStopped)
}

func TestPool_EnqueueBlocksUntilContextCancelledWhenFull(t *testing.T) {
	ranking := &fakeRankingHandler{}
	imports := &fakeImportHandler{}
	// Zero workers would deadlock Shutdown, so use one slow worker and a
	// queue of size 1 to force the second Enqueue to block.
	block := make(chan struct{})
	slow := &blockingImportHandler{release: block}
	pool := New(1, 1, fastRetryConfig(), ranking, slow, nil)

	require.NoError(t, pool.EnqueueImportProcess(context.Background(), uuid.New())) // picked up by the worker, which then blocks
	require.Eventually(t, func() bool { return slow.started() }, time.Second, time.Millisecond)
	require.NoError(t, pool.EnqueueImportProcess(context.Background(), uuid.New())) // fills the queue slot

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := pool.EnqueueImportProcess(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrQueueFull)

	close(block)
	require.NoError(t, pool.Shutdown(context.Background()))
}

type blockingImportHandler struct {
	mu      sync.Mutex
	start   bool
	release chan struct{}
}

func (h *blockingImportHandler) ProcessNext(ctx context.Context) error {
	h.mu.Lock()
	h.start = true
	h.mu.Unlock()
	<-h.release
	return nil
}

func (h *blockingImportHandler) started() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.start
}
