package strategy

import (
	"context"
	"sync"
	"time"

	"github.com/peter29ljf/bybitoption/internal/core"
	"github.com/peter29ljf/bybitoption/pkg/concurrency"
	"github.com/peter29ljf/bybitoption/pkg/telemetry"
)

// Executor is the Level Executor: a single-consumer, strictly serialized
// dispatcher that turns one PlaceOrderRequest at a time into a venue
// order. It never retries a failed or rejected order: a level that
// fails execution transitions to failed and stays there; retrying here
// would race the strategy engine's own state transition.
type Executor struct {
	pool       *concurrency.WorkerPool
	venue      core.VenueClient
	minSpacing time.Duration
	logger     core.ILogger
	metrics    *telemetry.MetricsHolder

	mu           sync.Mutex
	lastDispatch time.Time
}

// NewExecutor builds an Executor backed by a single-worker pool, so
// submitted requests are dequeued and sent to the venue in strict FIFO
// order with no more than one order in flight at a time.
func NewExecutor(venue core.VenueClient, minSpacing time.Duration, logger core.ILogger, metrics *telemetry.MetricsHolder) *Executor {
	pool := concurrency.NewWorkerPool(concurrency.PoolConfig{
		Name:        "level_executor",
		MaxWorkers:  1,
		MaxCapacity: 1000,
	}, logger)
	return &Executor{
		pool:       pool,
		venue:      venue,
		minSpacing: minSpacing,
		logger:     logger.WithField("component", "level_executor"),
		metrics:    metrics,
	}
}

// Submit enqueues req and returns immediately once the single worker has
// accepted it into its queue; it never blocks on the venue round trip.
// done is invoked on the worker goroutine once a venue response (or
// error) is available, respecting the configured minimum spacing since
// the previous dispatch. Callers must not block inside done, it runs on
// the same worker every other queued request waits behind.
func (ex *Executor) Submit(ctx context.Context, req core.PlaceOrderRequest, done func(core.OrderResult, error)) error {
	submitErr := ex.pool.Submit(func() {
		ex.mu.Lock()
		wait := ex.minSpacing - time.Since(ex.lastDispatch)
		ex.mu.Unlock()
		if wait > 0 {
			time.Sleep(wait)
		}

		ex.metrics.IncExecutorAttempt(ctx)
		ex.logger.Info("dispatching level order", "symbol", req.Symbol, "side", req.Side, "qty", req.Qty, "type", req.Type)

		res, err := ex.venue.PlaceOrder(ctx, req)

		ex.mu.Lock()
		ex.lastDispatch = time.Now()
		ex.mu.Unlock()

		success := err == nil && res.Accepted()
		ex.metrics.IncExecutorResult(ctx, success)
		if !success {
			ex.logger.Warn("level order not accepted", "symbol", req.Symbol, "side", req.Side, "error", err, "result", res)
		}

		done(res, err)
	})
	ex.metrics.SetQueueDepth(ex.pool.QueueDepth())
	return submitErr
}

// Stop drains the queue and stops accepting new work.
func (ex *Executor) Stop() {
	ex.pool.Stop()
}
