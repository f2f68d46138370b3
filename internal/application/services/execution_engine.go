package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"

	"maadoctor.app/cli/internal/core/detector"
	"maadoctor.app/cli/internal/core/domainerr"
)

const (
	DefaultWorkers = 4
	DefaultTimeout = 10 * time.Second

	reasonCancelled = "cancelled"
)

// ExecutionEngine runs loaded detectors against a log directory on a bounded
// worker pool. A detector that fails, panics or hangs only affects its own
// outcome.
type ExecutionEngine struct {
	workers int
	timeout time.Duration
	logger  hclog.Logger

	mu      sync.Mutex
	current *atomic.Bool
}

func NewExecutionEngine(workers int, timeout time.Duration, logger hclog.Logger) *ExecutionEngine {
	if workers < 1 {
		workers = DefaultWorkers
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &ExecutionEngine{workers: workers, timeout: timeout, logger: logger.Named("engine")}
}

// Cancel stops the running batch from starting further detectors. Detectors
// already running finish or time out normally. It is a no-op between batches.
func (e *ExecutionEngine) Cancel() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current != nil {
		e.current.Store(true)
	}
}

// RunAll invokes every handle once and returns outcomes in input order.
// Handles not started when the batch is cancelled, or when ctx ends, are
// reported as failed with reason "cancelled".
func (e *ExecutionEngine) RunAll(ctx context.Context, handles []*detector.Handle, logs detector.LogDir) []detector.Outcome {
	outcomes := make([]detector.Outcome, len(handles))
	cancelled := atomic.NewBool(false)

	e.mu.Lock()
	e.current = cancelled
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		if e.current == cancelled {
			e.current = nil
		}
		e.mu.Unlock()
	}()

	stopped := func() bool { return cancelled.Load() || ctx.Err() != nil }

	var g errgroup.Group
	g.SetLimit(e.workers)
	for i, h := range handles {
		// Go blocks while the pool is full, so this check sees a cancel that
		// happened while waiting for a worker.
		if stopped() {
			outcomes[i] = detector.Failed(h.Descriptor.ID, reasonCancelled, 0)
			continue
		}
		g.Go(func() error {
			if stopped() {
				outcomes[i] = detector.Failed(h.Descriptor.ID, reasonCancelled, 0)
				return nil
			}
			outcomes[i] = e.invoke(ctx, h, logs)
			return nil
		})
	}
	g.Wait()

	e.logSummary(outcomes)
	return outcomes
}

type detectResult struct {
	report *detector.ErrorReport
	err    error
}

// invoke runs one detector under the per-invocation timeout. On timeout the
// detector's goroutine is abandoned and its process, if any, is released.
func (e *ExecutionEngine) invoke(ctx context.Context, h *detector.Handle, logs detector.LogDir) detector.Outcome {
	id := h.Descriptor.ID
	start := time.Now()

	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.timeout)
	defer cancel()

	done := make(chan detectResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- detectResult{err: fmt.Errorf("%w: panic: %v", domainerr.ErrScriptExecution, r)}
			}
		}()
		report, err := h.Detector.Detect(runCtx, logs)
		done <- detectResult{report: report, err: err}
	}()

	select {
	case res := <-done:
		return e.outcome(id, res, time.Since(start), runCtx)
	case <-runCtx.Done():
		e.logger.Warn("detector timed out", "id", id, "timeout", e.timeout)
		go func() {
			if err := h.Close(); err != nil {
				e.logger.Debug("failed to release timed out detector", "id", id, "error", err)
			}
		}()
		return detector.TimedOut(id, e.timeout)
	}
}

func (e *ExecutionEngine) outcome(id string, res detectResult, took time.Duration, runCtx context.Context) detector.Outcome {
	if res.err != nil {
		if errors.Is(res.err, context.DeadlineExceeded) && runCtx.Err() != nil {
			return detector.TimedOut(id, e.timeout)
		}
		e.logger.Debug("detector failed", "id", id, "error", res.err)
		return detector.Failed(id, res.err.Error(), took)
	}
	if res.report == nil {
		return detector.NoMatch(id, took)
	}
	if err := res.report.Validate(); err != nil {
		return detector.Failed(id, "invalid report: "+err.Error(), took)
	}
	return detector.Matched(id, *res.report, took)
}

func (e *ExecutionEngine) logSummary(outcomes []detector.Outcome) {
	counts := make(map[detector.Status]int)
	for _, o := range outcomes {
		counts[o.Status]++
	}
	e.logger.Debug("batch finished",
		"total", len(outcomes),
		"matched", counts[detector.StatusMatched],
		"failed", counts[detector.StatusFailed],
		"timed_out", counts[detector.StatusTimedOut],
	)
}
