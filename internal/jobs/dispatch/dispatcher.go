package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/semaphore"

	types "github.com/yungbote/classr/internal/domain"
	"github.com/yungbote/classr/internal/jobs/runtime"
	"github.com/yungbote/classr/internal/platform/logger"
)

// Work is a unit of model-specific work run against one job.
// Returning nil without a terminal update marks the job Done.
type Work func(ctx context.Context, h *runtime.Handle) error

// Stats is a point-in-time view of the pool.
type Stats struct {
	Limit   int   `json:"limit"`
	Running int64 `json:"running"`
	Queued  int64 `json:"queued"`
}

// Dispatcher runs work units on a pool of at most limit concurrent slots.
// Waiting units are admitted in submission order.
type Dispatcher struct {
	log   *logger.Logger
	sem   *semaphore.Weighted
	limit int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	running atomic.Int64
	queued  atomic.Int64

	onFinish func(uid string, status types.JobStatus)
}

func New(limit int, baseLog *logger.Logger) *Dispatcher {
	if limit < 1 {
		limit = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		log:    baseLog.With("component", "Dispatcher"),
		sem:    semaphore.NewWeighted(int64(limit)),
		limit:  limit,
		ctx:    ctx,
		cancel: cancel,
	}
	d.log.Info("job dispatcher ready", "parallel_jobs", limit)
	return d
}

// Submit queues work for h and returns immediately.
func (d *Dispatcher) Submit(h *runtime.Handle, work Work) {
	d.wg.Add(1)
	d.queued.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if err := h.Close(); err != nil {
				d.log.Warn("close job log failed", "job_uid", h.UID(), "error", err)
			}
		}()

		if err := d.sem.Acquire(d.ctx, 1); err != nil {
			d.queued.Add(-1)
			_ = h.Fail(fmt.Errorf("dispatcher stopped before job started: %w", err))
			return
		}
		d.queued.Add(-1)
		d.running.Add(1)
		defer func() {
			d.running.Add(-1)
			d.sem.Release(1)
		}()

		d.run(h, work)
		if d.onFinish != nil {
			d.onFinish(h.UID(), h.Last().Status)
		}
	}()
}

// OnFinish registers fn to be called after every unit that ran. Call before Submit.
func (d *Dispatcher) OnFinish(fn func(uid string, status types.JobStatus)) { d.onFinish = fn }

func (d *Dispatcher) run(h *runtime.Handle, work Work) {
	ctx, span := otel.Tracer("classr/dispatch").Start(d.ctx, "job.run")
	span.SetAttributes(attribute.String("job.uid", h.UID()))
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			d.log.Error("work unit panic", "job_uid", h.UID(), "panic", r)
			span.SetStatus(codes.Error, "panic")
			_ = h.Fail(&panicError{Val: r})
		}
	}()

	if work == nil {
		_ = h.Fail(fmt.Errorf("%w: no work unit", types.ErrWorkUnit))
		return
	}
	if err := work(ctx, h); err != nil {
		d.log.Warn("work unit failed", "job_uid", h.UID(), "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if !errors.Is(err, types.ErrWorkUnit) {
			err = fmt.Errorf("%w: %v", types.ErrWorkUnit, err)
		}
		_ = h.Fail(err)
		return
	}
	if !h.Terminal() {
		_ = h.MarkDone()
	}
}

func (d *Dispatcher) Counts() (running, queued int64) {
	return d.running.Load(), d.queued.Load()
}

func (d *Dispatcher) Stats() Stats {
	return Stats{Limit: d.limit, Running: d.running.Load(), Queued: d.queued.Load()}
}

// Wait blocks until every submitted unit has returned.
func (d *Dispatcher) Wait() { d.wg.Wait() }

// Stop fails units still waiting for a slot, cancels the context handed to
// running units and waits for them to return or ctx to end.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.cancel()
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type panicError struct{ Val any }

func (e *panicError) Error() string { return fmt.Sprintf("%s: panic: %v", types.ErrWorkUnit, e.Val) }

func (e *panicError) Unwrap() error { return types.ErrWorkUnit }
