// Package worker implements the per-kind worker pools that drain the
// Work Queue: one bounded goroutine pool per model.WorkKind, each
// leasing items, dispatching to a Handler, and recording
// completion/failure back onto the Store.
package worker

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/webleads/ingestion/pkg/errclass"
	"github.com/webleads/ingestion/pkg/metrics"
	"github.com/webleads/ingestion/pkg/model"
	"github.com/webleads/ingestion/pkg/retry"
)

// Store is the Work Queue seam a Pool needs.
type Store interface {
	Lease(ctx context.Context, kinds []model.WorkKind, workerID string, leaseDuration time.Duration) (*model.WorkItem, error)
	Complete(ctx context.Context, itemID uuid.UUID) error
	// Fail records a failed attempt and reports whether it exhausted its
	// retry budget and moved to the dead letter table.
	Fail(ctx context.Context, itemID uuid.UUID, lastErr error, retryNotBefore time.Time) (deadLettered bool, err error)
}

// DeadLetterNotifier is notified whenever a work item exhausts its
// retry budget. Implemented by *notify.Notifier.
type DeadLetterNotifier interface {
	DeadLetter(ctx context.Context, item model.DeadLetterItem)
}

// Handler processes one leased WorkItem's payload. A nil return marks
// the item complete; a non-nil error is classified via errclass to
// decide retry vs. dead-letter.
type Handler func(ctx context.Context, item *model.WorkItem) error

// PollInterval is how often an idle pool re-checks for leasable work.
const PollInterval = 2 * time.Second

// LeaseDuration is how long a worker holds an item before another
// worker is allowed to reclaim it (e.g. after a crash).
const LeaseDuration = 5 * time.Minute

// Pool runs Concurrency goroutines, each leasing items of Kind and
// running Handler to completion, looping until ctx is cancelled. Every
// handler suspends only on context-aware I/O, never a CPU-bound loop, so
// Concurrency goroutines is the actual in-flight cap on work of this kind.
type Pool struct {
	Kind        model.WorkKind
	Concurrency int
	Store       Store
	Handler     Handler
	RetryConfig retry.Config
	Clock       clockwork.Clock
	WorkerID    string
	Log         *slog.Logger
	// Notifier is optional; when set, a dead-lettered item is reported
	// to it after Store.Fail confirms the move.
	Notifier DeadLetterNotifier
}

// Run blocks until ctx is cancelled, running Concurrency lease loops.
func (p *Pool) Run(ctx context.Context) {
	clock := p.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	log := p.Log
	if log == nil {
		log = slog.Default()
	}

	done := make(chan struct{}, p.Concurrency)
	for i := 0; i < p.Concurrency; i++ {
		go func(slot int) {
			p.loop(ctx, clock, log, slot)
			done <- struct{}{}
		}(i)
	}
	for i := 0; i < p.Concurrency; i++ {
		<-done
	}
}

func (p *Pool) loop(ctx context.Context, clock clockwork.Clock, log *slog.Logger, slot int) {
	workerID := p.WorkerID
	if workerID == "" {
		workerID = string(p.Kind)
	}
	workerID = workerID + "-" + strconv.Itoa(slot)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		item, err := p.Store.Lease(ctx, []model.WorkKind{p.Kind}, workerID, LeaseDuration)
		if err != nil {
			log.Error("worker: lease failed", "kind", p.Kind, "error", err)
			sleep(ctx, clock, PollInterval)
			continue
		}
		if item == nil {
			sleep(ctx, clock, PollInterval)
			continue
		}

		p.process(ctx, clock, log, item)
	}
}

func (p *Pool) process(ctx context.Context, clock clockwork.Clock, log *slog.Logger, item *model.WorkItem) {
	start := clock.Now()
	err := p.Handler(ctx, item)
	duration := clock.Now().Sub(start)

	if err == nil {
		metrics.WorkItemProcessedTotal.WithLabelValues(string(p.Kind), "ok").Inc()
		if cerr := p.Store.Complete(ctx, item.ID); cerr != nil {
			log.Error("worker: complete failed", "kind", p.Kind, "item", item.ID, "error", cerr)
		}
		log.Info("worker: item completed", "kind", p.Kind, "item", item.ID, "duration", duration)
		return
	}

	kind := errclass.ClassOf(err)
	metrics.WorkItemProcessedTotal.WithLabelValues(string(p.Kind), kind.String()).Inc()

	if kind == errclass.KindSemantic {
		// Not an error: the handler correctly concluded there is nothing
		// more to do for this payload.
		if cerr := p.Store.Complete(ctx, item.ID); cerr != nil {
			log.Error("worker: complete (semantic) failed", "kind", p.Kind, "item", item.ID, "error", cerr)
		}
		return
	}

	notBefore := clock.Now().Add(retry.Backoff(p.RetryConfig, item.Attempts+1))
	deadLettered, ferr := p.Store.Fail(ctx, item.ID, err, notBefore)
	if ferr != nil {
		log.Error("worker: fail failed", "kind", p.Kind, "item", item.ID, "error", ferr)
	}
	log.Warn("worker: item failed", "kind", p.Kind, "item", item.ID, "class", kind, "error", err, "attempts", item.Attempts)

	if deadLettered {
		metrics.DeadLetterTotal.WithLabelValues(string(p.Kind)).Inc()
		if p.Notifier != nil {
			p.Notifier.DeadLetter(ctx, model.DeadLetterItem{
				WorkItem:  *item,
				LastError: err.Error(),
				FailedAt:  clock.Now(),
			})
		}
	}
}

func sleep(ctx context.Context, clock clockwork.Clock, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-clock.After(d):
	}
}

