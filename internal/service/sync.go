package service

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"docsync/internal/delivery"
	"docsync/internal/lock"
	"docsync/internal/logger"
	"docsync/internal/model"
)

// SyncReport summarises one sync cycle.
type SyncReport struct {
	Total     int           `json:"total"`
	Delivered int           `json:"delivered"`
	Failed    int           `json:"failed"`
	Skipped   bool          `json:"skipped"`
	Duration  time.Duration `json:"duration_ns"`
}

// Syncer is the trigger surface's view of the sync engine.
type Syncer interface {
	RunSync(ctx context.Context) (SyncReport, error)
}

// SyncEngine delivers pending documents and removes them once accepted.
type SyncEngine struct {
	docs      DocumentService
	deliverer delivery.Deliverer
	guard     lock.Guard
	metrics   *SyncMetrics
	log       *logger.Logger
	tracer    trace.Tracer
}

var _ Syncer = (*SyncEngine)(nil)

// SyncOption customises a SyncEngine.
type SyncOption func(*SyncEngine)

// WithGuard replaces the process-local in-flight guard.
func WithGuard(g lock.Guard) SyncOption {
	return func(e *SyncEngine) { e.guard = g }
}

// WithSyncMetrics records cycle metrics.
func WithSyncMetrics(m *SyncMetrics) SyncOption {
	return func(e *SyncEngine) { e.metrics = m }
}

// WithSyncLogger sets the structured logger.
func WithSyncLogger(l *logger.Logger) SyncOption {
	return func(e *SyncEngine) { e.log = l }
}

// NewSyncEngine wires the engine to the durable store and a delivery client.
func NewSyncEngine(docs DocumentService, d delivery.Deliverer, opts ...SyncOption) *SyncEngine {
	e := &SyncEngine{
		docs:      docs,
		deliverer: d,
		guard:     lock.NewLocal(),
		log:       logger.Nop(),
		tracer:    otel.Tracer("docsync/internal/service"),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = e.log.With("sync")
	return e
}

// RunSync runs one cycle over every pending document, in listing order.
// A document is deleted only after the deliverer reports Accepted; any
// failure leaves it pending for the next trigger and the cycle moves on.
// When another cycle holds the guard, RunSync returns a skipped report.
func (e *SyncEngine) RunSync(ctx context.Context) (SyncReport, error) {
	start := time.Now()
	ctx, span := e.tracer.Start(ctx, "sync.cycle")
	defer span.End()

	release, ok, err := e.guard.TryAcquire(ctx)
	if err != nil {
		// Guard errors never block a cycle. A partial hold (ok with an
		// error) is kept; nothing held means the cycle runs unguarded.
		e.log.Warn("sync_guard_unavailable", err, nil)
		if !ok {
			release, ok = func() {}, true
		}
	}
	if !ok {
		e.metrics.cycle("skipped")
		e.log.Info("sync_cycle_skipped", map[string]any{"reason": "cycle already running"})
		span.SetAttributes(attribute.Bool("sync.skipped", true))
		return SyncReport{Skipped: true}, nil
	}
	defer release()

	pending, err := e.docs.ListPending(ctx)
	if err != nil {
		e.metrics.cycle("failed")
		e.log.Error("sync_scan_failed", err, nil)
		span.RecordError(err)
		span.SetStatus(codes.Error, "list pending")
		return SyncReport{}, err
	}

	report := SyncReport{Total: len(pending)}
	e.metrics.setPending(len(pending))
	e.log.Info("sync_cycle_start", map[string]any{"pending": len(pending)})

	for _, doc := range pending {
		if err := ctx.Err(); err != nil {
			report.Duration = time.Since(start)
			e.metrics.cycle("failed")
			return report, err
		}

		if e.deliverOne(ctx, doc) {
			report.Delivered++
		} else {
			report.Failed++
		}
	}

	report.Duration = time.Since(start)
	e.metrics.cycle("completed")
	span.SetAttributes(
		attribute.Int("sync.total", report.Total),
		attribute.Int("sync.delivered", report.Delivered),
		attribute.Int("sync.failed", report.Failed),
	)
	e.log.Info("sync_cycle_done", map[string]any{
		"total":       report.Total,
		"delivered":   report.Delivered,
		"failed":      report.Failed,
		"duration_ms": report.Duration.Milliseconds(),
	})
	return report, nil
}

// deliverOne reports whether doc was accepted. Errors stay inside the cycle.
func (e *SyncEngine) deliverOne(ctx context.Context, doc model.Document) bool {
	ctx, span := e.tracer.Start(ctx, "sync.deliver", trace.WithAttributes(
		attribute.String("document.id", doc.ID),
		attribute.String("document.file_name", doc.FileName),
	))
	defer span.End()

	fields := map[string]any{"document_id": doc.ID, "file_name": doc.FileName}

	outcome, err := e.deliverer.Deliver(ctx, doc.Metadata, doc.Payload)
	if err != nil || outcome != delivery.Accepted {
		e.metrics.failedOne()
		e.log.Warn("document_delivery_failed", err, fields)
		if err != nil {
			span.RecordError(err)
		}
		span.SetStatus(codes.Error, "delivery rejected")
		return false
	}

	e.metrics.deliveredOne()
	if err := e.docs.Delete(ctx, doc.ID); err != nil {
		// Still pending; the next cycle delivers it again.
		e.log.Error("document_cleanup_failed", err, fields)
		span.RecordError(err)
	} else {
		e.log.Info("document_delivered", fields)
	}
	return true
}
