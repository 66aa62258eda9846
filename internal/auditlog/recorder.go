// Package auditlog writes the append-only audit trail. Record never fails the
// caller: events that cannot be stored are retried from a bounded in-memory
// queue and end up on the audit dead letter topic when retries run out.
package auditlog

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/tenantops/safety-core/internal/config"
	"github.com/tenantops/safety-core/internal/domain/audit"
	"github.com/tenantops/safety-core/internal/metrics"
)

// Dead letter reasons
const (
	ReasonInvalid      = "invalid_event"
	ReasonQueueFull    = "retry_queue_full"
	ReasonMaxRetries   = "max_retries_exceeded"
	ReasonShuttingDown = "shutdown"
)

const maxListLimit = 500

// DeadLetterPublisher receives audit events that could not be stored
type DeadLetterPublisher interface {
	PublishToDLQ(ctx context.Context, key string, originalMessageValue []byte, reason string) error
}

type pending struct {
	event    *audit.Event
	attempts int
}

type Recorder struct {
	store        audit.Repository
	deadLetter   DeadLetterPublisher
	queue        chan *pending
	logger       *slog.Logger
	writeTimeout time.Duration
	interval     time.Duration
	batchSize    int
	maxAttempts  int
}

func NewRecorder(cfg *config.AuditConfig, store audit.Repository, deadLetter DeadLetterPublisher, logger *slog.Logger) *Recorder {
	return &Recorder{
		store:        store,
		deadLetter:   deadLetter,
		queue:        make(chan *pending, cfg.RetryQueueSize),
		logger:       logger.With("component", "audit_log"),
		writeTimeout: cfg.WriteTimeout,
		interval:     cfg.RetryInterval,
		batchSize:    cfg.RetryBatchSize,
		maxAttempts:  cfg.MaxRetryAttempts,
	}
}

// Record validates, redacts and stores ev. It never returns an error; the
// business operation that produced ev has already committed.
func (r *Recorder) Record(ctx context.Context, ev audit.Event) {
	ev.Metadata = audit.Redact(ev.Metadata)
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}

	if err := ev.Validate(); err != nil {
		r.logger.Error("Rejected invalid audit event", "event_type", ev.EventType, "actor_id", ev.ActorID, "error", err)
		metrics.AuditWrites.WithLabelValues("invalid").Inc()
		r.publishDeadLetter(ctx, &ev, ReasonInvalid)
		return
	}

	// the caller's deadline must not cut the write short
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.writeTimeout)
	defer cancel()

	if err := r.store.Insert(writeCtx, &ev); err != nil {
		r.logger.Warn("Audit write failed, queueing for retry",
			"event_id", ev.ID.String(),
			"event_type", ev.EventType,
			"error", err)
		r.enqueue(ctx, &pending{event: &ev, attempts: 1})
		return
	}
	metrics.AuditWrites.WithLabelValues("stored").Inc()
}

// List returns a tenant's audit timeline in insertion order
func (r *Recorder) List(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]*audit.Event, error) {
	if limit <= 0 || limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return r.store.ListByTenant(ctx, tenantID, limit, offset)
}

// Pending returns the number of events waiting for a retry
func (r *Recorder) Pending() int {
	return len(r.queue)
}

func (r *Recorder) enqueue(ctx context.Context, p *pending) {
	select {
	case r.queue <- p:
		metrics.AuditWrites.WithLabelValues("queued").Inc()
		metrics.AuditRetryQueueDepth.Set(float64(len(r.queue)))
	default:
		r.logger.Error("Audit retry queue full", "event_id", p.event.ID.String(), "capacity", cap(r.queue))
		r.publishDeadLetter(ctx, p.event, ReasonQueueFull)
	}
}

// Run drains the retry queue on every tick until ctx is canceled, then makes a
// last attempt on whatever is left
func (r *Recorder) Run(ctx context.Context) {
	r.logger.Info("Starting audit retry worker",
		"interval", r.interval.String(),
		"batch_size", r.batchSize,
		"max_attempts", r.maxAttempts,
	)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.flush()
			r.logger.Info("Audit retry worker stopped")
			return
		case <-ticker.C:
			r.retryBatch(ctx)
		}
	}
}

// retryBatch retries at most batchSize queued events, each at most once per
// call. Events that fail again go to the back of the queue for the next tick.
func (r *Recorder) retryBatch(ctx context.Context) {
	n := min(r.batchSize, len(r.queue))
	for i := 0; i < n; i++ {
		var p *pending
		select {
		case p = <-r.queue:
		default:
			metrics.AuditRetryQueueDepth.Set(0)
			return
		}

		writeCtx, cancel := context.WithTimeout(ctx, r.writeTimeout)
		err := r.store.Insert(writeCtx, p.event)
		cancel()
		if err == nil {
			metrics.AuditWrites.WithLabelValues("retried").Inc()
			r.logger.Info("Stored audit event on retry", "event_id", p.event.ID.String(), "attempts", p.attempts+1)
			continue
		}

		p.attempts++
		if p.attempts >= r.maxAttempts {
			r.logger.Error("Audit event exhausted retries",
				"event_id", p.event.ID.String(),
				"attempts", p.attempts,
				"error", err)
			r.publishDeadLetter(ctx, p.event, ReasonMaxRetries)
			continue
		}
		r.enqueue(ctx, p)
	}
	metrics.AuditRetryQueueDepth.Set(float64(len(r.queue)))
}

// flush makes one final write attempt for every queued event during shutdown
func (r *Recorder) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), r.writeTimeout)
	defer cancel()

	for {
		select {
		case p := <-r.queue:
			if err := r.store.Insert(ctx, p.event); err != nil {
				r.publishDeadLetter(ctx, p.event, ReasonShuttingDown)
			}
		default:
			metrics.AuditRetryQueueDepth.Set(0)
			return
		}
	}
}

// publishDeadLetter hands ev to the dead letter topic. If that fails too the
// event is written to the error log in full so it can be recovered from there.
func (r *Recorder) publishDeadLetter(ctx context.Context, ev *audit.Event, reason string) {
	metrics.AuditLost.WithLabelValues(reason).Inc()

	payload, err := json.Marshal(ev)
	if err == nil && r.deadLetter != nil {
		key := "platform"
		if ev.TenantID != nil {
			key = ev.TenantID.String()
		}
		dlqCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.writeTimeout)
		err = r.deadLetter.PublishToDLQ(dlqCtx, key, payload, reason)
		cancel()
		if err == nil {
			return
		}
	}

	r.logger.Error("Audit event lost",
		"reason", reason,
		"event", string(payload),
		"error", err)
}
