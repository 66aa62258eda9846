package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tenantops/safety-core/internal/domain/shared"
	"github.com/tenantops/safety-core/internal/metrics"
	"github.com/tenantops/safety-core/internal/platform/messaging/producers"
)

// EventHandler handles payment event messages from Kafka
type EventHandler struct {
	processor  Processor
	deadLetter DeadLetterPublisher
	logger     *slog.Logger
}

func NewEventHandler(logger *slog.Logger, processor Processor, deadLetter DeadLetterPublisher) *EventHandler {
	return &EventHandler{
		processor:  processor,
		deadLetter: deadLetter,
		logger:     logger,
	}
}

// HandleMessage decodes and applies one message. Returning an error makes the
// consumer redeliver it.
func (h *EventHandler) HandleMessage(ctx context.Context, key []byte, value []byte) error {
	var event shared.PaymentEvent
	if err := json.Unmarshal(value, &event); err != nil {
		h.logger.Error("Failed to unmarshal payment event", "error", err, "message_key", string(key))
		metrics.PaymentEvents.WithLabelValues("unknown", "undecodable").Inc()
		return h.deadLetterMessage(ctx, key, value, fmt.Sprintf("failed to unmarshal payment event: %s", err))
	}

	logger := h.logger
	if event.CorrelationID != "" {
		logger = h.logger.With("correlation_id", event.CorrelationID)
	}
	logger.Info("Received payment event", "event_id", event.EventID, "tenant_id", event.TenantID.String(), "type", string(event.Type), "amount", event.Amount)

	err := h.processor.Process(ctx, &event)
	switch {
	case err == nil:
		metrics.PaymentEvents.WithLabelValues(string(event.Type), "applied").Inc()
		return nil
	case errors.Is(err, ErrRejected):
		metrics.PaymentEvents.WithLabelValues(string(event.Type), "rejected").Inc()
		return h.deadLetterMessage(ctx, key, value, err.Error())
	}

	metrics.PaymentEvents.WithLabelValues(string(event.Type), "retry").Inc()
	return fmt.Errorf("processing payment event %s failed: %w", event.EventID, err)
}

func (h *EventHandler) deadLetterMessage(ctx context.Context, key, value []byte, reason string) error {
	err := producers.ErrDLQDisabled
	if h.deadLetter != nil {
		err = h.deadLetter.PublishToDLQ(ctx, string(key), value, reason)
	}
	if errors.Is(err, producers.ErrDLQDisabled) {
		// no dead letter topic configured; redelivering would loop forever
		h.logger.Error("Dropping unprocessable payment event", "message_key", string(key), "reason", reason)
		return nil
	}
	if err != nil {
		h.logger.Error("Failed to publish payment event to DLQ", "dlq_error", err, "message_key", string(key), "reason", reason)
		return fmt.Errorf("failed to dead-letter payment event: %w", err)
	}
	h.logger.Info("Published unprocessable payment event to DLQ", "message_key", string(key), "reason", reason)
	return nil
}
