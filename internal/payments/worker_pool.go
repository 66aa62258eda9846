package payments

import (
	"context"
	"log/slog"

	"github.com/panjf2000/ants/v2"
	"github.com/tenantops/safety-core/internal/config"
	"github.com/tenantops/safety-core/internal/domain/shared"
)

// PooledProcessor bounds how many payment events are applied at once
type PooledProcessor struct {
	base   Processor
	pool   *ants.Pool
	logger *slog.Logger
}

func NewPooledProcessor(base Processor, cfg *config.WorkerPoolConfig, logger *slog.Logger) (*PooledProcessor, error) {
	pool, err := ants.NewPool(cfg.Size)
	if err != nil {
		return nil, err
	}
	return &PooledProcessor{
		base:   base,
		pool:   pool,
		logger: logger,
	}, nil
}

// Process runs the event on a pool worker and waits for its result
func (p *PooledProcessor) Process(ctx context.Context, event *shared.PaymentEvent) error {
	resultChan := make(chan error, 1)
	eventCopy := *event

	err := p.pool.Submit(func() {
		resultChan <- p.base.Process(ctx, &eventCopy)
	})
	if err != nil {
		p.logger.Error("Failed to submit payment event to worker pool", "event_id", event.EventID, "error", err)
		return err
	}

	select {
	case err := <-resultChan:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *PooledProcessor) Shutdown() {
	p.logger.Info("Shutting down worker pool", "running_workers", p.pool.Running())
	p.pool.Release()
}

func (p *PooledProcessor) Running() int {
	return p.pool.Running()
}

func (p *PooledProcessor) Capacity() int {
	return p.pool.Cap()
}
