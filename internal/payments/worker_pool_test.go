package payments

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tenantops/safety-core/internal/config"
	"github.com/tenantops/safety-core/internal/domain/shared"
)

func TestPooledProcessor_ReturnsBaseResult(t *testing.T) {
	base := &MockProcessor{}
	pool, err := NewPooledProcessor(base, &config.WorkerPoolConfig{Size: 2}, newTestLogger())
	require.NoError(t, err)
	defer pool.Shutdown()

	ev := &shared.PaymentEvent{EventID: "evt_1", TenantID: uuid.New()}
	base.On("Process", mock.Anything, mock.MatchedBy(func(e *shared.PaymentEvent) bool { return e.EventID == "evt_1" })).Return(nil).Once()
	assert.NoError(t, pool.Process(context.Background(), ev))

	processErr := errors.New("processing error")
	base.On("Process", mock.Anything, mock.Anything).Return(processErr).Once()
	assert.ErrorIs(t, pool.Process(context.Background(), ev), processErr)

	assert.Equal(t, 2, pool.Capacity())
	base.AssertExpectations(t)
}

type slowProcessor struct {
	current atomic.Int32
	peak    atomic.Int32
}

func (p *slowProcessor) Process(context.Context, *shared.PaymentEvent) error {
	n := p.current.Add(1)
	for {
		peak := p.peak.Load()
		if n <= peak || p.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	time.Sleep(20 * time.Millisecond)
	p.current.Add(-1)
	return nil
}

func TestPooledProcessor_BoundsConcurrency(t *testing.T) {
	base := &slowProcessor{}
	pool, err := NewPooledProcessor(base, &config.WorkerPoolConfig{Size: 3}, newTestLogger())
	require.NoError(t, err)
	defer pool.Shutdown()

	var wg sync.WaitGroup
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, pool.Process(context.Background(), &shared.PaymentEvent{TenantID: uuid.New()}))
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, base.peak.Load(), int32(3))
}
