package auditlog

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tenantops/safety-core/internal/config"
	"github.com/tenantops/safety-core/internal/domain/audit"
)

type MockStore struct {
	mock.Mock
}

func (m *MockStore) Insert(ctx context.Context, event *audit.Event) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockStore) ListByTenant(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]*audit.Event, error) {
	args := m.Called(ctx, tenantID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*audit.Event), args.Error(1)
}

type MockDeadLetter struct {
	mock.Mock
}

func (m *MockDeadLetter) PublishToDLQ(ctx context.Context, key string, value []byte, reason string) error {
	args := m.Called(ctx, key, value, reason)
	return args.Error(0)
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func newTestRecorder(store *MockStore, dlq *MockDeadLetter, queueSize int) *Recorder {
	cfg := &config.AuditConfig{
		RetryQueueSize:   queueSize,
		RetryInterval:    time.Millisecond,
		RetryBatchSize:   10,
		MaxRetryAttempts: 2,
		WriteTimeout:     time.Second,
	}
	return NewRecorder(cfg, store, dlq, newTestLogger())
}

func adminEvent(tenantID uuid.UUID, metadata map[string]any) audit.Event {
	return audit.NewEvent(audit.TenantRef(tenantID), audit.Actor{Type: audit.ActorTypeAdmin, ID: "admin-1"},
		audit.EventWalletDebited, audit.EntityWalletTransaction, "tx-1", metadata)
}

func TestRecorder_Record_RedactsBeforeStoring(t *testing.T) {
	store := new(MockStore)
	recorder := newTestRecorder(store, new(MockDeadLetter), 4)

	var stored *audit.Event
	store.On("Insert", mock.Anything, mock.AnythingOfType("*audit.Event")).
		Run(func(args mock.Arguments) { stored = args.Get(1).(*audit.Event) }).
		Return(nil).Once()

	recorder.Record(context.Background(), adminEvent(uuid.New(), map[string]any{
		"user": map[string]any{"token": "abc", "nested": map[string]any{"password": "x", "plan": "pro"}},
	}))

	require.NotNil(t, stored)
	assert.NotEqual(t, uuid.Nil, stored.ID)
	assert.False(t, stored.CreatedAt.IsZero())
	user := stored.Metadata["user"].(map[string]any)
	assert.Equal(t, audit.RedactedMarker, user["token"])
	nested := user["nested"].(map[string]any)
	assert.Equal(t, audit.RedactedMarker, nested["password"])
	assert.Equal(t, "pro", nested["plan"])
	assert.Equal(t, 0, recorder.Pending())
	store.AssertExpectations(t)
}

func TestRecorder_Record_WriteFailureIsQueuedNotReturned(t *testing.T) {
	store := new(MockStore)
	recorder := newTestRecorder(store, new(MockDeadLetter), 4)

	store.On("Insert", mock.Anything, mock.Anything).Return(errors.New("mongo down")).Once()

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // a canceled caller context must not prevent the attempt
	recorder.Record(ctx, adminEvent(uuid.New(), nil))

	assert.Equal(t, 1, recorder.Pending())
	store.AssertExpectations(t)
}

func TestRecorder_Record_InvalidEventIsDeadLettered(t *testing.T) {
	store := new(MockStore)
	dlq := new(MockDeadLetter)
	recorder := newTestRecorder(store, dlq, 4)

	dlq.On("PublishToDLQ", mock.Anything, "platform", mock.Anything, ReasonInvalid).Return(nil).Once()

	recorder.Record(context.Background(), audit.Event{EventType: audit.EventFlagChanged, EntityType: audit.EntityControlFlag})

	store.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
	dlq.AssertExpectations(t)
}

func TestRecorder_Record_QueueOverflowGoesToDeadLetter(t *testing.T) {
	store := new(MockStore)
	dlq := new(MockDeadLetter)
	recorder := newTestRecorder(store, dlq, 1)
	tenantID := uuid.New()

	store.On("Insert", mock.Anything, mock.Anything).Return(errors.New("mongo down"))
	dlq.On("PublishToDLQ", mock.Anything, tenantID.String(), mock.MatchedBy(func(payload []byte) bool {
		var ev audit.Event
		return json.Unmarshal(payload, &ev) == nil && ev.EventType == audit.EventWalletDebited
	}), ReasonQueueFull).Return(nil).Once()

	recorder.Record(context.Background(), adminEvent(tenantID, nil))
	recorder.Record(context.Background(), adminEvent(tenantID, nil))

	assert.Equal(t, 1, recorder.Pending())
	dlq.AssertExpectations(t)
}

func TestRecorder_RetryBatch(t *testing.T) {
	t.Run("stored on retry", func(t *testing.T) {
		store := new(MockStore)
		recorder := newTestRecorder(store, new(MockDeadLetter), 4)

		store.On("Insert", mock.Anything, mock.Anything).Return(errors.New("timeout")).Once()
		store.On("Insert", mock.Anything, mock.Anything).Return(nil).Once()

		recorder.Record(context.Background(), adminEvent(uuid.New(), nil))
		require.Equal(t, 1, recorder.Pending())

		recorder.retryBatch(context.Background())
		assert.Equal(t, 0, recorder.Pending())
		store.AssertExpectations(t)
	})

	t.Run("exhausted retries are dead-lettered", func(t *testing.T) {
		store := new(MockStore)
		dlq := new(MockDeadLetter)
		recorder := newTestRecorder(store, dlq, 4)

		store.On("Insert", mock.Anything, mock.Anything).Return(errors.New("still down"))
		dlq.On("PublishToDLQ", mock.Anything, mock.Anything, mock.Anything, ReasonMaxRetries).Return(nil).Once()

		recorder.Record(context.Background(), adminEvent(uuid.New(), nil))
		recorder.retryBatch(context.Background())

		assert.Equal(t, 0, recorder.Pending())
		dlq.AssertExpectations(t)
	})

	t.Run("one attempt per event per tick", func(t *testing.T) {
		store := new(MockStore)
		dlq := new(MockDeadLetter)
		recorder := newTestRecorder(store, dlq, 4)
		recorder.maxAttempts = 5

		store.On("Insert", mock.Anything, mock.Anything).Return(errors.New("still down"))
		dlq.On("PublishToDLQ", mock.Anything, mock.Anything, mock.Anything, ReasonMaxRetries).Return(nil).Twice()

		recorder.Record(context.Background(), adminEvent(uuid.New(), nil))
		recorder.Record(context.Background(), adminEvent(uuid.New(), nil))
		store.AssertNumberOfCalls(t, "Insert", 2)

		recorder.retryBatch(context.Background())
		store.AssertNumberOfCalls(t, "Insert", 4)
		assert.Equal(t, 2, recorder.Pending())
		dlq.AssertNotCalled(t, "PublishToDLQ", mock.Anything, mock.Anything, mock.Anything, mock.Anything)

		recorder.retryBatch(context.Background())
		recorder.retryBatch(context.Background())
		assert.Equal(t, 2, recorder.Pending())
		dlq.AssertNotCalled(t, "PublishToDLQ", mock.Anything, mock.Anything, mock.Anything, mock.Anything)

		// fifth attempt
		recorder.retryBatch(context.Background())
		store.AssertNumberOfCalls(t, "Insert", 10)
		assert.Equal(t, 0, recorder.Pending())
		dlq.AssertExpectations(t)
	})
}

func TestRecorder_Run_FlushesOnShutdown(t *testing.T) {
	store := new(MockStore)
	dlq := new(MockDeadLetter)
	recorder := newTestRecorder(store, dlq, 4)
	recorder.interval = time.Hour

	store.On("Insert", mock.Anything, mock.Anything).Return(errors.New("down")).Once()
	store.On("Insert", mock.Anything, mock.Anything).Return(nil).Once()

	recorder.Record(context.Background(), adminEvent(uuid.New(), nil))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		recorder.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("retry worker did not stop")
	}
	assert.Equal(t, 0, recorder.Pending())
	store.AssertExpectations(t)
	dlq.AssertNotCalled(t, "PublishToDLQ", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRecorder_List_ClampsLimit(t *testing.T) {
	store := new(MockStore)
	recorder := newTestRecorder(store, new(MockDeadLetter), 4)
	tenantID := uuid.New()

	store.On("ListByTenant", mock.Anything, tenantID, maxListLimit, 0).Return([]*audit.Event{}, nil).Once()

	events, err := recorder.List(context.Background(), tenantID, 0, -5)
	require.NoError(t, err)
	assert.Empty(t, events)
	store.AssertExpectations(t)
}
