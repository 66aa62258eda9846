package failuretracker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tenantops/safety-core/internal/domain/audit"
	"github.com/tenantops/safety-core/internal/domain/failure"
	"github.com/tenantops/safety-core/internal/testutil/memstore"
)

type recordingAuditor struct {
	mu     sync.Mutex
	events []audit.Event
}

func (a *recordingAuditor) Record(_ context.Context, ev audit.Event) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, ev)
}

func (a *recordingAuditor) ofType(eventType string) []audit.Event {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []audit.Event
	for _, ev := range a.events {
		if ev.EventType == eventType {
			out = append(out, ev)
		}
	}
	return out
}

var testActor = audit.SystemActor("health-check")

func newTestTracker() (*Tracker, *memstore.Store, *recordingAuditor) {
	store := memstore.New()
	auditor := &recordingAuditor{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewTracker(store, store.Failures(), auditor, logger), store, auditor
}

func raiseReq(tenantID uuid.UUID, severity failure.Severity, message string) RaiseRequest {
	return RaiseRequest{
		TenantID: tenantID,
		Category: failure.CategoryIntegration,
		Source:   "Google",
		Severity: severity,
		Message:  message,
		Actor:    testActor,
	}
}

func TestRaise_CreatesThenDeduplicates(t *testing.T) {
	tracker, store, auditor := newTestTracker()
	ctx := context.Background()
	tenantID := uuid.New()

	first, err := tracker.Raise(ctx, raiseReq(tenantID, failure.SeverityWarning, "token expired"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeCreated, first.Outcome)

	again, err := tracker.Raise(ctx, raiseReq(tenantID, failure.SeverityWarning, "token expired"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnchanged, again.Outcome)
	assert.Equal(t, first.Failure.ID, again.Failure.ID)

	// source is normalized, so a differently cased source hits the same row
	req := raiseReq(tenantID, failure.SeverityCritical, "token revoked")
	req.Source = " GOOGLE "
	updated, err := tracker.Raise(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, OutcomeUpdated, updated.Outcome)
	assert.Equal(t, first.Failure.ID, updated.Failure.ID)
	assert.True(t, updated.Failure.IsCritical())

	assert.Equal(t, 1, store.ActiveFailureCount(failure.NewKey(tenantID, "google", failure.CategoryIntegration)))
	assert.Len(t, auditor.ofType(audit.EventFailureDetected), 1)
	assert.Len(t, auditor.ofType(audit.EventFailureUpdated), 1)
}

func TestRaise_ConcurrentRaisesKeepOneActiveRow(t *testing.T) {
	tracker, store, _ := newTestTracker()
	tenantID := uuid.New()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := tracker.Raise(context.Background(), raiseReq(tenantID, failure.SeverityWarning, "timeout"))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, store.ActiveFailureCount(failure.NewKey(tenantID, "google", failure.CategoryIntegration)))
}

// racingRepo hides the active row from the first lookup, as if another
// transaction inserted it after the lock was taken
type racingRepo struct {
	failure.Repository
	hidden bool
}

func (r *racingRepo) WithTx(pgx.Tx) failure.Repository { return r }

func (r *racingRepo) FindActiveForUpdate(ctx context.Context, key failure.Key) ([]*failure.Failure, error) {
	if !r.hidden {
		r.hidden = true
		return nil, nil
	}
	return r.Repository.FindActiveForUpdate(ctx, key)
}

func TestRaise_RetriesOnceAfterLosingInsertRace(t *testing.T) {
	store := memstore.New()
	tenantID := uuid.New()
	key := failure.NewKey(tenantID, "google", failure.CategoryIntegration)
	winner := failure.New(key, failure.SeverityWarning, "timeout", nil)
	require.NoError(t, store.Failures().Insert(context.Background(), winner))

	auditor := &recordingAuditor{}
	tracker := NewTracker(store, &racingRepo{Repository: store.Failures()}, auditor, slog.New(slog.NewTextHandler(io.Discard, nil)))

	res, err := tracker.Raise(context.Background(), raiseReq(tenantID, failure.SeverityWarning, "timeout"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnchanged, res.Outcome)
	assert.Equal(t, winner.ID, res.Failure.ID)
	assert.Equal(t, 1, store.ActiveFailureCount(key))
	assert.Empty(t, auditor.ofType(audit.EventFailureDetected))
}

func TestRaise_Validation(t *testing.T) {
	tracker, _, _ := newTestTracker()
	ctx := context.Background()

	tests := []struct {
		name    string
		mutate  func(r *RaiseRequest)
		wantErr error
	}{
		{"missing tenant", func(r *RaiseRequest) { r.TenantID = uuid.Nil }, failure.ErrMissingTenant},
		{"blank source", func(r *RaiseRequest) { r.Source = "  " }, failure.ErrMissingSource},
		{"bad category", func(r *RaiseRequest) { r.Category = "network" }, failure.ErrInvalidCategory},
		{"bad severity", func(r *RaiseRequest) { r.Severity = "fatal" }, failure.ErrInvalidSeverity},
		{"missing actor", func(r *RaiseRequest) { r.Actor = audit.Actor{} }, audit.ErrInvalidActorType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := raiseReq(uuid.New(), failure.SeverityInfo, "x")
			tt.mutate(&req)
			_, err := tracker.Raise(ctx, req)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestResolve_ClosesActiveAndStartsNewCycle(t *testing.T) {
	tracker, store, auditor := newTestTracker()
	ctx := context.Background()
	tenantID := uuid.New()

	first, err := tracker.Raise(ctx, raiseReq(tenantID, failure.SeverityCritical, "down"))
	require.NoError(t, err)

	ids, err := tracker.Resolve(ctx, tenantID, "google", failure.CategoryIntegration, testActor)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{first.Failure.ID}, ids)
	assert.Equal(t, 0, store.ActiveFailureCount(first.Failure.Key()))
	assert.Len(t, auditor.ofType(audit.EventFailureResolved), 1)

	// nothing left to resolve
	ids, err = tracker.Resolve(ctx, tenantID, "google", failure.CategoryIntegration, testActor)
	require.NoError(t, err)
	assert.Empty(t, ids)

	second, err := tracker.Raise(ctx, raiseReq(tenantID, failure.SeverityCritical, "down"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeCreated, second.Outcome)
	assert.NotEqual(t, first.Failure.ID, second.Failure.ID)
}

func TestCheckBlockers_OnlyCriticalInCategory(t *testing.T) {
	tracker, _, _ := newTestTracker()
	ctx := context.Background()
	tenantID := uuid.New()

	_, err := tracker.Raise(ctx, raiseReq(tenantID, failure.SeverityWarning, "slow"))
	require.NoError(t, err)
	_, err = tracker.Raise(ctx, RaiseRequest{
		TenantID: tenantID,
		Category: failure.CategoryPayment,
		Source:   "stripe",
		Severity: failure.SeverityCritical,
		Message:  "declines",
		Actor:    testActor,
	})
	require.NoError(t, err)

	integration := failure.CategoryIntegration
	blockers, err := tracker.CheckBlockers(ctx, tenantID, &integration)
	require.NoError(t, err)
	assert.Empty(t, blockers)

	payment := failure.CategoryPayment
	blockers, err = tracker.CheckBlockers(ctx, tenantID, &payment)
	require.NoError(t, err)
	require.Len(t, blockers, 1)
	assert.Equal(t, "stripe", blockers[0].Source)

	all, err := tracker.ListActive(ctx, tenantID)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	other, err := tracker.CheckBlockers(ctx, uuid.New(), nil)
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestCheckBlockers_PropagatesStoreError(t *testing.T) {
	tracker, store, _ := newTestTracker()
	store.SetFaults(memstore.Faults{FailureList: errors.New("connection refused")})

	_, err := tracker.CheckBlockers(context.Background(), uuid.New(), nil)
	assert.Error(t, err)
}
