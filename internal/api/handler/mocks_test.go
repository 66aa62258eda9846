package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tenantops/safety-core/internal/api/middleware"
	"github.com/tenantops/safety-core/internal/controlgate"
	"github.com/tenantops/safety-core/internal/domain/audit"
	"github.com/tenantops/safety-core/internal/domain/control"
	"github.com/tenantops/safety-core/internal/domain/failure"
	"github.com/tenantops/safety-core/internal/domain/wallet"
	"github.com/tenantops/safety-core/internal/failuretracker"
	"github.com/tenantops/safety-core/internal/ledger"
)

var testAdmin = audit.Actor{Type: audit.ActorTypeAdmin, ID: "ops-1"}

type MockLedgerService struct {
	mock.Mock
}

func (m *MockLedgerService) Credit(ctx context.Context, req ledger.Request) (*ledger.Result, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.Result), args.Error(1)
}

func (m *MockLedgerService) Debit(ctx context.Context, req ledger.Request) (*ledger.Result, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.Result), args.Error(1)
}

func (m *MockLedgerService) GetBalance(ctx context.Context, tenantID uuid.UUID) (int64, error) {
	args := m.Called(ctx, tenantID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockLedgerService) HasTransactionType(ctx context.Context, tenantID uuid.UUID, reasonTag string) (bool, error) {
	args := m.Called(ctx, tenantID, reasonTag)
	return args.Bool(0), args.Error(1)
}

func (m *MockLedgerService) ListTransactions(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]*wallet.Transaction, error) {
	args := m.Called(ctx, tenantID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*wallet.Transaction), args.Error(1)
}

func (m *MockLedgerService) Reconcile(ctx context.Context, tenantID uuid.UUID, actor audit.Actor) (*ledger.Reconciliation, error) {
	args := m.Called(ctx, tenantID, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*ledger.Reconciliation), args.Error(1)
}

type MockControlService struct {
	mock.Mock
}

func (m *MockControlService) ToggleGlobal(ctx context.Context, key control.FlagKey, value bool, actor audit.Actor, reason string) (*control.Flag, error) {
	args := m.Called(ctx, key, value, actor, reason)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*control.Flag), args.Error(1)
}

func (m *MockControlService) ToggleTenant(ctx context.Context, tenantID uuid.UUID, key control.FlagKey, value bool, actor audit.Actor, reason string) (*control.Flag, error) {
	args := m.Called(ctx, tenantID, key, value, actor, reason)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*control.Flag), args.Error(1)
}

func (m *MockControlService) CheckAction(ctx context.Context, tenantID uuid.UUID, action control.Action) error {
	return m.Called(ctx, tenantID, action).Error(0)
}

func (m *MockControlService) Snapshot() *controlgate.Snapshot {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).(*controlgate.Snapshot)
}

type MockFailureService struct {
	mock.Mock
}

func (m *MockFailureService) Raise(ctx context.Context, req failuretracker.RaiseRequest) (*failuretracker.RaiseResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*failuretracker.RaiseResult), args.Error(1)
}

func (m *MockFailureService) Resolve(ctx context.Context, tenantID uuid.UUID, source string, category failure.Category, actor audit.Actor) ([]uuid.UUID, error) {
	args := m.Called(ctx, tenantID, source, category, actor)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]uuid.UUID), args.Error(1)
}

func (m *MockFailureService) ListActive(ctx context.Context, tenantID uuid.UUID) ([]*failure.Failure, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*failure.Failure), args.Error(1)
}

type MockAuditService struct {
	mock.Mock
}

func (m *MockAuditService) List(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]*audit.Event, error) {
	args := m.Called(ctx, tenantID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*audit.Event), args.Error(1)
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// setupTestRouter mounts routes behind RequireActor like the real router does
func setupTestRouter() (*gin.Engine, *gin.RouterGroup) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	return r, r.Group("", middleware.RequireActor())
}

// doRequest sends body as JSON with the admin actor headers
func doRequest(t *testing.T, r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			reader = bytes.NewBufferString(b)
		default:
			payload, err := json.Marshal(b)
			require.NoError(t, err)
			reader = bytes.NewBuffer(payload)
		}
	}
	req, err := http.NewRequest(method, path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(middleware.ActorTypeHeader, string(testAdmin.Type))
	req.Header.Set(middleware.ActorIDHeader, testAdmin.ID)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

// decodeData unmarshals the response envelope and its data field into out
func decodeData(t *testing.T, rr *httptest.ResponseRecorder, out any) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	if out != nil {
		require.NotNil(t, resp.Data, "'data' field should not be nil")
		dataBytes, err := json.Marshal(resp.Data)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(dataBytes, out))
	}
	return resp
}
