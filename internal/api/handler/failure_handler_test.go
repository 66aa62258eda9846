package handler

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tenantops/safety-core/internal/domain/failure"
	"github.com/tenantops/safety-core/internal/failuretracker"
)

func newFailureRouter(svc *MockFailureService) *gin.Engine {
	r, g := setupTestRouter()
	h := NewFailureHandler(newTestLogger(), svc)
	g.GET("/tenants/:tenant_id/failures", h.ListActive)
	g.POST("/tenants/:tenant_id/failures", h.Raise)
	g.POST("/tenants/:tenant_id/failures/resolve", h.Resolve)
	return r
}

func TestFailureHandler_Raise(t *testing.T) {
	tenantID := uuid.New()
	path := fmt.Sprintf("/tenants/%s/failures", tenantID)
	key := failure.NewKey(tenantID, "whatsapp", failure.CategoryIntegration)

	t.Run("Created", func(t *testing.T) {
		svc := new(MockFailureService)
		f := failure.New(key, failure.SeverityCritical, "token expired", nil)
		svc.On("Raise", mock.Anything, failuretracker.RaiseRequest{
			TenantID: tenantID,
			Category: failure.CategoryIntegration,
			Source:   "whatsapp",
			Severity: failure.SeverityCritical,
			Message:  "token expired",
			Actor:    testAdmin,
		}).Return(&failuretracker.RaiseResult{Failure: f, Outcome: failuretracker.OutcomeCreated}, nil)

		rr := doRequest(t, newFailureRouter(svc), http.MethodPost, path, RaiseFailureRequest{
			Category: "integration",
			Source:   "whatsapp",
			Severity: "critical",
			Message:  "token expired",
		})

		assert.Equal(t, http.StatusCreated, rr.Code)
		var body RaiseFailureResponse
		decodeData(t, rr, &body)
		assert.Equal(t, "created", body.Outcome)
		assert.True(t, body.Failure.Active)
		assert.Equal(t, "critical", body.Failure.Severity)
		svc.AssertExpectations(t)
	})

	t.Run("DuplicateIsOK", func(t *testing.T) {
		svc := new(MockFailureService)
		f := failure.New(key, failure.SeverityCritical, "token expired", nil)
		svc.On("Raise", mock.Anything, mock.Anything).Return(&failuretracker.RaiseResult{Failure: f, Outcome: failuretracker.OutcomeUnchanged}, nil)

		rr := doRequest(t, newFailureRouter(svc), http.MethodPost, path, RaiseFailureRequest{Category: "integration", Source: "whatsapp", Severity: "critical"})

		assert.Equal(t, http.StatusOK, rr.Code)
		var body RaiseFailureResponse
		decodeData(t, rr, &body)
		assert.Equal(t, f.ID.String(), body.Failure.ID)
	})

	t.Run("InvalidCategory", func(t *testing.T) {
		svc := new(MockFailureService)
		svc.On("Raise", mock.Anything, mock.Anything).Return(nil, failure.ErrInvalidCategory)

		rr := doRequest(t, newFailureRouter(svc), http.MethodPost, path, RaiseFailureRequest{Category: "weather", Source: "whatsapp", Severity: "critical"})

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("MissingFields", func(t *testing.T) {
		svc := new(MockFailureService)

		rr := doRequest(t, newFailureRouter(svc), http.MethodPost, path, `{"category":"integration"}`)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		svc.AssertNotCalled(t, "Raise", mock.Anything, mock.Anything)
	})
}

func TestFailureHandler_ResolveAndList(t *testing.T) {
	tenantID := uuid.New()

	t.Run("Resolve", func(t *testing.T) {
		svc := new(MockFailureService)
		resolved := []uuid.UUID{uuid.New()}
		svc.On("Resolve", mock.Anything, tenantID, "whatsapp", failure.CategoryIntegration, testAdmin).Return(resolved, nil)

		rr := doRequest(t, newFailureRouter(svc), http.MethodPost, fmt.Sprintf("/tenants/%s/failures/resolve", tenantID), ResolveFailureRequest{Category: "integration", Source: "whatsapp"})

		assert.Equal(t, http.StatusOK, rr.Code)
		var body ResolveFailureResponse
		decodeData(t, rr, &body)
		assert.Equal(t, []string{resolved[0].String()}, body.Resolved)
	})

	t.Run("ResolveNothingActive", func(t *testing.T) {
		svc := new(MockFailureService)
		svc.On("Resolve", mock.Anything, tenantID, "whatsapp", failure.CategoryIntegration, testAdmin).Return([]uuid.UUID{}, nil)

		rr := doRequest(t, newFailureRouter(svc), http.MethodPost, fmt.Sprintf("/tenants/%s/failures/resolve", tenantID), ResolveFailureRequest{Category: "integration", Source: "whatsapp"})

		assert.Equal(t, http.StatusOK, rr.Code)
		var body ResolveFailureResponse
		decodeData(t, rr, &body)
		assert.Empty(t, body.Resolved)
	})

	t.Run("ListActive", func(t *testing.T) {
		svc := new(MockFailureService)
		active := []*failure.Failure{
			failure.New(failure.NewKey(tenantID, "stripe", failure.CategoryPayment), failure.SeverityWarning, "webhook lag", nil),
		}
		svc.On("ListActive", mock.Anything, tenantID).Return(active, nil)

		rr := doRequest(t, newFailureRouter(svc), http.MethodGet, fmt.Sprintf("/tenants/%s/failures", tenantID), nil)

		assert.Equal(t, http.StatusOK, rr.Code)
		var body []FailureResponse
		decodeData(t, rr, &body)
		require.Len(t, body, 1)
		assert.Equal(t, "stripe", body[0].Source)
		assert.Equal(t, "warning", body[0].Severity)
	})

	t.Run("ListStoreError", func(t *testing.T) {
		svc := new(MockFailureService)
		svc.On("ListActive", mock.Anything, tenantID).Return(nil, errors.New("pool closed"))

		rr := doRequest(t, newFailureRouter(svc), http.MethodGet, fmt.Sprintf("/tenants/%s/failures", tenantID), nil)

		assert.Equal(t, http.StatusInternalServerError, rr.Code)
	})
}
