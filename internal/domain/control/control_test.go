package control

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tenantops/safety-core/internal/domain/failure"
)

func TestParseFlagKey(t *testing.T) {
	for _, key := range AllFlagKeys {
		parsed, err := ParseFlagKey(string(key))
		require.NoError(t, err)
		assert.Equal(t, key, parsed)
	}

	_, err := ParseFlagKey("ai_globl_enabled")
	var invalid *InvalidFlagKeyError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "ai_globl_enabled", invalid.Key)
}

func TestFlagKey_DefaultsAndScope(t *testing.T) {
	assert.True(t, FlagAIGlobalEnabled.Default())
	assert.False(t, FlagIncidentModeEnabled.Default())

	assert.True(t, FlagAIGlobalEnabled.TenantScoped())
	assert.True(t, FlagPaymentsGlobalEnabled.TenantScoped())
	assert.False(t, FlagIncidentModeEnabled.TenantScoped())
	assert.False(t, FlagSignupsGlobalEnabled.TenantScoped())
	assert.False(t, FlagKey("bogus").TenantScoped())
}

func TestPolicyFor(t *testing.T) {
	p, err := PolicyFor(ActionPayment)
	require.NoError(t, err)
	assert.Equal(t, []FlagKey{FlagPaymentsGlobalEnabled}, p.GlobalFlags)
	assert.Equal(t, []failure.Category{failure.CategoryPayment}, p.FailureCategories)

	p, err = PolicyFor(ActionAIReply)
	require.NoError(t, err)
	assert.Contains(t, p.FailureCategories, failure.CategoryIntegration)

	_, err = PolicyFor(Action("launch_rockets"))
	assert.ErrorIs(t, err, ErrUnknownAction)

	_, err = ParseAction("message")
	assert.NoError(t, err)
	_, err = ParseAction("messages")
	assert.ErrorIs(t, err, ErrUnknownAction)
}

func TestActionBlockedError(t *testing.T) {
	err := error(&ActionBlockedError{
		TenantID: uuid.New(),
		Action:   ActionAIReply,
		Reason:   BlockReason{Kind: BlockActiveFailure, Source: "google", Category: failure.CategoryIntegration},
	})

	blocked, ok := IsBlocked(err)
	require.True(t, ok)
	assert.Equal(t, BlockActiveFailure, blocked.Reason.Kind)
	assert.Contains(t, err.Error(), "google")

	_, ok = IsBlocked(errors.New("other"))
	assert.False(t, ok)
}
