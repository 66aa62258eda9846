package control

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/tenantops/safety-core/internal/domain/failure"
)

var (
	ErrReasonRequired       = errors.New("reason is required for tenant-scoped changes")
	ErrGlobalOnlyFlag       = errors.New("flag cannot be set per tenant")
	ErrControlsUnavailable  = errors.New("control flags not loaded")
	ErrConcurrentFlagUpdate = errors.New("flag was modified concurrently")
	ErrFlagNotFound         = errors.New("flag not found")
	ErrMissingTenant        = errors.New("tenant id is required")
)

// InvalidFlagKeyError indicates a flag key outside the known set
type InvalidFlagKeyError struct {
	Key string
}

func (e *InvalidFlagKeyError) Error() string {
	return "invalid flag key: " + e.Key
}

// BlockKind says which layer of the gate blocked an action
type BlockKind string

const (
	BlockIncidentMode   BlockKind = "incident_mode"
	BlockGlobalFlag     BlockKind = "global_flag"
	BlockTenantFlag     BlockKind = "tenant_flag"
	BlockActiveFailure  BlockKind = "active_failure"
	BlockFailureUnknown BlockKind = "failure_state_unknown"
	BlockUnavailable    BlockKind = "controls_unavailable"
)

// BlockReason carries what blocked an action, for user-facing messaging
type BlockReason struct {
	Kind      BlockKind        `json:"kind"`
	Flag      FlagKey          `json:"flag,omitempty"`
	FailureID uuid.UUID        `json:"failure_id,omitempty"`
	Source    string           `json:"source,omitempty"`
	Category  failure.Category `json:"category,omitempty"`
}

// ActionBlockedError is returned by the gate when an action must not run
type ActionBlockedError struct {
	TenantID uuid.UUID
	Action   Action
	Reason   BlockReason
}

func (e *ActionBlockedError) Error() string {
	switch e.Reason.Kind {
	case BlockIncidentMode:
		return fmt.Sprintf("action %s blocked: incident mode is active", e.Action)
	case BlockGlobalFlag:
		return fmt.Sprintf("action %s blocked: %s is disabled globally", e.Action, e.Reason.Flag)
	case BlockTenantFlag:
		return fmt.Sprintf("action %s blocked: %s is disabled for tenant", e.Action, e.Reason.Flag)
	case BlockActiveFailure:
		return fmt.Sprintf("action %s blocked: critical %s failure on %s", e.Action, e.Reason.Category, e.Reason.Source)
	case BlockFailureUnknown:
		return fmt.Sprintf("action %s blocked: failure state unknown", e.Action)
	default:
		return fmt.Sprintf("action %s blocked: controls unavailable", e.Action)
	}
}

// IsBlocked extracts the block details from err, if any
func IsBlocked(err error) (*ActionBlockedError, bool) {
	var blocked *ActionBlockedError
	if errors.As(err, &blocked) {
		return blocked, true
	}
	return nil, false
}
