package control

import (
	"time"

	"github.com/google/uuid"
)

// FlagKey is the closed set of kill switches
type FlagKey string

const (
	FlagAIGlobalEnabled        FlagKey = "ai_global_enabled"
	FlagPaymentsGlobalEnabled  FlagKey = "payments_global_enabled"
	FlagSignupsGlobalEnabled   FlagKey = "signups_global_enabled"
	FlagMessagingGlobalEnabled FlagKey = "messaging_global_enabled"
	FlagIncidentModeEnabled    FlagKey = "incident_mode_enabled"
)

// AllFlagKeys lists every known flag in a stable order
var AllFlagKeys = []FlagKey{
	FlagAIGlobalEnabled,
	FlagPaymentsGlobalEnabled,
	FlagSignupsGlobalEnabled,
	FlagMessagingGlobalEnabled,
	FlagIncidentModeEnabled,
}

// defaults apply when a flag has never been written
var defaults = map[FlagKey]bool{
	FlagAIGlobalEnabled:        true,
	FlagPaymentsGlobalEnabled:  true,
	FlagSignupsGlobalEnabled:   true,
	FlagMessagingGlobalEnabled: true,
	FlagIncidentModeEnabled:    false,
}

// globalOnly flags cannot be overridden per tenant
var globalOnly = map[FlagKey]bool{
	FlagIncidentModeEnabled:  true,
	FlagSignupsGlobalEnabled: true,
}

// ParseFlagKey converts a raw string to a FlagKey
func ParseFlagKey(raw string) (FlagKey, error) {
	key := FlagKey(raw)
	if _, ok := defaults[key]; !ok {
		return "", &InvalidFlagKeyError{Key: raw}
	}
	return key, nil
}

// Default returns the provisioning value of the flag
func (k FlagKey) Default() bool {
	return defaults[k]
}

// TenantScoped reports whether the flag may be set per tenant
func (k FlagKey) TenantScoped() bool {
	_, known := defaults[k]
	return known && !globalOnly[k]
}

// Scope is where a flag value applies
type Scope string

const (
	ScopeGlobal Scope = "global"
	ScopeTenant Scope = "tenant"
)

// Flag is one persisted kill-switch value
type Flag struct {
	Key       FlagKey    `json:"key"`
	Scope     Scope      `json:"scope"`
	TenantID  *uuid.UUID `json:"tenant_id,omitempty"` // nil for global scope
	Value     bool       `json:"value"`
	Version   int        `json:"version"`
	UpdatedBy string     `json:"updated_by"`
	UpdatedAt time.Time  `json:"updated_at"`
	Reason    string     `json:"reason,omitempty"`
}
