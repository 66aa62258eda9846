package control

import (
	"errors"

	"github.com/tenantops/safety-core/internal/domain/failure"
)

// Action is the closed set of risky actions gated by the core
type Action string

const (
	ActionAIReply     Action = "ai_reply"
	ActionMessage     Action = "message"
	ActionPayment     Action = "payment"
	ActionPaymentLink Action = "payment_link"
	ActionSignup      Action = "signup"
)

var ErrUnknownAction = errors.New("unknown action")

// Policy lists what governs an action
type Policy struct {
	GlobalFlags       []FlagKey
	TenantFlags       []FlagKey
	FailureCategories []failure.Category
}

var policies = map[Action]Policy{
	ActionAIReply: {
		GlobalFlags:       []FlagKey{FlagAIGlobalEnabled},
		TenantFlags:       []FlagKey{FlagAIGlobalEnabled},
		FailureCategories: []failure.Category{failure.CategoryIntegration, failure.CategorySystem},
	},
	ActionMessage: {
		GlobalFlags:       []FlagKey{FlagAIGlobalEnabled, FlagMessagingGlobalEnabled},
		TenantFlags:       []FlagKey{FlagAIGlobalEnabled, FlagMessagingGlobalEnabled},
		FailureCategories: []failure.Category{failure.CategoryIntegration},
	},
	ActionPayment: {
		GlobalFlags:       []FlagKey{FlagPaymentsGlobalEnabled},
		TenantFlags:       []FlagKey{FlagPaymentsGlobalEnabled},
		FailureCategories: []failure.Category{failure.CategoryPayment},
	},
	ActionPaymentLink: {
		GlobalFlags:       []FlagKey{FlagPaymentsGlobalEnabled},
		TenantFlags:       []FlagKey{FlagPaymentsGlobalEnabled},
		FailureCategories: []failure.Category{failure.CategoryPayment},
	},
	ActionSignup: {
		GlobalFlags: []FlagKey{FlagSignupsGlobalEnabled},
	},
}

// ParseAction converts a raw string to an Action
func ParseAction(raw string) (Action, error) {
	action := Action(raw)
	if _, ok := policies[action]; !ok {
		return "", ErrUnknownAction
	}
	return action, nil
}

// PolicyFor returns the governing policy of an action
func PolicyFor(action Action) (Policy, error) {
	p, ok := policies[action]
	if !ok {
		return Policy{}, ErrUnknownAction
	}
	return p, nil
}
