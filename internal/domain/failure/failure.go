package failure

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Category groups failures by the part of the platform they affect
type Category string

const (
	CategoryIntegration Category = "integration"
	CategoryPayment     Category = "payment"
	CategoryAuth        Category = "auth"
	CategorySystem      Category = "system"
)

func (c Category) Valid() bool {
	switch c {
	case CategoryIntegration, CategoryPayment, CategoryAuth, CategorySystem:
		return true
	}
	return false
}

type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityInfo, SeverityWarning, SeverityCritical:
		return true
	}
	return false
}

var (
	ErrInvalidCategory = errors.New("invalid failure category")
	ErrInvalidSeverity = errors.New("invalid failure severity")
	ErrMissingSource   = errors.New("failure source is required")
	ErrMissingTenant   = errors.New("tenant id is required")
	ErrNotActive       = errors.New("failure is not active")
	// ErrActiveExists is returned when a concurrent raise already inserted the active row
	ErrActiveExists = errors.New("active failure already exists")
)

// State is either Active or Resolved
type State interface {
	isState()
}

// Active is the state of an ongoing failure
type Active struct {
	Severity Severity
	Message  string
	Since    time.Time
}

// Resolved is the terminal state of a failure
type Resolved struct {
	At time.Time
}

func (Active) isState()   {}
func (Resolved) isState() {}

// Key identifies the dedup unit of failures
type Key struct {
	TenantID uuid.UUID
	Source   string
	Category Category
}

// NewKey normalizes the source so "Google" and "google " collapse to one row
func NewKey(tenantID uuid.UUID, source string, category Category) Key {
	return Key{
		TenantID: tenantID,
		Source:   strings.ToLower(strings.TrimSpace(source)),
		Category: category,
	}
}

func (k Key) Validate() error {
	if k.TenantID == uuid.Nil {
		return ErrMissingTenant
	}
	if k.Source == "" {
		return ErrMissingSource
	}
	if !k.Category.Valid() {
		return ErrInvalidCategory
	}
	return nil
}

// Failure is one detection cycle of a problem for a tenant/source/category
type Failure struct {
	ID        uuid.UUID
	TenantID  uuid.UUID
	Category  Category
	Source    string
	Metadata  map[string]any
	State     State
	CreatedAt time.Time
	UpdatedAt time.Time
}

// New opens a fresh detection cycle
func New(key Key, severity Severity, message string, metadata map[string]any) *Failure {
	now := time.Now().UTC()
	return &Failure{
		ID:        uuid.New(),
		TenantID:  key.TenantID,
		Category:  key.Category,
		Source:    key.Source,
		Metadata:  metadata,
		State:     Active{Severity: severity, Message: message, Since: now},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (f *Failure) Key() Key {
	return Key{TenantID: f.TenantID, Source: f.Source, Category: f.Category}
}

// IsActive reports whether the failure is still ongoing
func (f *Failure) IsActive() bool {
	_, ok := f.State.(Active)
	return ok
}

// IsCritical reports whether the failure is active with critical severity
func (f *Failure) IsCritical() bool {
	a, ok := f.State.(Active)
	return ok && a.Severity == SeverityCritical
}

// Refresh updates an active failure with the latest detection detail.
// It reports whether anything changed. Since and CreatedAt are bumped only on change
// so recency reflects the latest distinct detection.
func (f *Failure) Refresh(severity Severity, message string, metadata map[string]any) (bool, error) {
	a, ok := f.State.(Active)
	if !ok {
		return false, ErrNotActive
	}
	if a.Severity == severity && a.Message == message {
		return false, nil
	}
	now := time.Now().UTC()
	f.State = Active{Severity: severity, Message: message, Since: now}
	f.Metadata = metadata
	f.CreatedAt = now
	f.UpdatedAt = now
	return true, nil
}

// Resolve moves an active failure into its terminal state
func (f *Failure) Resolve(at time.Time) error {
	if !f.IsActive() {
		return ErrNotActive
	}
	f.State = Resolved{At: at}
	f.UpdatedAt = at
	return nil
}
