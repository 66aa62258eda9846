// Package memstore provides in-memory implementations of the repository ports
// for service-level tests. ExecuteTx serializes transactions and restores the
// previous state when fn fails, so rollback behaves like the database.
package memstore

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/tenantops/safety-core/internal/domain/audit"
	"github.com/tenantops/safety-core/internal/domain/control"
	"github.com/tenantops/safety-core/internal/domain/failure"
	"github.com/tenantops/safety-core/internal/domain/wallet"
)

type flagID struct {
	key    control.FlagKey
	tenant uuid.UUID // uuid.Nil for global rows
}

type failureRow struct {
	f        failure.Failure
	isActive bool
}

// Faults makes selected reads or writes fail
type Faults struct {
	FlagList    error
	FailureList error
	AuditInsert error
	WalletLock  error
}

type state struct {
	wallets      map[uuid.UUID]wallet.Account
	transactions []wallet.Transaction
	flags        map[flagID]control.Flag
	failures     []failureRow
}

// Store holds every table. The zero value is not usable; call New.
type Store struct {
	txMu   sync.Mutex
	mu     sync.RWMutex
	data   state
	events []audit.Event
	faults Faults
}

func New() *Store {
	return &Store{data: state{
		wallets: make(map[uuid.UUID]wallet.Account),
		flags:   make(map[flagID]control.Flag),
	}}
}

// ExecuteTx runs fn with every other transaction excluded and undoes its
// writes if it returns an error
func (s *Store) ExecuteTx(_ context.Context, fn func(tx pgx.Tx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	snapshot := s.data.clone()
	s.mu.RUnlock()

	if err := fn(nil); err != nil {
		s.mu.Lock()
		s.data = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *Store) SetFaults(f Faults) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults = f
}

func (st state) clone() state {
	out := state{
		wallets:      make(map[uuid.UUID]wallet.Account, len(st.wallets)),
		transactions: append([]wallet.Transaction(nil), st.transactions...),
		flags:        make(map[flagID]control.Flag, len(st.flags)),
		failures:     append([]failureRow(nil), st.failures...),
	}
	for k, v := range st.wallets {
		out.wallets[k] = v
	}
	for k, v := range st.flags {
		out.flags[k] = v
	}
	return out
}

func (s *Store) Wallets() wallet.Repository   { return &walletRepo{s: s} }
func (s *Store) Controls() control.Repository { return &controlRepo{s: s} }
func (s *Store) Failures() failure.Repository { return &failureRepo{s: s} }
func (s *Store) Audit() audit.Repository      { return &auditRepo{s: s} }

// TransactionCount returns the number of wallet transactions of the tenant
func (s *Store) TransactionCount(tenantID uuid.UUID) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, tx := range s.data.transactions {
		if tx.TenantID == tenantID {
			n++
		}
	}
	return n
}

// ActiveFailureCount returns the number of active rows for key
func (s *Store) ActiveFailureCount(key failure.Key) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, row := range s.data.failures {
		if row.isActive && row.f.Key() == key {
			n++
		}
	}
	return n
}

// Events returns a copy of every stored audit event
func (s *Store) Events() []audit.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]audit.Event(nil), s.events...)
}

// EventsOfType returns the stored audit events with the given type
func (s *Store) EventsOfType(eventType string) []audit.Event {
	var out []audit.Event
	for _, ev := range s.Events() {
		if ev.EventType == eventType {
			out = append(out, ev)
		}
	}
	return out
}
