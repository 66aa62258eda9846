package memstore

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/tenantops/safety-core/internal/domain/wallet"
)

type walletRepo struct {
	s *Store
}

func (r *walletRepo) WithTx(pgx.Tx) wallet.Repository { return r }

func (r *walletRepo) EnsureAccount(_ context.Context, tenantID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.data.wallets[tenantID]; !ok {
		r.s.data.wallets[tenantID] = wallet.Account{TenantID: tenantID, Version: 1}
	}
	return nil
}

func (r *walletRepo) GetAccount(_ context.Context, tenantID uuid.UUID) (*wallet.Account, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	acc, ok := r.s.data.wallets[tenantID]
	if !ok {
		return nil, &wallet.TenantNotFoundError{TenantID: tenantID}
	}
	return &acc, nil
}

func (r *walletRepo) LockAccount(ctx context.Context, tenantID uuid.UUID) (*wallet.Account, error) {
	r.s.mu.RLock()
	fault := r.s.faults.WalletLock
	r.s.mu.RUnlock()
	if fault != nil {
		return nil, fault
	}
	return r.GetAccount(ctx, tenantID)
}

func (r *walletRepo) UpdateBalance(_ context.Context, acc *wallet.Account) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stored, ok := r.s.data.wallets[acc.TenantID]
	if !ok || stored.Version != acc.Version-1 {
		return &wallet.ConcurrentModificationError{TenantID: acc.TenantID}
	}
	r.s.data.wallets[acc.TenantID] = *acc
	return nil
}

func (r *walletRepo) InsertTransaction(_ context.Context, tx *wallet.Transaction) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if tx.IdempotencyKey != nil {
		for _, existing := range r.s.data.transactions {
			if existing.TenantID == tx.TenantID && existing.IdempotencyKey != nil && *existing.IdempotencyKey == *tx.IdempotencyKey {
				return wallet.ErrDuplicateTransaction
			}
		}
	}
	r.s.data.transactions = append(r.s.data.transactions, *tx)
	return nil
}

func (r *walletRepo) GetTransactionByIdempotencyKey(_ context.Context, tenantID uuid.UUID, key string) (*wallet.Transaction, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, tx := range r.s.data.transactions {
		if tx.TenantID == tenantID && tx.IdempotencyKey != nil && *tx.IdempotencyKey == key {
			found := tx
			return &found, nil
		}
	}
	return nil, nil
}

func (r *walletRepo) ListTransactions(_ context.Context, tenantID uuid.UUID, limit, offset int) ([]*wallet.Transaction, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*wallet.Transaction
	for i := len(r.s.data.transactions) - 1; i >= 0; i-- {
		tx := r.s.data.transactions[i]
		if tx.TenantID == tenantID {
			out = append(out, &tx)
		}
	}
	return page(out, limit, offset), nil
}

func (r *walletRepo) HasTransactionWithReason(_ context.Context, tenantID uuid.UUID, reason string) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, tx := range r.s.data.transactions {
		if tx.TenantID == tenantID && tx.Reason == reason {
			return true, nil
		}
	}
	return false, nil
}

func (r *walletRepo) SumTransactions(_ context.Context, tenantID uuid.UUID) (int64, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var sum int64
	for _, tx := range r.s.data.transactions {
		if tx.TenantID == tenantID {
			sum += tx.Signed()
		}
	}
	return sum, nil
}

func (r *walletRepo) ListTenantIDs(_ context.Context, limit, offset int) ([]uuid.UUID, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	ids := make([]uuid.UUID, 0, len(r.s.data.wallets))
	for id := range r.s.data.wallets {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return page(ids, limit, offset), nil
}

// SetBalance overwrites the cached balance, bypassing the ledger
func (s *Store) SetBalance(tenantID uuid.UUID, balance int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc := s.data.wallets[tenantID]
	acc.TenantID = tenantID
	acc.Balance = balance
	s.data.wallets[tenantID] = acc
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
