package ledger

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/m3rciful/walletbot/wallet/domain"
)

// MemoryStore keeps balances in process memory.
type MemoryStore struct {
	mu       sync.Mutex
	balances map[int64]domain.Balances
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{balances: make(map[int64]domain.Balances)}
}

// Seed sets the balances of userID directly. Intended for tests and fixtures.
func (s *MemoryStore) Seed(userID int64, b domain.Balances) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[userID] = b
}

// Balances returns the balances of userID; unknown users have zero balances.
func (s *MemoryStore) Balances(_ context.Context, userID int64) (domain.Balances, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balances[userID], nil
}

// Apply implements Store. commit runs while the store is locked, so the new
// balance is never observed before commit has succeeded.
func (s *MemoryStore) Apply(ctx context.Context, userID int64, cur domain.Currency, delta decimal.Decimal, commit CommitFunc) (domain.Balances, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.balances[userID]
	next := current.Get(cur).Add(delta)
	if next.IsNegative() {
		return domain.Balances{}, domain.ErrInsufficientFunds
	}
	if commit != nil {
		if err := commit(ctx); err != nil {
			return domain.Balances{}, err
		}
	}
	updated := current.With(cur, next)
	s.balances[userID] = updated
	return updated, nil
}
