// Package memory implements the wallet repositories in process memory.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/m3rciful/walletbot/wallet/domain"
)

// Users is an in-memory domain.UserRepository.
type Users struct {
	mu    sync.RWMutex
	users map[int64]domain.User
}

// NewUsers returns an empty Users.
func NewUsers() *Users {
	return &Users{users: make(map[int64]domain.User)}
}

// Upsert stores profile fields of u and keeps existing balances.
func (r *Users) Upsert(_ context.Context, u domain.User) (domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.users[u.ID]; ok {
		cur.DisplayName = u.DisplayName
		cur.Username = u.Username
		r.users[u.ID] = cur
		return cur, nil
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	r.users[u.ID] = u
	return u, nil
}

// Get returns the user or domain.ErrNotFound.
func (r *Users) Get(_ context.Context, id int64) (domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return domain.User{}, domain.ErrNotFound
	}
	return u, nil
}

// Transactions is an in-memory domain.TransactionRepository.
type Transactions struct {
	mu     sync.Mutex
	nextID int64
	txs    map[int64]domain.Transaction
}

// NewTransactions returns an empty Transactions.
func NewTransactions() *Transactions {
	return &Transactions{txs: make(map[int64]domain.Transaction)}
}

// Create assigns an id and stores tx.
func (r *Transactions) Create(_ context.Context, tx domain.Transaction) (domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	tx.ID = r.nextID
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}
	r.txs[tx.ID] = tx
	return tx, nil
}

// Get returns the transaction or domain.ErrNotFound.
func (r *Transactions) Get(_ context.Context, id int64) (domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx, ok := r.txs[id]
	if !ok {
		return domain.Transaction{}, domain.ErrNotFound
	}
	return tx, nil
}

// Resolve moves a pending transaction to a final status.
func (r *Transactions) Resolve(_ context.Context, id int64, to domain.TxStatus, reason *string, at time.Time) (domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx, ok := r.txs[id]
	if !ok {
		return domain.Transaction{}, domain.ErrNotFound
	}
	if tx.Status != domain.StatusPending || !to.Final() {
		return domain.Transaction{}, domain.ErrStateConflict
	}
	tx.Status = to
	tx.RejectReason = reason
	tx.ResolvedAt = &at
	r.txs[id] = tx
	return tx, nil
}

// ListByUser returns the newest transactions of userID first.
func (r *Transactions) ListByUser(_ context.Context, userID int64, limit int) ([]domain.Transaction, error) {
	return r.list(limit, func(tx domain.Transaction) bool { return tx.UserID == userID }), nil
}

// ListPending returns the oldest pending transactions of kind first.
func (r *Transactions) ListPending(_ context.Context, kind domain.TxKind, limit int) ([]domain.Transaction, error) {
	out := r.list(0, func(tx domain.Transaction) bool {
		return tx.Kind == kind && tx.Status == domain.StatusPending
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *Transactions) list(limit int, keep func(domain.Transaction) bool) []domain.Transaction {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Transaction
	for _, tx := range r.txs {
		if keep(tx) {
			out = append(out, tx)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Products is an in-memory domain.ProductRepository.
type Products struct {
	mu       sync.RWMutex
	products map[string]domain.Product
}

// NewProducts returns a catalog holding ps.
func NewProducts(ps ...domain.Product) *Products {
	r := &Products{products: make(map[string]domain.Product)}
	for _, p := range ps {
		r.products[p.ID] = p
	}
	return r
}

// Get returns the product or domain.ErrNotFound.
func (r *Products) Get(_ context.Context, id string) (domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.products[id]
	if !ok {
		return domain.Product{}, domain.ErrNotFound
	}
	return p, nil
}

// ListActive returns active products sorted by name.
func (r *Products) ListActive(_ context.Context) ([]domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.Product
	for _, p := range r.products {
		if p.Active {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Upsert stores p by id.
func (r *Products) Upsert(_ context.Context, p domain.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.products[p.ID] = p
	return nil
}
