package domain

import (
	"context"
	"time"
)

// UserRepository persists wallet owners.
type UserRepository interface {
	// Upsert creates the user or refreshes its profile fields; balances are untouched.
	Upsert(ctx context.Context, u User) (User, error)
	Get(ctx context.Context, id int64) (User, error)
}

// TransactionRepository persists transactions. Resolve is conditional on the
// current status being pending and returns ErrStateConflict otherwise.
type TransactionRepository interface {
	Create(ctx context.Context, tx Transaction) (Transaction, error)
	Get(ctx context.Context, id int64) (Transaction, error)
	Resolve(ctx context.Context, id int64, to TxStatus, reason *string, at time.Time) (Transaction, error)
	ListByUser(ctx context.Context, userID int64, limit int) ([]Transaction, error)
	ListPending(ctx context.Context, kind TxKind, limit int) ([]Transaction, error)
}

// ProductRepository reads catalog data.
type ProductRepository interface {
	Get(ctx context.Context, id string) (Product, error)
	ListActive(ctx context.Context) ([]Product, error)
	Upsert(ctx context.Context, p Product) error
}
