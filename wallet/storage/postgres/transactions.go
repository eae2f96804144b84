package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/walletbot/wallet/domain"
)

const txColumns = `id, user_id, type, currency, amount_requested, status, proof_url, reject_reason, product_id, external_ref, created_at, resolved_at`

const defaultListLimit = 50

// Transactions is a domain.TransactionRepository.
type Transactions struct {
	db *sqlx.DB
}

// NewTransactions builds Transactions over db.
func NewTransactions(db *sqlx.DB) *Transactions {
	return &Transactions{db: db}
}

// Create implements domain.TransactionRepository. The owner row is created
// when missing.
func (r *Transactions) Create(ctx context.Context, tx domain.Transaction) (domain.Transaction, error) {
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}
	var out domain.Transaction
	err := WithTx(ctx, r.db, func(ctx context.Context) error {
		q := conn(ctx, r.db)
		if _, err := q.ExecContext(ctx, ensureUserSQL, tx.UserID); err != nil {
			return fmt.Errorf("ensure user %d: %w", tx.UserID, err)
		}
		return q.GetContext(ctx, &out,
			`INSERT INTO transactions (user_id, type, currency, amount_requested, status, proof_url, reject_reason, product_id, external_ref, created_at, resolved_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			 RETURNING `+txColumns,
			tx.UserID, tx.Kind, tx.Currency, tx.Amount, tx.Status,
			tx.ProofURL, tx.RejectReason, tx.ProductID, tx.ExternalRef, tx.CreatedAt, tx.ResolvedAt,
		)
	})
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}
	return out, nil
}

// Get implements domain.TransactionRepository.
func (r *Transactions) Get(ctx context.Context, id int64) (domain.Transaction, error) {
	var out domain.Transaction
	err := conn(ctx, r.db).GetContext(ctx, &out, `SELECT `+txColumns+` FROM transactions WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Transaction{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("get transaction %d: %w", id, err)
	}
	return out, nil
}

// Resolve implements domain.TransactionRepository with a single conditional
// update, so concurrent resolutions of the same row cannot both succeed.
func (r *Transactions) Resolve(ctx context.Context, id int64, to domain.TxStatus, reason *string, at time.Time) (domain.Transaction, error) {
	if !to.Final() {
		return domain.Transaction{}, domain.ErrStateConflict
	}
	var out domain.Transaction
	err := conn(ctx, r.db).GetContext(ctx, &out,
		`UPDATE transactions
		 SET status = $2, reject_reason = $3, resolved_at = $4
		 WHERE id = $1 AND status = 'pending'
		 RETURNING `+txColumns,
		id, to, reason, at,
	)
	if errors.Is(err, sql.ErrNoRows) {
		if _, gerr := r.Get(ctx, id); gerr != nil {
			return domain.Transaction{}, gerr
		}
		return domain.Transaction{}, domain.ErrStateConflict
	}
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("resolve transaction %d: %w", id, err)
	}
	return out, nil
}

// ListByUser implements domain.TransactionRepository, newest first.
func (r *Transactions) ListByUser(ctx context.Context, userID int64, limit int) ([]domain.Transaction, error) {
	var out []domain.Transaction
	err := conn(ctx, r.db).SelectContext(ctx, &out,
		`SELECT `+txColumns+` FROM transactions WHERE user_id = $1 ORDER BY id DESC LIMIT $2`,
		userID, listLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("list transactions of %d: %w", userID, err)
	}
	return out, nil
}

// ListPending implements domain.TransactionRepository, oldest first.
func (r *Transactions) ListPending(ctx context.Context, kind domain.TxKind, limit int) ([]domain.Transaction, error) {
	var out []domain.Transaction
	err := conn(ctx, r.db).SelectContext(ctx, &out,
		`SELECT `+txColumns+` FROM transactions WHERE type = $1 AND status = 'pending' ORDER BY id ASC LIMIT $2`,
		kind, listLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("list pending %s: %w", kind, err)
	}
	return out, nil
}

func listLimit(limit int) int {
	if limit <= 0 {
		return defaultListLimit
	}
	return limit
}
