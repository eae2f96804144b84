package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/m3rciful/walletbot/wallet/domain"
	"github.com/m3rciful/walletbot/wallet/ledger"
)

const userColumns = `id, display_name, username, balance_cup, balance_saldo, balance_usdt, created_at`

// Users is a domain.UserRepository.
type Users struct {
	db *sqlx.DB
}

// NewUsers builds Users over db.
func NewUsers(db *sqlx.DB) *Users {
	return &Users{db: db}
}

// Upsert implements domain.UserRepository.
func (r *Users) Upsert(ctx context.Context, u domain.User) (domain.User, error) {
	var out domain.User
	err := conn(ctx, r.db).GetContext(ctx, &out,
		`INSERT INTO users (id, display_name, username)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO UPDATE SET display_name = EXCLUDED.display_name, username = EXCLUDED.username
		 RETURNING `+userColumns,
		u.ID, u.DisplayName, u.Username,
	)
	if err != nil {
		return domain.User{}, fmt.Errorf("upsert user %d: %w", u.ID, err)
	}
	return out, nil
}

// Get implements domain.UserRepository.
func (r *Users) Get(ctx context.Context, id int64) (domain.User, error) {
	var out domain.User
	err := conn(ctx, r.db).GetContext(ctx, &out, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("get user %d: %w", id, err)
	}
	return out, nil
}

// Balances is a ledger.Store keeping balances on the users table. Each Apply
// locks the user row for the duration of the change and its commit step.
type Balances struct {
	db *sqlx.DB
}

var _ ledger.Store = (*Balances)(nil)

// NewBalances builds Balances over db.
func NewBalances(db *sqlx.DB) *Balances {
	return &Balances{db: db}
}

// Balances returns the balances of userID; unknown users have zero balances.
func (s *Balances) Balances(ctx context.Context, userID int64) (domain.Balances, error) {
	var b domain.Balances
	err := conn(ctx, s.db).GetContext(ctx, &b,
		`SELECT balance_cup, balance_saldo, balance_usdt FROM users WHERE id = $1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Balances{}, nil
	}
	if err != nil {
		return domain.Balances{}, fmt.Errorf("get balances %d: %w", userID, err)
	}
	return b, nil
}

// Apply implements ledger.Store.
func (s *Balances) Apply(ctx context.Context, userID int64, cur domain.Currency, delta decimal.Decimal, commit ledger.CommitFunc) (domain.Balances, error) {
	column, err := balanceColumn(cur)
	if err != nil {
		return domain.Balances{}, err
	}
	var out domain.Balances
	err = WithTx(ctx, s.db, func(ctx context.Context) error {
		q := conn(ctx, s.db)
		if _, err := q.ExecContext(ctx, ensureUserSQL, userID); err != nil {
			return fmt.Errorf("ensure user %d: %w", userID, err)
		}
		var current domain.Balances
		if err := q.GetContext(ctx, &current,
			`SELECT balance_cup, balance_saldo, balance_usdt FROM users WHERE id = $1 FOR UPDATE`, userID); err != nil {
			return fmt.Errorf("lock balances %d: %w", userID, err)
		}
		next := current.Get(cur).Add(delta)
		if next.IsNegative() {
			return domain.ErrInsufficientFunds
		}
		if _, err := q.ExecContext(ctx, `UPDATE users SET `+column+` = $1 WHERE id = $2`, next, userID); err != nil {
			return fmt.Errorf("update balances %d: %w", userID, err)
		}
		if commit != nil {
			if err := commit(ctx); err != nil {
				return err
			}
		}
		out = current.With(cur, next)
		return nil
	})
	if err != nil {
		return domain.Balances{}, err
	}
	return out, nil
}

func balanceColumn(c domain.Currency) (string, error) {
	switch c {
	case domain.CUP:
		return "balance_cup", nil
	case domain.Saldo:
		return "balance_saldo", nil
	case domain.USDT:
		return "balance_usdt", nil
	}
	return "", &domain.ValidationError{Field: "currency", Reason: fmt.Sprintf("unsupported currency %q", c)}
}
