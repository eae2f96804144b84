// Package ledger owns wallet balances. Every mutation for a user runs under
// that user's lock, in arrival order, and is persisted together with the
// caller's commit step or not at all.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/m3rciful/walletbot/core/keylock"
	"github.com/m3rciful/walletbot/core/logger"
	"github.com/m3rciful/walletbot/wallet/domain"
	"github.com/m3rciful/walletbot/wallet/metrics"
)

const component = "ledger"

// CommitFunc runs inside the same atomic unit as a balance change. Returning
// an error aborts the change.
type CommitFunc func(ctx context.Context) error

// ConfirmFunc is the external step a debit waits on.
type ConfirmFunc func(ctx context.Context) error

// Store persists balances. Apply must add delta to the balance for cur,
// refuse results below zero with domain.ErrInsufficientFunds, run commit and
// make the new balance visible only if commit succeeds.
type Store interface {
	Balances(ctx context.Context, userID int64) (domain.Balances, error)
	Apply(ctx context.Context, userID int64, cur domain.Currency, delta decimal.Decimal, commit CommitFunc) (domain.Balances, error)
}

// Ledger serializes balance mutations per user.
type Ledger struct {
	store Store
	locks *keylock.Locker[int64]
}

// New builds a Ledger over store.
func New(store Store) *Ledger {
	return &Ledger{store: store, locks: keylock.New[int64]()}
}

// Balance returns the current balances of userID.
func (l *Ledger) Balance(ctx context.Context, userID int64) (domain.Balances, error) {
	b, err := l.store.Balances(ctx, userID)
	if err != nil {
		return domain.Balances{}, fmt.Errorf("ledger balance: %w", err)
	}
	return b, nil
}

// Check reports domain.ErrInsufficientFunds when userID cannot afford amount.
// It is advisory; Debit and DebitAfter re-check under the lock.
func (l *Ledger) Check(ctx context.Context, userID int64, cur domain.Currency, amount decimal.Decimal) error {
	if err := validate(cur, amount); err != nil {
		return err
	}
	b, err := l.Balance(ctx, userID)
	if err != nil {
		return err
	}
	if b.Get(cur).LessThan(amount) {
		return domain.ErrInsufficientFunds
	}
	return nil
}

// Credit adds amount to the balance for cur.
func (l *Ledger) Credit(ctx context.Context, userID int64, cur domain.Currency, amount decimal.Decimal, commit CommitFunc) (domain.Balances, error) {
	if err := validate(cur, amount); err != nil {
		return domain.Balances{}, err
	}
	var out domain.Balances
	err := l.locks.Do(ctx, userID, func(ctx context.Context) error {
		var err error
		out, err = l.apply(ctx, "credit", userID, cur, amount, commit)
		return err
	})
	return out, err
}

// Debit subtracts amount from the balance for cur.
func (l *Ledger) Debit(ctx context.Context, userID int64, cur domain.Currency, amount decimal.Decimal, commit CommitFunc) (domain.Balances, error) {
	return l.DebitAfter(ctx, userID, cur, amount, nil, commit)
}

// DebitAfter checks funds, runs confirm and debits only when confirm
// succeeds. The user's lock is held for the whole sequence, so no other
// mutation for the same user can slip between the check and the debit.
func (l *Ledger) DebitAfter(ctx context.Context, userID int64, cur domain.Currency, amount decimal.Decimal, confirm ConfirmFunc, commit CommitFunc) (domain.Balances, error) {
	if err := validate(cur, amount); err != nil {
		return domain.Balances{}, err
	}
	var out domain.Balances
	err := l.locks.Do(ctx, userID, func(ctx context.Context) error {
		b, err := l.store.Balances(ctx, userID)
		if err != nil {
			return fmt.Errorf("ledger balance: %w", err)
		}
		if b.Get(cur).LessThan(amount) {
			l.log(ctx, "debit", userID, cur, amount, domain.ErrInsufficientFunds)
			metrics.RecordLedgerMutation("debit", string(cur), domain.ErrInsufficientFunds)
			return domain.ErrInsufficientFunds
		}
		applyCtx := ctx
		if confirm != nil {
			if err := confirm(ctx); err != nil {
				return err
			}
			// a confirmed external effect must be paid for even if the caller gave up
			applyCtx = context.WithoutCancel(ctx)
		}
		out, err = l.apply(applyCtx, "debit", userID, cur, amount.Neg(), commit)
		return err
	})
	return out, err
}

func (l *Ledger) apply(ctx context.Context, op string, userID int64, cur domain.Currency, delta decimal.Decimal, commit CommitFunc) (domain.Balances, error) {
	start := time.Now()
	b, err := l.store.Apply(ctx, userID, cur, delta, commit)
	metrics.RecordLedgerMutation(op, string(cur), err)
	l.log(ctx, op, userID, cur, delta.Abs(), err, slog.Duration("duration", logger.Took(start)))
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientFunds) {
			return domain.Balances{}, err
		}
		return domain.Balances{}, fmt.Errorf("ledger %s: %w", op, err)
	}
	return b, nil
}

func (l *Ledger) log(ctx context.Context, op string, userID int64, cur domain.Currency, amount decimal.Decimal, err error, extra ...slog.Attr) {
	attrs := []slog.Attr{
		slog.String("status", logger.Status(err)),
		slog.Int64("user_id", userID),
		slog.String("currency", string(cur)),
		slog.String("amount", amount.String()),
	}
	attrs = append(attrs, extra...)
	if err != nil {
		attrs = append(attrs, slog.String("err", err.Error()))
		logger.Warn(ctx, component, "ledger."+op, attrs...)
		return
	}
	logger.Info(ctx, component, "ledger."+op, attrs...)
}

func validate(cur domain.Currency, amount decimal.Decimal) error {
	if !cur.Valid() {
		return &domain.ValidationError{Field: "currency", Reason: fmt.Sprintf("unsupported currency %q", cur)}
	}
	if !amount.IsPositive() {
		return &domain.ValidationError{Field: "amount", Reason: "must be greater than zero"}
	}
	return nil
}
