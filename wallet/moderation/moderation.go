// Package moderation resolves deposit requests. Only the moderator may
// approve or reject, approval credits the ledger exactly once, and rejection
// never touches it.
package moderation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/m3rciful/walletbot/core/keylock"
	"github.com/m3rciful/walletbot/core/logger"
	"github.com/m3rciful/walletbot/wallet/action"
	"github.com/m3rciful/walletbot/wallet/domain"
	"github.com/m3rciful/walletbot/wallet/ledger"
	"github.com/m3rciful/walletbot/wallet/metrics"
	"github.com/m3rciful/walletbot/wallet/notify"
)

const component = "moderation"

// maxReasonLen bounds rejection reasons stored with a transaction.
const maxReasonLen = 500

// Service owns transaction status transitions for deposits.
type Service struct {
	moderatorID int64
	ledger      *ledger.Ledger
	txs         domain.TransactionRepository
	users       domain.UserRepository
	notifier    notify.Notifier
	locks       *keylock.Locker[int64]
	now         func() time.Time
}

// Deps groups the collaborators of Service.
type Deps struct {
	ModeratorID  int64
	Ledger       *ledger.Ledger
	Transactions domain.TransactionRepository
	Users        domain.UserRepository
	Notifier     notify.Notifier
	Now          func() time.Time
}

// New builds a Service.
func New(d Deps) *Service {
	now := d.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		moderatorID: d.ModeratorID,
		ledger:      d.Ledger,
		txs:         d.Transactions,
		users:       d.Users,
		notifier:    d.Notifier,
		locks:       keylock.New[int64](),
		now:         now,
	}
}

// IsModerator reports whether actor may resolve transactions.
func (s *Service) IsModerator(actor int64) bool {
	return s.moderatorID != 0 && actor == s.moderatorID
}

// ModeratorID returns the configured moderator identity.
func (s *Service) ModeratorID() int64 { return s.moderatorID }

func (s *Service) authorize(ctx context.Context, actor int64, op string) error {
	if s.IsModerator(actor) {
		return nil
	}
	logger.Warn(ctx, component, "moderation.unauthorized",
		slog.String("status", "fail"),
		slog.String("op", op),
		slog.Int64("user_id", actor),
	)
	return domain.ErrUnauthorized
}

// Propose records a pending deposit and surfaces it to the moderator.
func (s *Service) Propose(ctx context.Context, userID int64, cur domain.Currency, amount decimal.Decimal, evidenceRef string) (domain.Transaction, error) {
	if !cur.Valid() {
		return domain.Transaction{}, &domain.ValidationError{Field: "currency", Reason: "unsupported currency"}
	}
	if !amount.IsPositive() {
		return domain.Transaction{}, &domain.ValidationError{Field: "amount", Reason: "must be greater than zero"}
	}
	if strings.TrimSpace(evidenceRef) == "" {
		return domain.Transaction{}, &domain.ValidationError{Field: "proof", Reason: "evidence is required"}
	}

	ref := evidenceRef
	tx, err := s.txs.Create(ctx, domain.Transaction{
		UserID:    userID,
		Kind:      domain.KindDeposit,
		Currency:  cur,
		Amount:    amount,
		Status:    domain.StatusPending,
		ProofURL:  &ref,
		CreatedAt: s.now(),
	})
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("moderation propose: %w", err)
	}
	metrics.RecordDepositProposed(string(cur))
	logger.Info(ctx, component, "moderation.propose",
		slog.String("status", "ok"),
		slog.Int64("tx_id", tx.ID),
		slog.Int64("user_id", userID),
		slog.String("currency", string(cur)),
		slog.String("amount", amount.String()),
	)

	if err := s.notifier.Notify(ctx, s.moderatorID, s.requestMessage(ctx, tx)); err != nil {
		// the request stays pending and is listed by Pending
		logger.Error(ctx, component, "moderation.notify",
			slog.String("status", "fail"),
			slog.Int64("tx_id", tx.ID),
			slog.String("err", err.Error()),
		)
	}
	return tx, nil
}

// Approve credits the owner and completes the transaction. A transaction
// that is no longer pending yields domain.ErrStateConflict and no credit.
func (s *Service) Approve(ctx context.Context, actor, txID int64) (domain.Transaction, error) {
	if err := s.authorize(ctx, actor, "approve"); err != nil {
		return domain.Transaction{}, err
	}
	var resolved domain.Transaction
	err := s.locks.Do(ctx, txID, func(ctx context.Context) error {
		tx, err := s.pendingDeposit(ctx, txID)
		if err != nil {
			return err
		}
		balances, err := s.ledger.Credit(ctx, tx.UserID, tx.Currency, tx.Amount, func(ctx context.Context) error {
			var err error
			resolved, err = s.txs.Resolve(ctx, tx.ID, domain.StatusCompleted, nil, s.now())
			return err
		})
		if err != nil {
			return err
		}
		s.notifyUser(ctx, tx.UserID, notify.Message{
			Text: fmt.Sprintf("✅ Tu depósito #%d de %s fue aprobado.\n\n💰 Saldo %s: %s",
				tx.ID, domain.FormatAmount(tx.Amount, tx.Currency),
				tx.Currency.Label(), domain.FormatAmount(balances.Get(tx.Currency), tx.Currency)),
			Buttons: [][]notify.Button{notify.Row(notify.Btn("👛 Billetera", action.Wallet))},
		})
		return nil
	})
	s.logDecision(ctx, "approve", txID, err)
	return resolved, err
}

// Reject marks the transaction rejected with reason. The ledger is not touched.
func (s *Service) Reject(ctx context.Context, actor, txID int64, reason string) (domain.Transaction, error) {
	if err := s.authorize(ctx, actor, "reject"); err != nil {
		return domain.Transaction{}, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return domain.Transaction{}, &domain.ValidationError{Field: "reason", Reason: "a rejection reason is required"}
	}
	if r := []rune(reason); len(r) > maxReasonLen {
		reason = string(r[:maxReasonLen])
	}

	var resolved domain.Transaction
	err := s.locks.Do(ctx, txID, func(ctx context.Context) error {
		tx, err := s.pendingDeposit(ctx, txID)
		if err != nil {
			return err
		}
		resolved, err = s.txs.Resolve(ctx, tx.ID, domain.StatusRejected, &reason, s.now())
		if err != nil {
			return err
		}
		s.notifyUser(ctx, tx.UserID, notify.Message{
			Text: fmt.Sprintf("❌ Tu depósito #%d de %s fue rechazado.\n\n📝 Motivo: %s",
				tx.ID, domain.FormatAmount(tx.Amount, tx.Currency), reason),
			Buttons: [][]notify.Button{notify.Row(notify.Btn("💰 Recargar", action.RechargeMenu))},
		})
		return nil
	})
	s.logDecision(ctx, "reject", txID, err)
	return resolved, err
}

// Pending lists deposits awaiting a decision, oldest first.
func (s *Service) Pending(ctx context.Context, actor int64, limit int) ([]domain.Transaction, error) {
	if err := s.authorize(ctx, actor, "pending"); err != nil {
		return nil, err
	}
	txs, err := s.txs.ListPending(ctx, domain.KindDeposit, limit)
	if err != nil {
		return nil, fmt.Errorf("moderation pending: %w", err)
	}
	return txs, nil
}

// Authorize checks actor without performing any operation.
func (s *Service) Authorize(ctx context.Context, actor int64, op string) error {
	return s.authorize(ctx, actor, op)
}

// RequestMessage renders the moderator view of a pending deposit.
func (s *Service) RequestMessage(ctx context.Context, tx domain.Transaction) notify.Message {
	return s.requestMessage(ctx, tx)
}

func (s *Service) pendingDeposit(ctx context.Context, txID int64) (domain.Transaction, error) {
	tx, err := s.txs.Get(ctx, txID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Transaction{}, err
		}
		return domain.Transaction{}, fmt.Errorf("moderation load tx %d: %w", txID, err)
	}
	if tx.Kind != domain.KindDeposit || tx.Status != domain.StatusPending {
		return domain.Transaction{}, domain.ErrStateConflict
	}
	return tx, nil
}

func (s *Service) requestMessage(ctx context.Context, tx domain.Transaction) notify.Message {
	name := strconv.FormatInt(tx.UserID, 10)
	if u, err := s.users.Get(ctx, tx.UserID); err == nil && u.DisplayName != "" {
		name = u.DisplayName
		if u.Username != "" {
			name += " (@" + u.Username + ")"
		}
	}
	id := strconv.FormatInt(tx.ID, 10)
	msg := notify.Message{
		Text: fmt.Sprintf("📥 Nueva solicitud de depósito #%d\n\n👤 Usuario: %s\n🆔 ID: %d\n💰 Monto: %s",
			tx.ID, name, tx.UserID, domain.FormatAmount(tx.Amount, tx.Currency)),
		Buttons: [][]notify.Button{notify.Row(
			notify.Btn("✅ Aprobar", action.Approve, id),
			notify.Btn("❌ Rechazar", action.Reject, id),
		)},
	}
	if tx.ProofURL != nil {
		msg.FileRef = *tx.ProofURL
	}
	return msg
}

func (s *Service) notifyUser(ctx context.Context, userID int64, msg notify.Message) {
	if err := s.notifier.Notify(ctx, userID, msg); err != nil {
		logger.Warn(ctx, component, "moderation.notify",
			slog.String("status", "fail"),
			slog.Int64("user_id", userID),
			slog.String("err", err.Error()),
		)
	}
}

func (s *Service) logDecision(ctx context.Context, decision string, txID int64, err error) {
	metrics.RecordModeration(decision, err)
	attrs := []slog.Attr{
		slog.String("status", logger.Status(err)),
		slog.Int64("tx_id", txID),
	}
	if err == nil {
		logger.Info(ctx, component, "moderation."+decision, attrs...)
		return
	}
	attrs = append(attrs, slog.String("err", err.Error()))
	if errors.Is(err, domain.ErrStateConflict) {
		attrs = append(attrs, slog.String("err_code", "state_conflict"))
	}
	logger.Warn(ctx, component, "moderation."+decision, attrs...)
}
