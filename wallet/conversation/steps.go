package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/m3rciful/walletbot/core/logger"
	"github.com/m3rciful/walletbot/wallet/domain"
	"github.com/m3rciful/walletbot/wallet/fulfillment"
	"github.com/m3rciful/walletbot/wallet/session"
)

func (e *Engine) onAmount(ctx context.Context, entry session.Entry, s session.Session, in Input) error {
	r := e.limits(s.Currency)
	amount, err := ParseAmount(in.Text, r)
	if err != nil {
		e.rejectInput(ctx, in, s, err)
		return e.reply(ctx, in.UserID, invalidAmount(s.Currency, r))
	}
	next := s
	next.Step = session.StepWaitingProof
	next.Amount = amount
	if err := e.advance(ctx, entry, s.Step, next); err != nil {
		return err
	}
	return e.reply(ctx, in.UserID, paymentInstructions(s.Currency, amount, e.Payment[s.Currency]))
}

func (e *Engine) onProof(ctx context.Context, entry session.Entry, s session.Session, in Input) error {
	if in.ImageRef == "" {
		e.ignore(ctx, in, "empty_image")
		return nil
	}
	tx, err := e.Moderation.Propose(ctx, in.UserID, s.Currency, s.Amount, in.ImageRef)
	if err != nil {
		if domain.IsValidation(err) {
			// a session that cannot produce a valid request is abandoned
			e.rejectInput(ctx, in, s, err)
			if ferr := e.finish(ctx, entry, s.Step); ferr != nil {
				return ferr
			}
			return e.reply(ctx, in.UserID, depositFailed())
		}
		return err
	}
	if err := e.finish(ctx, entry, s.Step); err != nil {
		return err
	}
	return e.reply(ctx, in.UserID, depositSubmitted(tx))
}

func (e *Engine) onPlayerID(ctx context.Context, entry session.Entry, s session.Session, in Input) error {
	player, err := ParseAccountID("player_id", in.Text)
	if err != nil {
		e.rejectInput(ctx, in, s, err)
		return e.reply(ctx, in.UserID, invalidAccountID(s.Step))
	}
	p, ok, err := e.activeProduct(ctx, s.ProductID)
	if err != nil {
		return err
	}
	if !ok {
		if err := e.finish(ctx, entry, s.Step); err != nil {
			return err
		}
		return e.reply(ctx, in.UserID, productUnavailable())
	}

	next := s
	next.PlayerID = player
	if p.NeedsZone {
		next.Step = session.StepAskZoneID
		if err := e.advance(ctx, entry, s.Step, next); err != nil {
			return err
		}
		return e.reply(ctx, in.UserID, askZoneID(p))
	}
	return e.purchase(ctx, entry, next, p)
}

func (e *Engine) onZoneID(ctx context.Context, entry session.Entry, s session.Session, in Input) error {
	zone, err := ParseAccountID("zone_id", in.Text)
	if err != nil {
		e.rejectInput(ctx, in, s, err)
		return e.reply(ctx, in.UserID, invalidAccountID(s.Step))
	}
	p, ok, err := e.activeProduct(ctx, s.ProductID)
	if err != nil {
		return err
	}
	if !ok {
		if err := e.finish(ctx, entry, s.Step); err != nil {
			return err
		}
		return e.reply(ctx, in.UserID, productUnavailable())
	}
	next := s
	next.ZoneID = zone
	return e.purchase(ctx, entry, next, p)
}

func (e *Engine) onPhone(ctx context.Context, entry session.Entry, s session.Session, in Input) error {
	phone, err := ParsePhone(in.Text)
	if err != nil {
		e.rejectInput(ctx, in, s, err)
		return e.reply(ctx, in.UserID, invalidPhone())
	}
	p, ok, err := e.activeProduct(ctx, s.ProductID)
	if err != nil {
		return err
	}
	if !ok || !p.IsPhone() {
		if err := e.finish(ctx, entry, s.Step); err != nil {
			return err
		}
		return e.reply(ctx, in.UserID, productUnavailable())
	}
	next := s
	next.Phone = phone
	return e.purchase(ctx, entry, next, p)
}

// purchase places the order. The session is discarded whatever the outcome,
// so a failed order is never retried from stale state.
func (e *Engine) purchase(ctx context.Context, entry session.Entry, s session.Session, p domain.Product) error {
	if e.Purchaser == nil {
		return errors.New("conversation: purchaser is not configured")
	}
	res, err := e.Purchaser.Dispatch(ctx, fulfillment.Purchase{
		UserID:   entry.UserID(),
		Product:  p,
		Currency: s.Currency,
		Cost:     s.Cost,
		PlayerID: s.PlayerID,
		ZoneID:   s.ZoneID,
		Phone:    s.Phone,
	})
	ferr := e.finish(ctx, entry, s.Step)
	return errors.Join(e.reportPurchase(ctx, entry.UserID(), s, p, res, err), ferr)
}

func (e *Engine) reportPurchase(ctx context.Context, userID int64, s session.Session, p domain.Product, res fulfillment.Result, err error) error {
	switch {
	case err == nil:
		return e.reply(ctx, userID, purchaseCompleted(p, res, s))
	case errors.Is(err, domain.ErrPriceChanged):
		return e.reply(ctx, userID, priceChanged(p))
	case errors.Is(err, domain.ErrInsufficientFunds):
		b, berr := e.Ledger.Balance(ctx, userID)
		if berr != nil {
			return berr
		}
		price, _ := p.Price(s.Currency)
		return e.reply(ctx, userID, insufficientFunds(price, b.Get(s.Currency), s.Currency))
	case domain.IsUpstream(err):
		var up *domain.UpstreamError
		errors.As(err, &up)
		return e.reply(ctx, userID, purchaseFailed(p, up.Message))
	case domain.IsValidation(err):
		return e.reply(ctx, userID, purchaseFailed(p, ""))
	}
	if nerr := e.reply(ctx, userID, internalError()); nerr != nil {
		logger.Warn(ctx, component, "conversation.notify",
			slog.String("status", "fail"),
			slog.Int64("user_id", userID),
			slog.String("err", nerr.Error()),
		)
	}
	return fmt.Errorf("purchase %s: %w", p.ID, err)
}

func (e *Engine) onRejectReason(ctx context.Context, entry session.Entry, s session.Session, in Input) error {
	tx, err := e.Moderation.Reject(ctx, in.UserID, s.TxID, in.Text)
	switch {
	case err == nil:
		if ferr := e.finish(ctx, entry, s.Step); ferr != nil {
			return ferr
		}
		return e.reply(ctx, in.UserID, rejectedForModerator(tx))
	case domain.IsValidation(err):
		e.rejectInput(ctx, in, s, err)
		return e.reply(ctx, in.UserID, askRejectReason(s.TxID))
	case errors.Is(err, domain.ErrStateConflict), errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrUnauthorized):
		if ferr := e.finish(ctx, entry, s.Step); ferr != nil {
			return ferr
		}
		if errors.Is(err, domain.ErrUnauthorized) {
			return nil
		}
		return e.reply(ctx, in.UserID, alreadyResolved(s.TxID))
	}
	return err
}

func (e *Engine) rejectInput(ctx context.Context, in Input, s session.Session, err error) {
	logger.Info(ctx, component, "conversation.input",
		slog.String("status", "fail"),
		slog.Int64("user_id", in.UserID),
		slog.String("step", s.Step.String()),
		slog.String("err", err.Error()),
		slog.String("err_code", domain.ErrCode(err)),
	)
}
