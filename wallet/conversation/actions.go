package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/m3rciful/walletbot/core/logger"
	"github.com/m3rciful/walletbot/wallet/domain"
	"github.com/m3rciful/walletbot/wallet/session"
)

func (e *Engine) onStart(ctx context.Context, entry session.Entry, in Input) error {
	if _, err := e.Users.Upsert(ctx, domain.User{
		ID:          in.UserID,
		DisplayName: in.DisplayName,
		Username:    in.Username,
	}); err != nil {
		return fmt.Errorf("register user: %w", err)
	}
	b, err := e.Ledger.Balance(ctx, in.UserID)
	if err != nil {
		return err
	}
	return e.reply(ctx, in.UserID, mainMenu(in.DisplayName, b, e.Moderation.IsModerator(in.UserID)))
}

func (e *Engine) onStartBack(ctx context.Context, entry session.Entry, in Input) error {
	if err := e.drop(ctx, entry); err != nil {
		return err
	}
	b, err := e.Ledger.Balance(ctx, in.UserID)
	if err != nil {
		return err
	}
	return e.reply(ctx, in.UserID, mainMenu(in.DisplayName, b, e.Moderation.IsModerator(in.UserID)))
}

func (e *Engine) onCancel(ctx context.Context, entry session.Entry, in Input) error {
	if err := e.drop(ctx, entry); err != nil {
		return err
	}
	return e.reply(ctx, in.UserID, cancelled())
}

// drop removes any active session without side effects.
func (e *Engine) drop(ctx context.Context, entry session.Entry) error {
	s, found, err := entry.Get(ctx)
	if err != nil && !errors.Is(err, domain.ErrCorruptSession) {
		return fmt.Errorf("load session: %w", err)
	}
	if !found && err == nil {
		return nil
	}
	return e.finish(ctx, entry, s.Step)
}

func (e *Engine) onRechargeMenu(ctx context.Context, _ session.Entry, in Input) error {
	return e.reply(ctx, in.UserID, rechargeMenu())
}

func (e *Engine) onDepositInit(ctx context.Context, entry session.Entry, in Input) error {
	cur, ok := in.Action.Currency(0)
	if !ok {
		e.ignore(ctx, in, "bad_currency")
		return e.reply(ctx, in.UserID, rechargeMenu())
	}
	if err := e.begin(ctx, entry, session.Session{Step: session.StepWaitingAmount, Currency: cur}); err != nil {
		return err
	}
	return e.reply(ctx, in.UserID, askAmount(cur, e.limits(cur)))
}

func (e *Engine) onGamesMenu(ctx context.Context, _ session.Entry, in Input) error {
	products, err := e.Products.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("list products: %w", err)
	}
	return e.reply(ctx, in.UserID, catalog(products))
}

func (e *Engine) onProduct(ctx context.Context, _ session.Entry, in Input) error {
	p, ok, err := e.activeProduct(ctx, in.Action.Param(0))
	if err != nil {
		return err
	}
	if !ok {
		return e.reply(ctx, in.UserID, productUnavailable())
	}
	return e.reply(ctx, in.UserID, productDetail(p))
}

// onPayNow validates the selection and funds before collecting account ids
// or, for phone recharges, the destination number.
// A refusal leaves any active session as it was.
func (e *Engine) onPayNow(ctx context.Context, entry session.Entry, in Input) error {
	p, ok, err := e.activeProduct(ctx, in.Action.Param(0))
	if err != nil {
		return err
	}
	if !ok {
		return e.reply(ctx, in.UserID, productUnavailable())
	}
	cur, ok := in.Action.Currency(1)
	if !ok {
		e.ignore(ctx, in, "bad_currency")
		return e.reply(ctx, in.UserID, productDetail(p))
	}
	price, ok := p.Price(cur)
	if !ok {
		return e.reply(ctx, in.UserID, notSoldIn(p, cur))
	}

	if err := e.Ledger.Check(ctx, in.UserID, cur, price); err != nil {
		if errors.Is(err, domain.ErrInsufficientFunds) {
			b, berr := e.Ledger.Balance(ctx, in.UserID)
			if berr != nil {
				return berr
			}
			logger.Info(ctx, component, "conversation.pay_now",
				slog.String("status", "fail"),
				slog.Int64("user_id", in.UserID),
				slog.String("product_id", p.ID),
				slog.String("currency", string(cur)),
				slog.String("amount", price.String()),
				slog.String("err_code", domain.ErrCode(err)),
			)
			return e.reply(ctx, in.UserID, insufficientFunds(price, b.Get(cur), cur))
		}
		return err
	}

	next := session.Session{
		Step:      session.StepAskPlayerID,
		Currency:  cur,
		ProductID: p.ID,
		Cost:      price,
	}
	prompt := askPlayerID(p, price, cur)
	if p.IsPhone() {
		next.Step = session.StepAskPhone
		prompt = askPhone(p, price, cur)
	}
	if err := e.begin(ctx, entry, next); err != nil {
		return err
	}
	return e.reply(ctx, in.UserID, prompt)
}

func (e *Engine) onWallet(ctx context.Context, _ session.Entry, in Input) error {
	b, err := e.Ledger.Balance(ctx, in.UserID)
	if err != nil {
		return err
	}
	return e.reply(ctx, in.UserID, walletView(b))
}

func (e *Engine) onHistory(ctx context.Context, _ session.Entry, in Input) error {
	txs, err := e.Transactions.ListByUser(ctx, in.UserID, HistoryLimit)
	if err != nil {
		return fmt.Errorf("list history: %w", err)
	}
	return e.reply(ctx, in.UserID, historyView(txs))
}

func (e *Engine) onApprove(ctx context.Context, _ session.Entry, in Input) error {
	txID, ok := in.Action.Int64(0)
	if !ok {
		e.ignore(ctx, in, "bad_tx_id")
		return nil
	}
	tx, err := e.Moderation.Approve(ctx, in.UserID, txID)
	switch {
	case err == nil:
		return e.reply(ctx, in.UserID, approvedForModerator(tx))
	case errors.Is(err, domain.ErrUnauthorized):
		return nil
	case errors.Is(err, domain.ErrStateConflict), errors.Is(err, domain.ErrNotFound):
		return e.reply(ctx, in.UserID, alreadyResolved(txID))
	}
	return err
}

func (e *Engine) onReject(ctx context.Context, entry session.Entry, in Input) error {
	txID, ok := in.Action.Int64(0)
	if !ok {
		e.ignore(ctx, in, "bad_tx_id")
		return nil
	}
	if err := e.Moderation.Authorize(ctx, in.UserID, "reject"); err != nil {
		return nil
	}
	tx, err := e.Transactions.Get(ctx, txID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return e.reply(ctx, in.UserID, alreadyResolved(txID))
		}
		return fmt.Errorf("load tx %d: %w", txID, err)
	}
	if tx.Kind != domain.KindDeposit || tx.Status != domain.StatusPending {
		return e.reply(ctx, in.UserID, alreadyResolved(txID))
	}
	if err := e.begin(ctx, entry, session.Session{Step: session.StepAdmReason, TxID: txID}); err != nil {
		return err
	}
	return e.reply(ctx, in.UserID, askRejectReason(txID))
}

func (e *Engine) onOrderStatus(ctx context.Context, _ session.Entry, in Input) error {
	orderID := in.Action.Param(0)
	if orderID == "" || e.Orders == nil {
		e.ignore(ctx, in, "order_status_unavailable")
		return nil
	}
	order, err := e.Orders.OrderStatus(ctx, orderID)
	if err != nil {
		if domain.IsUpstream(err) || domain.IsValidation(err) {
			logger.Warn(ctx, component, "conversation.order_status",
				slog.String("status", "fail"),
				slog.Int64("user_id", in.UserID),
				slog.String("order_id", orderID),
				slog.String("err", err.Error()),
			)
			return e.reply(ctx, in.UserID, orderStatusUnavailable(orderID))
		}
		return err
	}
	return e.reply(ctx, in.UserID, orderStatusView(orderID, order))
}

func (e *Engine) onPending(ctx context.Context, _ session.Entry, in Input) error {
	txs, err := e.Moderation.Pending(ctx, in.UserID, HistoryLimit)
	if err != nil {
		if errors.Is(err, domain.ErrUnauthorized) {
			return nil
		}
		return err
	}
	if len(txs) == 0 {
		return e.reply(ctx, in.UserID, noPending())
	}
	for _, tx := range txs {
		if err := e.reply(ctx, in.UserID, e.Moderation.RequestMessage(ctx, tx)); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) activeProduct(ctx context.Context, id string) (domain.Product, bool, error) {
	if id == "" {
		return domain.Product{}, false, nil
	}
	p, err := e.Products.Get(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Product{}, false, nil
		}
		return domain.Product{}, false, fmt.Errorf("load product %s: %w", id, err)
	}
	return p, p.Active, nil
}
