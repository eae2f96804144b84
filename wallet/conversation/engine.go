// Package conversation drives the per-user dialogue: it decodes inputs,
// advances the user's session and triggers ledger, moderation and
// fulfillment effects.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/m3rciful/walletbot/core/logger"
	"github.com/m3rciful/walletbot/wallet/action"
	"github.com/m3rciful/walletbot/wallet/domain"
	"github.com/m3rciful/walletbot/wallet/fulfillment"
	"github.com/m3rciful/walletbot/wallet/ledger"
	"github.com/m3rciful/walletbot/wallet/moderation"
	"github.com/m3rciful/walletbot/wallet/notify"
	"github.com/m3rciful/walletbot/wallet/session"
)

const component = "conversation"

// HistoryLimit is how many transactions the history view shows.
const HistoryLimit = 10

// Kind classifies an inbound event.
type Kind int

const (
	KindStart Kind = iota + 1
	KindAction
	KindText
	KindImage
)

func (k Kind) String() string {
	switch k {
	case KindStart:
		return "start"
	case KindAction:
		return "action"
	case KindText:
		return "text"
	case KindImage:
		return "image"
	}
	return "unknown"
}

// Input is one event from a user.
type Input struct {
	Kind        Kind
	UserID      int64
	DisplayName string
	Username    string
	Action      action.Action
	Text        string
	// ImageRef identifies an uploaded image in the transport.
	ImageRef string
}

// Range bounds accepted deposit amounts, inclusive.
type Range struct {
	Min decimal.Decimal
	Max decimal.Decimal
}

// Contains reports whether amount lies in r.
func (r Range) Contains(amount decimal.Decimal) bool {
	return !amount.LessThan(r.Min) && !amount.GreaterThan(r.Max)
}

// DefaultRange applies to currencies without configured limits.
var DefaultRange = Range{Min: decimal.NewFromInt(1000), Max: decimal.NewFromInt(10000)}

// Purchaser places paid orders.
type Purchaser interface {
	Dispatch(ctx context.Context, p fulfillment.Purchase) (fulfillment.Result, error)
}

// OrderTracker looks up placed orders.
type OrderTracker interface {
	OrderStatus(ctx context.Context, orderID string) (fulfillment.Order, error)
}

// Deps groups the collaborators of Engine.
type Deps struct {
	Sessions     *session.Manager
	Ledger       *ledger.Ledger
	Users        domain.UserRepository
	Products     domain.ProductRepository
	Transactions domain.TransactionRepository
	Moderation   *moderation.Service
	Purchaser    Purchaser
	Orders       OrderTracker
	Notifier     notify.Notifier

	// Limits per currency; missing currencies use DefaultRange.
	Limits map[domain.Currency]Range
	// Payment holds the instructions shown after a valid deposit amount.
	Payment map[domain.Currency]string
}

type (
	actionHandler func(ctx context.Context, e session.Entry, in Input) error
	stepHandler   func(ctx context.Context, e session.Entry, s session.Session, in Input) error
)

// Engine is the conversation state machine.
type Engine struct {
	Deps

	actions map[action.Tag]actionHandler
	steps   map[session.Step]map[Kind]stepHandler
}

// NewEngine builds an Engine and checks that every step can make progress.
func NewEngine(d Deps) (*Engine, error) {
	switch {
	case d.Sessions == nil:
		return nil, errors.New("conversation: sessions are required")
	case d.Ledger == nil:
		return nil, errors.New("conversation: ledger is required")
	case d.Moderation == nil:
		return nil, errors.New("conversation: moderation is required")
	case d.Notifier == nil:
		return nil, errors.New("conversation: notifier is required")
	case d.Users == nil || d.Products == nil || d.Transactions == nil:
		return nil, errors.New("conversation: repositories are required")
	}
	e := &Engine{Deps: d}
	e.actions = map[action.Tag]actionHandler{
		action.StartBack:    e.onStartBack,
		action.Cancel:       e.onCancel,
		action.RechargeMenu: e.onRechargeMenu,
		action.DepositInit:  e.onDepositInit,
		action.GamesMenu:    e.onGamesMenu,
		action.Product:      e.onProduct,
		action.PayNow:       e.onPayNow,
		action.Wallet:       e.onWallet,
		action.History:      e.onHistory,
		action.Approve:      e.onApprove,
		action.Reject:       e.onReject,
		action.OrderStatus:  e.onOrderStatus,
		action.Pending:      e.onPending,
	}
	e.steps = map[session.Step]map[Kind]stepHandler{
		session.StepWaitingAmount: {KindText: e.onAmount},
		session.StepWaitingProof:  {KindImage: e.onProof},
		session.StepAskPlayerID:   {KindText: e.onPlayerID},
		session.StepAskZoneID:     {KindText: e.onZoneID},
		session.StepAskPhone:      {KindText: e.onPhone},
		session.StepAdmReason:     {KindText: e.onRejectReason},
	}
	for _, st := range session.Steps {
		if len(e.steps[st]) == 0 {
			return nil, fmt.Errorf("conversation: step %s has no handler", st)
		}
	}
	return e, nil
}

// Handle processes in under the sender's session lock. Only infrastructure
// failures are returned; user mistakes are answered in the chat.
func (e *Engine) Handle(ctx context.Context, in Input) error {
	if in.UserID == 0 {
		return &domain.ValidationError{Field: "user_id", Reason: "required"}
	}
	return e.Sessions.With(ctx, in.UserID, func(ctx context.Context, entry session.Entry) error {
		switch in.Kind {
		case KindStart:
			return e.onStart(ctx, entry, in)
		case KindAction:
			h, ok := e.actions[in.Action.Tag]
			if !ok {
				e.ignore(ctx, in, "unknown_action")
				return nil
			}
			logger.Debug(ctx, component, "conversation.action",
				slog.Int64("user_id", in.UserID),
				slog.String("action", in.Action.String()),
			)
			return h(ctx, entry, in)
		case KindText, KindImage:
			return e.onInput(ctx, entry, in)
		}
		e.ignore(ctx, in, "unknown_kind")
		return nil
	})
}

func (e *Engine) onInput(ctx context.Context, entry session.Entry, in Input) error {
	if in.Kind == KindText && strings.HasPrefix(strings.TrimSpace(in.Text), "/") {
		e.ignore(ctx, in, "command")
		return nil
	}
	s, found, err := entry.Get(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrCorruptSession) {
			return e.discardCorrupt(ctx, entry, err)
		}
		return fmt.Errorf("load session: %w", err)
	}
	if !found || s.Step == session.StepNone {
		e.ignore(ctx, in, "no_session")
		return nil
	}
	handlers, ok := e.steps[s.Step]
	if !ok {
		return e.discardCorrupt(ctx, entry, fmt.Errorf("step %q: %w", s.Step, domain.ErrCorruptSession))
	}
	h, ok := handlers[in.Kind]
	if !ok {
		return e.conflict(ctx, s, in)
	}
	return h(ctx, entry, s, in)
}

// begin stores s as the user's session, discarding whichever flow was active.
func (e *Engine) begin(ctx context.Context, entry session.Entry, s session.Session) error {
	prev, found, err := entry.Get(ctx)
	if err != nil && !errors.Is(err, domain.ErrCorruptSession) {
		return fmt.Errorf("load session: %w", err)
	}
	if found && prev.Step != session.StepNone {
		logger.Info(ctx, "session", "session.replaced",
			slog.Int64("user_id", entry.UserID()),
			slog.String("step", prev.Step.String()),
			slog.String("next_step", s.Step.String()),
		)
	}
	if err := entry.Put(ctx, s); err != nil {
		return fmt.Errorf("store session: %w", err)
	}
	e.transition(ctx, entry.UserID(), prev.Step, s.Step)
	return nil
}

func (e *Engine) advance(ctx context.Context, entry session.Entry, from session.Step, s session.Session) error {
	if err := entry.Put(ctx, s); err != nil {
		return fmt.Errorf("store session: %w", err)
	}
	e.transition(ctx, entry.UserID(), from, s.Step)
	return nil
}

func (e *Engine) finish(ctx context.Context, entry session.Entry, from session.Step) error {
	if err := entry.Remove(ctx); err != nil {
		return fmt.Errorf("remove session: %w", err)
	}
	e.transition(ctx, entry.UserID(), from, session.StepNone)
	return nil
}

func (e *Engine) transition(ctx context.Context, userID int64, from, to session.Step) {
	logger.Debug(ctx, component, "conversation.transition",
		slog.Int64("user_id", userID),
		slog.String("step", from.String()),
		slog.String("next_step", to.String()),
	)
}

func (e *Engine) discardCorrupt(ctx context.Context, entry session.Entry, cause error) error {
	logger.Error(ctx, component, "conversation.corrupt",
		slog.String("status", "fail"),
		slog.Int64("user_id", entry.UserID()),
		slog.String("err", cause.Error()),
		slog.String("err_code", domain.ErrCode(cause)),
	)
	if err := entry.Remove(ctx); err != nil {
		return fmt.Errorf("remove corrupt session: %w", err)
	}
	return cause
}

// conflict answers an input that does not match the current step.
func (e *Engine) conflict(ctx context.Context, s session.Session, in Input) error {
	logger.Warn(ctx, component, "conversation.conflict",
		slog.Int64("user_id", in.UserID),
		slog.String("step", s.Step.String()),
		slog.String("kind", in.Kind.String()),
		slog.String("err_code", domain.ErrCode(domain.ErrStateConflict)),
	)
	if in.Kind != KindText {
		return nil
	}
	return e.reply(ctx, in.UserID, e.promptFor(s))
}

func (e *Engine) ignore(ctx context.Context, in Input, reason string) {
	logger.Debug(ctx, component, "conversation.ignored",
		slog.Int64("user_id", in.UserID),
		slog.String("kind", in.Kind.String()),
		slog.String("reason", reason),
	)
}

func (e *Engine) reply(ctx context.Context, userID int64, msg notify.Message) error {
	if err := e.Notifier.Notify(ctx, userID, msg); err != nil {
		return fmt.Errorf("notify %d: %w", userID, err)
	}
	return nil
}

func (e *Engine) limits(c domain.Currency) Range {
	if r, ok := e.Limits[c]; ok {
		return r
	}
	return DefaultRange
}
