package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/m3rciful/walletbot/core/logger"
	"github.com/m3rciful/walletbot/wallet/domain"
	"github.com/m3rciful/walletbot/wallet/ledger"
	"github.com/m3rciful/walletbot/wallet/metrics"
)

const defaultRefPrefix = "WALLET"

// OrderPlacer creates orders upstream.
type OrderPlacer interface {
	CreateOrder(ctx context.Context, req OrderRequest) (Order, error)
}

// Purchase is everything collected for one order. Cost is the price the
// buyer was quoted; Phone replaces PlayerID and ZoneID for phone products.
type Purchase struct {
	UserID   int64
	Product  domain.Product
	Currency domain.Currency
	Cost     decimal.Decimal
	PlayerID string
	ZoneID   string
	Phone    string
}

// Result describes a completed purchase.
type Result struct {
	Order       Order
	Transaction domain.Transaction
	Balances    domain.Balances
	PartnerRef  string
}

// Dispatcher places orders and debits the buyer only after the API confirms.
type Dispatcher struct {
	ledger    *ledger.Ledger
	txs       domain.TransactionRepository
	placer    OrderPlacer
	refPrefix string
	now       func() time.Time
}

// NewDispatcher builds a Dispatcher. refPrefix prefixes partner references.
func NewDispatcher(l *ledger.Ledger, txs domain.TransactionRepository, placer OrderPlacer, refPrefix string) *Dispatcher {
	refPrefix = strings.TrimSpace(refPrefix)
	if refPrefix == "" {
		refPrefix = defaultRefPrefix
	}
	return &Dispatcher{
		ledger:    l,
		txs:       txs,
		placer:    placer,
		refPrefix: refPrefix,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// PartnerRef builds a unique order reference for userID.
func PartnerRef(prefix string, userID int64) string {
	return prefix + "_" + strconv.FormatInt(userID, 10) + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Dispatch places the order and debits its price once on success. On any
// upstream failure the balance is left unchanged and a rejected purchase
// record is kept.
func (d *Dispatcher) Dispatch(ctx context.Context, p Purchase) (Result, error) {
	price, ok := p.Product.Price(p.Currency)
	if !ok {
		return Result{}, &domain.ValidationError{Field: "currency", Reason: "product is not sold in " + p.Currency.Label()}
	}
	if !p.Cost.Equal(price) {
		logger.Info(ctx, "fulfillment", "fulfillment.order",
			slog.String("status", "fail"),
			slog.Int64("user_id", p.UserID),
			slog.String("product_id", p.Product.ID),
			slog.String("quoted", p.Cost.String()),
			slog.String("amount", price.String()),
			slog.String("err_code", domain.ErrCode(domain.ErrPriceChanged)),
		)
		return Result{}, domain.ErrPriceChanged
	}
	req, err := d.buildRequest(p)
	if err != nil {
		return Result{}, err
	}

	var (
		order Order
		res   Result
	)
	res.PartnerRef = req.PartnerRef
	productID := p.Product.ID

	balances, err := d.ledger.DebitAfter(ctx, p.UserID, p.Currency, price,
		func(ctx context.Context) error {
			var err error
			order, err = d.placer.CreateOrder(ctx, req)
			return err
		},
		func(ctx context.Context) error {
			ref := order.OrderID
			tx, err := d.txs.Create(ctx, domain.Transaction{
				UserID:      p.UserID,
				Kind:        domain.KindPurchase,
				Currency:    p.Currency,
				Amount:      price,
				Status:      domain.StatusCompleted,
				ProductID:   &productID,
				ExternalRef: &ref,
				CreatedAt:   d.now(),
			})
			res.Transaction = tx
			return err
		},
	)
	metrics.RecordPurchase(string(p.Currency), err)

	attrs := []slog.Attr{
		slog.String("status", logger.Status(err)),
		slog.Int64("user_id", p.UserID),
		slog.String("product_id", productID),
		slog.String("destination", req.UserID),
		slog.String("currency", string(p.Currency)),
		slog.String("amount", price.String()),
		slog.String("partner_ref", req.PartnerRef),
	}
	if err == nil {
		res.Order = order
		res.Balances = balances
		logger.Info(ctx, "fulfillment", "fulfillment.order", append(attrs, slog.String("order_id", order.OrderID))...)
		return res, nil
	}

	attrs = append(attrs, slog.String("err", err.Error()))
	switch {
	case domain.IsUpstream(err):
		logger.Warn(ctx, "fulfillment", "fulfillment.order", attrs...)
		d.recordFailure(ctx, p, price, err)
	case order.OrderID != "":
		// order exists upstream but the debit could not be stored
		logger.Error(ctx, "fulfillment", "fulfillment.reconcile", append(attrs, slog.String("order_id", order.OrderID))...)
	default:
		logger.Warn(ctx, "fulfillment", "fulfillment.order", attrs...)
	}
	return Result{}, err
}

func (d *Dispatcher) buildRequest(p Purchase) (OrderRequest, error) {
	productID, err := parseNumber("external_product_id", p.Product.ExternalProductID)
	if err != nil {
		return OrderRequest{}, err
	}
	variationID, err := parseNumber("external_variation_id", p.Product.ExternalVariationID)
	if err != nil {
		return OrderRequest{}, err
	}
	req := OrderRequest{
		ProductID:   productID,
		VariationID: variationID,
		Quantity:    1,
		PartnerRef:  PartnerRef(d.refPrefix, p.UserID),
	}
	if p.Product.IsPhone() {
		phone := strings.TrimSpace(p.Phone)
		if phone == "" {
			return OrderRequest{}, &domain.ValidationError{Field: "phone", Reason: "required"}
		}
		req.UserID = phone
		return req, nil
	}
	req.UserID = strings.TrimSpace(p.PlayerID)
	if req.UserID == "" {
		return OrderRequest{}, &domain.ValidationError{Field: "player_id", Reason: "required"}
	}
	if zone := strings.TrimSpace(p.ZoneID); zone != "" {
		req.ServerID = &zone
	}
	return req, nil
}

func (d *Dispatcher) recordFailure(ctx context.Context, p Purchase, price decimal.Decimal, cause error) {
	productID := p.Product.ID
	reason := cause.Error()
	var up *domain.UpstreamError
	if errors.As(cause, &up) && up.Message != "" {
		reason = up.Message
	}
	rejectedAt := d.now()
	_, err := d.txs.Create(context.WithoutCancel(ctx), domain.Transaction{
		UserID:       p.UserID,
		Kind:         domain.KindPurchase,
		Currency:     p.Currency,
		Amount:       price,
		Status:       domain.StatusRejected,
		ProductID:    &productID,
		RejectReason: &reason,
		CreatedAt:    rejectedAt,
		ResolvedAt:   &rejectedAt,
	})
	if err != nil {
		logger.Error(ctx, "fulfillment", "fulfillment.record",
			slog.String("status", "fail"),
			slog.Int64("user_id", p.UserID),
			slog.String("amount", price.String()),
			slog.String("err", fmt.Errorf("record rejected purchase: %w", err).Error()),
		)
	}
}
