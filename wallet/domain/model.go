package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TxKind classifies a transaction.
type TxKind string

const (
	KindDeposit  TxKind = "DEPOSIT"
	KindPurchase TxKind = "PURCHASE"
)

// TxStatus is the lifecycle state of a transaction. Only pending may move,
// and only to completed or rejected.
type TxStatus string

const (
	StatusPending   TxStatus = "pending"
	StatusCompleted TxStatus = "completed"
	StatusRejected  TxStatus = "rejected"
)

// Final reports whether s can no longer change.
func (s TxStatus) Final() bool {
	return s == StatusCompleted || s == StatusRejected
}

// User is a wallet owner keyed by Telegram id.
type User struct {
	ID          int64     `db:"id"`
	DisplayName string    `db:"display_name"`
	Username    string    `db:"username"`
	CreatedAt   time.Time `db:"created_at"`
	Balances
}

// Transaction records a funding or purchase request and its resolution.
type Transaction struct {
	ID           int64           `db:"id"`
	UserID       int64           `db:"user_id"`
	Kind         TxKind          `db:"type"`
	Currency     Currency        `db:"currency"`
	Amount       decimal.Decimal `db:"amount_requested"`
	Status       TxStatus        `db:"status"`
	ProofURL     *string         `db:"proof_url"`
	RejectReason *string         `db:"reject_reason"`
	ProductID    *string         `db:"product_id"`
	ExternalRef  *string         `db:"external_ref"`
	CreatedAt    time.Time       `db:"created_at"`
	ResolvedAt   *time.Time      `db:"resolved_at"`
}

// ProductKind selects where a purchase is delivered.
type ProductKind string

const (
	// ProductGame credits a game account identified by player and zone.
	ProductGame ProductKind = "game"

	// ProductPhone recharges a mobile line.
	ProductPhone ProductKind = "phone"
)

// Valid reports whether k is a known kind. Empty means ProductGame.
func (k ProductKind) Valid() bool {
	return k == "" || k == ProductGame || k == ProductPhone
}

// Product is read-only catalog data used for purchases.
type Product struct {
	ID                  string          `db:"id" yaml:"id"`
	Name                string          `db:"name" yaml:"name"`
	Kind                ProductKind     `db:"kind" yaml:"kind"`
	PriceCUP            decimal.Decimal `db:"price_cup" yaml:"price_cup"`
	PriceSaldo          decimal.Decimal `db:"price_saldo" yaml:"price_saldo"`
	PriceUSDT           decimal.Decimal `db:"price_usdt" yaml:"price_usdt"`
	ExternalProductID   string          `db:"external_product_id" yaml:"external_product_id"`
	ExternalVariationID string          `db:"external_variation_id" yaml:"external_variation_id"`
	NeedsZone           bool            `db:"needs_zone" yaml:"needs_zone"`
	Active              bool            `db:"active" yaml:"active"`
}

// IsPhone reports whether the product is a mobile recharge.
func (p Product) IsPhone() bool { return p.Kind == ProductPhone }

// Price returns the price in c and whether the product is sold in c.
func (p Product) Price(c Currency) (decimal.Decimal, bool) {
	var price decimal.Decimal
	switch c {
	case CUP:
		price = p.PriceCUP
	case Saldo:
		price = p.PriceSaldo
	case USDT:
		price = p.PriceUSDT
	default:
		return decimal.Zero, false
	}
	return price, price.IsPositive()
}
