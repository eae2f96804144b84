package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Currency identifies one of the wallet balances.
type Currency string

const (
	CUP   Currency = "cup"
	Saldo Currency = "saldo"
	USDT  Currency = "usdt"
)

// Currencies lists every supported currency in display order.
var Currencies = []Currency{CUP, Saldo, USDT}

// ParseCurrency accepts any casing and surrounding whitespace.
func ParseCurrency(raw string) (Currency, error) {
	c := Currency(strings.ToLower(strings.TrimSpace(raw)))
	if !c.Valid() {
		return "", &ValidationError{Field: "currency", Reason: fmt.Sprintf("unsupported currency %q", raw)}
	}
	return c, nil
}

// Valid reports whether c is a known currency.
func (c Currency) Valid() bool {
	switch c {
	case CUP, Saldo, USDT:
		return true
	}
	return false
}

// Label is the upper-case name shown to users.
func (c Currency) Label() string {
	return strings.ToUpper(string(c))
}

// Balances holds one amount per currency.
type Balances struct {
	CUP   decimal.Decimal `db:"balance_cup" json:"cup"`
	Saldo decimal.Decimal `db:"balance_saldo" json:"saldo"`
	USDT  decimal.Decimal `db:"balance_usdt" json:"usdt"`
}

// Get returns the balance for c.
func (b Balances) Get(c Currency) decimal.Decimal {
	switch c {
	case CUP:
		return b.CUP
	case Saldo:
		return b.Saldo
	case USDT:
		return b.USDT
	}
	return decimal.Zero
}

// With returns a copy of b with the balance for c replaced.
func (b Balances) With(c Currency, amount decimal.Decimal) Balances {
	switch c {
	case CUP:
		b.CUP = amount
	case Saldo:
		b.Saldo = amount
	case USDT:
		b.USDT = amount
	}
	return b
}

// FormatAmount renders amount for c. USDT and any fractional amount get
// two decimals; whole CUP and SALDO amounts are shown without them.
func FormatAmount(amount decimal.Decimal, c Currency) string {
	places := int32(0)
	if c == USDT || !amount.IsInteger() {
		places = 2
	}
	return amount.StringFixed(places) + " " + c.Label()
}
