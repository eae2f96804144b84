// Package session keeps one in-progress conversation per user.
package session

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/m3rciful/walletbot/wallet/domain"
)

// DefaultTTL is how long an untouched session survives.
const DefaultTTL = 30 * time.Minute

// Step is the conversation position of a session.
type Step string

const (
	StepNone          Step = ""
	StepWaitingAmount Step = "waiting_amount"
	StepWaitingProof  Step = "waiting_proof"
	StepAskPlayerID   Step = "ask_player_id"
	StepAskZoneID     Step = "ask_zone_id"
	StepAskPhone      Step = "ask_phone"
	StepAdmReason     Step = "adm_reason"
)

// Steps lists every step a stored session may hold.
var Steps = []Step{StepWaitingAmount, StepWaitingProof, StepAskPlayerID, StepAskZoneID, StepAskPhone, StepAdmReason}

// Valid reports whether s belongs to the closed step set.
func (s Step) Valid() bool {
	switch s {
	case StepNone, StepWaitingAmount, StepWaitingProof, StepAskPlayerID, StepAskZoneID, StepAskPhone, StepAdmReason:
		return true
	}
	return false
}

func (s Step) String() string {
	if s == StepNone {
		return "none"
	}
	return string(s)
}

// Session carries the fields collected so far. Which fields are meaningful
// depends on Step.
type Session struct {
	UserID    int64           `json:"user_id"`
	Step      Step            `json:"step"`
	Currency  domain.Currency `json:"currency,omitempty"`
	Amount    decimal.Decimal `json:"amount"`
	ProductID string          `json:"product_id,omitempty"`
	Cost      decimal.Decimal `json:"cost"`
	PlayerID  string          `json:"player_id,omitempty"`
	ZoneID    string          `json:"zone_id,omitempty"`
	Phone     string          `json:"phone,omitempty"`
	TxID      int64           `json:"tx_id,omitempty"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Store persists sessions by user id. Implementations drop sessions older
// than their TTL and report them as absent.
type Store interface {
	Get(ctx context.Context, userID int64) (Session, bool, error)
	Put(ctx context.Context, s Session) error
	Remove(ctx context.Context, userID int64) error
}

func expired(s Session, ttl time.Duration, now time.Time) bool {
	return ttl > 0 && !s.UpdatedAt.IsZero() && now.Sub(s.UpdatedAt) > ttl
}
