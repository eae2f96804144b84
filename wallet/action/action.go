// Package action decodes inline button payloads of the form tag:p1:p2.
package action

import (
	"sort"
	"strconv"
	"strings"

	"github.com/m3rciful/walletbot/wallet/domain"
)

// Tag names a user action.
type Tag string

const (
	StartBack    Tag = "start_back"
	RechargeMenu Tag = "recharge_menu"
	DepositInit  Tag = "dep_init"
	GamesMenu    Tag = "games_menu"
	Product      Tag = "product"
	PayNow       Tag = "pay_now"
	Cancel       Tag = "cancel"
	Wallet       Tag = "wallet"
	History      Tag = "history"
	Approve      Tag = "approve"
	Reject       Tag = "reject"
	OrderStatus  Tag = "order_status"
	Pending      Tag = "pending"
)

var known = map[Tag]struct{}{
	StartBack: {}, RechargeMenu: {}, DepositInit: {}, GamesMenu: {}, Product: {},
	PayNow: {}, Cancel: {}, Wallet: {}, History: {}, Approve: {}, Reject: {},
	OrderStatus: {}, Pending: {},
}

// Known returns every recognised tag in sorted order.
func Known() []Tag {
	out := make([]Tag, 0, len(known))
	for t := range known {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Payload returns the encoded params without the tag.
func (a Action) Payload() string {
	return strings.TrimPrefix(strings.TrimPrefix(a.String(), string(a.Tag)), sep)
}

const (
	sep       = ":"
	maxParams = 2
)

// Action is a decoded payload. Params beyond the second are dropped and
// missing ones read as empty.
type Action struct {
	Tag    Tag
	params [maxParams]string
}

// New builds an Action from parts.
func New(tag Tag, params ...string) Action {
	a := Action{Tag: tag}
	for i := 0; i < len(params) && i < maxParams; i++ {
		a.params[i] = params[i]
	}
	return a
}

// Parse decodes raw. ok is false for empty input and unknown tags.
func Parse(raw string) (Action, bool) {
	raw = strings.TrimSpace(strings.TrimPrefix(raw, "\f"))
	if raw == "" {
		return Action{}, false
	}
	parts := strings.SplitN(raw, sep, maxParams+2)
	tag := Tag(strings.TrimSpace(parts[0]))
	if _, ok := known[tag]; !ok {
		return Action{}, false
	}
	params := parts[1:]
	if len(params) > maxParams {
		params = params[:maxParams]
	}
	for i := range params {
		params[i] = strings.TrimSpace(params[i])
	}
	return New(tag, params...), true
}

// Param returns the i-th parameter or "" when absent.
func (a Action) Param(i int) string {
	if i < 0 || i >= maxParams {
		return ""
	}
	return a.params[i]
}

// String encodes the action back into payload form.
func (a Action) String() string {
	out := string(a.Tag)
	last := -1
	for i, p := range a.params {
		if p != "" {
			last = i
		}
	}
	for i := 0; i <= last; i++ {
		out += sep + a.params[i]
	}
	return out
}

// Currency reads the currency parameter at i.
func (a Action) Currency(i int) (domain.Currency, bool) {
	c, err := domain.ParseCurrency(a.Param(i))
	if err != nil {
		return "", false
	}
	return c, true
}

// Int64 reads a numeric parameter at i.
func (a Action) Int64(i int) (int64, bool) {
	p := a.Param(i)
	if p == "" {
		return 0, false
	}
	n, err := strconv.ParseInt(p, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
