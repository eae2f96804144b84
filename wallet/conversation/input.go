package conversation

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/m3rciful/walletbot/wallet/domain"
)

var (
	accountIDPattern = regexp.MustCompile(`^[A-Za-z0-9_.\-]{1,64}$`)
	amountPattern    = regexp.MustCompile(`^\d+([.,]\d{1,2})?$`)
	longFraction     = regexp.MustCompile(`^\d+[.,]\d{3,}$`)
	phoneSeparators  = strings.NewReplacer(" ", "", "-", "", ".", "", "(", "", ")", "")
	digitsPattern    = regexp.MustCompile(`^\d+$`)
)

// CountryPrefix is the dialing code every recharge destination carries.
const CountryPrefix = "53"

// ParseAmount reads a deposit amount typed by a user: digits with an
// optional "." or "," and at most two decimals. Signs and exponents are
// refused.
func ParseAmount(raw string, r Range) (decimal.Decimal, error) {
	s := strings.ReplaceAll(strings.TrimSpace(raw), " ", "")
	switch {
	case s == "":
		return decimal.Zero, &domain.ValidationError{Field: "amount", Reason: "empty"}
	case longFraction.MatchString(s):
		return decimal.Zero, &domain.ValidationError{Field: "amount", Reason: "too many decimals"}
	case !amountPattern.MatchString(s):
		return decimal.Zero, &domain.ValidationError{Field: "amount", Reason: "not a number"}
	}
	amount, err := decimal.NewFromString(strings.Replace(s, ",", ".", 1))
	if err != nil {
		return decimal.Zero, &domain.ValidationError{Field: "amount", Reason: "not a number"}
	}
	if !r.Contains(amount) {
		return decimal.Zero, &domain.ValidationError{Field: "amount", Reason: "out of range"}
	}
	return amount, nil
}

// ParseAccountID validates a player or zone identifier.
func ParseAccountID(field, raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if !accountIDPattern.MatchString(s) {
		return "", &domain.ValidationError{Field: field, Reason: "use 1-64 letters, digits, '.', '_' or '-'"}
	}
	return s, nil
}

// ParsePhone normalizes a Cuban mobile number to 53 followed by eight
// digits. Spaces, dashes, dots, parentheses and a leading "+" are dropped;
// an eight digit local number gets the prefix added.
func ParsePhone(raw string) (string, error) {
	s := strings.TrimPrefix(phoneSeparators.Replace(strings.TrimSpace(raw)), "+")
	switch {
	case s == "":
		return "", &domain.ValidationError{Field: "phone", Reason: "empty"}
	case !digitsPattern.MatchString(s):
		return "", &domain.ValidationError{Field: "phone", Reason: "digits only"}
	}
	if !strings.HasPrefix(s, CountryPrefix) && len(s) == 8 {
		s = CountryPrefix + s
	}
	if !strings.HasPrefix(s, CountryPrefix) || len(s) != len(CountryPrefix)+8 {
		return "", &domain.ValidationError{Field: "phone", Reason: "must be 53 followed by 8 digits"}
	}
	return s, nil
}
