package services

import (
	"fmt"
	"math"
	"regexp"

	"github.com/shopspring/decimal"
)

const countryCode = "254"

// maxAmount keeps the whole-unit amount sent to the gateway within int64.
var maxAmount = decimal.NewFromInt(math.MaxInt64)

var (
	localPhone         = regexp.MustCompile(`^0\d{9}$`)
	internationalPhone = regexp.MustCompile(`^254\d{9}$`)
)

// NormalizePhone accepts 0XXXXXXXXX or 254XXXXXXXXX and returns the
// international form. Only the trunk prefix is rewritten; surrounding
// whitespace is rejected like any other stray character.
func NormalizePhone(phone string) (string, error) {
	switch {
	case localPhone.MatchString(phone):
		return countryCode + phone[1:], nil
	case internationalPhone.MatchString(phone):
		return phone, nil
	default:
		return "", fmt.Errorf("%w: use 07xxxxxxxx or 2547xxxxxxxx", ErrInvalidPhone)
	}
}

// ParseAmount accepts a positive decimal literal no larger than MaxInt64.
func ParseAmount(raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, fmt.Errorf("%w: amount is required", ErrInvalidAmount)
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q is not a number", ErrInvalidAmount, raw)
	}
	if !amount.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: amount must be positive", ErrInvalidAmount)
	}
	if amount.GreaterThan(maxAmount) {
		return decimal.Zero, fmt.Errorf("%w: amount %s is too large", ErrInvalidAmount, raw)
	}
	return amount, nil
}

// maskPhone keeps the last four digits for log lines.
func maskPhone(phone string) string {
	if len(phone) <= 4 {
		return "****"
	}
	return "****" + phone[len(phone)-4:]
}
