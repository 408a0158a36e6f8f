package domain

import (
	"math"
	"strconv"
	"strings"
)

// CouponQuote is returned when a coupon is evaluated against a cart subtotal.
type CouponQuote struct {
	Code     string
	Percent  int
	Subtotal int64
	Discount int64
	Total    int64
}

// DiscountFor computes a percentage discount on a subtotal in whole
// currency units, rounding half away from zero.
func DiscountFor(subtotal int64, percent int) int64 {
	if subtotal <= 0 || percent <= 0 {
		return 0
	}
	return int64(math.Round(float64(subtotal) * float64(percent) / 100))
}

// PayableTotal subtracts a discount from a subtotal, clamping at zero.
func PayableTotal(subtotal, discount int64) int64 {
	total := subtotal - discount
	if total < 0 {
		return 0
	}
	return total
}

// refundAmountTolerance absorbs formatting drift when an operator re-types
// an order total, e.g. "2,699" or "2699.00".
const refundAmountTolerance = 0.01

// ParseOperatorAmount parses an operator-entered monetary amount. Thousands
// separators are stripped before parsing.
func ParseOperatorAmount(raw string) (float64, error) {
	cleaned := strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	return strconv.ParseFloat(cleaned, 64)
}

// AmountMatchesTotal reports whether an operator-entered amount matches an
// order total within the accepted tolerance.
func AmountMatchesTotal(entered float64, total int64) bool {
	return math.Abs(entered-float64(total)) <= refundAmountTolerance
}
