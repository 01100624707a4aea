package domain

import (
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// Bounds on every decimal that enters the ledger. Cash and quantities are
// summed repeatedly, and decimal arithmetic rescales to the finest
// exponent involved, so an extreme exponent would make every later
// operation on the account arbitrarily slow.
const (
	// MaxScale is the most digits allowed after the decimal point.
	MaxScale = 8
	// MaxIntegerDigits is the most digits allowed before the decimal point.
	MaxIntegerDigits = 15
	// maxInputDigits caps the coefficient before trailing zeros are stripped.
	maxInputDigits = 40
)

var maxCents = decimal.NewFromInt(math.MaxInt64)

// ParseQuantity parses a share quantity from user input. Blank, malformed,
// zero, negative and out-of-range values are rejected with a *ValidationError.
func ParseQuantity(s string) (decimal.Decimal, error) {
	return parsePositive("shares", s)
}

// ParseAmount parses a cash amount from user input with the same rules
// as ParseQuantity.
func ParseAmount(s string) (decimal.Decimal, error) {
	return parsePositive("amount", s)
}

// ParseCash parses a starting balance. Zero is allowed.
func ParseCash(field, s string) (decimal.Decimal, error) {
	d, err := parseBounded(field, s)
	if err != nil {
		return decimal.Zero, err
	}
	if d.IsNegative() {
		return decimal.Zero, &ValidationError{Message: field + " must be >= 0"}
	}
	return d, nil
}

func parsePositive(field, s string) (decimal.Decimal, error) {
	d, err := parseBounded(field, s)
	if err != nil {
		return decimal.Zero, err
	}
	if !d.IsPositive() {
		return decimal.Zero, &ValidationError{Message: field + " must be > 0"}
	}
	return d, nil
}

func parseBounded(field, s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, &ValidationError{Message: field + " is required"}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, &ValidationError{Message: fmt.Sprintf("%s must be a number, got %q", field, s)}
	}
	return Bound(field, d)
}

// Bound checks d against MaxScale and MaxIntegerDigits and returns it with
// trailing zeros stripped, so "1.5000" and "1.5" share one representation.
// It looks only at the coefficient and exponent and never rescales d, so
// it is cheap for any input.
func Bound(field string, d decimal.Decimal) (decimal.Decimal, error) {
	coef := d.Coefficient()
	if coef.Sign() == 0 {
		return decimal.Zero, nil
	}
	neg := coef.Sign() < 0
	digits := new(big.Int).Abs(coef).String()
	if len(digits) > maxInputDigits {
		return decimal.Zero, &ValidationError{Message: field + " has too many digits"}
	}

	exp := int64(d.Exponent())
	for len(digits) > 1 && digits[len(digits)-1] == '0' {
		digits = digits[:len(digits)-1]
		exp++
	}
	if exp < -MaxScale {
		return decimal.Zero, &ValidationError{
			Message: fmt.Sprintf("%s allows at most %d decimal places", field, MaxScale),
		}
	}
	if int64(len(digits))+exp > MaxIntegerDigits {
		return decimal.Zero, &ValidationError{
			Message: fmt.Sprintf("%s allows at most %d integer digits", field, MaxIntegerDigits),
		}
	}

	c, _ := new(big.Int).SetString(digits, 10)
	if neg {
		c.Neg(c)
	}
	return decimal.NewFromBigInt(c, int32(exp)), nil
}

// FormatUSD renders an amount the way it is shown to users, e.g. "$1,040.00".
// Sub-cent digits are rounded half away from zero.
func FormatUSD(d decimal.Decimal) string {
	cents := d.Shift(2).Round(0)
	if cents.Abs().LessThanOrEqual(maxCents) {
		return money.New(cents.IntPart(), money.USD).Display()
	}

	// Beyond int64 cents go-money cannot hold the amount.
	fixed := d.Abs().StringFixed(2)
	whole, frac, _ := strings.Cut(fixed, ".")
	sign := ""
	if d.IsNegative() {
		sign = "-"
	}
	return sign + "$" + groupThousands(whole) + "." + frac
}

func groupThousands(digits string) string {
	var b strings.Builder
	lead := len(digits) % 3
	if lead > 0 {
		b.WriteString(digits[:lead])
	}
	for i := lead; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}
