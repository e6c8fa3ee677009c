// Package wealth provides exact-precision borg economics: decimal amounts
// carried as integer minor units, and an append-only transaction ledger.
package wealth

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Amount represents a monetary value in a specific currency.
// It uses integer math (minor units) to avoid floating point errors.
type Amount struct {
	MinorUnits int64  `json:"minor_units"`
	Currency   string `json:"currency"`
	Scale      int    `json:"scale"`
}

// Supported currency tags.
const (
	WND  = "WND"
	DOT  = "DOT"
	KSM  = "KSM"
	USDB = "USDB"
)

// currencyScales maps supported currency tags to their decimal precision.
// WND/DOT follow the Westend/Polkadot planck scales; USDB is a 6-decimal stable unit.
var currencyScales = map[string]int{
	"WND":  12,
	"DOT":  10,
	"KSM":  12,
	"USDB": 6,
}

const defaultScale = 12

// ErrInvalidAmount is wrapped by all amount parse failures.
var ErrInvalidAmount = errors.New("wealth: invalid amount")

// ErrCurrencyMismatch is returned when arithmetic mixes currencies.
var ErrCurrencyMismatch = errors.New("wealth: currency mismatch")

// ErrAmountOverflow is returned when arithmetic leaves the int64 minor
// unit range instead of silently wrapping.
var ErrAmountOverflow = errors.New("wealth: amount overflows minor units")

// ScaleFor returns the minor-unit scale for a currency tag.
func ScaleFor(currency string) int {
	if s, ok := currencyScales[currency]; ok {
		return s
	}
	return defaultScale
}

// Zero returns the zero amount in the given currency.
func Zero(currency string) Amount {
	return Amount{MinorUnits: 0, Currency: currency, Scale: ScaleFor(currency)}
}

// FromMinorUnits builds an Amount directly from minor units.
func FromMinorUnits(minor int64, currency string) Amount {
	return Amount{MinorUnits: minor, Currency: currency, Scale: ScaleFor(currency)}
}

// ParseAmount converts a fixed-notation decimal string into an exact Amount.
// Scientific notation, excess fractional digits, and non-numeric input are
// rejected rather than rounded.
func ParseAmount(s, currency string) (Amount, error) {
	scale := ScaleFor(currency)

	s = strings.TrimSpace(s)
	if s == "" {
		return Amount{}, fmt.Errorf("%w: empty string", ErrInvalidAmount)
	}
	neg := false
	if s[0] == '+' || s[0] == '-' {
		neg = s[0] == '-'
		s = s[1:]
	}
	if s == "" || strings.ContainsAny(s, "eE") {
		return Amount{}, fmt.Errorf("%w: %q is not fixed-notation decimal", ErrInvalidAmount, s)
	}

	whole, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		whole, frac = s[:i], s[i+1:]
	}
	if whole == "" {
		whole = "0"
	}
	if frac == "" && strings.IndexByte(s, '.') >= 0 && len(s) == strings.IndexByte(s, '.')+1 {
		return Amount{}, fmt.Errorf("%w: %q has a trailing decimal point", ErrInvalidAmount, s)
	}
	for _, part := range []string{whole, frac} {
		for _, r := range part {
			if r < '0' || r > '9' {
				return Amount{}, fmt.Errorf("%w: %q contains non-digit characters", ErrInvalidAmount, s)
			}
		}
	}
	if len(frac) > scale {
		return Amount{}, fmt.Errorf("%w: %q exceeds %s precision of %d decimals", ErrInvalidAmount, s, currency, scale)
	}

	// Pad the fraction to full scale and combine into minor units.
	frac += strings.Repeat("0", scale-len(frac))
	combined := strings.TrimLeft(whole+frac, "0")
	if combined == "" {
		combined = "0"
	}
	minor, err := strconv.ParseInt(combined, 10, 64)
	if err != nil {
		return Amount{}, fmt.Errorf("%w: %q overflows minor units: %v", ErrInvalidAmount, s, err)
	}
	if neg {
		minor = -minor
	}
	return Amount{MinorUnits: minor, Currency: currency, Scale: scale}, nil
}

// MustParse is ParseAmount that panics on error. Intended for tests and constants.
func MustParse(s, currency string) Amount {
	a, err := ParseAmount(s, currency)
	if err != nil {
		panic(err)
	}
	return a
}

// Add sums two Amounts. Returns an error on currency mismatch or when
// the sum leaves the int64 range.
func (a Amount) Add(other Amount) (Amount, error) {
	if err := a.sameUnit(other); err != nil {
		return Amount{}, err
	}
	sum := a.MinorUnits + other.MinorUnits
	if (other.MinorUnits > 0 && sum < a.MinorUnits) || (other.MinorUnits < 0 && sum > a.MinorUnits) {
		return Amount{}, fmt.Errorf("%w: %s + %s", ErrAmountOverflow, a, other)
	}
	return Amount{MinorUnits: sum, Currency: a.Currency, Scale: a.Scale}, nil
}

// Sub subtracts other from a. Returns an error on currency mismatch or
// when the difference leaves the int64 range.
func (a Amount) Sub(other Amount) (Amount, error) {
	if err := a.sameUnit(other); err != nil {
		return Amount{}, err
	}
	diff := a.MinorUnits - other.MinorUnits
	if (other.MinorUnits > 0 && diff > a.MinorUnits) || (other.MinorUnits < 0 && diff < a.MinorUnits) {
		return Amount{}, fmt.Errorf("%w: %s - %s", ErrAmountOverflow, a, other)
	}
	return Amount{MinorUnits: diff, Currency: a.Currency, Scale: a.Scale}, nil
}

// Cmp compares two Amounts: -1 if a < other, 0 if equal, 1 if a > other.
func (a Amount) Cmp(other Amount) (int, error) {
	if err := a.sameUnit(other); err != nil {
		return 0, err
	}
	switch {
	case a.MinorUnits < other.MinorUnits:
		return -1, nil
	case a.MinorUnits > other.MinorUnits:
		return 1, nil
	default:
		return 0, nil
	}
}

// Min returns the lesser of two Amounts.
func (a Amount) Min(other Amount) (Amount, error) {
	c, err := a.Cmp(other)
	if err != nil {
		return Amount{}, err
	}
	if c <= 0 {
		return a, nil
	}
	return other, nil
}

// IsZero returns true if the amount is 0.
func (a Amount) IsZero() bool { return a.MinorUnits == 0 }

// IsPositive returns true if the amount is > 0.
func (a Amount) IsPositive() bool { return a.MinorUnits > 0 }

// IsNegative returns true if the amount is < 0.
func (a Amount) IsNegative() bool { return a.MinorUnits < 0 }

// String renders the amount in minimal fixed notation ("0.25", never "2.5e-1").
// The form is canonical: ParseAmount(a.String(), a.Currency) reproduces a.
func (a Amount) String() string {
	minor := a.MinorUnits
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	digits := strconv.FormatInt(minor, 10)
	if len(digits) <= a.Scale {
		digits = strings.Repeat("0", a.Scale-len(digits)+1) + digits
	}
	whole := digits[:len(digits)-a.Scale]
	frac := strings.TrimRight(digits[len(digits)-a.Scale:], "0")
	if frac == "" {
		return sign + whole
	}
	return sign + whole + "." + frac
}

func (a Amount) sameUnit(other Amount) error {
	if a.Currency != other.Currency {
		return fmt.Errorf("%w: %s vs %s", ErrCurrencyMismatch, a.Currency, other.Currency)
	}
	if a.Scale != other.Scale {
		return fmt.Errorf("%w: scale %d vs %d", ErrCurrencyMismatch, a.Scale, other.Scale)
	}
	return nil
}
