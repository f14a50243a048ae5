package numeric

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// Parse/format errors. These indicate caller bugs (malformed input strings),
// not venue failures, and are surfaced synchronously.
var (
	ErrEmptyAmount   = errors.New("numeric: empty amount string")
	ErrInvalidAmount = errors.New("numeric: invalid amount string")
)

// ParseUnits parses a human decimal string ("1.5") into a raw integer amount
// for an asset with the given decimal precision. Fractional digits beyond the
// asset's precision are truncated, never rounded.
func ParseUnits(s string, decimals uint8) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrEmptyAmount
	}

	neg := false
	if s[0] == '+' || s[0] == '-' {
		neg = s[0] == '-'
		s = s[1:]
	}
	if neg {
		return nil, fmt.Errorf("%w: negative amount %q", ErrInvalidAmount, s)
	}

	whole := s
	frac := ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		whole, frac = s[:i], s[i+1:]
	}
	if whole == "" && frac == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if whole == "" {
		whole = "0"
	}
	if !isDigits(whole) || (frac != "" && !isDigits(frac)) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}

	// Truncate excess fractional digits.
	if len(frac) > int(decimals) {
		frac = frac[:decimals]
	}
	frac += strings.Repeat("0", int(decimals)-len(frac))

	raw, ok := new(big.Int).SetString(whole+frac, 10)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return raw, nil
}

// FormatUnits renders a raw integer amount as a human decimal string,
// truncating (not rounding) to at most maxPlaces fractional digits.
// maxPlaces is clamped to the asset's own precision.
func FormatUnits(raw *big.Int, decimals uint8, maxPlaces int) string {
	if raw == nil {
		raw = zero
	}
	neg := raw.Sign() < 0
	abs := new(big.Int).Abs(raw)

	digits := abs.String()
	if len(digits) <= int(decimals) {
		digits = strings.Repeat("0", int(decimals)-len(digits)+1) + digits
	}
	split := len(digits) - int(decimals)
	whole, frac := digits[:split], digits[split:]

	if maxPlaces < 0 {
		maxPlaces = 0
	}
	if maxPlaces > int(decimals) {
		maxPlaces = int(decimals)
	}
	if len(frac) > maxPlaces {
		frac = frac[:maxPlaces]
	}

	out := whole
	if frac != "" {
		out += "." + frac
	}
	if neg {
		out = "-" + out
	}
	return out
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return len(s) > 0
}
