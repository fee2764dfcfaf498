package scraper

import (
	"fmt"
	"regexp"

	"github.com/shopspring/decimal"
)

var nonPriceChars = regexp.MustCompile(`[^0-9.]`)

// NormalizePrice converts text like "$1,234.56" to whole units (1234).
// Fractions are truncated, not rounded.
func NormalizePrice(raw string) (int64, error) {
	clean := nonPriceChars.ReplaceAllString(raw, "")
	if clean == "" {
		return 0, fmt.Errorf("%w: %q", ErrMalformedPrice, raw)
	}

	d, err := decimal.NewFromString(clean)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrMalformedPrice, raw)
	}

	whole := d.Truncate(0).BigInt()
	if !whole.IsInt64() {
		return 0, fmt.Errorf("%w: %q out of range", ErrMalformedPrice, raw)
	}
	return whole.Int64(), nil
}
