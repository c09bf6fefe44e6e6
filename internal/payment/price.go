package payment

import (
	"fmt"
	"math/big"
	"strings"
)

// assetDecimals is the stablecoin's decimal count (USDC).
const assetDecimals = 6

// ParsePrice converts a display price like "$0.001" into atomic asset
// units. Fractions beyond the asset's precision are rejected rather than
// silently truncated.
func ParsePrice(price string) (*big.Int, error) {
	s := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(price), "$"))
	if s == "" {
		return nil, fmt.Errorf("empty price")
	}
	whole, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		whole, frac = s[:i], s[i+1:]
	}
	if whole == "" {
		whole = "0"
	}
	if len(frac) > assetDecimals {
		return nil, fmt.Errorf("price %s exceeds %d decimal places", price, assetDecimals)
	}
	frac += strings.Repeat("0", assetDecimals-len(frac))
	units, ok := new(big.Int).SetString(whole+frac, 10)
	if !ok {
		return nil, fmt.Errorf("invalid price %q", price)
	}
	if units.Sign() < 0 {
		return nil, fmt.Errorf("negative price %q", price)
	}
	return units, nil
}
