package indicator

import "strings"

const futuresSuffix = "FUT"

// UnderlyingSymbol derives the spot symbol of a futures contract from its
// trading symbol, e.g. NIFTY24JANFUT and BANKNIFTY-FUT map to NIFTY and
// BANKNIFTY. ok is false when symbol is not a futures contract.
func UnderlyingSymbol(symbol string) (string, bool) {
	upper := strings.ToUpper(strings.TrimSpace(symbol))
	if !strings.HasSuffix(upper, futuresSuffix) {
		return "", false
	}
	base := strings.TrimSuffix(upper, futuresSuffix)
	if i := strings.IndexFunc(base, isDigit); i >= 0 {
		base = base[:i]
	}
	base = strings.TrimRight(base, "- _")
	if base == "" {
		return "", false
	}
	return base, true
}

// Basis returns the futures minus spot divergence for symbol. lookup
// resolves the spot price of the underlying; when the symbol is not a
// future or the spot is unknown ok is false.
func Basis(symbol string, futuresPrice float64, lookup func(underlying string) (float64, bool)) (float64, bool) {
	underlying, ok := UnderlyingSymbol(symbol)
	if !ok || lookup == nil {
		return 0, false
	}
	spot, ok := lookup(underlying)
	if !ok {
		return 0, false
	}
	return futuresPrice - spot, true
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}
