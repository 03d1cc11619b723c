package core

import (
	"fmt"
	"strconv"
	"strings"
)

// allowedOptionBases and allowedSpotSymbols mirror the venue's current
// coverage: only what the option-chain cache (out of scope) actually lists.
var (
	allowedOptionBases = map[string]bool{"BTC": true, "ETH": true}
	allowedSpotSymbols = map[string]bool{"BTCUSDT": true}
)

// ParseOptionSymbol validates a Bybit-style option symbol:
// BASE-EXPIRY-STRIKE-TYPE or BASE-EXPIRY-STRIKE-TYPE-SETTLE.
func ParseOptionSymbol(symbol string) error {
	parts := strings.Split(symbol, "-")
	if len(parts) != 4 && len(parts) != 5 {
		return fmt.Errorf("option symbol %q must be BASE-EXPIRY-STRIKE-TYPE[-SETTLE]", symbol)
	}
	base, _, optType := parts[0], parts[1], parts[3]
	if !allowedOptionBases[base] {
		return fmt.Errorf("option symbol %q: unsupported base coin %q", symbol, base)
	}
	switch optType {
	case "C", "P", "Call", "Put":
	default:
		return fmt.Errorf("option symbol %q: option type must be C/P/Call/Put", symbol)
	}
	if _, err := strconv.ParseFloat(parts[2], 64); err != nil {
		return fmt.Errorf("option symbol %q: strike must be numeric", symbol)
	}
	if len(parts) == 5 && parts[4] != "USDT" {
		return fmt.Errorf("option symbol %q: only USDT-settled options are supported", symbol)
	}
	return nil
}

// ValidateSpotSymbol rejects anything outside the currently supported
// spot watchlist: an unsupported spot symbol is a hard rejection at
// task-creation time, not a silent accept.
func ValidateSpotSymbol(symbol string) error {
	if !allowedSpotSymbols[strings.ToUpper(symbol)] {
		return fmt.Errorf("spot symbol %q is not supported", symbol)
	}
	return nil
}

// CanonicalizeSymbol uppercases an option symbol and appends -USDT unless it
// already carries a recognized settlement suffix.
func CanonicalizeSymbol(symbol string) string {
	s := strings.ToUpper(symbol)
	for _, suffix := range []string{"-USDT", "-USD", "-USDC"} {
		if strings.HasSuffix(s, suffix) {
			return s
		}
	}
	return s + "-USDT"
}

// SyncTaskID builds the deterministic monitor task id the strategy engine
// assigns to a level's own monitors, so re-running sync on an unchanged
// level recreates the same id instead of a duplicate.
func SyncTaskID(strategyID, levelID string, monitorType MonitorType) string {
	return strings.ToLower(fmt.Sprintf("strategy-%s-%s-%s", strategyID, levelID, monitorType))
}
