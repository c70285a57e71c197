package levels

import (
	"math"
	"regexp"
	"strings"
)

// The three B5 factor multipliers. Levels are spaced by close*factor.
const (
	FactorMicro = 0.002611
	FactorMini  = 0.0261
	FactorMega  = 0.2611
)

// FactorValue maps a factor name to its multiplier. Unknown names fall back
// to micro.
func FactorValue(name string) float64 {
	switch name {
	case "mini":
		return FactorMini
	case "mega":
		return FactorMega
	default:
		return FactorMicro
	}
}

var factorIndexRe = regexp.MustCompile(`^(NIFTY|BANKNIFTY|FINNIFTY|SENSEX)$`)

// SelectFactor picks a factor for one row under the "smart" policy: the
// instrument class and the size of the move away from the first close decide
// how wide the ladder should be.
//
// Returns the multiplier, its name and the rule tag that fired.
func SelectFactor(ltp, close float64, exchange, tsym string) (factor float64, name, reason string) {
	ex := strings.ToUpper(strings.TrimSpace(exchange))
	ts := strings.ToUpper(strings.TrimSpace(tsym))

	if ex == "MCX" {
		return FactorMini, "mini", "mcx_commodity"
	}

	isIndex := factorIndexRe.MatchString(ts)
	isOption := ex == "NFO" || ex == "BFO" || strings.HasSuffix(ts, "CE") || strings.HasSuffix(ts, "PE")
	isFuture := strings.Contains(ts, "FUT")

	if isIndex {
		return FactorMicro, "micro", "index"
	}

	var movePct float64
	if close > 0 {
		movePct = math.Abs(ltp-close) / close * 100
	}

	if isOption {
		switch {
		case movePct > 10:
			return FactorMega, "mega", "extreme_volatility_option"
		case movePct > 5:
			return FactorMini, "mini", "volatile_option"
		default:
			return FactorMicro, "micro", "option"
		}
	}

	if isFuture {
		if movePct > 3 {
			return FactorMini, "mini", "volatile_future"
		}
		return FactorMicro, "micro", "future"
	}

	switch {
	case movePct > 8:
		return FactorMega, "mega", "extreme_volatility_equity"
	case movePct > 5:
		return FactorMini, "mini", "volatile_equity"
	default:
		return FactorMicro, "micro", "equity"
	}
}

// resolveFactor applies the configured factor to one row. "smart" delegates
// to SelectFactor; a fixed factor is used as-is except that MCX rows are
// always promoted to the configured MCX factor.
func resolveFactor(configured, mcxFactor string, ltp, close float64, exchange, tsym string) (float64, string, string) {
	if configured == "smart" {
		return SelectFactor(ltp, close, exchange, tsym)
	}
	if strings.EqualFold(strings.TrimSpace(exchange), "MCX") {
		name := mcxFactor
		if name == "" {
			name = "mini"
		}
		return FactorValue(name), name, "mcx_commodity"
	}
	return FactorValue(configured), configured, "fixed"
}
