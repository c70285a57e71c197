package market

import (
	"regexp"
	"strings"
	"time"
)

// IST is UTC+5:30 (19800 seconds). India has no DST, so a fixed zone is
// equivalent to Asia/Kolkata and needs no tzdata at runtime.
var IST = time.FixedZone("IST", 19800)

// Now returns the current time in IST.
func Now() time.Time { return time.Now().In(IST) }

// Day formats t as the ISO calendar day used as the trade-day key.
func Day(t time.Time) string { return t.In(IST).Format("2006-01-02") }

// NowISO formats t the way the producer stamps updated_at.
func NowISO(t time.Time) string { return t.In(IST).Format("2006-01-02T15:04:05") }

// closeTOD is a market-close time-of-day threshold, seconds since midnight IST.
type closeTOD int

var exchangeClose = map[string]closeTOD{
	"NSE": 15*3600 + 28*60 + 30,
	"BSE": 15*3600 + 28*60 + 30,
	"NFO": 15*3600 + 28*60 + 30,
	"BFO": 15*3600 + 28*60 + 30,
	"MCX": 23*3600 + 30*60,
}

// ShouldAutoCloseAt reports whether the IST time-of-day of t is at or past
// the exchange's close threshold. Unknown exchanges use the NSE threshold.
func ShouldAutoCloseAt(exchange string, t time.Time) bool {
	thr, ok := exchangeClose[strings.ToUpper(exchange)]
	if !ok {
		thr = exchangeClose["NSE"]
	}
	ist := t.In(IST)
	tod := closeTOD(ist.Hour()*3600 + ist.Minute()*60 + ist.Second())
	return tod >= thr
}

// ShouldAutoClose is ShouldAutoCloseAt at the current instant. The paper
// engine applies the same thresholds through ShouldAutoCloseAt with its own
// clock, both to new entries and to forced closes of open positions.
func ShouldAutoClose(exchange string) bool {
	return ShouldAutoCloseAt(exchange, time.Now())
}

// EveningSessionAt reports whether t falls in the MCX evening session
// (IST hour >= 17), where the probability threshold is relaxed.
func EveningSessionAt(t time.Time) bool {
	return t.In(IST).Hour() >= 17
}

var indexRe = regexp.MustCompile(`^(NIFTY|BANKNIFTY|FINNIFTY|SENSEX)$`)

// Instrument classes.
const (
	InstrumentIndex     = "INDEX"
	InstrumentOption    = "OPTION"
	InstrumentFuture    = "FUTURE"
	InstrumentEquity    = "EQUITY"
	InstrumentCommodity = "COMMODITY"
)

// InstrumentType classifies a row from its exchange and tradingsymbol.
func InstrumentType(exchange, tsym string) string {
	ex := strings.ToUpper(strings.TrimSpace(exchange))
	ts := strings.ToUpper(strings.TrimSpace(tsym))

	if ex == "MCX" {
		return InstrumentCommodity
	}
	if indexRe.MatchString(ts) {
		return InstrumentIndex
	}
	if ex == "NFO" || ex == "BFO" || strings.HasSuffix(ts, "CE") || strings.HasSuffix(ts, "PE") {
		if strings.Contains(ts, "FUT") {
			return InstrumentFuture
		}
		return InstrumentOption
	}
	if strings.Contains(ts, "FUT") {
		return InstrumentFuture
	}
	return InstrumentEquity
}

// SplitSymbol splits the producer's `EXCHANGE|TOKEN` key.
func SplitSymbol(symbol string) (exchange, token string) {
	if i := strings.IndexByte(symbol, '|'); i >= 0 {
		return symbol[:i], symbol[i+1:]
	}
	return "", symbol
}
