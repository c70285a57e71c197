package market

import (
	"testing"
	"time"
)

func istTime(h, m, s int) time.Time {
	return time.Date(2025, 7, 14, h, m, s, 0, IST)
}

func TestShouldAutoCloseAtNSEBoundary(t *testing.T) {
	if ShouldAutoCloseAt("NSE", istTime(15, 28, 29)) {
		t.Error("15:28:29 IST must be before NSE close")
	}
	if !ShouldAutoCloseAt("NSE", istTime(15, 28, 30)) {
		t.Error("15:28:30 IST must trigger NSE close")
	}
	if !ShouldAutoCloseAt("nse", istTime(15, 28, 31)) {
		t.Error("exchange match must be case-insensitive")
	}
}

func TestShouldAutoCloseAtMCX(t *testing.T) {
	if ShouldAutoCloseAt("MCX", istTime(22, 0, 0)) {
		t.Error("22:00 IST must be inside the MCX session")
	}
	if !ShouldAutoCloseAt("MCX", istTime(23, 30, 0)) {
		t.Error("23:30:00 IST must trigger MCX close")
	}
}

func TestShouldAutoCloseAtUnknownExchangeUsesNSE(t *testing.T) {
	if ShouldAutoCloseAt("XYZ", istTime(12, 0, 0)) {
		t.Error("unknown exchange at midday must be open")
	}
	if !ShouldAutoCloseAt("XYZ", istTime(16, 0, 0)) {
		t.Error("unknown exchange must inherit the NSE threshold")
	}
}

func TestEveningSessionAt(t *testing.T) {
	if EveningSessionAt(istTime(16, 59, 59)) {
		t.Error("16:59 IST is not the evening session")
	}
	if !EveningSessionAt(istTime(17, 0, 0)) {
		t.Error("17:00 IST starts the evening session")
	}
}

func TestInstrumentType(t *testing.T) {
	cases := []struct {
		exchange, tsym, want string
	}{
		{"MCX", "CRUDEOIL25JULFUT", InstrumentCommodity},
		{"NSE", "NIFTY", InstrumentIndex},
		{"NSE", "BANKNIFTY", InstrumentIndex},
		{"NFO", "NIFTY25JUL25000CE", InstrumentOption},
		{"BFO", "SENSEX25JUL81000PE", InstrumentOption},
		{"NSE", "RELIANCE25JULFUT", InstrumentFuture},
		{"NFO", "NIFTY25JULFUT", InstrumentFuture},
		{"NSE", "INFY", InstrumentEquity},
		{"BSE", "TCS", InstrumentEquity},
	}
	for _, c := range cases {
		if got := InstrumentType(c.exchange, c.tsym); got != c.want {
			t.Errorf("InstrumentType(%s,%s) = %s, want %s", c.exchange, c.tsym, got, c.want)
		}
	}
}

func TestSplitSymbol(t *testing.T) {
	ex, tok := SplitSymbol("NSE|2885")
	if ex != "NSE" || tok != "2885" {
		t.Errorf("SplitSymbol: got (%s,%s)", ex, tok)
	}
	ex, tok = SplitSymbol("2885")
	if ex != "" || tok != "2885" {
		t.Errorf("SplitSymbol without exchange: got (%s,%s)", ex, tok)
	}
}

func TestDayFormat(t *testing.T) {
	d := Day(time.Date(2025, 7, 14, 10, 0, 0, 0, IST))
	if d != "2025-07-14" {
		t.Errorf("Day = %s", d)
	}
}
