package levels

import "testing"

func TestSelectFactorEquityMoveBands(t *testing.T) {
	// INFY from a 1500 first close: equity is mega above 8% moved,
	// mini above 5%, micro otherwise.
	check := func(ltp float64, want string) {
		t.Helper()
		_, name, _ := SelectFactor(ltp, 1500, "NSE", "INFY")
		if name != want {
			t.Errorf("SelectFactor(ltp=%v) = %s, want %s", ltp, name, want)
		}
	}
	check(1545, "micro") // 3.00%
	check(1560, "micro") // 4.00%
	check(1570, "micro") // 4.67%
	check(1600, "mini")  // 6.67%
	check(1620, "mini")  // 8.00% is not > 8
	check(1621, "mega")  // 8.07%
	check(1700, "mega")  // 13.33%
}

func TestSelectFactorMCXAlwaysMini(t *testing.T) {
	f, name, reason := SelectFactor(80000, 50000, "MCX", "GOLD25AUGFUT")
	if f != FactorMini || name != "mini" || reason != "mcx_commodity" {
		t.Errorf("MCX: got (%v,%s,%s)", f, name, reason)
	}
}

func TestSelectFactorIndex(t *testing.T) {
	f, name, reason := SelectFactor(25000, 24000, "NSE", "NIFTY")
	if f != FactorMicro || name != "micro" || reason != "index" {
		t.Errorf("Index: got (%v,%s,%s)", f, name, reason)
	}
}

func TestSelectFactorOptionBands(t *testing.T) {
	check := func(ltp, close float64, want, wantReason string) {
		t.Helper()
		_, name, reason := SelectFactor(ltp, close, "NFO", "NIFTY25JUL25000CE")
		if name != want {
			t.Errorf("option ltp=%v close=%v: got %s, want %s", ltp, close, name, want)
		}
		if wantReason != "" && reason != wantReason {
			t.Errorf("option reason: got %s, want %s", reason, wantReason)
		}
	}
	check(104, 100, "micro", "option")                     // 4%
	check(108, 100, "mini", "volatile_option")             // 8%
	check(115, 100, "mega", "extreme_volatility_option")   // 15%
	check(90, 100, "mini", "volatile_option")              // -10% abs
}

func TestSelectFactorFuture(t *testing.T) {
	_, name, _ := SelectFactor(102, 100, "NSE", "RELIANCE25JULFUT")
	if name != "micro" {
		t.Errorf("future 2%%: got %s", name)
	}
	_, name, _ = SelectFactor(104, 100, "NSE", "RELIANCE25JULFUT")
	if name != "mini" {
		t.Errorf("future 4%%: got %s", name)
	}
}

func TestResolveFactorFixedWithMCXPromotion(t *testing.T) {
	f, name, reason := resolveFactor("micro", "mini", 100, 100, "NSE", "INFY")
	if f != FactorMicro || name != "micro" || reason != "fixed" {
		t.Errorf("fixed micro: got (%v,%s,%s)", f, name, reason)
	}

	f, name, reason = resolveFactor("micro", "mini", 80000, 50000, "MCX", "GOLD")
	if f != FactorMini || name != "mini" || reason != "mcx_commodity" {
		t.Errorf("fixed micro on MCX must promote to mini: got (%v,%s,%s)", f, name, reason)
	}
}
