package paper

import (
	"math"
	"testing"
)

func TestComputeChargesNSE(t *testing.T) {
	c := ComputeCharges(100, 110, 1, "NSE")

	turnover := 210.0
	if !close2(c.Brokerage, turnover*0.0001) {
		t.Errorf("brokerage = %v", c.Brokerage)
	}
	if !close2(c.STT, turnover*0.00025) {
		t.Errorf("stt = %v", c.STT)
	}
	if !close2(c.ExchangeCharges, turnover*0.0000325) {
		t.Errorf("exchange charges = %v", c.ExchangeCharges)
	}
	if !close2(c.SEBICharges, turnover*0.000001) {
		t.Errorf("sebi = %v", c.SEBICharges)
	}
	if !close2(c.StampDuty, 100*0.00015) {
		t.Errorf("stamp duty = %v", c.StampDuty)
	}
	if !close2(c.GST, (c.Brokerage+c.ExchangeCharges)*0.18) {
		t.Errorf("gst = %v", c.GST)
	}

	sum := c.Brokerage + c.STT + c.ExchangeCharges + c.SEBICharges + c.StampDuty + c.GST
	if !close2(c.Total, sum) {
		t.Errorf("total = %v, want %v", c.Total, sum)
	}
}

func TestComputeChargesBrokerageCap(t *testing.T) {
	// Turnover large enough that 0.01% exceeds the 20 rupee cap.
	c := ComputeCharges(150000, 151000, 1, "MCX")
	if c.Brokerage != 20.00 {
		t.Errorf("brokerage must cap at 20, got %v", c.Brokerage)
	}
}

func TestComputeChargesNonEquitySTT(t *testing.T) {
	c := ComputeCharges(100, 110, 1, "MCX")
	if !close2(c.STT, 210*0.0001) {
		t.Errorf("MCX stt = %v", c.STT)
	}
}

// Charges identity: net_pnl + total_charges = pnl.
func TestChargesAccountingIdentity(t *testing.T) {
	entry, exit, qty := 100.0, 101.5, 50
	c := ComputeCharges(entry, exit, qty, "NFO")
	pnl := (exit - entry) * float64(qty)
	net := pnl - c.Total
	if math.Abs((net+c.Total)-pnl) > 1e-6 {
		t.Errorf("identity violated: net=%v charges=%v pnl=%v", net, c.Total, pnl)
	}
}

func close2(a, b float64) bool { return math.Abs(a-b) < 1e-9 }
