package paper

import (
	"math"
	"strings"

	"b5-trader/internal/types"
)

// Intraday charge rates. STT differs for the equity exchanges; everything
// else is flat on turnover except stamp duty (buy side only) and GST on
// brokerage plus exchange charges.
const (
	brokerageRate   = 0.0001
	brokerageCap    = 20.00
	sttRateEquity   = 0.00025
	sttRateOther    = 0.0001
	exchangeRate    = 0.0000325
	sebiRate        = 0.000001
	stampDutyRate   = 0.00015
	gstRate         = 0.18
)

// ComputeCharges breaks down the cost of a completed round trip.
func ComputeCharges(entry, exit float64, quantity int, exchange string) types.Charges {
	qty := float64(quantity)
	turnover := (entry + exit) * qty

	var c types.Charges
	c.Brokerage = math.Min(turnover*brokerageRate, brokerageCap)

	ex := strings.ToUpper(exchange)
	if strings.HasPrefix(ex, "NSE") || strings.HasPrefix(ex, "BSE") {
		c.STT = turnover * sttRateEquity
	} else {
		c.STT = turnover * sttRateOther
	}

	c.ExchangeCharges = turnover * exchangeRate
	c.SEBICharges = turnover * sebiRate
	c.StampDuty = entry * qty * stampDutyRate
	c.GST = (c.Brokerage + c.ExchangeCharges) * gstRate
	c.Total = c.Brokerage + c.STT + c.ExchangeCharges + c.SEBICharges + c.StampDuty + c.GST
	return c
}
