package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"b5-trader/internal/market"
	"b5-trader/internal/types"
)

// Result describes a written export file.
type Result struct {
	Filename    string `json:"filename"`
	Count       int    `json:"count"`
	DownloadURL string `json:"download_url"`
}

var csvHeader = []string{
	"id", "symbol", "tsym", "exchange", "day", "timeframe", "factor", "instrument_type",
	"status", "entry_ts", "entry_ltp", "exit_ts", "exit_ltp", "quantity", "reason",
	"sl_price", "tp_price", "tsl_active", "tsl_sl_price",
	"last_ltp", "max_ltp", "min_ltp", "runup", "drawdown",
	"pnl", "pnl_pct", "total_charges", "net_pnl",
}

func csvRecord(t *types.Trade) []string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', 4, 64) }
	return []string{
		strconv.FormatInt(t.ID, 10), t.Symbol, t.Tsym, t.Exchange, t.Day,
		t.Timeframe, t.Factor, t.InstrumentType,
		t.Status, t.EntryTs, f(t.EntryLTP), t.ExitTs, f(t.ExitLTP),
		strconv.Itoa(t.Quantity), t.Reason,
		f(t.SLPrice), f(t.TPPrice), strconv.FormatBool(t.TSLActive), f(t.TSLSLPrice),
		f(t.LastLTP), f(t.MaxLTP), f(t.MinLTP), f(t.Runup), f(t.Drawdown),
		fmt.Sprintf("%.2f", t.PnL), fmt.Sprintf("%.2f", t.PnLPct),
		fmt.Sprintf("%.2f", t.TotalCharges), fmt.Sprintf("%.2f", t.NetPnL),
	}
}

// Trades writes the trade history to dir as CSV or JSON and returns the
// file's metadata. Errors are loud; the HTTP layer turns them into 500s.
func Trades(dir, format string, trades []types.Trade) (Result, error) {
	if format != "csv" && format != "json" {
		return Result{}, fmt.Errorf("unsupported export format %q", format)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Result{}, fmt.Errorf("create export dir: %w", err)
	}

	stamp := time.Now().In(market.IST).Format("20060102_150405")
	filename := fmt.Sprintf("trades_%s.%s", stamp, format)
	path := filepath.Join(dir, filename)

	f, err := os.Create(path)
	if err != nil {
		return Result{}, fmt.Errorf("create export file: %w", err)
	}
	defer f.Close()

	switch format {
	case "csv":
		w := csv.NewWriter(f)
		if err := w.Write(csvHeader); err != nil {
			return Result{}, err
		}
		for i := range trades {
			if err := w.Write(csvRecord(&trades[i])); err != nil {
				return Result{}, err
			}
		}
		w.Flush()
		if err := w.Error(); err != nil {
			return Result{}, err
		}
	case "json":
		enc := json.NewEncoder(f)
		enc.SetIndent("", "  ")
		if err := enc.Encode(trades); err != nil {
			return Result{}, err
		}
	}

	return Result{
		Filename:    filename,
		Count:       len(trades),
		DownloadURL: "/exports/" + filename,
	}, nil
}
