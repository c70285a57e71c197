package paper

import (
	"context"
	"strings"
	"sync"
	"time"

	"b5-trader/internal/interfaces"
	"b5-trader/internal/levels"
	"b5-trader/internal/logger"
	"b5-trader/internal/market"
	"b5-trader/internal/store"
	"b5-trader/internal/tradelog"
	"b5-trader/internal/types"
)

// entryReason is the default tag recorded on accepted entries.
const entryReason = "be5_reversal_guard_entry"

// mcxEveningMinScore is the relaxed probability threshold for MCX rows in
// the evening session (IST hour >= 17).
const mcxEveningMinScore = 25

// Engine drives the paper-trade lifecycle: one pass per snapshot version,
// managing open trades before considering new entries so a symbol that
// closes on version V cannot re-enter on the same tick.
type Engine struct {
	cfg   *store.Config
	rows  *levels.Service
	store *Store
	gov   *Governor
	brk   interfaces.Broker

	mu            sync.Mutex
	lastVersion   int64
	cooldownUntil map[string]time.Time
	now           func() time.Time
}

var _ interfaces.Engine = (*Engine)(nil)

func NewEngine(cfg *store.Config, rows *levels.Service, st *Store, gov *Governor, brk interfaces.Broker) *Engine {
	return &Engine{
		cfg:           cfg,
		rows:          rows,
		store:         st,
		gov:           gov,
		brk:           brk,
		cooldownUntil: make(map[string]time.Time),
		now:           time.Now,
	}
}

func (e *Engine) levelOpts() levels.Options {
	return levels.Options{
		Timeframe:              e.cfg.Paper.Timeframe,
		Factor:                 e.cfg.Paper.Factor,
		MCXFactor:              e.cfg.Paper.FactorMCX,
		JackpotLookbackSec:     e.cfg.Entry.JackpotLookbackSec,
		JackpotMinConfirmation: e.cfg.Entry.JackpotMinConfirmation,
		JackpotMinRR:           e.cfg.Entry.JackpotMinRR,
		MinVolumeAccel:         e.cfg.Entry.MinVolumeAccel,
		MaxSpikePointsMult:     e.cfg.Entry.MaxSpikePointsMult,
	}
}

// Cycle runs one engine pass. It no-ops when the snapshot version has not
// advanced since the previous pass.
func (e *Engine) Cycle(ctx context.Context) (*types.CycleResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	version := e.rows.Version()
	if version != 0 && version == e.lastVersion {
		return &types.CycleResult{Version: version, Skipped: true}, nil
	}

	res, _, version := e.rows.Rows(ctx, e.levelOpts())
	result := &types.CycleResult{Version: version}

	rowsBySym := make(map[string]*types.DerivedRow, len(res.All))
	for i := range res.All {
		rowsBySym[res.All[i].Symbol] = &res.All[i]
	}

	openSyms, err := e.manageOpens(ctx, rowsBySym, result)
	if err != nil {
		return result, err
	}
	e.considerEntries(ctx, res, openSyms, result)

	e.lastVersion = version
	return result, nil
}

// manageOpens updates running metrics, walks the trailing-stop ladder and
// evaluates exits for every OPEN trade. Returns the symbols still open.
func (e *Engine) manageOpens(ctx context.Context, rowsBySym map[string]*types.DerivedRow, result *types.CycleResult) (map[string]bool, error) {
	opens, err := e.store.OpenTrades(ctx, 0)
	if err != nil {
		logger.ErrorWithErr(ctx, "open trades unavailable", err)
		return nil, err
	}

	stillOpen := make(map[string]bool, len(opens))
	for i := range opens {
		t := &opens[i]
		row := rowsBySym[t.Symbol]
		result.Managed++

		if row != nil {
			e.updateMetrics(t, row.LTP)
			e.walkTSLLadder(ctx, t, row.LTP)
		}

		if reason, exitLtp, ok := e.evaluateExit(t, row); ok {
			e.closeTrade(ctx, t, exitLtp, reason)
			result.Closed++
			continue
		}

		t.UpdatedAt = market.NowISO(e.now())
		if err := e.store.UpdateTrade(ctx, t); err != nil {
			logger.ErrorWithErr(ctx, "trade update failed", err, "id", t.ID, "symbol", t.Symbol)
		}
		stillOpen[t.Symbol] = true
	}
	return stillOpen, nil
}

func (e *Engine) updateMetrics(t *types.Trade, ltp float64) {
	t.LastLTP = ltp
	if ltp > t.MaxLTP {
		t.MaxLTP = ltp
	}
	if ltp < t.MinLTP {
		t.MinLTP = ltp
	}
	if d := ltp - t.EntryLTP; d > t.Runup {
		t.Runup = d
	}
	if d := t.EntryLTP - ltp; d > t.Drawdown {
		t.Drawdown = d
	}
	if d := t.MaxLTP - t.EntryLTP; d > t.MaxProfitPoints {
		t.MaxProfitPoints = d
	}
	t.PnL = (ltp - t.EntryLTP) * float64(t.Quantity)
	if t.EntryLTP != 0 {
		t.PnLPct = (ltp - t.EntryLTP) / t.EntryLTP * 100
	}
}

// walkTSLLadder activates the trailing stop at BU3 (stop to BE1) and then
// ratchets it to BU1 at BU4 and BU2 at BU5. Activation is one-way and the
// stop never moves down.
func (e *Engine) walkTSLLadder(ctx context.Context, t *types.Trade, ltp float64) {
	if !t.TSLActive && ltp >= t.TSLTrigger {
		t.TSLActive = true
		t.TSLSLPrice = t.BE1
		logger.Risk(ctx, t.Symbol, "TSL_ACTIVATED", "trade_id", t.ID, "ltp", ltp, "tsl_sl", t.TSLSLPrice)
	}
	if t.TSLActive && ltp >= t.BU4 && t.TSLSLPrice < t.BU1 {
		t.TSLSLPrice = t.BU1
		logger.Risk(ctx, t.Symbol, "TSL_RAISED_BU1", "trade_id", t.ID, "ltp", ltp)
	}
	if t.TSLActive && ltp >= t.BU5 && t.TSLSLPrice < t.BU2 {
		t.TSLSLPrice = t.BU2
		logger.Risk(ctx, t.Symbol, "TSL_RAISED_BU2", "trade_id", t.ID, "ltp", ltp)
	}
}

// evaluateExit applies the exit rules in precedence order. The market-close
// check needs no fresh row; everything else does.
func (e *Engine) evaluateExit(t *types.Trade, row *types.DerivedRow) (reason string, exitLtp float64, ok bool) {
	exitLtp = t.LastLTP
	if market.ShouldAutoCloseAt(t.Exchange, e.now()) {
		return "market_close_auto", exitLtp, true
	}
	if row == nil {
		return "", 0, false
	}

	ltp := row.LTP
	if ltp >= t.BU5 {
		return "target_bu5", ltp, true
	}

	slRef := t.BU1
	slReason := "sl_below_bu1"
	if t.TSLActive {
		slRef = t.TSLSLPrice
		slReason = "trailing_sl"
	}
	if ltp < slRef {
		return slReason, ltp, true
	}

	if row.SpikeFlag && ltp < t.EntryLTP {
		return "spike_protection", ltp, true
	}
	return "", 0, false
}

// closeTrade finalizes a trade: charges, P/L, terminal status, cooldown,
// trade log and the (gated) broker sell.
func (e *Engine) closeTrade(ctx context.Context, t *types.Trade, exitLtp float64, reason string) {
	now := e.now()

	c := ComputeCharges(t.EntryLTP, exitLtp, t.Quantity, t.Exchange)
	t.ExitLTP = exitLtp
	t.ExitTs = market.NowISO(now)
	t.Reason = reason
	t.PnL = (exitLtp - t.EntryLTP) * float64(t.Quantity)
	if t.EntryLTP != 0 {
		t.PnLPct = (exitLtp - t.EntryLTP) / t.EntryLTP * 100
	}
	t.Brokerage = c.Brokerage
	t.STT = c.STT
	t.ExchangeCharges = c.ExchangeCharges
	t.SEBICharges = c.SEBICharges
	t.StampDuty = c.StampDuty
	t.GST = c.GST
	t.TotalCharges = c.Total
	t.NetPnL = t.PnL - c.Total
	t.Status = types.StatusClosed
	t.UpdatedAt = t.ExitTs

	if err := e.store.UpdateTrade(ctx, t); err != nil {
		logger.ErrorWithErr(ctx, "trade close persist failed", err, "id", t.ID, "symbol", t.Symbol)
	}

	e.cooldownUntil[t.Symbol] = now.Add(time.Duration(e.cfg.Paper.CooldownSec) * time.Second)

	logger.Trade(ctx, t.Symbol, "CLOSE", t.Quantity, exitLtp, reason,
		"trade_id", t.ID, "pnl", t.PnL, "net_pnl", t.NetPnL, "charges", t.TotalCharges)
	_ = tradelog.Append(tradelog.Entry{
		Event: "CLOSE", Symbol: t.Symbol, Tsym: t.Tsym, Exchange: t.Exchange,
		Qty: t.Quantity, Price: exitLtp, Reason: reason,
		PnL: t.PnL, NetPnL: t.NetPnL, TotalCharges: t.TotalCharges, TradeID: t.ID,
	})

	if e.brk != nil {
		if _, err := e.brk.PlaceOrder(ctx, types.OrderReq{
			Symbol: t.Symbol, Tsym: t.Tsym, Exchange: t.Exchange,
			InstrumentType: t.InstrumentType, Side: "SELL", Qty: t.Quantity, Tag: reason,
		}); err != nil {
			logger.ErrorWithErr(ctx, "broker sell failed", err, "symbol", t.Symbol)
		}
	}
}

// considerEntries walks the trigger rows and opens trades that pass the
// entry filter and guard.
func (e *Engine) considerEntries(ctx context.Context, res *levels.Result, openSyms map[string]bool, result *types.CycleResult) {
	if len(res.Trigger) == 0 {
		return
	}
	day := market.Day(e.now())
	limits := e.gov.Status(ctx, day)

	for i := range res.Trigger {
		row := &res.Trigger[i]
		if !e.entryAllowed(ctx, row, openSyms, &limits) {
			continue
		}

		// Entry guard, re-checked after selection.
		if row.LTP <= 0 {
			logger.Debug(ctx, "entry rejected", "symbol", row.Symbol, "reason", "missing_levels")
			continue
		}
		if row.LTP < row.BU1 || row.LTP > row.BU5 {
			logger.Debug(ctx, "entry rejected", "symbol", row.Symbol, "reason", "outside_bu1_bu5")
			continue
		}

		if e.openTrade(ctx, row, day) {
			openSyms[row.Symbol] = true
			result.Entered++
			// Budgets shrink with every accepted entry.
			limits = e.gov.Status(ctx, day)
		}
	}
}

// entryAllowed applies the entry filter in order; any miss rejects quietly.
func (e *Engine) entryAllowed(ctx context.Context, row *types.DerivedRow, openSyms map[string]bool, limits *types.LimitsStatus) bool {
	now := e.now()

	if openSyms[row.Symbol] {
		return false
	}
	if until, ok := e.cooldownUntil[row.Symbol]; ok && now.Before(until) {
		return false
	}
	if !row.FetchDone || !row.InRangeUp || row.Sideways {
		return false
	}
	if e.cfg.Trade.TrendOnly && row.Trend != "UP" {
		return false
	}
	if row.Confirmation < e.cfg.Entry.MinConfirmation {
		return false
	}
	if row.RRToBU5 < e.cfg.Entry.MinRR {
		return false
	}

	minScore := e.cfg.Entry.MinProbabilityScore
	if strings.EqualFold(row.Exchange, "MCX") && market.EveningSessionAt(now) {
		minScore = mcxEveningMinScore
	}
	if row.ProbabilityScore < minScore {
		return false
	}

	if row.SpikeFlag {
		return false
	}
	if e.cfg.Trade.JackpotOnly && !row.JackpotBE5Reversal {
		return false
	}
	if market.ShouldAutoCloseAt(row.Exchange, now) {
		return false
	}
	if !limits.Safe {
		logger.Risk(ctx, row.Symbol, "ENTRY_BLOCKED_LIMITS", "status", limits.Status)
		return false
	}
	return true
}

// openTrade creates and persists a new OPEN trade from a trigger row.
func (e *Engine) openTrade(ctx context.Context, row *types.DerivedRow, day string) bool {
	now := e.now()
	instrument := market.InstrumentType(row.Exchange, row.Tsym)
	qty := 1
	if instrument == market.InstrumentOption {
		qty = 50
	}

	t := &types.Trade{
		Symbol:         row.Symbol,
		Tsym:           row.Tsym,
		Exchange:       row.Exchange,
		Day:            day,
		Timeframe:      e.cfg.Paper.Timeframe,
		Factor:         row.SelectedFactor,
		InstrumentType: instrument,

		ClosePrice: row.Close,
		Points:     row.Points,
		BU1:        row.BU1, BU2: row.BU2, BU3: row.BU3, BU4: row.BU4, BU5: row.BU5,
		BE1: row.BE1, BE2: row.BE2, BE3: row.BE3, BE4: row.BE4, BE5: row.BE5,

		SLPrice:    row.BE1,
		TPPrice:    row.BU5,
		TSLTrigger: row.BU3,
		TSLActive:  false,
		TSLSLPrice: row.BE1,

		EntryLTP: row.LTP,
		EntryTs:  market.NowISO(now),
		Quantity: qty,
		Reason:   entryReason,

		LastLTP: row.LTP,
		MaxLTP:  row.LTP,
		MinLTP:  row.LTP,

		Status:    types.StatusOpen,
		UpdatedAt: market.NowISO(now),
	}

	if _, err := e.store.InsertTrade(ctx, t); err != nil {
		logger.ErrorWithErr(ctx, "trade insert failed", err, "symbol", t.Symbol)
		return false
	}
	e.gov.RecordOrder(ctx, day, t.UpdatedAt)

	logger.Trade(ctx, t.Symbol, "OPEN", t.Quantity, t.EntryLTP, t.Reason,
		"trade_id", t.ID, "sl", t.SLPrice, "tp", t.TPPrice, "tsl_trigger", t.TSLTrigger,
		"probability_score", row.ProbabilityScore)
	_ = tradelog.Append(tradelog.Entry{
		Event: "OPEN", Symbol: t.Symbol, Tsym: t.Tsym, Exchange: t.Exchange,
		Qty: t.Quantity, Price: t.EntryLTP, Reason: t.Reason, TradeID: t.ID,
		ProbabilityScore: row.ProbabilityScore,
	})

	if e.brk != nil {
		if _, err := e.brk.PlaceOrder(ctx, types.OrderReq{
			Symbol: t.Symbol, Tsym: t.Tsym, Exchange: t.Exchange,
			InstrumentType: instrument, Side: "BUY", Qty: qty, Tag: t.Reason,
		}); err != nil {
			logger.ErrorWithErr(ctx, "broker buy failed", err, "symbol", t.Symbol)
		}
	}
	return true
}
