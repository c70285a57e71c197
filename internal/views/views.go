package views

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"b5-trader/internal/history"
	"b5-trader/internal/levels"
	"b5-trader/internal/market"
	"b5-trader/internal/paper"
	"b5-trader/internal/snapshot"
	"b5-trader/internal/store"
	"b5-trader/internal/types"
)

// Dashboard row cap bounds.
const (
	defaultDashboardLimit = 5000
	maxDashboardLimit     = 50000
	defaultOpenLimit      = 500
	maxOpenLimit          = 5000
	defaultClosedLimit    = 1000
	maxClosedLimit        = 10000
	analysisTopN          = 5
)

// Service assembles read-only views from the snapshot, the derived cache
// and the paper store.
type Service struct {
	cfg    *store.Config
	levels *levels.Service
	hist   *history.Reader
	trades *paper.Store
	gov    *paper.Governor
}

func NewService(cfg *store.Config, lv *levels.Service, hist *history.Reader, trades *paper.Store, gov *paper.Governor) *Service {
	return &Service{cfg: cfg, levels: lv, hist: hist, trades: trades, gov: gov}
}

// DashboardParams are the parsed /api/dashboard query parameters.
type DashboardParams struct {
	Timeframe    string
	Factor       string
	Query        string
	CompleteOnly bool
	TriggerOnly  bool
	Limit        int
}

// MarketTimeBlock reports the IST clock and per-exchange close state.
type MarketTimeBlock struct {
	ISTTime     string          `json:"ist_time"`
	ISTDateTime string          `json:"ist_datetime"`
	AutoClose   map[string]bool `json:"auto_close"`
}

// StatsBlock is the dashboard's producer-side health summary.
type StatsBlock struct {
	FirstClose      history.Stats `json:"first_close"`
	SignalStateSize int           `json:"signal_state_size"`
	TicksFileBytes  int64         `json:"ticks_file_bytes"`
	TicksFileMtime  int64         `json:"ticks_file_mtime"`
}

// StatusBlock composes the producer's own status with ours.
type StatusBlock struct {
	Producer     json.RawMessage    `json:"producer,omitempty"`
	BrokerLimits types.LimitsStatus `json:"broker_limits"`
	MarketTime   MarketTimeBlock    `json:"market_time"`
	TradeMode    string             `json:"trade_mode"`
	LiveEnabled  bool               `json:"live_enabled"`
}

// DashboardView is the /api/dashboard response body.
type DashboardView struct {
	Day       string `json:"day"`
	UpdatedAt string `json:"updated_at"`
	Version   int64  `json:"version"`
	Timeframe string `json:"tf"`
	Factor    string `json:"factor"`

	Rows         []types.DerivedRow `json:"rows"`
	ScanCount    int                `json:"scan_count"`
	SkippedCount int                `json:"skipped_count"`
	TriggerCount int                `json:"trigger_count"`
	ShownCount   int                `json:"shown_count"`

	Stats  StatsBlock  `json:"stats"`
	Status StatusBlock `json:"status"`
}

func clampLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}

func (p *DashboardParams) normalize() {
	switch p.Timeframe {
	case "1m", "5m", "15m":
	default:
		p.Timeframe = "5m"
	}
	switch p.Factor {
	case "micro", "mini", "mega", "smart":
	default:
		p.Factor = "smart"
	}
	p.Limit = clampLimit(p.Limit, defaultDashboardLimit, maxDashboardLimit)
}

// matchQuery is a case-insensitive prefix match over symbol and tsym.
func matchQuery(q, symbol, tsym string) bool {
	if q == "" {
		return true
	}
	q = strings.ToUpper(q)
	return strings.HasPrefix(strings.ToUpper(symbol), q) ||
		strings.HasPrefix(strings.ToUpper(tsym), q)
}

// Dashboard builds the dashboard view for one (tf, factor) configuration.
func (s *Service) Dashboard(ctx context.Context, p DashboardParams) (*DashboardView, error) {
	p.normalize()

	opts := levels.Options{
		Timeframe:              p.Timeframe,
		Factor:                 p.Factor,
		MCXFactor:              s.cfg.Paper.FactorMCX,
		JackpotLookbackSec:     s.cfg.Entry.JackpotLookbackSec,
		JackpotMinConfirmation: s.cfg.Entry.JackpotMinConfirmation,
		JackpotMinRR:           s.cfg.Entry.JackpotMinRR,
		MinVolumeAccel:         s.cfg.Entry.MinVolumeAccel,
		MaxSpikePointsMult:     s.cfg.Entry.MaxSpikePointsMult,
	}
	res, snap, version := s.levels.Rows(ctx, opts)

	src := res.All
	if p.TriggerOnly {
		src = res.Trigger
	}

	rows := make([]types.DerivedRow, 0, minInt(len(src), p.Limit))
	for i := range src {
		r := &src[i]
		if p.CompleteOnly && !r.FetchDone {
			continue
		}
		if !matchQuery(p.Query, r.Symbol, r.Tsym) {
			continue
		}
		rows = append(rows, *r)
		if len(rows) >= p.Limit {
			break
		}
	}

	now := market.Now()
	day := snap.Day
	if day == "" || day == "-" {
		day = market.Day(now)
	}

	ticksBytes, ticksMtime := snapshot.FileInfo(s.cfg.Paths.TicksFile)
	view := &DashboardView{
		Day:       snap.Day,
		UpdatedAt: snap.UpdatedAt,
		Version:   version,
		Timeframe: p.Timeframe,
		Factor:    p.Factor,

		Rows:         rows,
		ScanCount:    res.Scanned,
		SkippedCount: res.Skipped,
		TriggerCount: len(res.Trigger),
		ShownCount:   len(rows),

		Stats: StatsBlock{
			FirstClose:      s.hist.StatsForDay(ctx, day),
			SignalStateSize: s.levels.StateSize(),
			TicksFileBytes:  ticksBytes,
			TicksFileMtime:  ticksMtime,
		},
		Status: s.statusBlock(ctx, snap, day, now),
	}
	return view, nil
}

func (s *Service) statusBlock(ctx context.Context, snap *types.Snapshot, day string, now time.Time) StatusBlock {
	return StatusBlock{
		Producer:     snap.Status,
		BrokerLimits: s.gov.Status(ctx, day),
		MarketTime: MarketTimeBlock{
			ISTTime:     now.Format("15:04:05"),
			ISTDateTime: now.Format("2006-01-02 15:04:05"),
			AutoClose: map[string]bool{
				"NSE": market.ShouldAutoClose("NSE"),
				"BSE": market.ShouldAutoClose("BSE"),
				"NFO": market.ShouldAutoClose("NFO"),
				"BFO": market.ShouldAutoClose("BFO"),
				"MCX": market.ShouldAutoClose("MCX"),
			},
		},
		TradeMode:   s.cfg.Trade.Mode,
		LiveEnabled: s.cfg.LiveEnabled(),
	}
}

// TradesParams are the parsed /api/trades query parameters.
type TradesParams struct {
	OpenLimit   int
	ClosedLimit int
	Query       string
}

// EnrichedTrade joins a trade with the instrument's current snapshot state.
type EnrichedTrade struct {
	types.Trade
	CurLTP       float64 `json:"cur_ltp,omitempty"`
	CurPnL       float64 `json:"cur_pnl,omitempty"`
	CurUpdatedAt string  `json:"cur_updated_at,omitempty"`
}

// TradesSummary aggregates over every recorded trade that matches the query,
// regardless of the open/closed list limits.
type TradesSummary struct {
	TotalTrades  int     `json:"total_trades"`
	OpenCount    int     `json:"open_count"`
	ClosedCount  int     `json:"closed_count"`
	Wins         int     `json:"wins"`
	Losses       int     `json:"losses"`
	WinRatePct   float64 `json:"win_rate_pct"`
	TotalPnL     float64 `json:"total_pnl"`
	TotalNetPnL  float64 `json:"total_net_pnl"`
	TotalCharges float64 `json:"total_charges"`
}

// SymbolPerformance is per-symbol aggregate performance.
type SymbolPerformance struct {
	Symbol   string  `json:"symbol"`
	Tsym     string  `json:"tsym"`
	Trades   int     `json:"trades"`
	Wins     int     `json:"wins"`
	NetPnL   float64 `json:"net_pnl"`
	GrossPnL float64 `json:"pnl"`
}

// Mover is a snapshot row ranked by volume or move vs first close.
type Mover struct {
	Symbol  string  `json:"symbol"`
	Tsym    string  `json:"tsym"`
	LTP     float64 `json:"ltp"`
	Volume  float64 `json:"volume"`
	MovePct float64 `json:"move_pct"`
}

// TradesAnalysis is the analysis block of the trades view.
type TradesAnalysis struct {
	TopWinners    []EnrichedTrade     `json:"top_winners"`
	TopLosers     []EnrichedTrade     `json:"top_losers"`
	PerSymbol     []SymbolPerformance `json:"per_symbol"`
	VolumeLeaders []Mover             `json:"volume_leaders"`
	TopGainers    []Mover             `json:"top_gainers"`
	TopDecliners  []Mover             `json:"top_decliners"`
}

// TradesView is the /api/trades response body.
type TradesView struct {
	Summary  TradesSummary   `json:"summary"`
	Open     []EnrichedTrade `json:"open"`
	Closed   []EnrichedTrade `json:"closed"`
	Analysis TradesAnalysis  `json:"analysis"`
}

// Trades builds the trades view.
func (s *Service) Trades(ctx context.Context, p TradesParams) (*TradesView, error) {
	p.OpenLimit = clampLimit(p.OpenLimit, defaultOpenLimit, maxOpenLimit)
	p.ClosedLimit = clampLimit(p.ClosedLimit, defaultClosedLimit, maxClosedLimit)

	all, err := s.trades.AllTrades(ctx)
	if err != nil {
		return nil, err
	}

	snap, _ := s.levels.Snapshot(ctx)
	rowBySym := make(map[string]*types.BaseRow, len(snap.Rows))
	for i := range snap.Rows {
		rowBySym[snap.Rows[i].Symbol] = &snap.Rows[i]
	}

	view := &TradesView{}
	enrichedAll := make([]EnrichedTrade, 0, len(all))
	for i := range all {
		t := all[i]
		if !matchQuery(p.Query, t.Symbol, t.Tsym) {
			continue
		}
		e := EnrichedTrade{Trade: t}
		if row := rowBySym[t.Symbol]; row != nil && row.LTP.Valid {
			e.CurLTP = row.LTP.V
			e.CurUpdatedAt = row.UpdatedAt
			if t.Status == types.StatusOpen {
				e.CurPnL = (row.LTP.V - t.EntryLTP) * float64(t.Quantity)
			}
		}
		enrichedAll = append(enrichedAll, e)

		view.Summary.TotalTrades++
		if t.Status == types.StatusOpen {
			view.Summary.OpenCount++
			view.Summary.TotalPnL += e.CurPnL
			if len(view.Open) < p.OpenLimit {
				view.Open = append(view.Open, e)
			}
		} else {
			view.Summary.ClosedCount++
			view.Summary.TotalPnL += t.PnL
			view.Summary.TotalNetPnL += t.NetPnL
			view.Summary.TotalCharges += t.TotalCharges
			if t.NetPnL > 0 {
				view.Summary.Wins++
			} else {
				view.Summary.Losses++
			}
		}
	}
	if view.Summary.ClosedCount > 0 {
		view.Summary.WinRatePct = float64(view.Summary.Wins) * 100 / float64(view.Summary.ClosedCount)
	}

	// Opens are served newest-updated first; AllTrades is id-descending, so
	// re-sort the slice explicitly.
	sort.SliceStable(view.Open, func(i, j int) bool {
		return view.Open[i].UpdatedAt > view.Open[j].UpdatedAt
	})

	// Recent closed by exit time.
	closed := make([]EnrichedTrade, 0, p.ClosedLimit)
	for i := range enrichedAll {
		if enrichedAll[i].Status == types.StatusClosed {
			closed = append(closed, enrichedAll[i])
		}
	}
	sort.SliceStable(closed, func(i, j int) bool {
		return closed[i].ExitTs > closed[j].ExitTs
	})
	if len(closed) > p.ClosedLimit {
		closed = closed[:p.ClosedLimit]
	}
	view.Closed = closed

	view.Analysis = s.analyze(enrichedAll, snap)
	return view, nil
}

func tradeEffectivePnL(e *EnrichedTrade) float64 {
	if e.Status == types.StatusOpen {
		return e.CurPnL
	}
	return e.PnL
}

func (s *Service) analyze(all []EnrichedTrade, snap *types.Snapshot) TradesAnalysis {
	var a TradesAnalysis

	ranked := make([]EnrichedTrade, len(all))
	copy(ranked, all)
	sort.SliceStable(ranked, func(i, j int) bool {
		return tradeEffectivePnL(&ranked[i]) > tradeEffectivePnL(&ranked[j])
	})
	for i := 0; i < len(ranked) && i < analysisTopN; i++ {
		if tradeEffectivePnL(&ranked[i]) > 0 {
			a.TopWinners = append(a.TopWinners, ranked[i])
		}
	}
	for i := len(ranked) - 1; i >= 0 && len(a.TopLosers) < analysisTopN; i-- {
		if tradeEffectivePnL(&ranked[i]) < 0 {
			a.TopLosers = append(a.TopLosers, ranked[i])
		}
	}

	perf := map[string]*SymbolPerformance{}
	for i := range all {
		t := &all[i]
		sp := perf[t.Symbol]
		if sp == nil {
			sp = &SymbolPerformance{Symbol: t.Symbol, Tsym: t.Tsym}
			perf[t.Symbol] = sp
		}
		sp.Trades++
		sp.GrossPnL += tradeEffectivePnL(t)
		if t.Status == types.StatusClosed {
			sp.NetPnL += t.NetPnL
			if t.NetPnL > 0 {
				sp.Wins++
			}
		}
	}
	for _, sp := range perf {
		a.PerSymbol = append(a.PerSymbol, *sp)
	}
	sort.SliceStable(a.PerSymbol, func(i, j int) bool {
		return a.PerSymbol[i].NetPnL > a.PerSymbol[j].NetPnL
	})

	// Market-wide leaders from the raw snapshot.
	tf := s.cfg.Paper.Timeframe
	movers := make([]Mover, 0, len(snap.Rows))
	for i := range snap.Rows {
		r := &snap.Rows[i]
		if !r.LTP.Valid {
			continue
		}
		m := Mover{Symbol: r.Symbol, Tsym: r.Tsym, LTP: r.LTP.V}
		if r.Volume.Valid {
			m.Volume = r.Volume.V
		}
		if fc := r.FirstClose(tf); fc.Valid && fc.V > 0 {
			m.MovePct = (r.LTP.V - fc.V) / fc.V * 100
		}
		movers = append(movers, m)
	}

	byVolume := make([]Mover, len(movers))
	copy(byVolume, movers)
	sort.SliceStable(byVolume, func(i, j int) bool { return byVolume[i].Volume > byVolume[j].Volume })
	a.VolumeLeaders = topN(byVolume, analysisTopN)

	byMove := make([]Mover, len(movers))
	copy(byMove, movers)
	sort.SliceStable(byMove, func(i, j int) bool { return byMove[i].MovePct > byMove[j].MovePct })
	a.TopGainers = topN(byMove, analysisTopN)

	sort.SliceStable(byMove, func(i, j int) bool { return byMove[i].MovePct < byMove[j].MovePct })
	a.TopDecliners = topN(byMove, analysisTopN)

	return a
}

func topN(ms []Mover, n int) []Mover {
	if len(ms) > n {
		ms = ms[:n]
	}
	out := make([]Mover, len(ms))
	copy(out, ms)
	return out
}

// BrokerLimits serves /api/broker-limits.
func (s *Service) BrokerLimits(ctx context.Context) types.LimitsStatus {
	return s.gov.Status(ctx, market.Day(market.Now()))
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
