package levels

import (
	"math"
	"sort"

	"b5-trader/internal/types"
)

// rrEpsilon floors the risk denominator so a row sitting exactly on BU1
// still yields a finite reward:risk.
const rrEpsilon = 1e-4

// Options fixes one derived-row configuration plus the signal thresholds.
type Options struct {
	Timeframe string // 1m | 5m | 15m
	Factor    string // micro | mini | mega | smart
	MCXFactor string // promotion target for MCX rows under a fixed factor

	JackpotLookbackSec     int
	JackpotMinConfirmation int
	JackpotMinRR           float64
	MinVolumeAccel         float64
	MaxSpikePointsMult     float64
}

// ConfigKey identifies the signal-state namespace for these options.
func (o Options) ConfigKey() string { return o.Timeframe + "|" + o.Factor }

// Result is one engine run: every row that passed the numeric guard, and
// the trigger subset eligible for entries. Both sorted by (symbol, tsym).
type Result struct {
	All     []types.DerivedRow `json:"all"`
	Trigger []types.DerivedRow `json:"trigger"`
	Scanned int                `json:"scanned"`
	Skipped int                `json:"skipped"`
}

// Engine computes derived rows and owns the per-config signal state.
type Engine struct {
	signals *signalStore
}

func NewEngine() *Engine {
	return &Engine{signals: newSignalStore()}
}

// StateSize reports retained signal-state entries across all configs.
func (e *Engine) StateSize() int { return e.signals.size() }

// Compute enriches every base row for the given configuration. nowUnix is
// the snapshot timestamp (file mtime, seconds) used for the BE5 retest
// window. Single-writer: callers serialize per engine.
func (e *Engine) Compute(rows []types.BaseRow, nowUnix int64, opts Options) *Result {
	config := opts.ConfigKey()

	e.signals.mu.Lock()
	defer e.signals.mu.Unlock()

	res := &Result{Scanned: len(rows)}
	seen := make(map[string]struct{}, len(rows))

	for i := range rows {
		base := &rows[i]
		if base.Symbol == "" {
			continue
		}
		seen[base.Symbol] = struct{}{}

		close := base.FirstClose(opts.Timeframe)
		if !base.LTP.Valid || !close.Valid || close.V <= 0 {
			res.Skipped++
			continue
		}

		row := e.computeRow(base, close.V, nowUnix, opts, config)
		res.All = append(res.All, row)
		if row.InRangeUp && !row.Sideways {
			res.Trigger = append(res.Trigger, row)
		}
	}

	e.signals.evictAbsent(config, seen)

	byKey := func(rs []types.DerivedRow) func(i, j int) bool {
		return func(i, j int) bool {
			if rs[i].Symbol != rs[j].Symbol {
				return rs[i].Symbol < rs[j].Symbol
			}
			return rs[i].Tsym < rs[j].Tsym
		}
	}
	sort.Slice(res.All, byKey(res.All))
	sort.Slice(res.Trigger, byKey(res.Trigger))

	return res
}

func (e *Engine) computeRow(base *types.BaseRow, close float64, nowUnix int64, opts Options, config string) types.DerivedRow {
	ltp := base.LTP.V
	st := e.signals.get(config, base.Symbol)

	factor, factorName, reason := resolveFactor(opts.Factor, opts.MCXFactor, ltp, close, base.Exchange, base.Tsym)
	points := close * factor

	row := types.DerivedRow{
		Symbol:   base.Symbol,
		Tsym:     base.Tsym,
		Exchange: base.Exchange,
		LTP:      ltp,
		Close:    close,
		Points:   points,

		SelectedFactor: factorName,
		Factor:         factor,
		FactorReason:   reason,

		BU1: close + 1*points,
		BU2: close + 2*points,
		BU3: close + 3*points,
		BU4: close + 4*points,
		BU5: close + 5*points,
		BE1: close - 1*points,
		BE2: close - 2*points,
		BE3: close - 3*points,
		BE4: close - 4*points,
		BE5: close - 5*points,

		FetchDone: base.FetchDone,
		UpdatedAt: base.UpdatedAt,

		DigitAnalyses:    base.DigitAnalyses,
		SelectedDigit:    base.SelectedDigit,
		SelectedAnalysis: base.SelectedAnalysis,
		GammaMove:        base.GammaMove,
		RangeShifts:      base.RangeShifts,
		TraderscopeReady: base.TraderscopeReady,
	}
	if base.Volume.Valid {
		row.Volume = base.Volume.V
	}

	// Nearest of the ten levels.
	levelNames := [10]string{"BU1", "BU2", "BU3", "BU4", "BU5", "BE1", "BE2", "BE3", "BE4", "BE5"}
	levelValues := [10]float64{row.BU1, row.BU2, row.BU3, row.BU4, row.BU5, row.BE1, row.BE2, row.BE3, row.BE4, row.BE5}
	bestIdx := 0
	bestDiff := math.Abs(ltp - levelValues[0])
	for i := 1; i < 10; i++ {
		if d := math.Abs(ltp - levelValues[i]); d < bestDiff {
			bestDiff = d
			bestIdx = i
		}
	}
	row.NearName = levelNames[bestIdx]
	row.NearValue = levelValues[bestIdx]
	row.NearDiff = ltp - row.NearValue
	if row.NearValue != 0 {
		row.NearPct = row.NearDiff / row.NearValue * 100
	}

	row.InRangeUp = row.BU1 <= ltp && ltp <= row.BU5
	row.InRangeDown = row.BE5 <= ltp && ltp <= row.BE1
	row.Sideways = row.BE1 < ltp && ltp < row.BU1

	switch {
	case ltp >= row.BU1:
		row.Trend = "UP"
	case ltp <= row.BE1:
		row.Trend = "DOWN"
	default:
		row.Trend = "SIDEWAYS"
	}

	for i := 0; i < 5; i++ {
		if ltp >= levelValues[i] {
			row.UpBreakCount++
		}
		if ltp <= levelValues[5+i] {
			row.DownBreakCount++
		}
	}
	switch row.Trend {
	case "UP":
		row.Confirmation = row.UpBreakCount
	case "DOWN":
		row.Confirmation = row.DownBreakCount
	}

	row.RRToBU5 = math.Max(0, row.BU5-ltp) / math.Max(rrEpsilon, ltp-row.BU1)

	// Volume delta and acceleration from the prior run's state.
	if base.Volume.Valid && st.hasPrevVolume {
		row.VolumeDelta = math.Max(0, base.Volume.V-st.prevVolume)
	}
	switch {
	case st.prevVolDelta > 0:
		row.VolumeAccel = row.VolumeDelta / st.prevVolDelta
	case row.VolumeDelta > 0:
		row.VolumeAccel = 1
	}

	// BE5 retest window.
	if ltp <= row.BE5 {
		if st.be5TouchTs == 0 || ltp < st.be5MinLtp {
			st.be5MinLtp = ltp
		}
		st.be5TouchTs = nowUnix
		if base.Volume.Valid {
			st.be5TouchVolume = base.Volume.V
		}
	}
	lookback := int64(opts.JackpotLookbackSec)
	if st.be5TouchTs > 0 && nowUnix-st.be5TouchTs <= lookback {
		row.BE5TouchedRecent = true
	} else if st.be5TouchTs > 0 {
		// Stale touch: forget it so an old flush cannot arm a reversal.
		st.be5TouchTs = 0
		st.be5MinLtp = 0
		st.be5TouchVolume = 0
	}

	if row.BE5TouchedRecent && st.be5MinLtp <= row.BE5 && ltp >= row.BU1 {
		justCrossed := st.hasPrevLtp && st.prevLtp < row.BU1
		if (justCrossed || row.NearName == "BU1") &&
			row.Confirmation >= opts.JackpotMinConfirmation &&
			row.RRToBU5 >= opts.JackpotMinRR &&
			row.VolumeAccel >= opts.MinVolumeAccel {
			row.JackpotBE5Reversal = true
		}
	}

	row.JackpotRetest = row.Trend == "UP" && row.NearName == "BU1" && math.Abs(row.NearPct) <= 0.08
	row.JackpotShort = row.Trend == "DOWN" && row.NearName == "BE1" && math.Abs(row.NearPct) <= 0.08

	if points > 0 && st.hasPrevLtp && math.Abs(ltp-st.prevLtp) > points*opts.MaxSpikePointsMult {
		row.SpikeFlag = true
	}

	score := 45*math.Min(5, float64(row.Confirmation))/5 +
		35*math.Min(5, row.RRToBU5)/5 +
		15*math.Min(3, row.VolumeAccel)/3
	if row.BE5TouchedRecent {
		score += 5
	}
	row.ProbabilityScore = int(math.Round(math.Max(0, math.Min(100, score))))

	// Commit: everything above used the previous run's values.
	st.hasPrevLtp = true
	st.prevLtp = ltp
	if base.Volume.Valid {
		st.hasPrevVolume = true
		st.prevVolume = base.Volume.V
	}
	st.prevVolDelta = row.VolumeDelta

	return row
}
