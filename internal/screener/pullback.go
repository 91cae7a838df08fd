package screener

import (
	"strings"

	"github.com/toshi0771/stock-screener-jp/internal/config"
	"github.com/toshi0771/stock-screener-jp/internal/indicators"
	"github.com/toshi0771/stock-screener-jp/internal/model"
)

const (
	pullbackMinBars    = 200
	pullbackLookback   = 260 // strictly 260 bars, not "52 weeks" — see DESIGN.md
	pullbackRecentGate = 60  // high must have occurred within this many bars of today
	pullbackPctGate    = 30.0
	stochasticOversold = 20.0
)

// PullbackGates accumulates the gate-pass counters spec §4.5.3 mandates as
// part of the rule's observability contract. The caller (Pipeline) merges
// one of these per symbol into a run-level total and ships it as trace
// attributes — it is not an optional diagnostic, the counter stream is
// itself part of the spec.
type PullbackGates struct {
	Total       int
	WithData    int
	RecentHigh  int
	Within30Pct int
	Touch10EMA  int
	Touch20EMA  int
	Touch50EMA  int
	AnyTouch    int
	PassedAll   int
}

// Add merges o into g.
func (g *PullbackGates) Add(o PullbackGates) {
	g.Total += o.Total
	g.WithData += o.WithData
	g.RecentHigh += o.RecentHigh
	g.Within30Pct += o.Within30Pct
	g.Touch10EMA += o.Touch10EMA
	g.Touch20EMA += o.Touch20EMA
	g.Touch50EMA += o.Touch50EMA
	g.AnyTouch += o.AnyTouch
	g.PassedAll += o.PassedAll
}

// EvalPullback is the plain dispatch-table entry point; it discards the
// per-symbol gate breakdown. Pipeline uses EvalPullbackDetailed directly so
// it can aggregate gates across the whole run.
func EvalPullback(series model.BarSeries, cfg *config.Config) *model.Detection {
	d, _ := EvalPullbackDetailed(series, cfg)
	return d
}

// EvalPullbackDetailed implements the 200-day-high pullback screener:
// history >= 200 bars (strictly 200, spec's own precedence rule over the
// "52-week" naming); the 52w high is the max over the trailing 260 bars;
// gate 1 requires that high occurred within the last 60 bars; gate 2
// requires the pullback from that high is within 30%; gate 3 requires
// today's bar to straddle at least one of EMA10/20/50 (Low <= EMA <= High).
func EvalPullbackDetailed(series model.BarSeries, cfg *config.Config) (*model.Detection, PullbackGates) {
	gates := PullbackGates{Total: 1}

	if len(series.Bars) < pullbackMinBars {
		return nil, gates
	}
	gates.WithData = 1

	bars := series.Bars
	closes := series.Closes()
	highs := make([]float64, len(bars))
	lows := make([]float64, len(bars))
	for i, b := range bars {
		highs[i] = b.High
		lows[i] = b.Low
	}

	lookback := pullbackLookback
	if lookback > len(bars) {
		lookback = len(bars)
	}
	windowStart := len(bars) - lookback
	idxHigh := windowStart
	high52w := highs[windowStart]
	for i := windowStart; i < len(bars); i++ {
		if highs[i] > high52w {
			high52w = highs[i]
			idxHigh = i
		}
	}

	last := len(bars) - 1
	if last-idxHigh > pullbackRecentGate {
		return nil, gates
	}
	gates.RecentHigh = 1

	close := closes[last]
	pullbackPct := (high52w - close) / high52w * 100
	if pullbackPct > pullbackPctGate {
		return nil, gates
	}
	gates.Within30Pct = 1

	ema10 := indicators.EMA(closes, 10)[last]
	ema20 := indicators.EMA(closes, 20)[last]
	ema50 := indicators.EMA(closes, 50)[last]
	lastBar := bars[last]

	touches := map[string]bool{
		"10ema": lastBar.Low <= ema10 && ema10 <= lastBar.High,
		"20ema": lastBar.Low <= ema20 && ema20 <= lastBar.High,
		"50ema": lastBar.Low <= ema50 && ema50 <= lastBar.High,
	}
	if touches["10ema"] {
		gates.Touch10EMA = 1
	}
	if touches["20ema"] {
		gates.Touch20EMA = 1
	}
	if touches["50ema"] {
		gates.Touch50EMA = 1
	}

	var touchedNames []string
	for _, name := range []string{"10ema", "20ema", "50ema"} {
		if touches[name] {
			touchedNames = append(touchedNames, name)
		}
	}
	if len(touchedNames) == 0 {
		return nil, gates
	}
	gates.AnyTouch = 1

	if cfg.PullbackEMAFilter != config.EMAFilterAll {
		if !touches[string(cfg.PullbackEMAFilter)] {
			return nil, gates
		}
	}

	pctK, pctD := indicators.Stochastic(highs, lows, closes, 14, 3)
	if cfg.PullbackStochastic && pctK[last] > stochasticOversold {
		return nil, gates
	}

	gates.PassedAll = 1
	return &model.Detection{
		Symbol:  series.Symbol,
		Rule:    RulePullback,
		BarDate: lastBar.Date,
		Price:   lastBar.Close,
		Volume:  lastBar.Volume,
		Attrs: map[string]float64{
			"ema10":       ema10,
			"ema20":       ema20,
			"ema50":       ema50,
			"week52High":  high52w,
			"pullbackPct": pullbackPct,
			"stochK":      pctK[last],
			"stochD":      pctD[last],
		},
		TouchedEMAs: strings.Join(touchedNames, ","),
	}, gates
}
