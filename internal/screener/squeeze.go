package screener

import (
	"math"

	"github.com/toshi0771/stock-screener-jp/internal/config"
	"github.com/toshi0771/stock-screener-jp/internal/indicators"
	"github.com/toshi0771/stock-screener-jp/internal/model"
)

const (
	squeezeMinBars      = 100
	squeezeBBPeriod     = 20
	squeezeBBStdDev     = 2.0
	squeezeEMAPeriod    = 50
	squeezeATRPeriod    = 14
	squeezeLookback     = 60
	squeezeBBWThreshold = 1.3
	squeezeDeviation    = 5.0
	squeezeATRThreshold = 1.3
	squeezeMinDuration  = 5
	squeezeMaxBacktrack = 30
)

// EvalSqueeze matches a volatility-compression setup: BBW, deviation from
// EMA50, and ATR must all currently sit near their 60-bar minima, and that
// compressed state must have held (under a relaxed threshold) for at least
// 5 consecutive trading days.
func EvalSqueeze(series model.BarSeries, cfg *config.Config) *model.Detection {
	if len(series.Bars) < squeezeMinBars {
		return nil
	}
	bars := series.Bars
	closes := series.Closes()
	highs := make([]float64, len(bars))
	lows := make([]float64, len(bars))
	for i, b := range bars {
		highs[i] = b.High
		lows[i] = b.Low
	}

	bb := indicators.Bollinger(closes, squeezeBBPeriod, squeezeBBStdDev)
	bbw := indicators.BBW(bb)
	ema50 := indicators.EMA(closes, squeezeEMAPeriod)
	atr := indicators.ATR(highs, lows, closes, squeezeATRPeriod)

	deviation := make([]float64, len(closes))
	for i := range closes {
		deviation[i] = math.Abs(closes[i]-ema50[i]) / ema50[i] * 100
	}

	last := len(bars) - 1
	lookbackStart := last - squeezeLookback + 1
	if lookbackStart < 0 {
		lookbackStart = 0
	}
	bbwMin := minOf(bbw[lookbackStart : last+1])
	atrMin := minOf(atr[lookbackStart : last+1])

	todayOK := bbw[last] <= squeezeBBWThreshold*bbwMin &&
		deviation[last] <= squeezeDeviation &&
		atr[last] <= squeezeATRThreshold*atrMin
	if !todayOK {
		return nil
	}

	relaxedDeviation := squeezeDeviation * cfg.SqueezeDurationRelax

	duration := 0
	for i := last; i >= 0 && duration < squeezeMaxBacktrack; i-- {
		ok := bbw[i] <= squeezeBBWThreshold*bbwMin &&
			deviation[i] <= relaxedDeviation &&
			atr[i] <= squeezeATRThreshold*atrMin
		if !ok {
			break
		}
		duration++
	}
	if duration < squeezeMinDuration {
		return nil
	}

	bar := bars[last]
	return &model.Detection{
		Symbol:  series.Symbol,
		Rule:    RuleSqueeze,
		BarDate: bar.Date,
		Price:   bar.Close,
		Volume:  bar.Volume,
		Attrs: map[string]float64{
			"bbw":       bbw[last],
			"bbwMin60d": bbwMin,
			"bbwRatio":  bbw[last] / bbwMin,
			"deviation": deviation[last],
			"atr":       atr[last],
			"atrMin60d": atrMin,
			"atrRatio":  atr[last] / atrMin,
			"duration":  float64(duration),
			"ema50":     ema50[last],
		},
	}
}

func minOf(xs []float64) float64 {
	m := xs[0]
	for _, x := range xs[1:] {
		if x < m {
			m = x
		}
	}
	return m
}
