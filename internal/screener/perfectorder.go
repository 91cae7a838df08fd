package screener

import (
	"github.com/toshi0771/stock-screener-jp/internal/config"
	"github.com/toshi0771/stock-screener-jp/internal/indicators"
	"github.com/toshi0771/stock-screener-jp/internal/model"
)

const perfectOrderMinBars = 200

// divergenceGatePct is the max allowed (Close-EMA50)/Close*100 spread.
const divergenceGatePct = 20.0

// EvalPerfectOrder matches when Close >= EMA10 >= EMA20 >= EMA50, the
// divergence between Close and EMA50 is within 20%, and the series has at
// least 200 bars of history.
func EvalPerfectOrder(series model.BarSeries, cfg *config.Config) *model.Detection {
	if len(series.Bars) < perfectOrderMinBars {
		return nil
	}
	closes := series.Closes()
	ema10 := indicators.EMA(closes, 10)
	ema20 := indicators.EMA(closes, 20)
	ema50 := indicators.EMA(closes, 50)
	sma200 := indicators.SMA(closes, 200)

	last := len(closes) - 1
	close := closes[last]
	e10, e20, e50, s200 := ema10[last], ema20[last], ema50[last], sma200[last]

	if !(close >= e10 && e10 >= e20 && e20 >= e50) {
		return nil
	}

	divergence := (close - e50) / close * 100
	if divergence > divergenceGatePct {
		return nil
	}

	// above/below are independent gates, not mutually exclusive: at
	// close == s200 both hold, per spec's ">=" / "<=" definitions.
	above := close >= s200
	below := close <= s200

	position := "above"
	if !above {
		position = "below"
	}
	switch cfg.PerfectOrderSMA200 {
	case config.SMA200Above:
		if !above {
			return nil
		}
	case config.SMA200Below:
		if !below {
			return nil
		}
	}

	bar := series.Last()
	return &model.Detection{
		Symbol:  series.Symbol,
		Rule:    RulePerfectOrder,
		BarDate: bar.Date,
		Price:   bar.Close,
		Volume:  bar.Volume,
		Attrs: map[string]float64{
			"ema10":  e10,
			"ema20":  e20,
			"ema50":  e50,
			"sma200": s200,
		},
		SMA200Position: position,
	}
}
