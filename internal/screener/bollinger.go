package screener

import (
	"github.com/toshi0771/stock-screener-jp/internal/config"
	"github.com/toshi0771/stock-screener-jp/internal/indicators"
	"github.com/toshi0771/stock-screener-jp/internal/model"
)

const bollingerTouchMinBars = 20

// EvalBollingerTouch matches when today's close is at or beyond the
// Bollinger(20,3) upper or lower band.
func EvalBollingerTouch(series model.BarSeries, _ *config.Config) *model.Detection {
	if len(series.Bars) < bollingerTouchMinBars {
		return nil
	}
	closes := series.Closes()
	bb := indicators.Bollinger(closes, 20, 3)

	last := len(closes) - 1
	close := closes[last]
	mid, upper, lower := bb.Mid[last], bb.Upper[last], bb.Lower[last]

	var direction string
	switch {
	case close >= upper:
		direction = "upper"
	case close <= lower:
		direction = "lower"
	default:
		return nil
	}

	bar := series.Last()
	return &model.Detection{
		Symbol:  series.Symbol,
		Rule:    RuleBollingerTouch,
		BarDate: bar.Date,
		Price:   bar.Close,
		Volume:  bar.Volume,
		Attrs: map[string]float64{
			"bbMid":   mid,
			"bbUpper": upper,
			"bbLower": lower,
		},
		TouchDirection: direction,
	}
}
