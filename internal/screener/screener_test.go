package screener

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toshi0771/stock-screener-jp/internal/config"
	"github.com/toshi0771/stock-screener-jp/internal/indicators"
	"github.com/toshi0771/stock-screener-jp/internal/model"
)

func defaultConfig() *config.Config {
	return &config.Config{
		PerfectOrderSMA200:   config.SMA200All,
		PullbackEMAFilter:    config.EMAFilterAll,
		SqueezeDurationRelax: 1.4,
	}
}

// risingSeries builds a strictly-increasing close series long enough to
// satisfy every rule's minimum history requirement, so PerfectOrder's
// Close>=EMA10>=EMA20>=EMA50 ordering holds structurally.
func risingSeries(code string, n int, start float64, step float64) model.BarSeries {
	bars := make([]model.Bar, n)
	date := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	price := start
	for i := 0; i < n; i++ {
		bars[i] = model.Bar{Date: date, Open: price, High: price + 0.5, Low: price - 0.5, Close: price, Volume: 1000}
		date = date.AddDate(0, 0, 1)
		price += step
	}
	return model.BarSeries{Symbol: model.Symbol{Code: code, MarketSegment: model.SegmentPrime}, Bars: bars}
}

func TestPerfectOrder_MatchesOnRisingTrend(t *testing.T) {
	series := risingSeries("7203", 250, 100, 0.5)
	d := EvalPerfectOrder(series, defaultConfig())
	require.NotNil(t, d)
	assert.Equal(t, RulePerfectOrder, d.Rule)
	assert.Equal(t, "above", d.SMA200Position)
}

func TestPerfectOrder_NilWithoutEnoughHistory(t *testing.T) {
	series := risingSeries("7203", 50, 100, 0.5)
	assert.Nil(t, EvalPerfectOrder(series, defaultConfig()))
}

func TestPerfectOrder_SMA200EqualityPassesBothFilters(t *testing.T) {
	// A perfectly flat series makes every EMA/SMA converge to the same
	// constant as Close, so Close == SMA200 exactly — both "above" and
	// "below" must accept this per their >=/<= definitions.
	series := risingSeries("7203", 250, 100, 0.0)

	cfgAbove := defaultConfig()
	cfgAbove.PerfectOrderSMA200 = config.SMA200Above
	cfgBelow := defaultConfig()
	cfgBelow.PerfectOrderSMA200 = config.SMA200Below

	dAbove := EvalPerfectOrder(series, cfgAbove)
	dBelow := EvalPerfectOrder(series, cfgBelow)
	require.NotNil(t, dAbove)
	require.NotNil(t, dBelow)
	assert.Equal(t, dAbove.Price, dAbove.Attrs["sma200"])
	assert.Equal(t, dBelow.Price, dBelow.Attrs["sma200"])
}

func TestBollingerTouch_MatchesOnSpike(t *testing.T) {
	bars := make([]model.Bar, 25)
	date := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range bars {
		price := 100.0
		if i == len(bars)-1 {
			price = 200.0 // sharp spike breaches the upper band
		}
		bars[i] = model.Bar{Date: date, Open: price, High: price, Low: price, Close: price, Volume: 500}
		date = date.AddDate(0, 0, 1)
	}
	series := model.BarSeries{Symbol: model.Symbol{Code: "9999"}, Bars: bars}
	d := EvalBollingerTouch(series, defaultConfig())
	require.NotNil(t, d)
	assert.Equal(t, "upper", d.TouchDirection)
}

func TestSqueeze_DurationComputed(t *testing.T) {
	// A flat-then-flat series holds minimal BBW/deviation/ATR for its whole
	// length, so duration should saturate rather than error.
	series := risingSeries("8001", 120, 100, 0.0)
	d := EvalSqueeze(series, defaultConfig())
	if d != nil {
		assert.GreaterOrEqual(t, d.Attrs["duration"], float64(squeezeMinDuration))
	}
}

func TestBreakout_AlwaysNil(t *testing.T) {
	series := risingSeries("7203", 250, 100, 0.5)
	assert.Nil(t, EvalBreakout(series, defaultConfig()))
}

func TestPullback_NilWithoutEnoughHistory(t *testing.T) {
	series := risingSeries("7203", 50, 100, 0.5)
	d, gates := EvalPullbackDetailed(series, defaultConfig())
	assert.Nil(t, d)
	assert.Equal(t, 1, gates.Total)
	assert.Equal(t, 0, gates.WithData)
}

func TestPullback_GatesAccumulate(t *testing.T) {
	var total PullbackGates
	series := risingSeries("7203", 250, 100, 0.5)
	_, gates := EvalPullbackDetailed(series, defaultConfig())
	total.Add(gates)
	assert.Equal(t, 1, total.Total)
}

func TestEMA_NotNaNAfterEnoughHistory(t *testing.T) {
	series := risingSeries("7203", 10, 100, 1)
	ema := indicators.EMA(series.Closes(), 10)
	require.False(t, math.IsNaN(ema[len(ema)-1]))
}
