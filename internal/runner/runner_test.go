package runner

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/toshi0771/stock-screener-jp/internal/cache"
	"github.com/toshi0771/stock-screener-jp/internal/model"
	"github.com/toshi0771/stock-screener-jp/internal/quotesource"
)

type fakeSource struct {
	failFor map[string]bool
	calls   int64
}

func (f *fakeSource) Authenticate(context.Context) (string, error) { return "tok", nil }
func (f *fakeSource) ListSymbols(context.Context) ([]model.Symbol, error) { return nil, nil }
func (f *fakeSource) IsTradingDay(time.Time) bool                  { return true }

func (f *fakeSource) FetchBars(ctx context.Context, symbol model.Symbol, from, to time.Time) (*model.BarSeries, error) {
	atomic.AddInt64(&f.calls, 1)
	if f.failFor[symbol.Code] {
		return nil, &quotesource.FetchError{Kind: quotesource.FetchNetworkPermanent, Err: errors.New("boom")}
	}
	return &model.BarSeries{
		Symbol: symbol,
		Bars:   []model.Bar{{Date: time.Now(), Open: 1, High: 1, Low: 1, Close: 1, Volume: 1}},
	}, nil
}

func TestRunner_IsolatesPerSymbolFailures(t *testing.T) {
	c, err := cache.New(t.TempDir())
	require.NoError(t, err)

	src := &fakeSource{failFor: map[string]bool{"bad": true}}
	r := &Runner{Source: src, Cache: c, Concurrency: 4, CacheMaxAge: 30, RetryCount: 0, RetryDelay: time.Millisecond}

	symbols := []model.Symbol{{Code: "good1"}, {Code: "bad"}, {Code: "good2"}}
	var evalCalls int64
	results := r.Run(context.Background(), symbols, time.Now().AddDate(0, -1, 0), time.Now(), func(series model.BarSeries) *model.Detection {
		atomic.AddInt64(&evalCalls, 1)
		return &model.Detection{Symbol: series.Symbol}
	})

	require.Len(t, results, 2) // "bad" never reaches eval, but doesn't abort the run
	require.Equal(t, int64(2), atomic.LoadInt64(&evalCalls))
}

func TestRunner_NilDetectionIsNotCounted(t *testing.T) {
	c, err := cache.New(t.TempDir())
	require.NoError(t, err)
	src := &fakeSource{}
	r := &Runner{Source: src, Cache: c, Concurrency: 2, CacheMaxAge: 30}

	symbols := []model.Symbol{{Code: "a"}, {Code: "b"}}
	results := r.Run(context.Background(), symbols, time.Now().AddDate(0, -1, 0), time.Now(), func(model.BarSeries) *model.Detection {
		return nil
	})
	require.Len(t, results, 0)
}
