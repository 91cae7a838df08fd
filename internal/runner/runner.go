// Package runner implements FanOutRunner: bounded cooperative concurrency
// over a symbol list, with per-symbol cache consult/fetch/eval and
// per-symbol failure isolation.
package runner

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/toshi0771/stock-screener-jp/internal/cache"
	"github.com/toshi0771/stock-screener-jp/internal/model"
	"github.com/toshi0771/stock-screener-jp/internal/quotesource"
)

const progressEvery = 100

// EvalFunc evaluates a fetched series and returns a Detection, or nil for
// no match.
type EvalFunc func(series model.BarSeries) *model.Detection

// Runner drives FanOutRunner.Run against a QuoteSource and PersistentCache
// with a hard concurrency ceiling, the same errgroup+semaphore.Weighted
// combination the teacher uses for its own bounded worker pools.
type Runner struct {
	Source      quotesource.QuoteSource
	Cache       *cache.Cache
	Concurrency int64
	CacheMaxAge int
	RetryCount  int
	RetryDelay  time.Duration
	Log         *zap.Logger
}

// Run evaluates evalFn against every symbol's bar history in [from, to],
// bounded by Concurrency concurrent in-flight symbols. A single symbol's
// fetch/decode/eval failure is logged and counted as a non-match; it never
// aborts the run. Result order is unspecified.
func (r *Runner) Run(ctx context.Context, symbols []model.Symbol, from, to time.Time, evalFn EvalFunc) []model.Detection {
	sem := semaphore.NewWeighted(r.Concurrency)
	g, ctx := errgroup.WithContext(ctx)

	results := make(chan model.Detection, len(symbols))
	var completed int64

	for _, sym := range symbols {
		sym := sym
		if err := sem.Acquire(ctx, 1); err != nil {
			break // context cancelled; stop launching new work
		}
		g.Go(func() error {
			defer sem.Release(1)
			defer r.reportProgress(&completed, len(symbols))

			series, err := r.fetchWithCache(ctx, sym, from, to)
			if err != nil {
				if r.Log != nil {
					r.Log.Debug("symbol fetch failed, treating as non-match",
						zap.String("symbol", sym.Code), zap.Error(err))
				}
				return nil
			}
			if series == nil || len(series.Bars) == 0 {
				return nil
			}

			d := evalFn(*series)
			if d != nil {
				results <- *d
			}
			return nil
		})
	}

	// Runner errors never bubble — a symbol's own failure isolation is
	// handled inside the goroutine above, and every goroutine returns nil,
	// so g.Wait() never returns an error.
	_ = g.Wait()
	close(results)

	out := make([]model.Detection, 0, len(results))
	for d := range results {
		out = append(out, d)
	}
	return out
}

func (r *Runner) reportProgress(completed *int64, total int) {
	n := atomic.AddInt64(completed, 1)
	if n%progressEvery == 0 && r.Log != nil {
		r.Log.Info("fan-out progress", zap.Int64("completed", n), zap.Int("total", total))
	}
}

// fetchWithCache consults the cache first, falling back to the quote
// source (with a 3x/1s-delay retry on transient/rate-limited failures) on
// a miss, and writes the fetched series back to the cache.
func (r *Runner) fetchWithCache(ctx context.Context, sym model.Symbol, from, to time.Time) (*model.BarSeries, error) {
	if series, ok := r.Cache.Get(sym.Code, from, to, r.CacheMaxAge); ok {
		return &series, nil
	}

	var series *model.BarSeries
	var err error
	for attempt := 0; attempt <= r.RetryCount; attempt++ {
		series, err = r.Source.FetchBars(ctx, sym, from, to)
		if err == nil {
			break
		}
		fetchErr, ok := err.(*quotesource.FetchError)
		if !ok || !fetchErr.Retryable() || attempt == r.RetryCount {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(r.RetryDelay):
		}
	}
	if err != nil {
		return nil, err
	}
	if series == nil {
		return nil, nil
	}

	if putErr := r.Cache.Put(*series); putErr != nil && r.Log != nil {
		r.Log.Warn("cache write failed, keeping prior entry", zap.String("symbol", sym.Code), zap.Error(putErr))
	}
	return series, nil
}
