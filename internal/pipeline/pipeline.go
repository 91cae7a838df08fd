// Package pipeline wires Clock, QuoteSource, PersistentCache, FanOutRunner,
// the five screeners, Sampler and ResultSink into the single daily run spec
// §4.8 describes.
package pipeline

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/toshi0771/stock-screener-jp/internal/cache"
	"github.com/toshi0771/stock-screener-jp/internal/clock"
	"github.com/toshi0771/stock-screener-jp/internal/config"
	"github.com/toshi0771/stock-screener-jp/internal/model"
	"github.com/toshi0771/stock-screener-jp/internal/notify"
	"github.com/toshi0771/stock-screener-jp/internal/quotesource"
	"github.com/toshi0771/stock-screener-jp/internal/runner"
	"github.com/toshi0771/stock-screener-jp/internal/sampler"
	"github.com/toshi0771/stock-screener-jp/internal/screener"
	"github.com/toshi0771/stock-screener-jp/internal/sink"
)

// historyLookbackDays is how far back of bar history is fetched per symbol;
// pullback's 260-bar lookback is the widest consumer, so this pads well
// past a full trading year to absorb weekends/holidays.
const historyLookbackDays = 420

// Pipeline is the single daily run: resolve the trading day, list symbols,
// run every screener in its fixed order, sample, persist.
type Pipeline struct {
	Cfg      *config.Config
	Source   quotesource.QuoteSource
	Cache    *cache.Cache
	Sink     sink.ResultSink
	Notifier *notify.Notifier
	Log      *zap.Logger

	tracer trace.Tracer
}

// New builds a Pipeline ready to Run.
func New(cfg *config.Config, source quotesource.QuoteSource, c *cache.Cache, s sink.ResultSink, n *notify.Notifier, log *zap.Logger) *Pipeline {
	return &Pipeline{
		Cfg: cfg, Source: source, Cache: c, Sink: s, Notifier: n, Log: log,
		tracer: otel.Tracer("screener-pipeline"),
	}
}

// Run executes one full daily pass: it returns an error for the two fatal
// classes spec §7 names (quote source auth failure, sink summary-row
// failure) and for a failure to list symbols, which is alerted as an auth
// failure. Per-symbol fetch/eval failures are isolated and logged, never
// bubbled. A sink summary-row failure on one rule does not stop the
// remaining rules from running, but Run still returns the first such
// error once every rule has had a chance to run, so the caller's exit
// code reflects the failure.
func (p *Pipeline) Run(ctx context.Context) error {
	ctx, span := p.tracer.Start(ctx, "pipeline.run")
	defer span.End()

	if _, err := p.Source.Authenticate(ctx); err != nil {
		if p.Notifier != nil {
			p.Notifier.AuthFailure(err)
		}
		return fmt.Errorf("quote source authentication: %w", err)
	}

	tradingDay := clock.LatestTradingDay(clock.NowJST(), p.Source, p.Log)
	span.SetAttributes(attribute.String("trading_day", tradingDay.Format("2006-01-02")))
	p.Log.Info("resolved trading day", zap.Time("tradingDay", tradingDay))

	symbols, err := p.Source.ListSymbols(ctx)
	if err != nil {
		if p.Notifier != nil {
			p.Notifier.AuthFailure(fmt.Errorf("list symbols: %w", err))
		}
		return fmt.Errorf("list symbols: %w", err)
	}
	if p.Cfg.DebugSymbol != "" {
		symbols = filterToDebugSymbol(symbols, p.Cfg.DebugSymbol)
	}
	p.Log.Info("symbols listed", zap.Int("count", len(symbols)))

	from := tradingDay.AddDate(0, 0, -historyLookbackDays)
	rnd := rand.New(rand.NewSource(tradingDay.Unix()))

	r := &runner.Runner{
		Source:      p.Source,
		Cache:       p.Cache,
		Concurrency: int64(p.Cfg.Concurrency),
		CacheMaxAge: p.Cfg.CacheMaxAgeDays,
		RetryCount:  p.Cfg.RetryCount,
		RetryDelay:  time.Duration(p.Cfg.RetryDelaySec) * time.Second,
		Log:         p.Log,
	}

	var firstErr error
	for _, rule := range screener.Rules() {
		if err := p.runRule(ctx, r, rule, symbols, from, tradingDay, rnd); err != nil {
			if p.Notifier != nil {
				p.Notifier.SinkFailure(rule.Name, err)
			}
			p.Log.Error("rule run failed, continuing to next rule", zap.String("rule", rule.Name), zap.Error(err))
			if firstErr == nil {
				firstErr = fmt.Errorf("rule %s: %w", rule.Name, err)
			}
		}
	}

	if stats, err := p.Cache.Stats(); err == nil {
		p.Log.Info("cache stats", zap.Int("files", stats.Files), zap.Int64("bytes", stats.Bytes),
			zap.Float64("hitRate", stats.HitRate))
	}
	return firstErr
}

// runRule runs a single screener over every symbol, samples the matches and
// persists the run. Pullback is special-cased to aggregate its gate
// counters into the rule's trace span, per spec §4.5.3's observability
// contract.
func (p *Pipeline) runRule(ctx context.Context, r *runner.Runner, rule screener.Rule, symbols []model.Symbol, from, tradingDay time.Time, rnd *rand.Rand) error {
	ctx, span := p.tracer.Start(ctx, "pipeline.rule."+rule.Name)
	defer span.End()

	started := time.Now()
	var detections []model.Detection

	if rule.Name == screener.RulePullback {
		var gates screener.PullbackGates
		var gatesMu sync.Mutex
		detections = r.Run(ctx, symbols, from, tradingDay, func(series model.BarSeries) *model.Detection {
			d, g := screener.EvalPullbackDetailed(series, p.Cfg)
			gatesMu.Lock()
			gates.Add(g)
			gatesMu.Unlock()
			return d
		})
		span.SetAttributes(
			attribute.Int("pullback.total", gates.Total),
			attribute.Int("pullback.with_data", gates.WithData),
			attribute.Int("pullback.recent_high", gates.RecentHigh),
			attribute.Int("pullback.within_30pct", gates.Within30Pct),
			attribute.Int("pullback.touch_10ema", gates.Touch10EMA),
			attribute.Int("pullback.touch_20ema", gates.Touch20EMA),
			attribute.Int("pullback.touch_50ema", gates.Touch50EMA),
			attribute.Int("pullback.any_touch", gates.AnyTouch),
			attribute.Int("pullback.passed_all", gates.PassedAll),
		)
	} else {
		detections = r.Run(ctx, symbols, from, tradingDay, func(series model.BarSeries) *model.Detection {
			return rule.Eval(series, p.Cfg)
		})
	}

	sampled := sampler.Sample(detections, p.Cfg.SamplerMaxPerRange, rnd)
	elapsed := time.Since(started)
	span.SetAttributes(
		attribute.Int("matched", len(detections)),
		attribute.Int("sampled", len(sampled)),
	)

	runID, err := p.Sink.SaveRun(ctx, model.RunSummary{
		Rule: rule.Name, TradingDate: tradingDay, MarketFilter: "all",
		TotalMatched: len(detections), ExecMillis: elapsed.Milliseconds(),
	})
	if err != nil {
		return fmt.Errorf("save run summary: %w", err)
	}
	if len(sampled) == 0 {
		return nil
	}
	if err := p.Sink.SaveDetections(ctx, runID, sampled); err != nil {
		p.Log.Error("save detections failed", zap.String("rule", rule.Name), zap.Error(err))
	}
	p.Log.Info("rule run complete", zap.String("rule", rule.Name),
		zap.Int("matched", len(detections)), zap.Int("sampled", len(sampled)), zap.Duration("elapsed", elapsed))
	return nil
}

func filterToDebugSymbol(symbols []model.Symbol, code string) []model.Symbol {
	for _, s := range symbols {
		if s.Code == code {
			return []model.Symbol{s}
		}
	}
	return nil
}
