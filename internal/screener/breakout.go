package screener

import (
	"github.com/toshi0771/stock-screener-jp/internal/config"
	"github.com/toshi0771/stock-screener-jp/internal/model"
)

// EvalBreakout is a spec-completeness placeholder. The original system's
// breakout rule is referenced by name but its definition is not present in
// any retained source — run_breakout.py calls screen_stock_breakout, which
// is never defined anywhere in the kept original sources. Rather than
// invent a definition, this accepts the same (BarSeries, Config) ->
// Option<Detection> shape as every other rule and always reports no match,
// so the dispatch table and ResultSink plumbing are exercised end to end
// and a real definition can be dropped in later without touching any
// caller.
func EvalBreakout(series model.BarSeries, cfg *config.Config) *model.Detection {
	return nil
}
