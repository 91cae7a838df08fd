// Package screener implements the five screening rules as pure functions
// over a BarSeries, each evaluating the series' last bar as "today".
package screener

import (
	"github.com/toshi0771/stock-screener-jp/internal/config"
	"github.com/toshi0771/stock-screener-jp/internal/model"
)

// Rule names, used as the Detection.Rule value and the ResultSink's rule
// column.
const (
	RulePerfectOrder   = "perfect_order"
	RuleBollingerTouch = "bollinger_touch"
	RulePullback       = "200day_pullback"
	RuleSqueeze        = "squeeze"
	RuleBreakout       = "breakout"
)

// EvalFn is a single screener rule: given a symbol's full bar history and
// the run's config, it returns a Detection if today's bar matches, or nil
// if it doesn't (never an error — a screener that can't evaluate, e.g. for
// lack of history, simply returns nil).
type EvalFn func(series model.BarSeries, cfg *config.Config) *model.Detection

// Rule pairs a name with its evaluator, used by Pipeline to drive the fixed
// dispatch order spec §4.8 requires.
type Rule struct {
	Name string
	Eval EvalFn
}

// Rules returns the five screeners in the fixed evaluation order spec §4.8
// mandates: PerfectOrder, BollingerTouch, Pullback, Squeeze, Breakout.
func Rules() []Rule {
	return []Rule{
		{Name: RulePerfectOrder, Eval: EvalPerfectOrder},
		{Name: RuleBollingerTouch, Eval: EvalBollingerTouch},
		{Name: RulePullback, Eval: EvalPullback},
		{Name: RuleSqueeze, Eval: EvalSqueeze},
		{Name: RuleBreakout, Eval: EvalBreakout},
	}
}
