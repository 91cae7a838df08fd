// Package clock resolves the trading day the pipeline runs against.
package clock

import (
	"time"

	"go.uber.org/zap"
)

const maxBacktrackAttempts = 10

var jst = func() *time.Location {
	loc, err := time.LoadLocation("Asia/Tokyo")
	if err != nil {
		return time.FixedZone("JST", 9*60*60)
	}
	return loc
}()

// NowJST returns the current time in the Asia/Tokyo zone.
func NowJST() time.Time {
	return time.Now().In(jst)
}

// TradingDayChecker answers whether a given JST calendar date is a trading
// day. It is the Clock component's only dependency on the outside world,
// matching QuoteSource.IsTradingDay.
type TradingDayChecker interface {
	IsTradingDay(date time.Time) bool
}

// LatestTradingDay resolves the most recent trading day whose data should
// already be available, given the current JST time.
//
// If it is before 16:00 JST, today's bar is assumed not yet settled and the
// search starts one day earlier. From there it steps backward over
// weekends and non-trading days, up to maxBacktrackAttempts times. If the
// search is exhausted without finding a trading day, it falls back to
// now-7d and logs a warning rather than failing the run.
func LatestTradingDay(now time.Time, checker TradingDayChecker, log *zap.Logger) time.Time {
	now = now.In(jst)
	candidate := truncate(now)
	if now.Hour() < 16 {
		candidate = candidate.AddDate(0, 0, -1)
	}

	for attempt := 0; attempt < maxBacktrackAttempts; attempt++ {
		if candidate.Weekday() == time.Saturday || candidate.Weekday() == time.Sunday {
			candidate = candidate.AddDate(0, 0, -1)
			continue
		}
		if checker.IsTradingDay(candidate) {
			return candidate
		}
		candidate = candidate.AddDate(0, 0, -1)
	}

	fallback := truncate(now.AddDate(0, 0, -7))
	if log != nil {
		log.Warn("trading day resolution exhausted backtrack attempts, falling back to now-7d",
			zap.Int("maxAttempts", maxBacktrackAttempts),
			zap.Time("fallback", fallback))
	}
	return fallback
}

func truncate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
