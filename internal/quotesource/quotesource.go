// Package quotesource defines the abstract quotation-API contract the
// pipeline fetches bars through, plus a reference HTTP implementation.
// Concrete wire formats are deliberately out of scope (spec §1 non-goal);
// this package's interface is the entire contract other packages depend on.
package quotesource

import (
	"context"
	"time"

	"github.com/toshi0771/stock-screener-jp/internal/model"
)

// AuthFailureKind classifies why Authenticate failed.
type AuthFailureKind int

const (
	AuthBadCredential AuthFailureKind = iota
	AuthExpired
	AuthTransport
)

// AuthError is returned by Authenticate and is always fatal at startup.
type AuthError struct {
	Kind AuthFailureKind
	Err  error
}

func (e *AuthError) Error() string { return e.Err.Error() }
func (e *AuthError) Unwrap() error { return e.Err }

// FetchFailureKind classifies why FetchBars failed.
type FetchFailureKind int

const (
	FetchNetworkTransient FetchFailureKind = iota
	FetchNetworkPermanent
	FetchRateLimited
)

// FetchError is returned by FetchBars. Transient and RateLimited are
// retried by the caller up to 3 times with a 1s delay; Permanent is logged
// and treated as a non-match.
type FetchError struct {
	Kind FetchFailureKind
	Err  error
}

func (e *FetchError) Error() string { return e.Err.Error() }
func (e *FetchError) Unwrap() error { return e.Err }

// Retryable reports whether the caller should retry this fetch.
func (e *FetchError) Retryable() bool {
	return e.Kind == FetchNetworkTransient || e.Kind == FetchRateLimited
}

// QuoteSource is the abstract quotation API contract.
type QuoteSource interface {
	// Authenticate exchanges the configured credential for a bearer token.
	Authenticate(ctx context.Context) (string, error)
	// ListSymbols returns every listed symbol in the three tracked market
	// segments, refreshing the token and retrying once on Unauthorized.
	ListSymbols(ctx context.Context) ([]model.Symbol, error)
	// FetchBars returns the symbol's bars in [from, to], or a nil series
	// (not an error) when the range has no data.
	FetchBars(ctx context.Context, symbol model.Symbol, from, to time.Time) (*model.BarSeries, error)
	// IsTradingDay reports whether date was a trading day.
	IsTradingDay(date time.Time) bool
}
