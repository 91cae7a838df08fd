package quotesource

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/http2"
	"golang.org/x/oauth2"

	"github.com/toshi0771/stock-screener-jp/internal/model"
)

// HTTPQuoteSource is the reference QuoteSource implementation: a bearer
// token JSON API over HTTP. Its wire shapes are intentionally generic —
// the pipeline's contract is the QuoteSource interface, not this vendor's
// format, per spec §1's transport non-goal.
type HTTPQuoteSource struct {
	baseURL    string
	credential string
	client     *http.Client
	tokens     *TokenSource
	calendar   map[string]bool // date (YYYY-MM-DD) -> is trading day
	log        *zap.Logger
}

// HTTPQuoteSourceConfig configures a HTTPQuoteSource.
type HTTPQuoteSourceConfig struct {
	BaseURL        string
	Credential     string
	RequestTimeout time.Duration
}

// NewHTTPQuoteSource builds a HTTPQuoteSource with an explicitly tuned
// transport, the same hand-tuned-client habit the teacher follows in
// internal/data/conn.go.
func NewHTTPQuoteSource(cfg HTTPQuoteSourceConfig, tokens *TokenSource, log *zap.Logger) *HTTPQuoteSource {
	transport := &http.Transport{
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   20,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 5 * time.Second,
		TLSClientConfig:       &tls.Config{MinVersion: tls.VersionTLS12},
	}
	_ = http2.ConfigureTransport(transport)

	return &HTTPQuoteSource{
		baseURL:    cfg.BaseURL,
		credential: cfg.Credential,
		client: &http.Client{
			Timeout:   cfg.RequestTimeout,
			Transport: transport,
		},
		tokens: tokens,
		log:    log,
	}
}

// Authenticate exchanges the credential for a bearer token via the
// coalesced TokenSource.
func (q *HTTPQuoteSource) Authenticate(ctx context.Context) (string, error) {
	token, err := q.tokens.getValidToken(ctx)
	if err != nil {
		return "", &AuthError{Kind: AuthTransport, Err: err}
	}
	return token, nil
}

type listSymbolsResponse struct {
	Symbols []struct {
		Code          string `json:"code"`
		Name          string `json:"name"`
		MarketSegment string `json:"marketSegment"`
	} `json:"symbols"`
}

// ListSymbols fetches every listed symbol and filters to the three
// tracked segments, retrying once with a fresh token on a 401.
func (q *HTTPQuoteSource) ListSymbols(ctx context.Context) ([]model.Symbol, error) {
	body, err := q.doAuthenticated(ctx, http.MethodGet, "/symbols", nil)
	if err != nil {
		return nil, err
	}

	var resp listSymbolsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode symbols response: %w", err)
	}

	tracked := map[model.MarketSegment]bool{
		model.SegmentPrime: true, model.SegmentStandard: true, model.SegmentGrowth: true,
	}
	out := make([]model.Symbol, 0, len(resp.Symbols))
	for _, s := range resp.Symbols {
		seg := model.MarketSegment(s.MarketSegment)
		if !tracked[seg] {
			continue
		}
		out = append(out, model.Symbol{Code: s.Code, DisplayName: s.Name, MarketSegment: seg})
	}
	return out, nil
}

type barsResponse struct {
	Bars []struct {
		Date   string  `json:"date"`
		Open   float64 `json:"open"`
		High   float64 `json:"high"`
		Low    float64 `json:"low"`
		Close  float64 `json:"close"`
		Volume int64   `json:"volume"`
	} `json:"bars"`
}

// FetchBars fetches symbol's bars in [from, to]. An empty response is a
// nil series, not an error.
func (q *HTTPQuoteSource) FetchBars(ctx context.Context, symbol model.Symbol, from, to time.Time) (*model.BarSeries, error) {
	path := fmt.Sprintf("/symbols/%s/bars?from=%s&to=%s", symbol.Code, from.Format("2006-01-02"), to.Format("2006-01-02"))
	body, err := q.doAuthenticated(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	var resp barsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &FetchError{Kind: FetchNetworkPermanent, Err: fmt.Errorf("decode bars response: %w", err)}
	}
	if len(resp.Bars) == 0 {
		return nil, nil
	}

	bars := make([]model.Bar, len(resp.Bars))
	for i, b := range resp.Bars {
		date, err := time.Parse("2006-01-02", b.Date)
		if err != nil {
			return nil, &FetchError{Kind: FetchNetworkPermanent, Err: fmt.Errorf("parse bar date %q: %w", b.Date, err)}
		}
		bars[i] = model.Bar{Date: date, Open: b.Open, High: b.High, Low: b.Low, Close: b.Close, Volume: b.Volume}
	}
	series := model.BarSeries{Symbol: symbol, Bars: bars}
	return &series, nil
}

// IsTradingDay reports whether date was a trading day, consulting the
// calendar map when it has an entry for date. Nothing in this package
// fills that map, so as constructed by NewHTTPQuoteSource every weekday,
// including a weekday holiday, counts as a trading day.
func (q *HTTPQuoteSource) IsTradingDay(date time.Time) bool {
	key := date.Format("2006-01-02")
	if q.calendar != nil {
		if is, ok := q.calendar[key]; ok {
			return is
		}
	}
	// No calendar entry: fall back to a plain weekday check.
	return date.Weekday() != time.Saturday && date.Weekday() != time.Sunday
}

// doAuthenticated issues an authenticated request, refreshing the token
// and retrying exactly once on a 401.
func (q *HTTPQuoteSource) doAuthenticated(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	for attempt := 0; attempt < 2; attempt++ {
		token, err := q.Authenticate(ctx)
		if err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, method, q.baseURL+path, nil)
		if err != nil {
			return nil, &FetchError{Kind: FetchNetworkPermanent, Err: err}
		}
		req.Header.Set("Authorization", "Bearer "+token)

		resp, err := q.client.Do(req)
		if err != nil {
			return nil, &FetchError{Kind: FetchNetworkTransient, Err: err}
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusUnauthorized && attempt == 0:
			q.tokens.invalidate() // force refresh on next Authenticate
			continue
		case resp.StatusCode == http.StatusTooManyRequests:
			return nil, &FetchError{Kind: FetchRateLimited, Err: fmt.Errorf("rate limited")}
		case resp.StatusCode >= 500:
			return nil, &FetchError{Kind: FetchNetworkTransient, Err: fmt.Errorf("server error %d", resp.StatusCode)}
		case resp.StatusCode >= 400:
			return nil, &FetchError{Kind: FetchNetworkPermanent, Err: fmt.Errorf("client error %d", resp.StatusCode)}
		}
		if readErr != nil {
			return nil, &FetchError{Kind: FetchNetworkTransient, Err: readErr}
		}
		return respBody, nil
	}
	return nil, &FetchError{Kind: FetchNetworkPermanent, Err: fmt.Errorf("unauthorized after token refresh")}
}

var _ oauth2.TokenSource = (*staticTokenSource)(nil)

// staticTokenSource adapts a pre-fetched token into an oauth2.TokenSource.
// Nothing in this package calls it: Authenticate obtains its token through
// TokenSource and its RefreshFunc, not through golang.org/x/oauth2.
type staticTokenSource struct {
	token string
}

func (s staticTokenSource) Token() (*oauth2.Token, error) {
	return &oauth2.Token{AccessToken: s.token, TokenType: "Bearer"}, nil
}
