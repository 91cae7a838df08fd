package quotesource

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	credentialWarnAge  = 5 * 24 * time.Hour
	credentialErrorAge = 7 * 24 * time.Hour
	redisTokenKey       = "screener:quotesource:token"
)

// RefreshFunc exchanges the configured credential for a fresh bearer token
// and its expiry.
type RefreshFunc func(ctx context.Context) (token string, expiresAt time.Time, err error)

// TokenSource is the coalesced credential object spec §9 requires: its
// only public surface is getValidToken, and concurrent callers observing
// an expired token never trigger more than one in-flight refresh. A
// singleflight.Group coalesces refreshes within this process; an optional
// Redis client additionally shares the token across processes, so a process
// that finds a token already stored in Redis uses it instead of refreshing.
// There is no cross-process lock: processes that miss Redis at the same
// time each run their own refresh.
type TokenSource struct {
	refresh RefreshFunc
	redis   *redis.Client
	log     *zap.Logger

	group singleflight.Group

	mu          sync.Mutex
	localToken  string
	localExpiry time.Time
}

// NewTokenSource builds a TokenSource. redisClient may be nil, in which
// case coalescing is purely in-process.
func NewTokenSource(refresh RefreshFunc, redisClient *redis.Client, log *zap.Logger) *TokenSource {
	return &TokenSource{refresh: refresh, redis: redisClient, log: log}
}

// getValidToken returns a currently-valid bearer token, refreshing (once,
// however many goroutines call concurrently) if the cached one is expired
// or about to expire.
func (t *TokenSource) getValidToken(ctx context.Context) (string, error) {
	if token, ok := t.cachedToken(); ok {
		return token, nil
	}

	if t.redis != nil {
		if token, err := t.redis.Get(ctx, redisTokenKey).Result(); err == nil && token != "" {
			t.setLocal(token, time.Now().Add(5*time.Minute)) // conservative, re-checked next call
			return token, nil
		}
	}

	v, err, _ := t.group.Do("refresh", func() (interface{}, error) {
		token, expiresAt, err := t.refresh(ctx)
		if err != nil {
			return nil, err
		}
		t.setLocal(token, expiresAt)
		t.warnOnAge(token)
		if t.redis != nil {
			ttl := time.Until(expiresAt)
			if ttl > 0 {
				t.redis.Set(ctx, redisTokenKey, token, ttl)
			}
		}
		return token, nil
	})
	if err != nil {
		return "", fmt.Errorf("refresh quote source token: %w", err)
	}
	return v.(string), nil
}

// cachedToken returns the locally cached token if it is still valid.
func (t *TokenSource) cachedToken() (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.localToken != "" && time.Now().Before(t.localExpiry.Add(-30*time.Second)) {
		return t.localToken, true
	}
	return "", false
}

// setLocal updates the cached token under lock.
func (t *TokenSource) setLocal(token string, expiresAt time.Time) {
	t.mu.Lock()
	t.localToken = token
	t.localExpiry = expiresAt
	t.mu.Unlock()
}

// invalidate clears the cached token, forcing the next getValidToken call
// to refresh. Used by the HTTP adapter on a 401 to force a retry.
func (t *TokenSource) invalidate() {
	t.mu.Lock()
	t.localToken = ""
	t.mu.Unlock()
}

// warnOnAge decodes the token's iat claim (unverified — this process has
// no signing key, only the issuer does) and logs per spec §4.2's
// credential-age thresholds.
func (t *TokenSource) warnOnAge(token string) {
	if t.log == nil {
		return
	}
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return
	}
	iat, ok := claims["iat"].(float64)
	if !ok {
		return
	}
	age := time.Since(time.Unix(int64(iat), 0))
	switch {
	case age >= credentialErrorAge:
		t.log.Error("quote source credential is stale", zap.Duration("age", age))
	case age >= credentialWarnAge:
		t.log.Warn("quote source credential is aging", zap.Duration("age", age))
	}
}
