package quotesource

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTokenSource_CoalescesConcurrentRefreshes(t *testing.T) {
	var refreshCount int64
	refresh := func(ctx context.Context) (string, time.Time, error) {
		atomic.AddInt64(&refreshCount, 1)
		time.Sleep(10 * time.Millisecond)
		return "tok-123", time.Now().Add(time.Hour), nil
	}
	ts := NewTokenSource(refresh, nil, nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			token, err := ts.getValidToken(context.Background())
			assert.NoError(t, err)
			assert.Equal(t, "tok-123", token)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), atomic.LoadInt64(&refreshCount))
}

func TestTokenSource_RefreshesOnceExpired(t *testing.T) {
	var refreshCount int64
	refresh := func(ctx context.Context) (string, time.Time, error) {
		n := atomic.AddInt64(&refreshCount, 1)
		return "tok", time.Now().Add(time.Duration(n) * time.Millisecond), nil
	}
	ts := NewTokenSource(refresh, nil, nil)

	_, err := ts.getValidToken(context.Background())
	assert.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	_, err = ts.getValidToken(context.Background())
	assert.NoError(t, err)

	assert.GreaterOrEqual(t, atomic.LoadInt64(&refreshCount), int64(2))
}
