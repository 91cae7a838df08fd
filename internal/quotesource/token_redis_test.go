package quotesource

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

// TestTokenSource_SharesTokenAcrossProcessesViaRedis exercises the
// cross-process half of coalescing: a second TokenSource pointed at the
// same Redis instance must pick up the first one's token without calling
// refresh itself.
func TestTokenSource_SharesTokenAcrossProcessesViaRedis(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}
	ctx := context.Background()

	container, err := tcredis.Run(ctx, "redis:7-alpine")
	require.NoError(t, err)
	defer container.Terminate(ctx)

	addr, err := container.Endpoint(ctx, "")
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	var refreshCount int64
	refresh := func(ctx context.Context) (string, time.Time, error) {
		atomic.AddInt64(&refreshCount, 1)
		return "shared-token", time.Now().Add(time.Hour), nil
	}

	first := NewTokenSource(refresh, client, nil)
	token, err := first.getValidToken(ctx)
	require.NoError(t, err)
	require.Equal(t, "shared-token", token)

	second := NewTokenSource(func(context.Context) (string, time.Time, error) {
		t.Fatal("second TokenSource should never refresh, it should read Redis")
		return "", time.Time{}, nil
	}, client, nil)

	token, err = second.getValidToken(ctx)
	require.NoError(t, err)
	require.Equal(t, "shared-token", token)
	require.Equal(t, int64(1), atomic.LoadInt64(&refreshCount))
}
