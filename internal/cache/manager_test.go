package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// =============================================================================
// 🧪 Manager 测试
// =============================================================================

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *Manager) {
	t.Helper()
	mr := miniredis.RunT(t)
	manager, err := NewManager(Config{Addr: mr.Addr(), DefaultTTL: time.Minute}, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = manager.Close() })
	return mr, manager
}

type cachedReport struct {
	Summary   string   `json:"summary"`
	RootCause string   `json:"root_cause"`
	Factors   []string `json:"factors"`
}

func TestManager_SetAndGet(t *testing.T) {
	_, manager := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, manager.Set(ctx, "rca:abc", "report", time.Minute))
	value, err := manager.Get(ctx, "rca:abc")
	require.NoError(t, err)
	assert.Equal(t, "report", value)
}

func TestManager_Miss(t *testing.T) {
	_, manager := setupTestRedis(t)

	_, err := manager.Get(context.Background(), "rca:missing")
	assert.True(t, IsCacheMiss(err))

	var dest cachedReport
	err = manager.GetJSON(context.Background(), "rca:missing", &dest)
	assert.True(t, IsCacheMiss(err))
}

func TestManager_JSON(t *testing.T) {
	_, manager := setupTestRedis(t)
	ctx := context.Background()

	in := cachedReport{Summary: "stale prices", RootCause: "cache ttl", Factors: []string{"deploy"}}
	require.NoError(t, manager.SetJSON(ctx, "rca:json", in, 0))

	var out cachedReport
	require.NoError(t, manager.GetJSON(ctx, "rca:json", &out))
	assert.Equal(t, in, out)

	assert.Error(t, manager.SetJSON(ctx, "rca:bad", make(chan int), 0))

	require.NoError(t, manager.Set(ctx, "rca:garbage", "not json", 0))
	err := manager.GetJSON(ctx, "rca:garbage", &out)
	require.Error(t, err)
	assert.False(t, IsCacheMiss(err))
}

func TestManager_DefaultTTL(t *testing.T) {
	mr, manager := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, manager.Set(ctx, "k", "v", 0))
	assert.Equal(t, time.Minute, mr.TTL("k"))

	require.NoError(t, manager.Set(ctx, "short", "v", 100*time.Millisecond))
	mr.FastForward(200 * time.Millisecond)
	_, err := manager.Get(ctx, "short")
	assert.True(t, IsCacheMiss(err))
}

func TestManager_Delete(t *testing.T) {
	_, manager := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, manager.Set(ctx, "a", "1", 0))
	require.NoError(t, manager.Set(ctx, "b", "2", 0))
	require.NoError(t, manager.Delete(ctx, "a", "b"))
	require.NoError(t, manager.Delete(ctx))

	_, err := manager.Get(ctx, "a")
	assert.True(t, IsCacheMiss(err))
}

func TestManager_Closed(t *testing.T) {
	_, manager := setupTestRedis(t)
	require.NoError(t, manager.Close())
	require.NoError(t, manager.Close())

	ctx := context.Background()
	assert.ErrorIs(t, manager.Ping(ctx), errClosed)
	_, err := manager.Get(ctx, "k")
	assert.ErrorIs(t, err, errClosed)
	assert.ErrorIs(t, manager.Set(ctx, "k", "v", 0), errClosed)
}

func TestManager_ConnectFailure(t *testing.T) {
	manager, err := NewManager(Config{Addr: "127.0.0.1:1"}, nil)
	assert.Nil(t, manager)
	assert.Error(t, err)
}

func TestManager_HealthCheckLoopStops(t *testing.T) {
	mr := miniredis.RunT(t)
	manager, err := NewManager(Config{Addr: mr.Addr(), HealthCheckInterval: 10 * time.Millisecond}, zaptest.NewLogger(t))
	require.NoError(t, err)

	time.Sleep(30 * time.Millisecond)
	require.NoError(t, manager.Close())
}
