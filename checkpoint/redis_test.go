package checkpoint

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/graphchat/config"
	"github.com/BaSui01/graphchat/workflow"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, "test", nil), mr
}

// TestRedisStorePutLatest 快照经 INCR 编号，Latest 走 zset 索引。
func TestRedisStorePutLatest(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "t1", "node_a", []byte(`{"step":1}`)))
	require.NoError(t, store.Put(ctx, "t1", "node_b", []byte(`{"step":2}`)))

	latest, err := store.Latest(ctx, "t1")
	require.NoError(t, err)
	require.JSONEq(t, `{"step":2}`, string(latest))
}

// TestRedisStoreThreadsIsolated 线程之间互不可见。
func TestRedisStoreThreadsIsolated(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "t1", "n", []byte(`{"v":"a"}`)))
	require.NoError(t, store.Put(ctx, "t2", "n", []byte(`{"v":"b"}`)))

	a, err := store.Latest(ctx, "t1")
	require.NoError(t, err)
	require.JSONEq(t, `{"v":"a"}`, string(a))

	b, err := store.Latest(ctx, "t2")
	require.NoError(t, err)
	require.JSONEq(t, `{"v":"b"}`, string(b))
}

// TestRedisStoreLatestMissing 空线程返回 ErrNoCheckpoint。
func TestRedisStoreLatestMissing(t *testing.T) {
	store, _ := newRedisStore(t)
	_, err := store.Latest(context.Background(), "ghost")
	require.True(t, errors.Is(err, workflow.ErrNoCheckpoint))
}

// TestRedisStoreDeleteThread 删除后索引、计数器与快照全部清空。
func TestRedisStoreDeleteThread(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "t1", "n", []byte(`{"v":1}`)))
	require.NoError(t, store.Put(ctx, "t1", "n", []byte(`{"v":2}`)))
	require.NoError(t, store.DeleteThread(ctx, "t1"))

	_, err := store.Latest(ctx, "t1")
	require.True(t, errors.Is(err, workflow.ErrNoCheckpoint))
	require.False(t, mr.Exists("test:ckpt:seq:t1"))
	require.False(t, mr.Exists("test:ckpt:state:t1:1"))
	require.False(t, mr.Exists("test:ckpt:state:t1:2"))
}

// TestRedisStoreDeleteMissingThread 删除不存在的线程不报错。
func TestRedisStoreDeleteMissingThread(t *testing.T) {
	store, _ := newRedisStore(t)
	require.NoError(t, store.DeleteThread(context.Background(), "ghost"))
}

// TestRedisProviderPingFailure 连不上的地址在 Acquire 时报错。
func TestRedisProviderPingFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	p := NewRedisProvider(config.RedisConfig{Addr: addr, Prefix: "test"}, nil)
	_, err := p.Acquire(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "redis ping")
}
