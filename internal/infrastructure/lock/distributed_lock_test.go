package lock

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testRDB *redis.Client

func init() {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		addr = "127.0.0.1:6379"
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		fmt.Println("测试 Redis 连接失败，跳过分布式锁测试:", err)
		return
	}
	testRDB = rdb
}

func requireRedis(t *testing.T) {
	if testRDB == nil {
		t.Skip("测试 Redis 不可用")
	}
}

func TestTryLockMutualExclusion(t *testing.T) {
	requireRedis(t)
	ctx := context.Background()

	key := "test:lock:" + uuid.NewString()
	lockA := NewDistributedLock(testRDB, key, "owner-a", time.Minute)
	lockB := NewDistributedLock(testRDB, key, "owner-b", time.Minute)

	okA, err := lockA.TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, okA)

	okB, err := lockB.TryLock(ctx)
	require.NoError(t, err)
	assert.False(t, okB, "锁被持有时其他人不能获取")

	require.NoError(t, lockA.Unlock(ctx))

	okB, err = lockB.TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, okB, "释放后可以获取")
	require.NoError(t, lockB.Unlock(ctx))
}

func TestUnlockOnlyByOwner(t *testing.T) {
	requireRedis(t)
	ctx := context.Background()

	key := "test:lock:" + uuid.NewString()
	lockA := NewDistributedLock(testRDB, key, "owner-a", time.Minute)
	lockB := NewDistributedLock(testRDB, key, "owner-b", time.Minute)

	okA, err := lockA.TryLock(ctx)
	require.NoError(t, err)
	require.True(t, okA)

	// 非持有者的 Unlock 不能删掉别人的锁
	require.NoError(t, lockB.Unlock(ctx))

	okB, err := lockB.TryLock(ctx)
	require.NoError(t, err)
	assert.False(t, okB)

	require.NoError(t, lockA.Unlock(ctx))
}

func TestLockBlocksUntilReleased(t *testing.T) {
	requireRedis(t)
	ctx := context.Background()

	key := "test:lock:" + uuid.NewString()
	lockA := NewDistributedLock(testRDB, key, "owner-a", time.Minute)
	lockB := NewDistributedLock(testRDB, key, "owner-b", time.Minute)

	okA, err := lockA.TryLock(ctx)
	require.NoError(t, err)
	require.True(t, okA)

	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = lockA.Unlock(context.Background())
	}()

	// 阻塞重试直到 A 释放
	err = lockB.Lock(ctx, 20*time.Millisecond, 20)
	require.NoError(t, err)
	require.NoError(t, lockB.Unlock(ctx))
}

func TestLockGivesUpAfterMaxRetries(t *testing.T) {
	requireRedis(t)
	ctx := context.Background()

	key := "test:lock:" + uuid.NewString()
	lockA := NewDistributedLock(testRDB, key, "owner-a", time.Minute)
	lockB := NewDistributedLock(testRDB, key, "owner-b", time.Minute)

	okA, err := lockA.TryLock(ctx)
	require.NoError(t, err)
	require.True(t, okA)
	defer lockA.Unlock(ctx)

	err = lockB.Lock(ctx, 10*time.Millisecond, 3)
	assert.ErrorIs(t, err, ErrLockFailed)
}

func TestLockExpiresAutomatically(t *testing.T) {
	requireRedis(t)
	ctx := context.Background()

	key := "test:lock:" + uuid.NewString()
	lockA := NewDistributedLock(testRDB, key, "owner-a", 50*time.Millisecond)
	lockB := NewDistributedLock(testRDB, key, "owner-b", time.Minute)

	okA, err := lockA.TryLock(ctx)
	require.NoError(t, err)
	require.True(t, okA)

	time.Sleep(100 * time.Millisecond)

	// 过期后锁自动释放，防止持有者崩溃导致死锁
	okB, err := lockB.TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, okB)
	require.NoError(t, lockB.Unlock(ctx))
}
