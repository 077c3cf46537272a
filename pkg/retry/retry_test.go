package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 测试用的快速策略，避免拖慢测试
func fastPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		MaxDelay:    10 * time.Millisecond,
	}
}

func TestDoSucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := fastPolicy().Do(context.Background(), "test", func(ctx context.Context) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoRetriesTransientError(t *testing.T) {
	calls := 0
	err := fastPolicy().Do(context.Background(), "test", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("连接抖动")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoExhaustsAttempts(t *testing.T) {
	calls := 0
	boom := errors.New("一直失败")
	err := fastPolicy().Do(context.Background(), "test", func(ctx context.Context) error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, calls)
}

func TestDoStopsOnPermanentError(t *testing.T) {
	calls := 0
	bad := errors.New("金额非法")
	err := fastPolicy().Do(context.Background(), "test", func(ctx context.Context) error {
		calls++
		return Permanent(bad)
	})
	assert.ErrorIs(t, err, bad)
	assert.Equal(t, 1, calls, "永久性错误不重试")
}

func TestDoRespectsContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := Policy{MaxAttempts: 5, BaseDelay: time.Hour, MaxDelay: time.Hour}

	calls := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := policy.Do(ctx, "test", func(ctx context.Context) error {
		calls++
		return errors.New("失败后进入长退避")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestPermanentNilPassthrough(t *testing.T) {
	assert.NoError(t, Permanent(nil))
}

func TestIsPermanentUnwrapsWrappedError(t *testing.T) {
	inner := errors.New("inner")
	wrapped := Permanent(inner)
	assert.True(t, IsPermanent(wrapped))
	assert.ErrorIs(t, wrapped, inner)
	assert.False(t, IsPermanent(inner))
}

func TestBackoffCurve(t *testing.T) {
	p := Policy{MaxAttempts: 10, BaseDelay: 200 * time.Millisecond, MaxDelay: 10 * time.Second}

	assert.Equal(t, 200*time.Millisecond, p.Backoff(0))
	assert.Equal(t, 400*time.Millisecond, p.Backoff(1))
	assert.Equal(t, 800*time.Millisecond, p.Backoff(2))
	assert.Equal(t, 1600*time.Millisecond, p.Backoff(3))
	// 超过上限后封顶
	assert.Equal(t, 10*time.Second, p.Backoff(8))
	assert.Equal(t, 10*time.Second, p.Backoff(60), "移位溢出也要封顶")
}
