package retry

import (
	"context"
	"errors"
	"log"
	"time"
)

// ============================================================================
// 统一重试策略
// ============================================================================
//
// 【为什么集中到一个包？】
//
// 重试逻辑散落在各个调用点时，每处的最大次数、退避曲线都不一样，
// 排障时没人说得清"这个任务到底会重试几次"。
// 所有需要重试的边界（目前是充值入账 worker 和发件箱投递）
// 都使用同一个 Policy，行为只有一个定义。
//
// 瞬时错误（锁冲突、连接抖动）重试；
// 校验类错误用 Permanent 包装后直接失败，不浪费重试次数。
// ============================================================================

// Policy 重试策略：最大尝试次数 + 指数退避
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultPolicy 充值任务使用的默认策略
// 5 次尝试，退避 200ms/400ms/800ms/1.6s
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 5,
		BaseDelay:   200 * time.Millisecond,
		MaxDelay:    10 * time.Second,
	}
}

// permanentError 标记不可重试的错误
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent 包装一个不应被重试的错误
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent 判断错误是否被标记为不可重试
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// Backoff 第 attempt 次失败后的等待时间（attempt 从 0 开始）
func (p Policy) Backoff(attempt int) time.Duration {
	d := p.BaseDelay << uint(attempt)
	if d > p.MaxDelay || d <= 0 {
		return p.MaxDelay
	}
	return d
}

// Do 按策略执行 fn
// 返回 nil 表示最终成功；返回非 nil 表示重试耗尽或遇到永久性错误，
// 调用方需要把该失败升级为需人工介入的事件，绝不能静默丢弃
func (p Policy) Do(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if IsPermanent(lastErr) {
			return lastErr
		}

		if attempt < p.MaxAttempts-1 {
			wait := p.Backoff(attempt)
			log.Printf("[Retry] %s 第%d次尝试失败，%v 后重试: %v", name, attempt+1, wait, lastErr)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}
	}
	return lastErr
}
