package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// ============================================================================
// 分布式锁实现
// ============================================================================
//
// 【为什么需要分布式锁？】
//
// 场景：管理员在两个窗口同时点了"结算"（或结算接口被重试）
//
// 如果没有分布式锁：
//   请求1: 读取报名列表 -> 计算奖金 -> 逐个派奖
//   请求2: 读取报名列表 -> 计算奖金 -> 又派了一遍！
//
// 加了分布式锁之后，第二个请求要么拿不到锁直接返回，
// 要么拿到锁后发现 settled_at 已写入，直接返回上次的结算结果
//
// 【Redis 分布式锁原理】
//
// 加锁：SET key value NX EX timeout
//   - NX: 只有 key 不存在时才设置（保证互斥）
//   - EX: 设置过期时间（防止死锁）
//   - value: 锁持有者标识（释放时验证，防止误删别人的锁）
//
// 释放锁：Lua 脚本先校验 value 再删除，保证"检查+删除"原子执行
//
// ============================================================================

var (
	ErrLockFailed = errors.New("获取分布式锁失败")
)

// DistributedLock 分布式锁
type DistributedLock struct {
	client     *redis.Client
	key        string        // 锁的 key
	value      string        // 锁的 value（用于验证锁的持有者）
	expiration time.Duration // 锁的过期时间
}

// NewDistributedLock 创建分布式锁
func NewDistributedLock(client *redis.Client, key, value string, expiration time.Duration) *DistributedLock {
	return &DistributedLock{
		client:     client,
		key:        key,
		value:      value,
		expiration: expiration,
	}
}

// TryLock 尝试获取锁（非阻塞）
//
// 【关键点】使用 SetNX 命令，只有当 key 不存在时才能设置成功
func (l *DistributedLock) TryLock(ctx context.Context) (bool, error) {
	success, err := l.client.SetNX(ctx, l.key, l.value, l.expiration).Result()
	if err != nil {
		return false, err
	}
	return success, nil
}

// Lock 阻塞式获取锁（带重试）
func (l *DistributedLock) Lock(ctx context.Context, retryInterval time.Duration, maxRetries int) error {
	for i := 0; i < maxRetries; i++ {
		success, err := l.TryLock(ctx)
		if err != nil {
			return err
		}
		if success {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryInterval):
			// 继续重试
		}
	}
	return ErrLockFailed
}

// Unlock 释放锁
//
// 【关键点】Lua 脚本保证"检查 value + 删除"的原子性：
// 若 A 的锁已过期且被 B 抢到，A 迟到的 Unlock 不能删掉 B 的锁
func (l *DistributedLock) Unlock(ctx context.Context) error {
	script := `
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("DEL", KEYS[1])
		else
			return 0
		end
	`
	_, err := l.client.Eval(ctx, script, []string{l.key}, l.value).Result()
	return err
}

// ============================================================================
// 便捷函数：比赛维度的结算/取消锁
// ============================================================================

// NewContestLock 创建比赛锁（结算与取消共用同一把锁）
//
// 【设计思考】为什么按比赛维度加锁？
//
// 结算和取消都会遍历整张报名表进行资金操作，
// 同一个比赛的两次结算并发执行就是双重派奖事故；
// 而不同比赛之间没有共享数据，完全可以并行处理。
// value 使用调用方生成的 owner 标识，便于追踪是哪个请求持有锁
func NewContestLock(client *redis.Client, contestID int64, owner string) *DistributedLock {
	key := fmt.Sprintf("contest:lock:%d", contestID)
	return NewDistributedLock(client, key, owner, 60*time.Second)
}
