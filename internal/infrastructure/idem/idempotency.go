package idem

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// ============================================================================
// 幂等键存储
// ============================================================================
//
// 与分布式锁的区别：锁保护的是"一段临界区"，用完要释放；
// 幂等键声明的是"某个副作用动作已经被认领"，在 TTL 窗口内不释放。
// key 不存在 = 动作尚未被认领，SetNX 抢到 = 本次调用负责执行该动作。
//
// 充值管道用它对外部回调去重：同一个 tx_hash 在 TTL 内只会入队一次，
// TTL 过期后的重复投递由流水表的 processed_at 二层幂等兜底。
// ============================================================================

// Store 基于 Redis 的"认领一次"存储
type Store struct {
	client *redis.Client
	prefix string
}

func NewStore(client *redis.Client, prefix string) *Store {
	return &Store{client: client, prefix: prefix}
}

// Claim 认领操作键
// 返回 true 表示本次认领成功，调用方负责执行后续动作；
// 返回 false 表示键已被认领过，动作不应重复执行
func (s *Store) Claim(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, s.fullKey(key), owner, ttl).Result()
}

// Release 撤销认领
// 仅在"认领成功但后续动作落库失败"时调用，让下一次通知可以重新入队
func (s *Store) Release(ctx context.Context, key, owner string) error {
	script := `
		if redis.call("GET", KEYS[1]) == ARGV[1] then
			return redis.call("DEL", KEYS[1])
		else
			return 0
		end
	`
	_, err := s.client.Eval(ctx, script, []string{s.fullKey(key)}, owner).Result()
	return err
}

func (s *Store) fullKey(key string) string {
	return fmt.Sprintf("%s:%s", s.prefix, key)
}
