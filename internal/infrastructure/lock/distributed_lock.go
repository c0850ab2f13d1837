package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// ============================================================================
// 分布式锁
// ============================================================================
//
// 余额、限流窗口、会员额度的并发安全全部由数据库事务保证，这里的锁只用于：
//
//   1. 热度重算合并：同一帖子同时只有一个实例在重算，其余请求只打一个 dirty 标记
//   2. 定时任务选主：多实例部署时，会员到期提醒每轮只由一个实例执行
//
// 丢锁或锁失效最多导致一次重复计算，不会破坏账务数据。
//
// 加锁：SET key token NX EX ttl
// 解锁：Lua 脚本先比对 token 再 DEL，避免删掉别人的锁
//
// ============================================================================

var (
	ErrLockFailed  = errors.New("获取分布式锁失败")
	ErrLockExpired = errors.New("锁已过期")
)

const unlockScript = `
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`

// DistributedLock 分布式锁
type DistributedLock struct {
	client     *redis.Client
	key        string        // 锁的 key
	token      string        // 持有者标识
	expiration time.Duration // 锁的过期时间
}

// NewDistributedLock 创建分布式锁，token 为空时自动生成
func NewDistributedLock(client *redis.Client, key, token string, expiration time.Duration) *DistributedLock {
	if token == "" {
		token = uuid.NewString()
	}
	return &DistributedLock{
		client:     client,
		key:        key,
		token:      token,
		expiration: expiration,
	}
}

// Key 锁的 key
func (l *DistributedLock) Key() string {
	return l.key
}

// TryLock 尝试获取锁（非阻塞）
func (l *DistributedLock) TryLock(ctx context.Context) (bool, error) {
	return l.client.SetNX(ctx, l.key, l.token, l.expiration).Result()
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
		}
	}
	return ErrLockFailed
}

// Unlock 释放锁，锁已不属于自己时返回 ErrLockExpired
func (l *DistributedLock) Unlock(ctx context.Context) error {
	n, err := l.client.Eval(ctx, unlockScript, []string{l.key}, l.token).Int64()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrLockExpired
	}
	return nil
}

// NewTrendingLock 帖子热度重算锁
func NewTrendingLock(client *redis.Client, confessionID int64) *DistributedLock {
	key := fmt.Sprintf("trending:lock:confession:%d", confessionID)
	return NewDistributedLock(client, key, "", 10*time.Second)
}

// TrendingDirtyKey 重算期间有新请求到达时设置的标记
func TrendingDirtyKey(confessionID int64) string {
	return fmt.Sprintf("trending:dirty:confession:%d", confessionID)
}

// NewJobLock 定时任务选主锁
func NewJobLock(client *redis.Client, job string, ttl time.Duration) *DistributedLock {
	key := fmt.Sprintf("job:lock:%s", job)
	return NewDistributedLock(client, key, "", ttl)
}
