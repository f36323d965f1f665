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
// 场景：调度器 tick 与管理员的强制派息同时处理同一笔投资
//
// 如果没有锁：
//   调度器:   读到 payoutsCompleted=5 -> 派1次 -> 写回6
//   强制派息: 读到 payoutsCompleted=5 -> 派1次 -> 写回6   进度丢了一次，钱多派了！
//
// 加了锁：
//   调度器:   获取锁 -> 派息 -> 写回6 -> 释放锁
//   强制派息: 等待... -> 获取锁 -> 基于6继续 -> 写回7
//
// 【Redis 分布式锁原理】
//
// 加锁：SET key value NX EX timeout
//   - NX: 只有 key 不存在时才设置（保证互斥）
//   - EX: 设置过期时间（防止死锁）
//   - value: 锁持有者标识（释放时验证，防止误删别人的锁）
//
// 释放锁：使用 Lua 脚本保证原子性
//   - 先检查 value 是否是自己的
//   - 再删除 key
//
// 锁之外，事务内还有状态+进度的 CAS 条件更新兜底，
// 锁过期被抢的极端情况下也不会双重派息
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
func (l *DistributedLock) TryLock(ctx context.Context) (bool, error) {
	success, err := l.client.SetNX(ctx, l.key, l.value, l.expiration).Result()
	if err != nil {
		return false, err
	}
	return success, nil
}

// Lock 阻塞式获取锁（带重试，有界等待）
// 重试耗尽返回 ErrLockFailed，调用方自行决定重试或向上返回"稍后再试"
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
// Lua 脚本保证"检查+删除"原子执行，锁过期被他人持有时不会误删
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
// 便捷函数：按投资、按用户两个维度的锁
// ============================================================================

// NewInvestmentLock 创建投资记录锁
//
// 同一笔投资上的所有操作（调度派息、强制派息、补发、修改、取消、终止）
// 必须互斥；不同投资之间完全独立，可以并发处理
func NewInvestmentLock(client *redis.Client, investmentID int64, holder string) *DistributedLock {
	key := fmt.Sprintf("investment:lock:%d", investmentID)
	return NewDistributedLock(client, key, holder, 30*time.Second)
}

// NewBalanceLock 创建用户余额锁
// 手工调整余额按用户维度互斥，不同用户互不影响
func NewBalanceLock(client *redis.Client, userID int64, holder string) *DistributedLock {
	key := fmt.Sprintf("balance:lock:user:%d", userID)
	return NewDistributedLock(client, key, holder, 30*time.Second)
}
