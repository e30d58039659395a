// Package redis 定义缓存服务接口
// Service 层依赖此接口而非具体 Redis 实现
package redis

import (
	"context"
	"time"
)

// CacheService 缓存服务接口
// 排除集合、呼叫集合、时间记录等协议状态都落在这里
type CacheService interface {
	// ==================== String 操作 ====================

	// Set 设置键值对并指定过期时间，ttl 为 0 表示永不过期
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	// Get 获取键对应的值（键不存在返回空字符串和 nil）
	Get(ctx context.Context, key string) (string, error)

	// ==================== Key 操作 ====================

	// Exists 判断键是否存在
	Exists(ctx context.Context, key string) (bool, error)
	// Delete 删除键（如果存在）
	Delete(ctx context.Context, key string) error

	// ==================== Set 集合操作 ====================

	// AddToSet 向集合添加成员
	AddToSet(ctx context.Context, key string, members ...string) error
	// GetSetMembers 获取集合中的所有成员
	GetSetMembers(ctx context.Context, key string) ([]string, error)
	// IsSetMember 判断成员是否在集合中
	IsSetMember(ctx context.Context, key string, member string) (bool, error)
	// RemoveFromSet 从集合中移除成员
	RemoveFromSet(ctx context.Context, key string, members ...string) error
	// ReplaceSet 用给定成员整体替换集合，成员为空时删除键
	ReplaceSet(ctx context.Context, key string, members []string) error

	// ==================== Hash 操作 ====================

	// HSet 设置哈希字段
	HSet(ctx context.Context, key string, field string, value string) error
	// HGet 获取哈希字段（不存在返回空字符串和 false）
	HGet(ctx context.Context, key string, field string) (string, bool, error)
	// HGetAll 获取整个哈希
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	// HDel 删除哈希字段
	HDel(ctx context.Context, key string, fields ...string) error
}

// AsyncCacheService 异步缓存服务接口
// 提供异步任务提交能力，权限解析用它把远端结果异步回写本地存储
type AsyncCacheService interface {
	CacheService
	// SubmitTask 提交异步任务
	SubmitTask(action func())
}
