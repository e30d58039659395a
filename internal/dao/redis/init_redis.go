// Package redis 提供缓存服务的初始化
// redis 模式连接外部 Redis；memory 模式在进程内启动 miniredis，两种模式共用 RedisCache
package redis

import (
	"context"
	"strconv"

	"kama_call_ring/internal/config"
	"kama_call_ring/pkg/constants"
	"kama_call_ring/pkg/errorx"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Closer 可关闭的缓存服务
type Closer interface {
	AsyncCacheService
	Close()
}

type redisCloser struct {
	*RedisCache
}

// Close 先排空异步任务，再关闭连接
func (r redisCloser) Close() {
	r.RedisCache.workerPool.Close()
	if err := r.client.Close(); err != nil {
		zap.L().Error("close redis client failed", zap.Error(err))
	}
}

// Memory 进程内 miniredis 上的 RedisCache，状态不落盘
type Memory struct {
	redisCloser
	server *miniredis.Miniredis
}

// NewMemory 启动进程内 Redis 并连接
func NewMemory(workerNum, taskChanSize int) (*Memory, error) {
	server, err := miniredis.Run()
	if err != nil {
		return nil, errorx.Wrap(err, errorx.CodeCacheError, "start in-process redis")
	}
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	return &Memory{
		redisCloser: redisCloser{NewRedisCache(client, workerNum, taskChanSize)},
		server:      server,
	}, nil
}

// Close 关闭连接后停止进程内 Redis
func (m *Memory) Close() {
	m.redisCloser.Close()
	m.server.Close()
}

// Init 根据配置创建缓存服务
func Init(conf *config.RedisConfig) (Closer, error) {
	if conf.Mode == "memory" {
		m, err := NewMemory(constants.CACHE_WORKER_NUM, constants.CACHE_TASK_CHAN_SIZE)
		if err != nil {
			return nil, err
		}
		zap.L().Info("cache running on in-process redis", zap.String("addr", m.server.Addr()))
		return m, nil
	}

	addr := conf.Host + ":" + strconv.Itoa(conf.Port)
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     conf.Password,
		DB:           conf.Db,
		PoolSize:     50,
		MinIdleConns: constants.CACHE_WORKER_NUM,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		_ = client.Close()
		return nil, errorx.Wrapf(err, errorx.CodeCacheError, "redis ping %s", addr)
	}
	zap.L().Info("redis connected", zap.String("addr", addr))
	return redisCloser{NewRedisCache(client, constants.CACHE_WORKER_NUM, constants.CACHE_TASK_CHAN_SIZE)}, nil
}
