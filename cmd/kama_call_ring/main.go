package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"kama_call_ring/internal/config"
	dao "kama_call_ring/internal/dao/mysql"
	myredis "kama_call_ring/internal/dao/redis"
	"kama_call_ring/internal/gateway/backend"
	"kama_call_ring/internal/gateway/websocket"
	"kama_call_ring/internal/handler"
	"kama_call_ring/internal/https_server"
	"kama_call_ring/internal/infrastructure/logger"
	"kama_call_ring/internal/infrastructure/metrics"
	"kama_call_ring/internal/infrastructure/mq"
	"kama_call_ring/internal/model"
	"kama_call_ring/internal/service"
	"kama_call_ring/internal/service/permission"
	"kama_call_ring/pkg/util/jwt"
	"kama_call_ring/pkg/util/snowflake"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

func main() {
	// 1. 加载配置
	conf := config.GetConfig()

	// 2. 初始化日志
	if err := logger.Init(&conf.LogConfig, conf.MainConfig.Mode); err != nil {
		log.Fatalf("init logger failed: %v", err)
	}
	zap.L().Info("日志初始化成功", zap.Int64("account_id", conf.AccountID), zap.Int64("user_id", conf.UserID))

	// 3. 雪花 ID 与 JWT
	snowflake.Init(conf.SnowflakeConfig.MachineID)
	jwt.Init(conf.JWTConfig.Secret, conf.JWTConfig.AccessTokenExpiry)

	// 4. 本地存储
	repos, err := dao.Init(&conf.MysqlConfig)
	if err != nil {
		zap.L().Fatal("本地存储初始化失败", zap.Error(err))
	}

	// 5. 缓存
	cache, err := myredis.Init(&conf.RedisConfig)
	if err != nil {
		zap.L().Fatal("缓存初始化失败", zap.Error(err))
	}

	// 6. 监控指标
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	// 7. UI 网关与消息通道
	hub := websocket.NewHub()
	var broker mq.Broker
	if conf.MessageMode == "kafka" {
		kc := mq.NewKafkaClient(conf.KafkaConfig)
		if err := kc.CreateTopics(); err != nil {
			zap.L().Warn("创建 Kafka 主题失败，继续使用已有主题", zap.Error(err))
		}
		broker = kc
	} else {
		broker = mq.NewChannelBroker(conf.UserID)
	}

	// 8. 远端后台，未配置时权限解析只走本地两层
	var remote permission.RemoteClient
	if conf.BackendConfig.BaseURL != "" {
		remote = backend.NewClient(conf.BackendConfig, func(users []model.UserInfo) {
			for i := range users {
				if err := repos.User.Save(&users[i]); err != nil {
					zap.L().Warn("保存用户资料失败", zap.Int64("user_id", users[i].UserID), zap.Error(err))
				}
			}
		})
	}

	// 9. Service 层 (依赖注入)
	svc := service.NewServices(service.Deps{
		Config:  conf,
		Repos:   repos,
		Cache:   cache,
		UI:      hub,
		Broker:  broker,
		Remote:  remote,
		Metrics: m,
	})
	zap.L().Info("Service 层初始化成功", zap.String("message_mode", conf.MessageMode))

	ctx, cancel := context.WithCancel(context.Background())
	go svc.Sender.Run(ctx)
	broker.Start(ctx, svc.Handlers())

	// 10. HTTP 服务器
	if err := handler.InitTrans("zh"); err != nil {
		zap.L().Fatal("初始化校验翻译器失败", zap.Error(err))
	}
	handlers := handler.NewHandlers(svc, conf.JWTConfig.ClientKey, hub.ServeWS, m.Handler())
	engine := https_server.Init(handlers, conf.MainConfig.Mode)

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", conf.MainConfig.Host, conf.MainConfig.Port),
		Handler: engine,
	}
	go func() {
		zap.L().Info("HTTP 服务启动", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zap.L().Fatal("server running fault", zap.Error(err))
		}
	}()

	// 设置信号监听
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zap.L().Info("关闭服务器...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zap.L().Error("HTTP 服务关闭失败", zap.Error(err))
	}

	cancel()
	hub.Close()
	if err := broker.Close(); err != nil {
		zap.L().Error("关闭消息通道失败", zap.Error(err))
	}
	svc.Close()
	cache.Close()

	zap.L().Info("服务器已关闭")
	_ = zap.L().Sync()
}
