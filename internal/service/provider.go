// Package service 提供业务逻辑层
// 本文件实现 Service 层的依赖注入和聚合
package service

import (
	"context"

	"kama_call_ring/internal/config"
	"kama_call_ring/internal/dao/mysql/repository"
	myredis "kama_call_ring/internal/dao/redis"
	"kama_call_ring/internal/gateway/websocket"
	"kama_call_ring/internal/infrastructure/metrics"
	"kama_call_ring/internal/infrastructure/mq"
	"kama_call_ring/internal/model"
	"kama_call_ring/internal/service/callsvc"
	"kama_call_ring/internal/service/command"
	"kama_call_ring/internal/service/permission"
	"kama_call_ring/internal/service/presence"
	"kama_call_ring/internal/service/processor"
	"kama_call_ring/internal/service/ringing"
	"kama_call_ring/internal/service/roster"
	"kama_call_ring/internal/service/sender"

	"go.uber.org/zap"
)

// UIGateway UI 侧的协作者，由 websocket.Hub 实现
type UIGateway interface {
	ringing.Platform
	ringing.CallSession
	ringing.PresenceSuppressor
	processor.Notifier
	processor.AppState
	SetSessionListener(l websocket.SessionListener)
	HandleReport(r websocket.Report)
}

// Deps 装配 Service 层需要的基础设施
type Deps struct {
	Config  *config.Config
	Repos   *repository.Repositories
	Cache   myredis.AsyncCacheService
	UI      UIGateway
	Broker  mq.Broker
	Remote  permission.RemoteClient // 可为 nil，此时远端一层按无权限处理
	Metrics *metrics.Metrics
}

// Services 聚合所有 Service 实例
type Services struct {
	Call     CallService
	Roster   RosterService
	Presence PresenceService
	Ring     RingService
	Chat     ChatSyncService
	Inbound  InboundPublisher

	Sender    *sender.Sender
	Processor *processor.Processor
	Resolver  *permission.Resolver

	store *roster.Store
}

// NewServices 创建并注入所有 Service 实例
// 依赖注入流程：
//  1. 命令发送器绑定消息通道
//  2. 排除/呼叫集合、权限解析、时间记录、响铃协调
//  3. 入站处理器与面向 UI 的通话服务
func NewServices(d Deps) *Services {
	conf := d.Config
	account := conf.AccountConfig
	self := command.Identity{
		UserID:      account.UserID,
		UserName:    account.UserName,
		FirstName:   account.FirstName,
		DisplayName: account.DisplayName(),
	}

	snd := sender.NewSender(d.Broker, self.DisplayName, conf.RingConfig.AckTimeout(), d.Metrics)
	store := roster.NewStore(d.Cache, snd, roster.Options{
		AccountID:        account.AccountID,
		SelfID:           account.UserID,
		InviteAllDelay:   conf.RingConfig.InviteAllDelay(),
		CallingRetention: conf.RingConfig.CallingRetention(),
	})
	resolver := permission.NewResolver(d.Repos, d.Remote, d.Cache, d.Metrics, account.UserID, conf.BackendConfig.RequestTimeout())
	recorder := presence.NewRecorder(d.Cache, resolver, store, account.AccountID, account.UserID)
	coord := ringing.NewCoordinator(d.Cache, d.UI, d.UI, d.UI, resolver, d.Metrics, ringing.Options{
		AccountID:      account.AccountID,
		HangupCooldown: conf.RingConfig.HangupCooldown(),
	})
	d.UI.SetSessionListener(coord)
	d.Metrics.ObservePending(snd.Pending)
	if loop, ok := d.Broker.(interface{ Visible() int }); ok {
		d.Metrics.ObserveLoopbackVisible(loop.Visible)
	}
	proc := processor.NewProcessor(self, store, resolver, coord, d.UI, d.UI, d.Metrics)

	return &Services{
		Call:      callsvc.NewService(self, store, snd, resolver, resolver, d.Repos.User),
		Roster:    store,
		Presence:  &presenceService{Recorder: recorder, store: store},
		Ring:      &ringService{coord: coord, ui: d.UI},
		Chat:      &chatSyncService{resolver: resolver, repos: d.Repos},
		Inbound:   d.Broker,
		Sender:    snd,
		Processor: proc,
		Resolver:  resolver,
		store:     store,
	}
}

// Handlers 消息通道消费时使用的处理器
func (s *Services) Handlers() mq.Handlers {
	return mq.Handlers{Messages: s.Processor, Acks: s.Sender}
}

// Close 停止未触发的延迟广播
func (s *Services) Close() {
	s.store.Close()
}

// ==================== ringService ====================

type ringService struct {
	coord *ringing.Coordinator
	ui    UIGateway
}

func (r *ringService) Hangup(ctx context.Context) error {
	return r.coord.MarkHangup(ctx)
}

// SessionEnded 同时重置 UI 会话与协调器状态
func (r *ringService) SessionEnded() {
	r.ui.HandleReport(websocket.Report{Type: websocket.ReportSessionEnded})
}

func (r *ringService) Status(ctx context.Context) RingStatus {
	state, chatID := r.coord.State()
	last, _ := r.coord.LastHangup(ctx)
	return RingStatus{State: state, ChatID: chatID, LastHangup: last}
}

// ==================== presenceService ====================

type presenceService struct {
	*presence.Recorder
	store *roster.Store
}

// CloseSessionIfIdle 通话结束时取消尚未发出的延迟广播，关闭时间段后清空呼叫集合
func (p *presenceService) CloseSessionIfIdle(ctx context.Context, chatID int64) error {
	if p.store.CancelInviteAll(chatID) {
		zap.L().Info("通话已结束，取消延迟广播", zap.Int64("chat_id", chatID))
	}
	if err := p.Recorder.CloseSessionIfIdle(ctx, chatID); err != nil {
		return err
	}
	return p.store.ClearCalling(ctx, chatID)
}

// ==================== chatSyncService ====================

type chatSyncService struct {
	resolver *permission.Resolver
	repos    *repository.Repositories
}

// SyncChat 写入会话信息、频道管理员与用户资料
func (c *chatSyncService) SyncChat(_ context.Context, full *model.FullChat, adminIDs []int64, users []model.UserInfo) error {
	for i := range users {
		if err := c.repos.User.Save(&users[i]); err != nil {
			return err
		}
	}
	c.resolver.Forget(full.Info.ChatID)
	if full.Info.Kind == model.ChatKindChannel && len(adminIDs) > 0 {
		c.resolver.StoreChannelAdmins(full.Info.ChatID, adminIDs)
	}
	c.resolver.StoreFullChat(full)
	zap.L().Info("会话信息已同步", zap.Int64("chat_id", full.Info.ChatID),
		zap.Int("participants", len(full.Participants)), zap.Int("users", len(users)))
	return nil
}

func (c *chatSyncService) SetActiveCall(chatID int64, active bool) error {
	return c.resolver.SetActiveCall(chatID, active)
}
