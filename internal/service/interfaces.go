// Package service 定义业务层接口与依赖装配
// 本文件定义 Handler 层调用的 Service 接口
package service

import (
	"context"
	"time"

	"kama_call_ring/internal/model"
	"kama_call_ring/internal/service/callsvc"
	"kama_call_ring/internal/service/command"
	"kama_call_ring/internal/service/presence"
	"kama_call_ring/internal/service/ringing"
	"kama_call_ring/internal/service/roster"
)

// CallService 面向 UI 的通话操作
type CallService interface {
	// StartCall 管理员发起通话
	StartCall(ctx context.Context, chat model.ChatRef, in callsvc.StartInput) error
	// CallUser 重新呼叫单个用户
	CallUser(ctx context.Context, chat model.ChatRef, userID int64) (roster.CallingEntry, error)
	// CallAll 呼叫全部参与者
	CallAll(ctx context.Context, chat model.ChatRef, participants []int64) ([]int64, error)
	// Refuse 拒绝加入
	Refuse(ctx context.Context, chat model.ChatRef) error
	// SendExclude 排除用户
	SendExclude(ctx context.Context, chat model.ChatRef, userIDs []int64) error
	// SendUnexclude 取消排除
	SendUnexclude(ctx context.Context, chat model.ChatRef, userID int64) error
}

// RosterService 排除集合与呼叫集合的查询
type RosterService interface {
	ExcludedUsers(ctx context.Context, chatID int64) ([]int64, error)
	CallingEntries(ctx context.Context, chatID int64) ([]roster.CallingEntry, error)
}

// PresenceService 参与者在线时间记录
type PresenceService interface {
	RecordTransition(ctx context.Context, chat model.ChatRef, userID int64, online bool) error
	StartSession(ctx context.Context, chatID int64) error
	CloseSessionIfIdle(ctx context.Context, chatID int64) error
	JoinExistingSession(ctx context.Context, chatID int64, live []int64, onReady func()) (presence.JoinResult, error)
	HasStaleSession(ctx context.Context, chatID int64) (bool, error)
	Reset(ctx context.Context, chatID int64, live []int64) error
	Hole(ctx context.Context, chatID int64) (presence.TimeHole, error)
	Records(ctx context.Context, chatID int64) ([]presence.ParticipantRecord, error)
	Export(ctx context.Context, chatID int64) ([]byte, error)
}

// RingStatus 响铃状态快照
type RingStatus struct {
	State      ringing.State
	ChatID     int64
	LastHangup time.Time
}

// RingService 响铃控制
type RingService interface {
	// Hangup 用户主动挂断
	Hangup(ctx context.Context) error
	// SessionEnded 通话会话结束
	SessionEnded()
	// Status 当前状态
	Status(ctx context.Context) RingStatus
}

// ChatSyncService UI 推送会话信息到本地存储层
type ChatSyncService interface {
	SyncChat(ctx context.Context, full *model.FullChat, adminIDs []int64, users []model.UserInfo) error
	SetActiveCall(chatID int64, active bool) error
}

// InboundPublisher 投递入站聊天消息
type InboundPublisher interface {
	Publish(ctx context.Context, msg *command.Message) error
}
