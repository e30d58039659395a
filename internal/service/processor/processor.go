// Package processor 处理入站聊天消息中的群通话命令
// 单条消息的任何错误或 panic 都在这里截住，不影响后续消息的投递
package processor

import (
	"context"
	"fmt"

	"kama_call_ring/internal/infrastructure/metrics"
	"kama_call_ring/internal/model"
	"kama_call_ring/internal/service/command"
	"kama_call_ring/internal/service/ringing"

	"go.uber.org/zap"
)

// Exclusions 排除集合
type Exclusions interface {
	Exclude(ctx context.Context, chatID, userID int64) error
	Unexclude(ctx context.Context, chatID, userID int64) error
	IsExcluded(ctx context.Context, chatID, userID int64) (bool, error)
}

// Authorizer 发送者权限判断，done 恰好回调一次
type Authorizer interface {
	IsAuthorized(ctx context.Context, senderID int64, chat model.ChatRef, done func(bool))
}

// Ringer 响铃协调
type Ringer interface {
	MaybeRing(ctx context.Context, chat model.ChatRef, senderID int64) ringing.Decision
	EndRinging(ctx context.Context, chatID int64) (bool, error)
}

// Notifier 通知 UI
type Notifier interface {
	Refused(ctx context.Context, chat model.ChatRef, userID int64)
}

// AppState 应用是否在运行，推送副本只在应用未运行时处理
type AppState interface {
	AppRunning() bool
}

// Result 处理结果，主要用于日志与测试
type Result struct {
	Command  command.Command
	ToMe     bool
	NeedRing bool
	Skipped  string
}

// Processor 命令处理器
type Processor struct {
	self       command.Identity
	exclusions Exclusions
	auth       Authorizer
	ringer     Ringer
	notifier   Notifier
	app        AppState
	metrics    *metrics.Metrics
}

// NewProcessor 构造函数
func NewProcessor(
	self command.Identity,
	exclusions Exclusions,
	auth Authorizer,
	ringer Ringer,
	notifier Notifier,
	app AppState,
	m *metrics.Metrics,
) *Processor {
	return &Processor{
		self:       self,
		exclusions: exclusions,
		auth:       auth,
		ringer:     ringer,
		notifier:   notifier,
		app:        app,
		metrics:    m,
	}
}

// HandleMessage 处理一条入站消息，错误只记录日志
func (p *Processor) HandleMessage(ctx context.Context, msg *command.Message) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("处理命令消息 panic", zap.Int64("chat_id", msg.ChatID), zap.Int64("message_id", msg.ID), zap.Any("recover", r))
			res.Skipped = fmt.Sprintf("panic: %v", r)
		}
	}()

	res, err := p.handle(ctx, msg)
	if err != nil {
		zap.L().Error("处理命令消息失败",
			zap.Int64("chat_id", msg.ChatID), zap.Int64("message_id", msg.ID),
			zap.String("command", res.Command.String()), zap.Error(err))
	}
	return res
}

func (p *Processor) handle(ctx context.Context, msg *command.Message) (Result, error) {
	if msg.Push && p.app != nil && p.app.AppRunning() {
		return Result{Skipped: "push_while_running"}, nil
	}
	decoded, ok := command.Decode(msg.Text, msg.Entities, msg.SenderID)
	if !ok {
		return Result{Skipped: "not_command"}, nil
	}
	res := Result{Command: decoded.Command}
	if msg.SenderID == p.self.UserID {
		res.Skipped = "own_message"
		return res, nil
	}
	p.metrics.CommandDecoded(decoded.Command.String())
	res.ToMe = command.IsToMe(msg, p.self)
	chat := msg.Chat()

	switch decoded.Command {
	case command.InviteAll:
		excluded, err := p.exclusions.IsExcluded(ctx, chat.ID, p.self.UserID)
		if err != nil {
			return res, err
		}
		res.NeedRing = !excluded
	case command.Unexclude:
		if res.ToMe {
			if err := p.exclusions.Unexclude(ctx, chat.ID, p.self.UserID); err != nil {
				return res, err
			}
		}
	case command.InviteUser:
		if res.ToMe {
			excluded, err := p.exclusions.IsExcluded(ctx, chat.ID, p.self.UserID)
			if err != nil {
				return res, err
			}
			res.NeedRing = !excluded
		}
	case command.Exclude:
		if res.ToMe {
			if err := p.exclusions.Exclude(ctx, chat.ID, p.self.UserID); err != nil {
				return res, err
			}
			if _, err := p.ringer.EndRinging(ctx, chat.ID); err != nil {
				return res, err
			}
		}
	case command.RefuseInvite:
		if decoded.AddressedUserID != 0 {
			p.notifier.Refused(ctx, chat, decoded.AddressedUserID)
		}
	}

	if res.NeedRing {
		p.requestRing(ctx, chat, msg.SenderID)
	}
	return res, nil
}

// requestRing 权限回调携带解码时的会话与发送者
func (p *Processor) requestRing(ctx context.Context, chat model.ChatRef, senderID int64) {
	ringCtx := context.WithoutCancel(ctx)
	p.auth.IsAuthorized(ctx, senderID, chat, func(ok bool) {
		defer func() {
			if r := recover(); r != nil {
				zap.L().Error("响铃回调 panic", zap.Int64("chat_id", chat.ID), zap.Any("recover", r))
			}
		}()
		if !ok {
			zap.L().Info("发送者无权发起响铃", zap.Int64("chat_id", chat.ID), zap.Int64("sender_id", senderID))
			return
		}
		p.ringer.MaybeRing(ringCtx, chat, senderID)
	})
}
