// Package sender 把命令编码成普通聊天消息发出，服务端确认后删除
// 确认一直没有到达时消息保持可见，不重试
package sender

import (
	"context"
	"sync"
	"time"

	"kama_call_ring/internal/infrastructure/metrics"
	"kama_call_ring/internal/model"
	"kama_call_ring/internal/service/command"
	"kama_call_ring/pkg/errorx"
	"kama_call_ring/pkg/util/snowflake"

	"go.uber.org/zap"
)

// OutboundMessage 出站聊天消息
type OutboundMessage struct {
	LocalID  int64            `json:"local_id"`
	ChatID   int64            `json:"chat_id"`
	ChatKind model.ChatKind   `json:"chat_kind"`
	Text     string           `json:"text"`
	Entities []command.Entity `json:"entities,omitempty"`
}

// Ack 服务端对出站消息的确认
type Ack struct {
	LocalID  int64 `json:"local_id"`
	ServerID int64 `json:"server_id"`
}

// CommandChannel 命令消息的传输通道
type CommandChannel interface {
	Send(ctx context.Context, msg OutboundMessage) error
	Delete(ctx context.Context, chatID, serverID int64) error
}

type pendingEntry struct {
	chatID int64
	sentAt time.Time
}

// Sender 命令发送器
type Sender struct {
	channel    CommandChannel
	selfName   string
	ackTimeout time.Duration
	metrics    *metrics.Metrics
	now        func() time.Time

	mu      sync.Mutex
	pending map[int64]pendingEntry
}

// NewSender 构造函数，selfName 为本地用户的展示名
func NewSender(channel CommandChannel, selfName string, ackTimeout time.Duration, m *metrics.Metrics) *Sender {
	return &Sender{
		channel:    channel,
		selfName:   selfName,
		ackTimeout: ackTimeout,
		metrics:    m,
		now:        time.Now,
		pending:    make(map[int64]pendingEntry),
	}
}

// SendCommand 发送单条命令
func (s *Sender) SendCommand(ctx context.Context, chat model.ChatRef, cmd command.Command, target *command.Target) error {
	out, err := command.Encode(cmd, s.selfName, target)
	if err != nil {
		return err
	}
	return s.send(ctx, chat, out)
}

// SendExcludeBatch 向多个用户发送 Exclude，按寻址方式最多发两条
func (s *Sender) SendExcludeBatch(ctx context.Context, chat model.ChatRef, targets []command.Target) error {
	return s.SendBatch(ctx, chat, command.Exclude, targets)
}

// SendBatch 向多个用户发送同一条需要目标的命令
func (s *Sender) SendBatch(ctx context.Context, chat model.ChatRef, cmd command.Command, targets []command.Target) error {
	if !cmd.NeedsTarget() {
		return errorx.Newf(errorx.CodeInvalidParam, "command %s does not take targets", cmd)
	}
	for _, out := range command.EncodeBatch(cmd, s.selfName, targets) {
		if err := s.send(ctx, chat, out); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sender) send(ctx context.Context, chat model.ChatRef, out command.Outbound) error {
	msg := OutboundMessage{
		LocalID:  snowflake.GenerateID(),
		ChatID:   chat.ID,
		ChatKind: chat.Kind,
		Text:     out.Text,
		Entities: out.Entities,
	}

	s.mu.Lock()
	s.expireLocked()
	s.pending[msg.LocalID] = pendingEntry{chatID: chat.ID, sentAt: s.now()}
	s.mu.Unlock()

	if err := s.channel.Send(ctx, msg); err != nil {
		s.mu.Lock()
		delete(s.pending, msg.LocalID)
		s.mu.Unlock()
		s.metrics.CommandMessage(metrics.EventSendFailed)
		return errorx.Wrapf(err, errorx.CodeMQError, "send command message to chat %d", chat.ID)
	}
	s.metrics.CommandMessage(metrics.EventSent)
	zap.L().Debug("命令消息已发送", zap.Int64("chat_id", chat.ID), zap.Int64("local_id", msg.LocalID), zap.String("text", msg.Text))
	return nil
}

// OnAck 服务端确认后删除对应的命令消息；未知或已超时的确认返回 false
func (s *Sender) OnAck(ctx context.Context, ack Ack) (bool, error) {
	s.mu.Lock()
	s.expireLocked()
	entry, ok := s.pending[ack.LocalID]
	delete(s.pending, ack.LocalID)
	s.mu.Unlock()
	if !ok {
		return false, nil
	}

	if err := s.channel.Delete(ctx, entry.chatID, ack.ServerID); err != nil {
		return false, errorx.Wrapf(err, errorx.CodeMQError, "delete command message %d", ack.ServerID)
	}
	s.metrics.CommandMessage(metrics.EventDeleted)
	return true, nil
}

// Pending 等待确认的消息数
func (s *Sender) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expireLocked()
	return len(s.pending)
}

// Run 周期清理超时的等待项，ctx 取消后返回
func (s *Sender) Run(ctx context.Context) {
	interval := s.ackTimeout / 2
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			s.expireLocked()
			s.mu.Unlock()
		}
	}
}

// expireLocked 调用方需持有锁
func (s *Sender) expireLocked() {
	if s.ackTimeout <= 0 {
		return
	}
	cutoff := s.now().Add(-s.ackTimeout)
	for id, e := range s.pending {
		if e.sentAt.Before(cutoff) {
			delete(s.pending, id)
			s.metrics.CommandMessage(metrics.EventAckTimeout)
			zap.L().Info("命令消息未收到确认，保留可见", zap.Int64("chat_id", e.chatID), zap.Int64("local_id", id))
		}
	}
}
