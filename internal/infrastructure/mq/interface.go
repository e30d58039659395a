// Package mq 消息通道：入站聊天消息、出站命令消息与服务端确认
// kafka 模式走三个主题；channel 模式在进程内回环，用于单机调试
package mq

import (
	"context"
	"encoding/json"
	"fmt"

	"kama_call_ring/internal/service/command"
	"kama_call_ring/internal/service/processor"
	"kama_call_ring/internal/service/sender"
	"kama_call_ring/pkg/errorx"

	"go.uber.org/zap"
)

// MessageHandler 入站消息处理
type MessageHandler interface {
	HandleMessage(ctx context.Context, msg *command.Message) processor.Result
}

// AckHandler 服务端确认处理
type AckHandler interface {
	OnAck(ctx context.Context, ack sender.Ack) (bool, error)
}

// Handlers Start 时注入，发送器与处理器依赖通道本身，只能在构造之后绑定
type Handlers struct {
	Messages MessageHandler
	Acks     AckHandler
}

// Broker 消息通道
type Broker interface {
	sender.CommandChannel
	// Publish 投递一条入站消息
	Publish(ctx context.Context, msg *command.Message) error
	// Start 启动消费，ctx 取消后停止
	Start(ctx context.Context, h Handlers)
	Close() error
}

// 出站命令通道上的操作
const (
	OpSend   = "send"
	OpDelete = "delete"
)

// CommandEnvelope 出站命令通道上的一条记录
type CommandEnvelope struct {
	Op       string                  `json:"op"`
	Message  *sender.OutboundMessage `json:"message,omitempty"`
	ChatID   int64                   `json:"chat_id"`
	ServerID int64                   `json:"server_id,omitempty"`
}

// dispatcher 两种模式共用的解码与分发
type dispatcher struct {
	h Handlers
}

// dispatchChat 处理一条入站消息，解码失败只记录日志
func (d dispatcher) dispatchChat(ctx context.Context, value []byte) {
	var msg command.Message
	if err := json.Unmarshal(value, &msg); err != nil {
		zap.L().Error("入站消息解码失败", zap.ByteString("value", value), zap.Error(err))
		return
	}
	d.handleMessage(ctx, &msg)
}

func (d dispatcher) handleMessage(ctx context.Context, msg *command.Message) {
	if d.h.Messages == nil {
		return
	}
	res := d.h.Messages.HandleMessage(ctx, msg)
	if res.Command != command.None {
		zap.L().Debug("命令消息已处理",
			zap.Int64("chat_id", msg.ChatID), zap.String("command", res.Command.String()),
			zap.Bool("to_me", res.ToMe), zap.Bool("need_ring", res.NeedRing), zap.String("skipped", res.Skipped))
	}
}

// dispatchAck 处理一条服务端确认
func (d dispatcher) dispatchAck(ctx context.Context, value []byte) {
	var ack sender.Ack
	if err := json.Unmarshal(value, &ack); err != nil {
		zap.L().Error("确认消息解码失败", zap.ByteString("value", value), zap.Error(err))
		return
	}
	d.handleAck(ctx, ack)
}

func (d dispatcher) handleAck(ctx context.Context, ack sender.Ack) {
	if d.h.Acks == nil {
		return
	}
	if _, err := d.h.Acks.OnAck(ctx, ack); err != nil {
		zap.L().Error("删除命令消息失败", zap.Int64("local_id", ack.LocalID), zap.Int64("server_id", ack.ServerID), zap.Error(err))
	}
}

func chatKey(chatID int64) []byte {
	return []byte(fmt.Sprintf("%d", chatID))
}

func marshal(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, errorx.Wrap(err, errorx.CodeMQError, "encode mq record")
	}
	return b, nil
}
