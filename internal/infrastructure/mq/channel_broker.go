package mq

import (
	"context"
	"sync"
	"sync/atomic"

	"kama_call_ring/internal/service/command"
	"kama_call_ring/internal/service/sender"
	"kama_call_ring/pkg/constants"
	"kama_call_ring/pkg/errorx"

	"go.uber.org/zap"
)

// loopEvent 入站消息或确认，二者共用一个队列以保持先后顺序
type loopEvent struct {
	msg *command.Message
	ack *sender.Ack
}

// ChannelBroker channel 模式的进程内回环
// 发出的命令消息立即获得确认，并作为入站消息回送给处理器
type ChannelBroker struct {
	selfID int64

	events chan loopEvent
	done   chan struct{}
	nextID atomic.Int64

	mu      sync.Mutex
	visible map[int64]sender.OutboundMessage // serverID → 仍可见的命令消息
	closed  bool

	wg sync.WaitGroup
}

// NewChannelBroker selfID 用作回送消息的发送者
func NewChannelBroker(selfID int64) *ChannelBroker {
	return &ChannelBroker{
		selfID:  selfID,
		events:  make(chan loopEvent, constants.CHANNEL_SIZE),
		done:    make(chan struct{}),
		visible: make(map[int64]sender.OutboundMessage),
	}
}

// Send 分配服务端 ID，回送消息并确认
func (b *ChannelBroker) Send(ctx context.Context, msg sender.OutboundMessage) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return errorx.New(errorx.CodeMQError, "channel broker closed")
	}
	serverID := b.nextID.Add(1)
	b.visible[serverID] = msg
	b.mu.Unlock()

	echo := &command.Message{
		ID:       serverID,
		ChatID:   msg.ChatID,
		ChatKind: msg.ChatKind,
		SenderID: b.selfID,
		Text:     msg.Text,
		Entities: msg.Entities,
	}
	if err := b.enqueue(ctx, loopEvent{msg: echo}); err != nil {
		return err
	}
	select {
	case b.events <- loopEvent{ack: &sender.Ack{LocalID: msg.LocalID, ServerID: serverID}}:
	default:
		// 确认丢失时消息保持可见
		zap.L().Warn("确认队列已满，丢弃确认", zap.Int64("local_id", msg.LocalID))
	}
	return nil
}

// Delete 删除可见的命令消息，不存在时忽略
func (b *ChannelBroker) Delete(_ context.Context, chatID, serverID int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if m, ok := b.visible[serverID]; ok && m.ChatID == chatID {
		delete(b.visible, serverID)
	}
	return nil
}

// Visible 尚未删除的命令消息数
func (b *ChannelBroker) Visible() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.visible)
}

// Publish 投递入站消息
func (b *ChannelBroker) Publish(ctx context.Context, msg *command.Message) error {
	if msg.ID == 0 {
		msg.ID = b.nextID.Add(1)
	}
	return b.enqueue(ctx, loopEvent{msg: msg})
}

func (b *ChannelBroker) enqueue(ctx context.Context, e loopEvent) error {
	select {
	case <-b.done:
		return errorx.New(errorx.CodeMQError, "channel broker closed")
	default:
	}
	select {
	case b.events <- e:
		return nil
	case <-b.done:
		return errorx.New(errorx.CodeMQError, "channel broker closed")
	case <-ctx.Done():
		return errorx.Wrap(ctx.Err(), errorx.CodeMQError, "enqueue inbound message")
	}
}

// Start 单个 goroutine 按入队顺序分发，回送消息总在其确认之前处理
func (b *ChannelBroker) Start(ctx context.Context, h Handlers) {
	d := dispatcher{h: h}
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case <-b.done:
				return
			case e := <-b.events:
				if e.msg != nil {
					b.safe(func() { d.handleMessage(ctx, e.msg) })
				}
				if e.ack != nil {
					b.safe(func() { d.handleAck(ctx, *e.ack) })
				}
			}
		}
	}()
}

func (b *ChannelBroker) safe(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("channel broker 处理 panic", zap.Any("recover", r))
		}
	}()
	fn()
}

// Close 停止接收新消息并等待分发循环退出
func (b *ChannelBroker) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()
	close(b.done)
	b.wg.Wait()
	return nil
}
