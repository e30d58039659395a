package request

import (
	"kama_call_ring/internal/model"
	"kama_call_ring/internal/service/command"
)

// InboundMessageRequest channel 模式下由 UI 转发的入站聊天消息
type InboundMessageRequest struct {
	MessageID  int64            `json:"message_id"`
	ChatID     int64            `json:"chat_id" binding:"required"`
	ChatKind   string           `json:"chat_kind" binding:"omitempty,chat_kind"`
	PeerUserID int64            `json:"peer_user_id"`
	SenderID   int64            `json:"sender_id" binding:"required"`
	Text       string           `json:"text" binding:"required"`
	Entities   []command.Entity `json:"entities"`
	Push       bool             `json:"push"`
}

// ToMessage 转成处理器的入站消息
func (r InboundMessageRequest) ToMessage() *command.Message {
	return &command.Message{
		ID:         r.MessageID,
		ChatID:     r.ChatID,
		ChatKind:   model.ParseChatKind(r.ChatKind),
		PeerUserID: r.PeerUserID,
		SenderID:   r.SenderID,
		Text:       r.Text,
		Entities:   r.Entities,
		Push:       r.Push,
	}
}

// ClassifyMessageRequest 判断一条聊天消息是否为命令消息
type ClassifyMessageRequest struct {
	Text     string           `json:"text" binding:"required"`
	Entities []command.Entity `json:"entities"`
}
