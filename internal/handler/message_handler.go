// Package handler 提供 HTTP 请求处理器
// 本文件接收 UI 转发的入站聊天消息
package handler

import (
	"kama_call_ring/internal/dto/request"
	"kama_call_ring/internal/dto/respond"
	"kama_call_ring/internal/service"
	"kama_call_ring/internal/service/command"

	"github.com/gin-gonic/gin"
)

// MessageHandler 入站消息处理器
type MessageHandler struct {
	inbound service.InboundPublisher
}

// NewMessageHandler 创建入站消息处理器实例
func NewMessageHandler(inbound service.InboundPublisher) *MessageHandler {
	return &MessageHandler{inbound: inbound}
}

// Inbound 投递入站消息，处理是异步的
// POST /message/inbound
func (h *MessageHandler) Inbound(c *gin.Context) {
	var req request.InboundMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleParamError(c, err)
		return
	}
	if err := h.inbound.Publish(c.Request.Context(), req.ToMessage()); err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, nil)
}

// Classify 识别命令消息，UI 用来隐藏尚未被删除的命令消息
// POST /message/classify
func (h *MessageHandler) Classify(c *gin.Context) {
	var req request.ClassifyMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleParamError(c, err)
		return
	}
	if !command.IsCommandMessage(req.Text) {
		HandleSuccess(c, respond.ClassifyMessageRespond{})
		return
	}
	decoded, _ := command.Decode(req.Text, req.Entities, 0)
	HandleSuccess(c, respond.ClassifyMessageRespond{
		IsCommand:       true,
		Command:         decoded.Command.String(),
		AddressedUserID: decoded.AddressedUserID,
	})
}
