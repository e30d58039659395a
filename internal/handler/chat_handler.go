// Package handler 提供 HTTP 请求处理器
// 本文件接收 UI 推送的会话信息
package handler

import (
	"kama_call_ring/internal/dto/request"
	"kama_call_ring/internal/service"

	"github.com/gin-gonic/gin"
)

// ChatHandler 会话信息处理器
type ChatHandler struct {
	chatSvc service.ChatSyncService
}

// NewChatHandler 创建会话信息处理器实例
func NewChatHandler(chatSvc service.ChatSyncService) *ChatHandler {
	return &ChatHandler{chatSvc: chatSvc}
}

// Sync 写入会话信息、成员与管理员
// POST /chat/sync
func (h *ChatHandler) Sync(c *gin.Context) {
	var req request.SyncChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleParamError(c, err)
		return
	}
	full, users := req.ToModel()
	if err := h.chatSvc.SyncChat(c.Request.Context(), full, req.AdminIDs, users); err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, nil)
}

// ActiveCall 更新进行中的群通话标记
// POST /chat/active_call
func (h *ChatHandler) ActiveCall(c *gin.Context) {
	var req request.ActiveCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleParamError(c, err)
		return
	}
	if err := h.chatSvc.SetActiveCall(req.ChatID, *req.Active); err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, nil)
}
