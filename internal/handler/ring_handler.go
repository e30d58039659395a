// Package handler 提供 HTTP 请求处理器
// 本文件处理挂断与响铃状态
package handler

import (
	"kama_call_ring/internal/dto/respond"
	"kama_call_ring/internal/service"

	"github.com/gin-gonic/gin"
)

// RingHandler 响铃处理器
type RingHandler struct {
	ringSvc service.RingService
}

// NewRingHandler 创建响铃处理器实例
func NewRingHandler(ringSvc service.RingService) *RingHandler {
	return &RingHandler{ringSvc: ringSvc}
}

// Hangup 用户主动挂断，记录时间并结束响铃
// POST /ring/hangup
func (h *RingHandler) Hangup(c *gin.Context) {
	if err := h.ringSvc.Hangup(c.Request.Context()); err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, nil)
}

// Ended 通话会话结束
// POST /ring/ended
func (h *RingHandler) Ended(c *gin.Context) {
	h.ringSvc.SessionEnded()
	HandleSuccess(c, nil)
}

// Status 响铃状态
// GET /ring/status
func (h *RingHandler) Status(c *gin.Context) {
	st := h.ringSvc.Status(c.Request.Context())
	out := respond.RingStatusRespond{State: st.State.String(), ChatID: st.ChatID}
	if !st.LastHangup.IsZero() {
		out.LastHangup = st.LastHangup.UnixMilli()
	}
	HandleSuccess(c, out)
}
