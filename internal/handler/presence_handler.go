// Package handler 提供 HTTP 请求处理器
// 本文件处理参与者上下线、通话时间段与时间记录
package handler

import (
	"net/http"

	"kama_call_ring/internal/dto/request"
	"kama_call_ring/internal/dto/respond"
	"kama_call_ring/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// PresenceHandler 时间记录处理器
type PresenceHandler struct {
	presenceSvc service.PresenceService
}

// NewPresenceHandler 创建时间记录处理器实例
func NewPresenceHandler(presenceSvc service.PresenceService) *PresenceHandler {
	return &PresenceHandler{presenceSvc: presenceSvc}
}

// Transition 参与者上下线
// POST /presence/transition
func (h *PresenceHandler) Transition(c *gin.Context) {
	var req request.TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleParamError(c, err)
		return
	}
	if err := h.presenceSvc.RecordTransition(c.Request.Context(), req.Ref(), req.UserID, *req.Online); err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, nil)
}

// StartSession 开始时间段
// POST /session/start
func (h *PresenceHandler) StartSession(c *gin.Context) {
	var req request.SessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleParamError(c, err)
		return
	}
	if err := h.presenceSvc.StartSession(c.Request.Context(), req.ChatID); err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, nil)
}

// CloseSession 所有人离开后结束时间段
// POST /session/close
func (h *PresenceHandler) CloseSession(c *gin.Context) {
	var req request.SessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleParamError(c, err)
		return
	}
	if err := h.presenceSvc.CloseSessionIfIdle(c.Request.Context(), req.ChatID); err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, nil)
}

// JoinSession 加入已有通话
// POST /session/join
// 响应: respond.JoinRespond
func (h *PresenceHandler) JoinSession(c *gin.Context) {
	var req request.LiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleParamError(c, err)
		return
	}
	result, err := h.presenceSvc.JoinExistingSession(c.Request.Context(), req.ChatID, req.Live, func() {
		zap.L().Info("新时间段已开始", zap.Int64("chat_id", req.ChatID))
	})
	if err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, respond.JoinRespond{Result: result.String()})
}

// Stale 是否存在残留记录
// GET /session/stale?chat_id=xxx
func (h *PresenceHandler) Stale(c *gin.Context) {
	var req request.ChatQuery
	if err := c.ShouldBindQuery(&req); err != nil {
		HandleParamError(c, err)
		return
	}
	stale, err := h.presenceSvc.HasStaleSession(c.Request.Context(), req.ChatID)
	if err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, respond.StaleRespond{Stale: stale})
}

// Reset 清空记录并以当前在线者开始新时间段
// POST /session/reset
func (h *PresenceHandler) Reset(c *gin.Context) {
	var req request.LiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleParamError(c, err)
		return
	}
	if err := h.presenceSvc.Reset(c.Request.Context(), req.ChatID, req.Live); err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, nil)
}

// Hole 当前时间段
// GET /session/hole?chat_id=xxx
func (h *PresenceHandler) Hole(c *gin.Context) {
	var req request.ChatQuery
	if err := c.ShouldBindQuery(&req); err != nil {
		HandleParamError(c, err)
		return
	}
	hole, err := h.presenceSvc.Hole(c.Request.Context(), req.ChatID)
	if err != nil {
		HandleError(c, err)
		return
	}
	out := respond.HoleRespond{Open: hole.Open()}
	if !hole.StartTime.IsZero() {
		out.StartTime = hole.StartTime.UnixMilli()
	}
	if !hole.EndTime.IsZero() {
		out.EndTime = hole.EndTime.UnixMilli()
	}
	HandleSuccess(c, out)
}

// Records 时间记录与在线时长
// GET /timerecord?chat_id=xxx
func (h *PresenceHandler) Records(c *gin.Context) {
	var req request.ChatQuery
	if err := c.ShouldBindQuery(&req); err != nil {
		HandleParamError(c, err)
		return
	}
	records, err := h.presenceSvc.Records(c.Request.Context(), req.ChatID)
	if err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, records)
}

// Export 导出 JSON 文件
// GET /timerecord/export?chat_id=xxx
func (h *PresenceHandler) Export(c *gin.Context) {
	var req request.ChatQuery
	if err := c.ShouldBindQuery(&req); err != nil {
		HandleParamError(c, err)
		return
	}
	data, err := h.presenceSvc.Export(c.Request.Context(), req.ChatID)
	if err != nil {
		HandleError(c, err)
		return
	}
	c.Header("Content-Disposition", "attachment; filename=time_record.json")
	c.Data(http.StatusOK, "application/json", data)
}
