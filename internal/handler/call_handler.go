// Package handler 提供 HTTP 请求处理器
// 本文件处理发起通话、呼叫与命令发送
package handler

import (
	"kama_call_ring/internal/dto/request"
	"kama_call_ring/internal/dto/respond"
	"kama_call_ring/internal/service"
	"kama_call_ring/internal/service/callsvc"

	"github.com/gin-gonic/gin"
)

// CallHandler 通话请求处理器
type CallHandler struct {
	callSvc service.CallService
}

// NewCallHandler 创建通话处理器实例
func NewCallHandler(callSvc service.CallService) *CallHandler {
	return &CallHandler{callSvc: callSvc}
}

// StartCall 管理员发起通话
// POST /call/start
func (h *CallHandler) StartCall(c *gin.Context) {
	var req request.StartCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleParamError(c, err)
		return
	}
	in := callsvc.StartInput{AdminIDs: req.AdminIDs, ParticipantIDs: req.ParticipantIDs}
	if err := h.callSvc.StartCall(c.Request.Context(), req.Ref(), in); err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, nil)
}

// CallUser 呼叫单个用户
// POST /call/user
// 响应: respond.CallingEntryRespond
func (h *CallHandler) CallUser(c *gin.Context) {
	var req request.CallUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleParamError(c, err)
		return
	}
	entry, err := h.callSvc.CallUser(c.Request.Context(), req.Ref(), req.UserID)
	if err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, respond.CallingEntryRespond{UserID: entry.UserID, CalledAt: entry.CalledAt.UnixMilli()})
}

// CallAll 呼叫全部参与者
// POST /call/all
// 响应: respond.CallAllRespond
func (h *CallHandler) CallAll(c *gin.Context) {
	var req request.CallAllRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleParamError(c, err)
		return
	}
	added, err := h.callSvc.CallAll(c.Request.Context(), req.Ref(), req.ParticipantIDs)
	if err != nil {
		HandleError(c, err)
		return
	}
	if added == nil {
		added = []int64{}
	}
	HandleSuccess(c, respond.CallAllRespond{Added: added})
}

// Refuse 拒绝加入
// POST /command/refuse
func (h *CallHandler) Refuse(c *gin.Context) {
	var req request.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleParamError(c, err)
		return
	}
	if err := h.callSvc.Refuse(c.Request.Context(), req.Ref()); err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, nil)
}

// Exclude 排除用户
// POST /command/exclude
func (h *CallHandler) Exclude(c *gin.Context) {
	var req request.ExcludeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleParamError(c, err)
		return
	}
	if err := h.callSvc.SendExclude(c.Request.Context(), req.Ref(), req.UserIDs); err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, nil)
}

// Unexclude 取消排除
// POST /command/unexclude
func (h *CallHandler) Unexclude(c *gin.Context) {
	var req request.UnexcludeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleParamError(c, err)
		return
	}
	if err := h.callSvc.SendUnexclude(c.Request.Context(), req.Ref(), req.UserID); err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, nil)
}
