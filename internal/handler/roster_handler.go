// Package handler 提供 HTTP 请求处理器
// 本文件查询排除集合与呼叫集合
package handler

import (
	"kama_call_ring/internal/dto/request"
	"kama_call_ring/internal/dto/respond"
	"kama_call_ring/internal/service"

	"github.com/gin-gonic/gin"
)

// RosterHandler 集合查询处理器
type RosterHandler struct {
	rosterSvc service.RosterService
}

// NewRosterHandler 创建集合查询处理器实例
func NewRosterHandler(rosterSvc service.RosterService) *RosterHandler {
	return &RosterHandler{rosterSvc: rosterSvc}
}

// Exclusion 排除集合
// GET /roster/exclusion?chat_id=xxx
func (h *RosterHandler) Exclusion(c *gin.Context) {
	var req request.ChatQuery
	if err := c.ShouldBindQuery(&req); err != nil {
		HandleParamError(c, err)
		return
	}
	ids, err := h.rosterSvc.ExcludedUsers(c.Request.Context(), req.ChatID)
	if err != nil {
		HandleError(c, err)
		return
	}
	if ids == nil {
		ids = []int64{}
	}
	HandleSuccess(c, respond.ExclusionRespond{ChatID: req.ChatID, UserIDs: ids})
}

// Calling 呼叫集合
// GET /roster/calling?chat_id=xxx
func (h *RosterHandler) Calling(c *gin.Context) {
	var req request.ChatQuery
	if err := c.ShouldBindQuery(&req); err != nil {
		HandleParamError(c, err)
		return
	}
	entries, err := h.rosterSvc.CallingEntries(c.Request.Context(), req.ChatID)
	if err != nil {
		HandleError(c, err)
		return
	}
	out := respond.CallingRespond{ChatID: req.ChatID, Entries: make([]respond.CallingEntryRespond, 0, len(entries))}
	for _, e := range entries {
		out.Entries = append(out.Entries, respond.CallingEntryRespond{UserID: e.UserID, CalledAt: e.CalledAt.UnixMilli()})
	}
	HandleSuccess(c, out)
}
