// Package handler 提供 HTTP 请求处理器
// 本文件定义 Handler 聚合结构和构造函数
package handler

import (
	"kama_call_ring/internal/service"

	"github.com/gin-gonic/gin"
)

// Handlers 聚合所有 Handler 实例
type Handlers struct {
	Auth     *AuthHandler
	Call     *CallHandler
	Roster   *RosterHandler
	Presence *PresenceHandler
	Ring     *RingHandler
	Chat     *ChatHandler
	Message  *MessageHandler
	Ws       gin.HandlerFunc
	Metrics  gin.HandlerFunc
}

// NewHandlers 创建并注入所有 Handler 实例
// clientKey: UI 端换取 Token 的接入密钥
func NewHandlers(svc *service.Services, clientKey string, ws, metrics gin.HandlerFunc) *Handlers {
	return &Handlers{
		Auth:     NewAuthHandler(clientKey),
		Call:     NewCallHandler(svc.Call),
		Roster:   NewRosterHandler(svc.Roster),
		Presence: NewPresenceHandler(svc.Presence),
		Ring:     NewRingHandler(svc.Ring),
		Chat:     NewChatHandler(svc.Chat),
		Message:  NewMessageHandler(svc.Inbound),
		Ws:       ws,
		Metrics:  metrics,
	}
}
