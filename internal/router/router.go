// Package router 提供 HTTP 路由注册
// 本文件是路由注册的入口，聚合所有子模块的路由
package router

import (
	"kama_call_ring/internal/handler"
	"kama_call_ring/internal/infrastructure/middleware"

	"github.com/gin-gonic/gin"
)

// Router 路由管理器，持有 Handler 聚合
type Router struct {
	handlers *handler.Handlers
}

// NewRouter 创建路由管理器
func NewRouter(handlers *handler.Handlers) *Router {
	return &Router{handlers: handlers}
}

// RegisterRoutes 注册所有路由
// /metrics 不需要认证；/ws 与 /api/v1 下除换取 Token 外都需要 JWT
func (rt *Router) RegisterRoutes(r *gin.Engine) {
	r.GET("/ws", middleware.JWTAuth(), rt.handlers.Ws)
	r.GET("/metrics", rt.handlers.Metrics)

	v1 := r.Group("/api/v1")
	rt.RegisterAuthRoutes(v1)

	authed := v1.Group("")
	authed.Use(middleware.JWTAuth())
	rt.RegisterCallRoutes(authed)
	rt.RegisterRosterRoutes(authed)
	rt.RegisterSessionRoutes(authed)
	rt.RegisterRingRoutes(authed)
	rt.RegisterChatRoutes(authed)
	rt.RegisterMessageRoutes(authed)
}
