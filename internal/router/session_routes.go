// Package router 提供 HTTP 路由注册
// 本文件定义参与者上下线、通话时间段与时间记录的路由
package router

import (
	"github.com/gin-gonic/gin"
)

// RegisterSessionRoutes 注册时间记录相关路由（需要认证）
func (rt *Router) RegisterSessionRoutes(rg *gin.RouterGroup) {
	rg.POST("/presence/transition", rt.handlers.Presence.Transition)

	sessionGroup := rg.Group("/session")
	{
		sessionGroup.POST("/start", rt.handlers.Presence.StartSession)
		sessionGroup.POST("/close", rt.handlers.Presence.CloseSession)
		sessionGroup.POST("/join", rt.handlers.Presence.JoinSession)
		sessionGroup.GET("/stale", rt.handlers.Presence.Stale)
		sessionGroup.POST("/reset", rt.handlers.Presence.Reset)
		sessionGroup.GET("/hole", rt.handlers.Presence.Hole)
	}
	recordGroup := rg.Group("/timerecord")
	{
		recordGroup.GET("", rt.handlers.Presence.Records)
		recordGroup.GET("/export", rt.handlers.Presence.Export)
	}
}
