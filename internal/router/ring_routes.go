// Package router 提供 HTTP 路由注册
// 本文件定义响铃、会话信息与入站消息的路由
package router

import (
	"github.com/gin-gonic/gin"
)

// RegisterRingRoutes 注册响铃路由（需要认证）
func (rt *Router) RegisterRingRoutes(rg *gin.RouterGroup) {
	ringGroup := rg.Group("/ring")
	{
		ringGroup.POST("/hangup", rt.handlers.Ring.Hangup)
		ringGroup.POST("/ended", rt.handlers.Ring.Ended)
		ringGroup.GET("/status", rt.handlers.Ring.Status)
	}
}

// RegisterChatRoutes 注册会话信息同步路由（需要认证）
func (rt *Router) RegisterChatRoutes(rg *gin.RouterGroup) {
	chatGroup := rg.Group("/chat")
	{
		chatGroup.POST("/sync", rt.handlers.Chat.Sync)
		chatGroup.POST("/active_call", rt.handlers.Chat.ActiveCall)
	}
}

// RegisterMessageRoutes 注册入站消息路由（需要认证）
func (rt *Router) RegisterMessageRoutes(rg *gin.RouterGroup) {
	messageGroup := rg.Group("/message")
	{
		messageGroup.POST("/inbound", rt.handlers.Message.Inbound)   // 投递入站消息
		messageGroup.POST("/classify", rt.handlers.Message.Classify) // 判断是否为命令消息，UI 据此隐藏
	}
}
