// Package router 提供 HTTP 路由注册
// 本文件定义发起通话、呼叫与命令发送的路由
package router

import (
	"github.com/gin-gonic/gin"
)

// RegisterCallRoutes 注册通话与命令路由（需要认证）
func (rt *Router) RegisterCallRoutes(rg *gin.RouterGroup) {
	callGroup := rg.Group("/call")
	{
		callGroup.POST("/start", rt.handlers.Call.StartCall) // 管理员发起通话
		callGroup.POST("/user", rt.handlers.Call.CallUser)   // 呼叫单个用户
		callGroup.POST("/all", rt.handlers.Call.CallAll)     // 呼叫全部参与者
	}
	commandGroup := rg.Group("/command")
	{
		commandGroup.POST("/refuse", rt.handlers.Call.Refuse)       // 拒绝加入
		commandGroup.POST("/exclude", rt.handlers.Call.Exclude)     // 排除用户
		commandGroup.POST("/unexclude", rt.handlers.Call.Unexclude) // 取消排除
	}
}

// RegisterRosterRoutes 注册集合查询路由（需要认证）
func (rt *Router) RegisterRosterRoutes(rg *gin.RouterGroup) {
	rosterGroup := rg.Group("/roster")
	{
		rosterGroup.GET("/exclusion", rt.handlers.Roster.Exclusion)
		rosterGroup.GET("/calling", rt.handlers.Roster.Calling)
	}
}
