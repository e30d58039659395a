// Package handler 提供 HTTP 请求处理器
// 本文件处理 UI 端接入认证
package handler

import (
	"crypto/subtle"

	"kama_call_ring/internal/dto/request"
	"kama_call_ring/internal/dto/respond"
	"kama_call_ring/pkg/errorx"
	"kama_call_ring/pkg/util/jwt"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AuthHandler 认证请求处理器
type AuthHandler struct {
	clientKey string
}

// NewAuthHandler 未配置接入密钥时拒绝所有换取请求
func NewAuthHandler(clientKey string) *AuthHandler {
	return &AuthHandler{clientKey: clientKey}
}

// IssueToken 换取 Access Token
// POST /auth/token
// 请求体: request.TokenRequest
// 响应: respond.TokenRespond
func (h *AuthHandler) IssueToken(c *gin.Context) {
	var req request.TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		HandleParamError(c, err)
		return
	}
	if h.clientKey == "" || subtle.ConstantTimeCompare([]byte(req.ClientKey), []byte(h.clientKey)) != 1 {
		zap.L().Warn("接入密钥错误", zap.String("client_id", req.ClientID))
		HandleError(c, errorx.New(errorx.CodeUnauthorized, "接入密钥错误"))
		return
	}
	token, err := jwt.GenerateAccessToken(req.ClientID)
	if err != nil {
		HandleError(c, err)
		return
	}
	HandleSuccess(c, respond.TokenRespond{AccessToken: token})
}
