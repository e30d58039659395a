package middleware

import (
	"net/http"
	"strings"

	"kama_call_ring/pkg/errorx"
	"kama_call_ring/pkg/util/jwt"

	"github.com/gin-gonic/gin"
)

// ContextClientID 上下文中 UI 端标识的键
const ContextClientID = "client_id"

// JWTAuth JWT 认证中间件
// 验证 Access Token 并将 UI 端标识存入上下文
// 浏览器建立 WebSocket 时无法设置 Header，此时从查询参数 token 读取
func JWTAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		// 1. 从 Header 获取 Token，没有时读取查询参数
		authHeader := c.GetHeader("Authorization")
		tokenString := c.Query("token")
		if authHeader == "" && tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code": errorx.CodeUnauthorized,
				"msg":  "缺少 Access Token",
			})
			return
		}

		// 2. 解析 Bearer Token
		if authHeader != "" {
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"code": errorx.CodeUnauthorized,
					"msg":  "Token 格式错误，请使用 Bearer Token",
				})
				return
			}
			tokenString = parts[1]
		}

		// 3. 验证 Token
		claims, err := jwt.ParseToken(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code": errorx.CodeUnauthorized,
				"msg":  "Token 已过期或无效，请重新换取",
			})
			return
		}

		// 4. 验证是否为 Access Token
		if claims.Subject != "access_token" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code": errorx.CodeUnauthorized,
				"msg":  "请使用 Access Token 访问此接口",
			})
			return
		}

		// 5. 将 UI 端标识存入上下文
		c.Set(ContextClientID, claims.ClientID)
		c.Next()
	}
}
