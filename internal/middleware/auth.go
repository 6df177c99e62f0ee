// Package middleware 提供了处理 HTTP 请求的中间件。
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"evidence-rag-go/internal/model"
	"evidence-rag-go/pkg/log"
	"evidence-rag-go/pkg/token"
)

// 上下文中存放调用方身份的键。
const (
	ContextUserID = "userID"
	ContextClaims = "claims"
)

// AuthMiddleware 要求请求携带有效的 Bearer token，并把用户 ID 存入上下文。
func AuthMiddleware(jwtManager *token.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "请求未包含授权头", "data": nil})
			return
		}
		if !authenticate(c, jwtManager, authHeader) {
			return
		}
		c.Next()
	}
}

// OptionalAuth 允许匿名访问；携带了授权头则必须有效。匿名请求的用户 ID 为 0。
func OptionalAuth(jwtManager *token.JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.Set(ContextUserID, model.AnonymousUserID)
			c.Next()
			return
		}
		if !authenticate(c, jwtManager, authHeader) {
			return
		}
		c.Next()
	}
}

func authenticate(c *gin.Context, jwtManager *token.JWTManager, authHeader string) bool {
	const bearerPrefix = "Bearer "
	if !strings.HasPrefix(authHeader, bearerPrefix) {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "无效的授权头格式", "data": nil})
		return false
	}
	claims, err := jwtManager.VerifyToken(strings.TrimPrefix(authHeader, bearerPrefix))
	if err != nil {
		log.Warnf("[Auth] token 校验失败: %v", err)
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "无效或已过期的 token", "data": nil})
		return false
	}
	c.Set(ContextUserID, claims.UserID)
	c.Set(ContextClaims, claims)
	return true
}

// UserID 返回上下文中的调用方用户 ID，未认证时为 0。
func UserID(c *gin.Context) uint {
	if v, ok := c.Get(ContextUserID); ok {
		if id, ok := v.(uint); ok {
			return id
		}
	}
	return model.AnonymousUserID
}
