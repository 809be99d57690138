package middleware

import (
	"errors"

	"github.com/gin-gonic/gin"

	"sudooom.social.client/internal/client"
	"sudooom.social.client/internal/session"
	appErrors "sudooom.social.client/pkg/errors"
	"sudooom.social.client/pkg/response"
)

const (
	ctxUserID  = "user_id"
	ctxToken   = "session_token"
	ctxSession = "client_session"
)

// SessionAuth 从会话 cookie 解析用户
func SessionAuth(decoder *session.Decoder, cookieName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := c.Cookie(cookieName)
		if err != nil || token == "" {
			response.AbortWithError(c, appErrors.ErrSessionMissing)
			return
		}

		claims, err := decoder.Decode(token)
		if err != nil {
			switch {
			case errors.Is(err, session.ErrTokenExpired):
				response.AbortWithError(c, appErrors.ErrSessionExpired)
			default:
				response.AbortWithError(c, appErrors.ErrSessionInvalid.Wrap(err))
			}
			return
		}

		c.Set(ctxUserID, claims.Identity())
		c.Set(ctxToken, token)
		c.Next()
	}
}

// ClientSession 获取或创建当前用户的会话；需在 SessionAuth 之后
func ClientSession(hub *client.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		s, err := hub.Acquire(c.Request.Context(), GetUserID(c), GetToken(c))
		if err != nil {
			response.AbortWithError(c, err)
			return
		}
		c.Set(ctxSession, s)
		c.Next()
	}
}

// GetUserID 从 context 获取 user_id
func GetUserID(c *gin.Context) string {
	return c.GetString(ctxUserID)
}

// GetToken 从 context 获取会话凭证
func GetToken(c *gin.Context) string {
	return c.GetString(ctxToken)
}

// GetSession 从 context 获取客户端会话
func GetSession(c *gin.Context) *client.Session {
	v, exists := c.Get(ctxSession)
	if !exists {
		return nil
	}
	return v.(*client.Session)
}
