package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"CaseForAI/backend/go/internal/apperr"

	"github.com/gin-gonic/gin"
)

// ContextUserID 是 gin 上下文中保存当前用户 ID 的键。
const ContextUserID = "userID"

// PermissionChecker 判断用户是否拥有某项权限，由 user_service 实现。
type PermissionChecker interface {
	HasPermission(ctx context.Context, userID uint, permission string) (bool, error)
}

// CookieOptions 控制 session cookie 的属性。
type CookieOptions struct {
	Name   string
	Domain string
	Secure bool
	TTL    time.Duration
}

// Authenticator 从 session cookie（jwt 模式下也接受 Bearer token）中解析当前用户。
type Authenticator struct {
	sessions SessionStore
	tokens   *Tokens // 为 nil 时不接受 Bearer token
	checker  PermissionChecker
	cookie   CookieOptions
}

// NewAuthenticator 创建一个 Authenticator。tokens 仅在 jwt 模式下传入。
func NewAuthenticator(sessions SessionStore, tokens *Tokens, checker PermissionChecker, cookie CookieOptions) *Authenticator {
	return &Authenticator{sessions: sessions, tokens: tokens, checker: checker, cookie: cookie}
}

// Required 要求请求已登录，否则返回 401。
func (a *Authenticator) Required() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := a.resolve(c)
		if err != nil {
			apperr.Respond(c, err)
			return
		}
		c.Set(ContextUserID, userID)
		c.Next()
	}
}

// RequirePermission 要求当前用户拥有指定权限，否则返回 403。必须放在 Required 之后。
func (a *Authenticator) RequirePermission(permission string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := UserID(c)
		if !ok {
			apperr.Respond(c, apperr.NewUnauthorized("请先登录"))
			return
		}
		allowed, err := a.checker.HasPermission(c.Request.Context(), userID, permission)
		if err != nil {
			apperr.Respond(c, err)
			return
		}
		if !allowed {
			apperr.Respond(c, apperr.NewForbidden("权限不足"))
			return
		}
		c.Next()
	}
}

func (a *Authenticator) resolve(c *gin.Context) (uint, error) {
	if a.tokens != nil {
		if header := c.GetHeader("Authorization"); header != "" {
			// 我们期望的格式是 "Bearer <token>"
			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				return 0, apperr.NewUnauthorized("授权标头格式不正确")
			}
			userID, err := a.tokens.ParseUser(parts[1])
			if err != nil {
				return 0, apperr.Wrap(apperr.Unauthorized, err, "无效的 token")
			}
			return userID, nil
		}
	}
	sid, err := c.Cookie(a.cookie.Name)
	if err != nil || sid == "" {
		return 0, apperr.NewUnauthorized("请先登录")
	}
	userID, err := a.sessions.Resolve(c.Request.Context(), sid)
	if errors.Is(err, ErrNoSession) {
		return 0, apperr.NewUnauthorized("登录已过期，请重新登录")
	}
	if err != nil {
		return 0, err
	}
	return userID, nil
}

// UserID 返回 Required 写入的当前用户 ID。
func UserID(c *gin.Context) (uint, bool) {
	v, ok := c.Get(ContextUserID)
	if !ok {
		return 0, false
	}
	id, ok := v.(uint)
	return id, ok && id > 0
}

// SessionID 返回请求携带的 session cookie 值。
func (a *Authenticator) SessionID(c *gin.Context) string {
	sid, _ := c.Cookie(a.cookie.Name)
	return sid
}

// SetSessionCookie 写入 HttpOnly 的 session cookie。
func (a *Authenticator) SetSessionCookie(c *gin.Context, sessionID string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(a.cookie.Name, sessionID, int(a.cookie.TTL.Seconds()), "/", a.cookie.Domain, a.cookie.Secure, true)
}

// ClearSessionCookie 让浏览器删除 session cookie。
func (a *Authenticator) ClearSessionCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(a.cookie.Name, "", -1, "/", a.cookie.Domain, a.cookie.Secure, true)
}

// Sessions 返回底层的 session 存储。
func (a *Authenticator) Sessions() SessionStore {
	return a.sessions
}

// Tokens 返回 jwt 模式下的 token 签发器，session 模式为 nil。
func (a *Authenticator) Tokens() *Tokens {
	return a.tokens
}
