package notify

import (
	"net/http"
	"net/url"
	"strings"

	"CaseForAI/backend/go/internal/auth"
	"CaseForAI/backend/go/pkg/httpmiddleware"
	"CaseForAI/backend/go/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// Handler 把已认证的请求升级为 websocket 并注册到 Hub。
type Handler struct {
	hub      *Hub
	logger   *logger.Logger
	upgrader websocket.Upgrader
}

// NewHandler 创建 websocket 处理器。allowedOrigin 为空时只接受同源请求。
func NewHandler(hub *Hub, allowedOrigin string, log *logger.Logger) *Handler {
	return &Handler{
		hub:    hub,
		logger: log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				if allowedOrigin != "" && strings.EqualFold(strings.TrimRight(allowedOrigin, "/"), origin) {
					return true
				}
				u, err := url.Parse(origin)
				return err == nil && strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

// ServeWS 处理 GET /ws。
func (h *Handler) ServeWS(c *gin.Context) {
	userID, ok := auth.UserID(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "请先登录"})
		return
	}
	log := httpmiddleware.LoggerFrom(c, h.logger)

	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.WithErr(err).Warn("Failed to upgrade WebSocket connection")
		return
	}
	remove := h.hub.Add(userID, ws)
	log.Debug("WebSocket connection added")

	go func() {
		defer remove()
		// 客户端不会发送业务消息，读循环只用来感知断开
		for {
			if _, _, err := ws.NextReader(); err != nil {
				return
			}
		}
	}()
}
