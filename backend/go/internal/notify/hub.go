package notify

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

// conn 是一条 websocket 连接，写操作需要串行化。
type conn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *conn) write(message []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(websocket.TextMessage, message)
}

// Hub 管理每个用户的 websocket 连接，同一用户可以同时打开多个页面。
type Hub struct {
	connections map[uint]map[*conn]struct{}
	mu          sync.RWMutex
}

// NewHub 创建一个新的 Hub。
func NewHub() *Hub {
	return &Hub{connections: make(map[uint]map[*conn]struct{})}
}

// Add 为用户注册一条连接，返回的函数用于注销并关闭该连接。
func (h *Hub) Add(userID uint, ws *websocket.Conn) (remove func()) {
	c := &conn{ws: ws}
	h.mu.Lock()
	if h.connections[userID] == nil {
		h.connections[userID] = make(map[*conn]struct{})
	}
	h.connections[userID][c] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { h.remove(userID, c) })
	}
}

func (h *Hub) remove(userID uint, c *conn) {
	h.mu.Lock()
	if set, ok := h.connections[userID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.connections, userID)
		}
	}
	h.mu.Unlock()
	c.ws.Close()
}

// Connected 返回用户当前的连接数。
func (h *Hub) Connected(userID uint) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections[userID])
}

// Send 把消息发给用户的所有连接，返回成功送达的连接数。没有连接的用户直接跳过。
func (h *Hub) Send(userID uint, message []byte) int {
	h.mu.RLock()
	targets := make([]*conn, 0, len(h.connections[userID]))
	for c := range h.connections[userID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, c := range targets {
		if err := c.write(message); err != nil {
			h.remove(userID, c)
			continue
		}
		delivered++
	}
	return delivered
}

// CloseAll 关闭所有连接，服务退出时调用。
func (h *Hub) CloseAll() {
	h.mu.Lock()
	all := h.connections
	h.connections = make(map[uint]map[*conn]struct{})
	h.mu.Unlock()
	for _, set := range all {
		for c := range set {
			c.ws.Close()
		}
	}
}
