package broadcast

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/SlpAus/style-off-backend/internal/platform/database"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	// writeWait 是向客户端写入一条消息的超时
	writeWait = 10 * time.Second
	// pongWait 是等待客户端pong响应的超时
	pongWait = 60 * time.Second
	// pingPeriod 是向客户端发送ping的间隔，必须小于pongWait
	pingPeriod = (pongWait * 9) / 10
	// sendBufferSize 是每个客户端的发送缓冲区大小
	sendBufferSize = 64
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// CORS策略已在gin中间件层收紧，这里放行升级请求
		return true
	},
}

// wsClient 表示一个已升级的WebSocket订阅者连接。
type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// sessionChannel 管理单个会话频道的所有订阅者，
// 以及从Redis频道到这些订阅者的转发Goroutine。
type sessionChannel struct {
	sessionID string
	clients   map[*wsClient]bool
	stop      chan struct{}
}

// Hub 负责把各会话的Redis发布/订阅频道转发给WebSocket客户端。
// 某个会话的第一个订阅者到来时才建立Redis订阅，最后一个离开时拆除。
type Hub struct {
	mu       sync.Mutex
	channels map[string]*sessionChannel
}

// globalHub 是进程内唯一的转发中枢实例。
var globalHub = &Hub{channels: make(map[string]*sessionChannel)}

// ServeWS 处理 GET /api/sessions/:id/ws，把连接升级为WebSocket并挂入会话频道。
func ServeWS(c *gin.Context) {
	sessionID := c.Param("id")
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "缺少会话ID"})
		return
	}

	conn, err := wsUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		fmt.Printf("WebSocket升级失败: %v\n", err)
		return
	}

	client := &wsClient{conn: conn, send: make(chan []byte, sendBufferSize)}
	globalHub.register(sessionID, client)

	go client.writePump()
	go client.readPump(func() {
		globalHub.unregister(sessionID, client)
	})
}

// register 把客户端挂入会话频道，必要时启动Redis转发循环。
func (h *Hub) register(sessionID string, client *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch, ok := h.channels[sessionID]
	if !ok {
		ch = &sessionChannel{
			sessionID: sessionID,
			clients:   make(map[*wsClient]bool),
			stop:      make(chan struct{}),
		}
		h.channels[sessionID] = ch
		go h.relayLoop(ch)
	}
	ch.clients[client] = true
	fmt.Printf("会话 %s 新增WebSocket订阅者，当前共 %d 个。\n", sessionID, len(ch.clients))
}

// unregister 把客户端从会话频道移除；最后一个订阅者离开时拆除转发循环。
func (h *Hub) unregister(sessionID string, client *wsClient) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch, ok := h.channels[sessionID]
	if !ok {
		return
	}
	if _, exists := ch.clients[client]; !exists {
		return
	}
	delete(ch.clients, client)
	close(client.send)

	if len(ch.clients) == 0 {
		close(ch.stop)
		delete(h.channels, sessionID)
		fmt.Printf("会话 %s 已无订阅者，拆除频道转发。\n", sessionID)
	}
}

// relayLoop 订阅会话的Redis频道，并把收到的消息扇出给所有WebSocket客户端。
func (h *Hub) relayLoop(ch *sessionChannel) {
	if database.RDB == nil {
		fmt.Println("警告: Redis未初始化，WebSocket频道转发不可用。")
		return
	}

	sub := database.RDB.Subscribe(database.Ctx, ChannelName(ch.sessionID))
	defer sub.Close()
	msgChan := sub.Channel()

	for {
		select {
		case <-ch.stop:
			return
		case msg, ok := <-msgChan:
			if !ok {
				return
			}
			h.fanOut(ch, []byte(msg.Payload))
		}
	}
}

// fanOut 把一条消息投递给频道内的所有客户端。
// 发送缓冲区已满的客户端被视为掉队者，直接断开，等待其重连后全量拉取。
func (h *Hub) fanOut(ch *sessionChannel, data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range ch.clients {
		select {
		case client.send <- data:
		default:
			delete(ch.clients, client)
			close(client.send)
			client.conn.Close()
		}
	}

	// 掉队者可能是最后一个订阅者：它随后的unregister在clients里已找不到自己，
	// 走不到拆除分支，所以这里要自行拆除空频道，否则转发循环和Redis订阅会泄漏
	if len(ch.clients) == 0 && h.channels[ch.sessionID] == ch {
		close(ch.stop)
		delete(h.channels, ch.sessionID)
		fmt.Printf("会话 %s 已无订阅者，拆除频道转发。\n", ch.sessionID)
	}
}

// writePump 把发送缓冲中的消息写入连接，并定期发送ping保活。
func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump 消费客户端发来的消息。频道是单向广播，入站内容被直接丢弃，
// 读取循环只用于感知连接关闭和维持pong超时。
func (c *wsClient) readPump(onClose func()) {
	defer func() {
		onClose()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
