package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"kama_call_ring/internal/model"
	"kama_call_ring/internal/service/ringing"
	"kama_call_ring/pkg/constants"
	"kama_call_ring/pkg/errorx"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const writeWait = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  2048,
	WriteBufferSize: 2048,
	// 检查连接的Origin头
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client 一个 UI 连接
type Client struct {
	ID   string
	Conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *Client) close() {
	c.once.Do(func() {
		close(c.send)
		_ = c.Conn.Close()
	})
}

// Hub 管理 UI 连接，同时充当响铃协调器的平台与通话会话
type Hub struct {
	mu       sync.RWMutex
	clients  map[string]*Client
	state    PlatformState
	active   bool
	chatID   int64
	listener SessionListener
}

// NewHub 初始状态：电话空闲、通知开启、应用在后台
func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		state:   PlatformState{TelephonyIdle: true, NotificationsEnabled: true},
	}
}

// SetSessionListener 协调器依赖 Hub，只能在构造后注入
func (h *Hub) SetSessionListener(l SessionListener) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.listener = l
}

// ServeWS 升级为 WebSocket 连接
func (h *Hub) ServeWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		zap.L().Error("ws upgrade failed", zap.Error(err))
		return
	}
	client := &Client{
		ID:   uuid.NewString(),
		Conn: conn,
		send: make(chan []byte, constants.CHANNEL_SIZE),
	}
	h.mu.Lock()
	h.clients[client.ID] = client
	h.mu.Unlock()
	zap.L().Info("ws连接成功", zap.String("client_id", client.ID), zap.String("ui_client", c.GetString("client_id")))

	go h.write(client)
	go h.read(client)
}

// read 读取 UI 上报，连接断开后注销
func (h *Hub) read(c *Client) {
	defer h.unregister(c)
	for {
		_, data, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				zap.L().Warn("ws read failed", zap.String("client_id", c.ID), zap.Error(err))
			}
			return
		}
		var r Report
		if err := json.Unmarshal(data, &r); err != nil {
			zap.L().Warn("忽略无法解析的上报", zap.String("client_id", c.ID), zap.Error(err))
			continue
		}
		h.HandleReport(r)
	}
}

// write 把事件写给 UI
func (h *Hub) write(c *Client) {
	for msg := range c.send {
		_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.Conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			zap.L().Error("ws write failed", zap.String("client_id", c.ID), zap.Error(err))
			return
		}
	}
	_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// unregister 最后一个连接断开时，未结束的响铃会话随之结束
func (h *Hub) unregister(c *Client) {
	var ended SessionListener
	var endedChat int64
	h.mu.Lock()
	if _, ok := h.clients[c.ID]; ok {
		delete(h.clients, c.ID)
		if len(h.clients) == 0 {
			h.state.Foreground = false
			h.state.AppRunning = false
			if h.active {
				endedChat = h.chatID
				h.active = false
				h.chatID = 0
				ended = h.listener
			}
		}
	}
	h.mu.Unlock()
	c.close()
	zap.L().Info("ws连接断开", zap.String("client_id", c.ID))
	if endedChat != 0 {
		zap.L().Info("UI 全部断开，结束响铃会话", zap.Int64("chat_id", endedChat))
	}
	if ended != nil {
		ended.OnSessionEnded()
	}
}

// HandleReport 处理一条 UI 上报
func (h *Hub) HandleReport(r Report) {
	switch r.Type {
	case ReportPlatformState:
		if r.State == nil {
			return
		}
		h.mu.Lock()
		h.state = *r.State
		h.mu.Unlock()
	case ReportSessionEnded:
		h.mu.Lock()
		h.active = false
		h.chatID = 0
		l := h.listener
		h.mu.Unlock()
		if l != nil {
			l.OnSessionEnded()
		}
	default:
		zap.L().Warn("未知的上报类型", zap.String("type", r.Type))
	}
}

// Clients 当前连接数
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// broadcast 队列满的连接丢弃该事件
func (h *Hub) broadcast(e Event) int {
	data, err := json.Marshal(e)
	if err != nil {
		zap.L().Error("事件编码失败", zap.String("type", e.Type), zap.Error(err))
		return 0
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, c := range h.clients {
		select {
		case c.send <- data:
			n++
		default:
			zap.L().Warn("ws 发送队列已满，丢弃事件", zap.String("client_id", c.ID), zap.String("type", e.Type))
		}
	}
	return n
}

// Close 断开全部连接
func (h *Hub) Close() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[string]*Client)
	h.mu.Unlock()
	for _, c := range clients {
		c.close()
	}
}

// ==================== ringing.Platform ====================

func (h *Hub) TelephonyIdle() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state.TelephonyIdle
}

func (h *Hub) NotificationsEnabled() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state.NotificationsEnabled
}

func (h *Hub) Foreground() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state.Foreground
}

// AppRunning 推送副本只在应用未运行时处理
func (h *Hub) AppRunning() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state.AppRunning
}

// State 当前平台状态
func (h *Hub) State() PlatformState {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state
}

// ==================== ringing.CallSession ====================

// Active 是否有通话会话
func (h *Hub) Active() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.active
}

// Start 通知 UI 开始响铃，没有 UI 连接时失败
func (h *Hub) Start(_ context.Context, req ringing.StartRequest) error {
	if h.broadcast(Event{Type: EventRingStart, ChatID: req.ChatID, UserID: req.SenderID, Ring: &req}) == 0 {
		return errorx.Newf(errorx.CodeServerBusy, "no ui client to ring for chat %d", req.ChatID)
	}
	h.mu.Lock()
	h.active = true
	h.chatID = req.ChatID
	h.mu.Unlock()
	return nil
}

// EndRinging 通知 UI 停止响铃
func (h *Hub) EndRinging(_ context.Context, chatID int64) error {
	h.mu.Lock()
	if h.chatID == chatID {
		h.active = false
		h.chatID = 0
	}
	h.mu.Unlock()
	h.broadcast(Event{Type: EventRingEnd, ChatID: chatID})
	return nil
}

// ==================== 其余协作者 ====================

// SuppressOnline 响铃发生在后台时，请 UI 不要广播在线状态
func (h *Hub) SuppressOnline(_ context.Context, chatID int64) error {
	h.broadcast(Event{Type: EventPresenceSuppressed, ChatID: chatID})
	return nil
}

// Refused 通知 UI 有人拒绝加入
func (h *Hub) Refused(_ context.Context, chat model.ChatRef, userID int64) {
	h.broadcast(Event{Type: EventRefuse, ChatID: chat.ID, UserID: userID})
}
