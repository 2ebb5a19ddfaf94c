package interfaces

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"campusnexus/internal/pkg/logger"
	"campusnexus/internal/service/promotion/application"
	"campusnexus/internal/service/promotion/domain"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool { // 看板在内网使用，允许所有跨域
		return true
	},
}

// DashboardMessage 是推送给看板的消息
type DashboardMessage struct {
	Type string                         `json:"type"`
	Data *application.RecommendResponse `json:"data"`
}

// DashboardHub 维护所有看板连接，并在目录变更或定时刷新时推送最新推荐
type DashboardHub struct {
	service    *application.InsightService
	clients    map[string]*Client // 以连接 id 为 key
	register   chan *Client
	unregister chan *Client
	refresh    chan struct{}
	done       chan struct{} // Run 返回后关闭
	interval   time.Duration
	lock       sync.RWMutex
}

// NewDashboardHub 创建看板推送中心，interval <= 0 时只在目录变更时推送
func NewDashboardHub(service *application.InsightService, interval time.Duration) *DashboardHub {
	return &DashboardHub{
		service:    service,
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		refresh:    make(chan struct{}, 1),
		done:       make(chan struct{}),
		interval:   interval,
	}
}

// Run 处理连接注册和推送，直到 ctx 取消
func (h *DashboardHub) Run(ctx context.Context) error {
	defer close(h.done)
	var tick <-chan time.Time
	if h.interval > 0 {
		ticker := time.NewTicker(h.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return nil
		case client := <-h.register:
			h.lock.Lock()
			h.clients[client.id] = client
			h.lock.Unlock()
			log.Debug().Str("client", client.id).Str("goal", string(client.goal)).Msg("Dashboard client registered")
			h.push(ctx, []*Client{client})
		case client := <-h.unregister:
			h.lock.Lock()
			if _, ok := h.clients[client.id]; ok {
				delete(h.clients, client.id)
				close(client.send)
			}
			h.lock.Unlock()
			log.Debug().Str("client", client.id).Msg("Dashboard client unregistered")
		case <-h.refresh:
			h.push(ctx, h.snapshot())
		case <-tick:
			h.push(ctx, h.snapshot())
		}
	}
}

// Refresh 请求一次全量推送，可在任意 goroutine 中调用，不会阻塞
func (h *DashboardHub) Refresh() {
	select {
	case h.refresh <- struct{}{}:
	default:
	}
}

// ClientCount 返回当前连接数
func (h *DashboardHub) ClientCount() int {
	h.lock.RLock()
	defer h.lock.RUnlock()
	return len(h.clients)
}

// ServeWs 把 HTTP 请求升级为 WebSocket 并注册到 Hub
func (h *DashboardHub) ServeWs(w http.ResponseWriter, r *http.Request) {
	goal, err := domain.ParseCampaignGoal(r.URL.Query().Get("goal"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Ctx(r.Context()).Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := &Client{hub: h, conn: conn, send: make(chan []byte, 16), id: uuid.NewString(), goal: goal}
	// Hub 可能正在推送或已经退出，不能无限期阻塞请求
	select {
	case h.register <- client:
	case <-h.done:
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
		conn.Close()
		return
	case <-r.Context().Done():
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

func (h *DashboardHub) snapshot() []*Client {
	h.lock.RLock()
	defer h.lock.RUnlock()
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	return clients
}

// push 每个目标只计算一次，再分发给订阅该目标的连接
func (h *DashboardHub) push(ctx context.Context, clients []*Client) {
	payloads := make(map[domain.CampaignGoal][]byte)
	for _, c := range clients {
		payload, ok := payloads[c.goal]
		if !ok {
			resp, err := h.service.Recommend(ctx, application.RecommendRequest{Goal: string(c.goal)})
			if err != nil {
				log.Error().Err(err).Str("goal", string(c.goal)).Msg("dashboard refresh failed")
				continue
			}
			payload, err = json.Marshal(DashboardMessage{Type: "recommendations", Data: resp})
			if err != nil {
				continue
			}
			payloads[c.goal] = payload
		}

		h.lock.RLock()
		_, alive := h.clients[c.id]
		if alive {
			select {
			case c.send <- payload:
			default:
				// 发送缓冲已满，丢弃这次推送，下一轮再补上
				log.Warn().Str("client", c.id).Msg("dashboard client is too slow, dropping update")
			}
		}
		h.lock.RUnlock()
	}
}

func (h *DashboardHub) closeAll() {
	h.lock.Lock()
	defer h.lock.Unlock()
	for id, c := range h.clients {
		close(c.send)
		delete(h.clients, id)
	}
}

// Client 是一个看板 WebSocket 连接
type Client struct {
	hub  *DashboardHub
	conn *websocket.Conn
	send chan []byte
	id   string
	goal domain.CampaignGoal
}

// writePump 把 send 中的消息写入连接，并定期发送 ping
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump 只处理 pong 和关闭，看板不会发送业务消息
func (c *Client) readPump() {
	defer func() {
		// Hub 已经退出时不再注销
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
