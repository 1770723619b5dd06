// Package server 认证状态 WebSocket 网关
//
// 客户端通过 GET /ws/auth 订阅认证状态变化。连接建立后立即收到
// 一帧当前身份（identity | null），之后每个登录/登出事件推送一帧。
package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"foodnextdoor/internal/apiserver/auth"
	"foodnextdoor/internal/eventbus"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 45 * time.Second
)

// upgrader WebSocket 升级器配置
//
// CheckOrigin 当前允许所有来源，生产环境应限制。
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// AuthGateway 认证状态 WebSocket 网关
type AuthGateway struct {
	bus     eventbus.AuthEventBus
	authCfg auth.Config
	metrics *Metrics

	mu      sync.RWMutex
	clients map[*websocket.Conn]bool
}

// NewAuthGateway 创建认证状态网关实例
func NewAuthGateway(bus eventbus.AuthEventBus, authCfg auth.Config, metrics *Metrics) *AuthGateway {
	return &AuthGateway{
		bus:     bus,
		authCfg: authCfg,
		metrics: metrics,
		clients: make(map[*websocket.Conn]bool),
	}
}

// wsMessage 推送消息格式
//
//	身份帧:  {"type": "auth_state", "identity": {...} | null}
//	事件帧:  {"type": "auth_event", "identity": null, "event": {...}}
type wsMessage struct {
	Type     string              `json:"type"`
	Identity *wsIdentity         `json:"identity"`
	Event    *eventbus.AuthEvent `json:"event,omitempty"`
}

type wsIdentity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role,omitempty"`
}

// HandleWebSocket 处理 WebSocket 连接请求
//
// 路由: GET /ws/auth
//
// 查询参数：
//   - token: 访问令牌（可选）。未带或无效时连接仍被接受，
//     初始身份帧为 null（未登录语义）。
func (g *AuthGateway) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	// 身份从 query token 解析，header 在浏览器 WebSocket API 中不可用
	var identity *wsIdentity
	if token := r.URL.Query().Get("token"); token != "" && g.authCfg.Enabled() {
		if claims, err := auth.ParseToken(g.authCfg, token); err == nil && claims.Type == "access" {
			identity = &wsIdentity{ID: claims.Subject, Email: claims.Email, Role: claims.Role}
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ws/auth] upgrade error: %v", err)
		return
	}
	defer conn.Close()

	g.addClient(conn)
	defer g.removeClient(conn)

	log.Printf("[ws/auth] client connected (authenticated=%v)", identity != nil)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go g.readPump(conn, cancel)

	// 先订阅再发身份帧，保证身份帧之后的事件不丢
	events, err := g.bus.SubscribeAuthEvents(ctx)
	if err != nil {
		log.Printf("[ws/auth] subscribe error: %v", err)
		return
	}

	// 初始身份帧：identity | null
	if err := g.writeMessage(conn, wsMessage{Type: "auth_state", Identity: identity}); err != nil {
		return
	}

	g.writePump(ctx, conn, events)
}

// writePump 将事件总线消息推送到客户端
func (g *AuthGateway) writePump(ctx context.Context, conn *websocket.Conn, events <-chan *eventbus.AuthEvent) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if err := g.writeMessage(conn, wsMessage{Type: "auth_event", Event: event}); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump 读取客户端消息，连接关闭时取消上下文
func (g *AuthGateway) readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[ws/auth] read error: %v", err)
			}
			return
		}
	}
}

func (g *AuthGateway) writeMessage(conn *websocket.Conn, msg wsMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return err
	}
	if g.metrics != nil {
		g.metrics.RecordWSMessage("out", msg.Type)
	}
	return nil
}

func (g *AuthGateway) addClient(conn *websocket.Conn) {
	g.mu.Lock()
	g.clients[conn] = true
	g.mu.Unlock()
	if g.metrics != nil {
		g.metrics.WSConnectionOpened()
	}
}

func (g *AuthGateway) removeClient(conn *websocket.Conn) {
	g.mu.Lock()
	delete(g.clients, conn)
	g.mu.Unlock()
	if g.metrics != nil {
		g.metrics.WSConnectionClosed()
	}
}

// ClientCount 当前连接数
func (g *AuthGateway) ClientCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.clients)
}
