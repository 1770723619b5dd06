// Package server HTTP API 组装层
//
// 负责：
//   - 组合各业务处理器并挂载路由
//   - 认证中间件与指标中间件
//   - 健康检查和指标导出
//
// 文件组织：
//   - handler.go: Handler 定义和路由挂载
//   - metrics.go: Prometheus 指标
//   - websocket.go: 认证状态 WebSocket 网关
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"foodnextdoor/internal/apiserver/auth"
	"foodnextdoor/internal/apiserver/listing"
	"foodnextdoor/internal/apiserver/profile"
	"foodnextdoor/internal/cache"
	"foodnextdoor/internal/eventbus"
	"foodnextdoor/internal/mailer"
	"foodnextdoor/internal/storage"
	"foodnextdoor/pkg/logging"
)

// Handler API 处理器
//
// Handler 是所有 HTTP API 的入口，组合存储层、令牌缓存、
// 事件总线与邮件发送，并持有各业务子处理器。
type Handler struct {
	store  storage.Store
	tokens cache.TokenCache
	bus    eventbus.EventBus
	mail   mailer.Mailer

	authCfg auth.Config

	authHandler    *auth.Handler
	profileHandler *profile.Handler
	listingHandler *listing.Handler
	authGateway    *AuthGateway
	metrics        *Metrics
	logger         *logging.Logger
}

// NewHandler 创建 Handler 实例
func NewHandler(store storage.Store, tokens cache.TokenCache, bus eventbus.EventBus, mail mailer.Mailer, authCfg auth.Config) *Handler {
	h := &Handler{
		store:   store,
		tokens:  tokens,
		bus:     bus,
		mail:    mail,
		authCfg: authCfg,
	}

	h.metrics = NewMetrics("foodnextdoor")
	h.logger = logging.Default("api-server")
	h.authHandler = auth.NewHandler(store, store, tokens, bus, mail, authCfg)
	h.profileHandler = profile.NewHandler(store)
	h.listingHandler = listing.NewHandler(store)
	h.authGateway = NewAuthGateway(bus, authCfg, h.metrics)
	return h
}

// GetMetrics 返回指标实例
func (h *Handler) GetMetrics() *Metrics {
	return h.metrics
}

// WatchAuthEvents 订阅认证事件并计入指标，阻塞直到 ctx 取消
//
// 由 main 在独立 goroutine 中启动。
func (h *Handler) WatchAuthEvents(ctx context.Context) error {
	events, err := h.bus.SubscribeAuthEvents(ctx)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-events:
			if !ok {
				return nil
			}
			h.metrics.AuthEventsTotal.WithLabelValues(event.Type).Inc()
		}
	}
}

// Router 组装完整路由
//
// 中间件顺序：指标（最外层，统计所有请求）→ 认证 → 业务路由。
func (h *Handler) Router() http.Handler {
	mux := http.NewServeMux()

	h.authHandler.RegisterRoutes(mux)
	h.profileHandler.RegisterRoutes(mux)
	h.listingHandler.RegisterRoutes(mux)

	mux.HandleFunc("GET /ws/auth", h.authGateway.HandleWebSocket)
	mux.HandleFunc("GET /health", h.Health)
	mux.Handle("GET /metrics", MetricsHandler())

	var handler http.Handler = mux
	handler = auth.Middleware(h.authCfg)(handler)
	handler = h.accessLogMiddleware(handler)
	handler = h.metrics.MetricsMiddleware(handler)
	return handler
}

// accessLogMiddleware 结构化访问日志
func (h *Handler) accessLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		h.logger.HTTPRequestLog(r.Method, r.URL.Path, wrapped.statusCode, time.Since(start), r.RemoteAddr)
	})
}

// Health 健康检查接口
//
// 路由: GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeJSON 将数据以 JSON 格式写入 HTTP 响应
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
