// Package relay exposes the transcription relay over HTTP: the client WebSocket endpoint
// and a small admin API over the live sessions.
package relay

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/z-relay/backend/internal/metrics"
	"github.com/zhouzirui/z-relay/backend/internal/service/session"
	"github.com/zhouzirui/z-relay/backend/internal/service/speech"
)

// SpeechService 抽象语音转发业务，便于测试与替换实现
type SpeechService interface {
	WrapClient(conn *websocket.Conn) session.Downstream
	ConnectProvider(ctx context.Context, sessionID string) (session.Upstream, error)
	NewDecoder() speech.Decoder
	Transcribe(ctx context.Context, sessionID string, audio io.Reader) (string, error)
}

// Handler 转发服务的HTTP处理器
type Handler struct {
	speechSvc SpeechService
	registry  *session.Registry
	metrics   *metrics.Metrics
	logger    *log.Logger
	upgrader  websocket.Upgrader
}

// New 创建转发处理器
func New(speechSvc SpeechService, registry *session.Registry, m *metrics.Metrics, logger *log.Logger) *Handler {
	return &Handler{
		speechSvc: speechSvc,
		registry:  registry,
		metrics:   m,
		logger:    logger.WithPrefix("relay"),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  4096,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes 注册转发相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/relay", func(relayRouter chi.Router) {
		// WebSocket端点，未指定会话ID时由服务端生成
		relayRouter.Get("/ws", h.handleWebSocket)
		relayRouter.Get("/ws/{sessionID}", h.handleWebSocket)

		// 一次性转写整段音频
		relayRouter.Post("/transcribe", h.handleTranscribe)

		// 会话管理
		relayRouter.Get("/sessions", h.handleListSessions)
		relayRouter.Delete("/sessions/{sessionID}", h.handleEndSession)

		// 健康检查
		relayRouter.Get("/health", h.handleHealth)
	})
}

// respondJSON 发送JSON响应
func (h *Handler) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to encode response", "err", err)
	}
}

// respondError 发送错误响应
func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
