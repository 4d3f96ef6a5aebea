package relay

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	speechmodel "github.com/zhouzirui/z-relay/backend/internal/model/speech"
	"github.com/zhouzirui/z-relay/backend/internal/service/bridge"
	"github.com/zhouzirui/z-relay/backend/internal/service/session"
	"github.com/zhouzirui/z-relay/backend/internal/service/speech"
)

const providerUnavailableMessage = "error connecting to transcription provider"

// handleWebSocket 处理客户端WebSocket连接，直到会话结束才返回
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	logger := h.logger.With("session", sessionID)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("upgrade failed", "err", err)
		return
	}
	client := h.speechSvc.WrapClient(conn)

	sess, err := h.registry.Register(sessionID, client)
	if err != nil {
		logger.Warn("rejecting connection", "err", err)
		h.emitError(client, err.Error(), logger)
		_ = client.Close()
		return
	}

	started := time.Now()
	h.metrics.SessionOpened()
	defer func() {
		h.metrics.SessionClosed(time.Since(started))
	}()

	logger.Info("client connected", "remote", r.RemoteAddr)

	if err := client.Emit(speechmodel.EventConnected, map[string]string{"sessionId": sessionID}); err != nil {
		logger.Debug("connected event not delivered", "err", err)
		h.teardown(sess)
		return
	}

	if !h.awaitStart(r.Context(), client, logger) {
		logger.Info("session ended before transcription started")
		h.teardown(sess)
		return
	}

	upstream, err := h.speechSvc.ConnectProvider(r.Context(), sessionID)
	if err != nil {
		logger.Error("provider connection failed", "err", err)
		h.metrics.SessionError(speech.ErrorKind(err))
		h.emitError(client, providerUnavailableMessage, logger)
		h.teardown(sess)
		return
	}

	if err := h.registry.AttachUpstream(sessionID, upstream); err != nil {
		// 等待上游期间会话已被结束
		if !errors.Is(err, session.ErrSessionClosed) && !errors.Is(err, session.ErrUnknownSession) {
			logger.Error("attach upstream failed", "err", err)
		}
		_ = upstream.Close()
		h.teardown(sess)
		return
	}

	b := bridge.New(h.registry, sess, h.speechSvc.NewDecoder(), h.metrics, h.logger)
	if err := b.Run(r.Context()); err != nil {
		logger.Debug("bridge stopped", "err", err)
	}
}

// awaitStart 等待客户端的 start_transcription 指令。
// 开始前收到的音频帧被丢弃；stop 或读取失败返回 false。
func (h *Handler) awaitStart(ctx context.Context, client session.Downstream, logger *log.Logger) bool {
	for {
		if ctx.Err() != nil {
			return false
		}

		messageType, data, err := client.ReadMessage()
		if err != nil {
			if !speech.IsDisconnect(err) {
				logger.Debug("read before start failed", "err", err)
			}
			return false
		}

		if messageType != websocket.TextMessage {
			logger.Debug("dropping audio received before start", "bytes", len(data))
			continue
		}

		cmd, err := speech.ParseControl(data)
		if err != nil {
			logger.Warn("invalid control message", "err", err)
			continue
		}

		switch cmd.Event {
		case speechmodel.EventStartTranscription:
			return true
		case speechmodel.EventStopTranscription:
			return false
		default:
			logger.Warn("unsupported control event", "event", cmd.Event)
		}
	}
}

// teardown 关闭会话连接并从注册表移除
func (h *Handler) teardown(sess *session.Session) {
	_ = sess.Close()
	h.registry.Remove(sess.ID)
}

func (h *Handler) emitError(client session.Downstream, message string, logger *log.Logger) {
	if err := client.Emit(speechmodel.EventError, speechmodel.ErrorPayload{Message: message}); err != nil {
		logger.Debug("error event not delivered", "err", err)
	}
}
