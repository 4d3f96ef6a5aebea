package relay

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/z-relay/backend/internal/service/session"
)

type sessionList struct {
	Sessions []session.Snapshot `json:"sessions"`
	Count    int                `json:"count"`
}

// handleListSessions 列出当前所有会话
func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions := h.registry.List()
	h.respondJSON(w, http.StatusOK, sessionList{Sessions: sessions, Count: len(sessions)})
}

// handleEndSession 从外部结束一个会话；转发循环感知到连接关闭后自行清理
func (h *Handler) handleEndSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	sess, ok := h.registry.Get(sessionID)
	if !ok {
		h.logger.Warn("end requested for unknown session", "session", sessionID)
		h.respondError(w, http.StatusNotFound, session.ErrSessionNotFound.Error())
		return
	}

	if err := sess.Close(); err != nil {
		h.logger.Debug("close returned error", "session", sessionID, "err", err)
	}
	h.logger.Info("session ended by request", "session", sessionID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]any{
		"status":   "healthy",
		"service":  "relay",
		"sessions": h.registry.Len(),
	})
}
