package relay

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/zhouzirui/z-relay/backend/internal/service/speech"
)

const maxTranscribeUpload = 32 << 20 // 32MB max

type transcribeResponse struct {
	Text string `json:"text"`
}

// handleTranscribe 处理一次性语音转文本请求。
// 音频可以作为 multipart 表单的 audio 字段上传，也可以直接作为请求体。
func (h *Handler) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxTranscribeUpload)

	audio, cleanup, err := h.audioFromRequest(r)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer cleanup()

	sessionID := "transcribe-" + uuid.NewString()
	logger := h.logger.With("session", sessionID)

	text, err := h.speechSvc.Transcribe(r.Context(), sessionID, audio)
	if err != nil {
		kind := speech.ErrorKind(err)
		h.metrics.SessionError(kind)
		logger.Error("transcription failed", "kind", kind, "err", err)

		status := http.StatusInternalServerError
		var (
			connErr     *speech.ConnectionError
			providerErr *speech.ProviderError
		)
		if errors.As(err, &connErr) || errors.As(err, &providerErr) {
			status = http.StatusBadGateway
		}
		h.respondError(w, status, "transcription failed")
		return
	}

	logger.Info("transcription finished", "chars", len(text))
	h.respondJSON(w, http.StatusOK, transcribeResponse{Text: text})
}

// audioFromRequest 返回上传的音频以及释放临时文件的函数
func (h *Handler) audioFromRequest(r *http.Request) (io.Reader, func(), error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if !strings.HasPrefix(mediaType, "multipart/") {
		return r.Body, func() {}, nil
	}

	if err := r.ParseMultipartForm(maxTranscribeUpload); err != nil {
		return nil, nil, errors.New("failed to parse multipart form: " + err.Error())
	}

	file, _, err := r.FormFile("audio")
	if err != nil {
		_ = r.MultipartForm.RemoveAll()
		return nil, nil, errors.New("audio file is required")
	}

	return file, func() {
		_ = file.Close()
		_ = r.MultipartForm.RemoveAll()
	}, nil
}
