package speech

const (
	EventConnected = "connected"
	EventError     = "error"
)

// OutgoingMessage 推送给客户端的事件帧
type OutgoingMessage struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

// ErrorPayload 错误事件内容
type ErrorPayload struct {
	Message string `json:"message"`
}
