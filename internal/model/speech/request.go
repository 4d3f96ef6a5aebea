package speech

import "encoding/json"

const (
	EventStartTranscription = "start_transcription"
	EventStopTranscription  = "stop_transcription"
)

// ControlMessage 客户端通过文本帧发送的控制指令
type ControlMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}
