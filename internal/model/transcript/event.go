package transcript

const (
	EventUpdate   = "transcription_update"
	EventComplete = "transcription_complete"
)

// Event 推送给客户端的识别结果
type Event struct {
	Text     string `json:"text"`
	Complete bool   `json:"-"`
}

// Name returns the client-facing event name.
func (e Event) Name() string {
	if e.Complete {
		return EventComplete
	}
	return EventUpdate
}
