package transcript

// EndMarker 识别服务用于标记一句话结束的特殊 token 文本
const EndMarker = "<end>"

// Token 识别服务返回的单个文本片段
type Token struct {
	Text    string `json:"text"`
	IsFinal *bool  `json:"is_final,omitempty"`
}

// IsEnd reports whether the token marks an utterance boundary.
func (t Token) IsEnd() bool {
	return t.Text == EndMarker
}

// Final reports whether the provider has settled the token. Tokens without the flag count as final.
func (t Token) Final() bool {
	return t.IsFinal == nil || *t.IsFinal
}

// Batch 识别服务推送的一条消息
type Batch struct {
	Tokens       []Token `json:"tokens"`
	ErrorCode    int     `json:"error_code,omitempty"`
	ErrorMessage string  `json:"error_message,omitempty"`
	Finished     bool    `json:"finished,omitempty"`
}
