package speech

// ProviderConfig 建立识别连接后发送的第一条配置消息
type ProviderConfig struct {
	APIKey                  string `json:"api_key"`
	Model                   string `json:"model"`
	AudioFormat             string `json:"audio_format"`
	ResultFormat            string `json:"result_format"`
	EnableEndpointDetection bool   `json:"enable_endpoint_detection"`
}
