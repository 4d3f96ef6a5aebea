package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultProviderURL 默认的实时识别 WebSocket 地址
const DefaultProviderURL = "wss://stt-rt.soniox.com/transcribe-websocket"

// Config 聚合整个服务的配置项。
type Config struct {
	Server   ServerConfig
	Provider ProviderConfig
	Relay    RelayConfig
	Logging  LoggingConfig
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string
}

// ProviderConfig 描述上游识别服务配置
type ProviderConfig struct {
	URL                     string
	APIKey                  string
	Model                   string
	AudioFormat             string
	ResultFormat            string
	EnableEndpointDetection bool
	HandshakeTimeout        time.Duration
}

// RelayConfig 描述会话转发的超时与容量
type RelayConfig struct {
	IdleTimeout  time.Duration
	WriteTimeout time.Duration
	PingInterval time.Duration
	MaxSessions  int
}

// LoggingConfig 描述日志输出
type LoggingConfig struct {
	Level  string
	Format string
}

// Enabled 表示是否提供了识别服务的密钥。
func (c ProviderConfig) Enabled() bool {
	return c.APIKey != ""
}

// SetDefaults registers every key and its default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("PROVIDER_URL", DefaultProviderURL)
	v.SetDefault("PROVIDER_API_KEY", "")
	v.SetDefault("SONIOX_API_KEY", "")
	v.SetDefault("PROVIDER_MODEL", "stt-rt-preview")
	v.SetDefault("PROVIDER_AUDIO_FORMAT", "auto")
	v.SetDefault("PROVIDER_RESULT_FORMAT", "json")
	v.SetDefault("PROVIDER_ENDPOINT_DETECTION", "true")
	v.SetDefault("PROVIDER_HANDSHAKE_TIMEOUT", "30s")
	v.SetDefault("RELAY_IDLE_TIMEOUT", "60s")
	v.SetDefault("RELAY_WRITE_TIMEOUT", "10s")
	v.SetDefault("RELAY_PING_INTERVAL", "54s")
	v.SetDefault("RELAY_MAX_SESSIONS", "0")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")
}

// Load 从环境变量（以及绑定到 v 的命令行参数）加载配置。
func Load(v *viper.Viper) (*Config, error) {
	if v == nil {
		v = viper.New()
	}
	SetDefaults(v)
	v.AutomaticEnv()

	server, err := loadServerConfig(v)
	if err != nil {
		return nil, err
	}

	provider, err := loadProviderConfig(v)
	if err != nil {
		return nil, err
	}

	relay, err := loadRelayConfig(v)
	if err != nil {
		return nil, err
	}

	logging, err := loadLoggingConfig(v)
	if err != nil {
		return nil, err
	}

	return &Config{Server: server, Provider: provider, Relay: relay, Logging: logging}, nil
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig(v *viper.Viper) (ServerConfig, error) {
	port := getString(v, "PORT")
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

func loadProviderConfig(v *viper.Viper) (ProviderConfig, error) {
	endpointDetection, err := parseBool(v, "PROVIDER_ENDPOINT_DETECTION")
	if err != nil {
		return ProviderConfig{}, err
	}

	handshake, err := parseDuration(v, "PROVIDER_HANDSHAKE_TIMEOUT")
	if err != nil {
		return ProviderConfig{}, err
	}

	url := getString(v, "PROVIDER_URL")
	if !strings.HasPrefix(url, "ws://") && !strings.HasPrefix(url, "wss://") {
		return ProviderConfig{}, fmt.Errorf("invalid PROVIDER_URL value %q: scheme must be ws or wss", url)
	}

	// 未单独配置时回退到 SONIOX_API_KEY
	apiKey := getString(v, "PROVIDER_API_KEY")
	if apiKey == "" {
		apiKey = getString(v, "SONIOX_API_KEY")
	}

	return ProviderConfig{
		URL:                     url,
		APIKey:                  apiKey,
		Model:                   getString(v, "PROVIDER_MODEL"),
		AudioFormat:             getString(v, "PROVIDER_AUDIO_FORMAT"),
		ResultFormat:            getString(v, "PROVIDER_RESULT_FORMAT"),
		EnableEndpointDetection: endpointDetection,
		HandshakeTimeout:        handshake,
	}, nil
}

func loadRelayConfig(v *viper.Viper) (RelayConfig, error) {
	idle, err := parseDuration(v, "RELAY_IDLE_TIMEOUT")
	if err != nil {
		return RelayConfig{}, err
	}

	write, err := parseDuration(v, "RELAY_WRITE_TIMEOUT")
	if err != nil {
		return RelayConfig{}, err
	}

	ping, err := parseDuration(v, "RELAY_PING_INTERVAL")
	if err != nil {
		return RelayConfig{}, err
	}

	maxSessions, err := parseInt(v, "RELAY_MAX_SESSIONS")
	if err != nil {
		return RelayConfig{}, err
	}
	if maxSessions < 0 {
		maxSessions = 0
	}

	// ping 必须早于空闲超时，否则客户端在静默期会被误判为断开
	if idle > 0 && ping >= idle {
		return RelayConfig{}, fmt.Errorf("RELAY_PING_INTERVAL (%s) must be shorter than RELAY_IDLE_TIMEOUT (%s)", ping, idle)
	}

	return RelayConfig{
		IdleTimeout:  idle,
		WriteTimeout: write,
		PingInterval: ping,
		MaxSessions:  maxSessions,
	}, nil
}

func loadLoggingConfig(v *viper.Viper) (LoggingConfig, error) {
	format := strings.ToLower(getString(v, "LOG_FORMAT"))
	switch format {
	case "text", "json", "logfmt":
	default:
		return LoggingConfig{}, fmt.Errorf("invalid LOG_FORMAT value %q", format)
	}

	return LoggingConfig{
		Level:  strings.ToLower(getString(v, "LOG_LEVEL")),
		Format: format,
	}, nil
}

func getString(v *viper.Viper, key string) string {
	return strings.TrimSpace(v.GetString(key))
}

func parseBool(v *viper.Viper, key string) (bool, error) {
	raw := getString(v, key)
	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseInt(v *viper.Viper, key string) (int, error) {
	raw := getString(v, key)
	val, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseDuration(v *viper.Viper, key string) (time.Duration, error) {
	raw := getString(v, key)
	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	if val < 0 {
		return 0, fmt.Errorf("invalid %s value %q: must not be negative", key, raw)
	}
	return val, nil
}
