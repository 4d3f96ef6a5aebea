package speech

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/z-relay/backend/internal/config"
	speechmodel "github.com/zhouzirui/z-relay/backend/internal/model/speech"
)

// ProviderClient 实时识别服务的 WebSocket 客户端
type ProviderClient struct {
	config config.ProviderConfig
	opts   Options
	dialer *websocket.Dialer
	logger *log.Logger
}

// ProviderConn 一个会话独占的上游识别连接
type ProviderConn struct {
	*socket
	SessionID string
}

// NewProviderClient 创建识别服务客户端
func NewProviderClient(cfg config.ProviderConfig, opts Options, logger *log.Logger) *ProviderClient {
	handshake := cfg.HandshakeTimeout
	if handshake <= 0 {
		handshake = 30 * time.Second
	}

	return &ProviderClient{
		config: cfg,
		opts:   opts,
		dialer: &websocket.Dialer{
			HandshakeTimeout: handshake,
		},
		logger: logger.WithPrefix("provider"),
	}
}

// Connect 建立上游连接并发送会话配置。失败不重试，由调用方结束会话。
func (c *ProviderClient) Connect(ctx context.Context, sessionID string) (*ProviderConn, error) {
	if !c.config.Enabled() {
		return nil, &ConnectionError{Op: "configure", Err: ErrMissingAPIKey}
	}

	conn, resp, err := c.dialer.DialContext(ctx, c.config.URL, nil)
	if err != nil {
		if resp != nil {
			err = fmt.Errorf("%w (status %d)", err, resp.StatusCode)
		}
		return nil, &ConnectionError{Op: "dial", Err: err}
	}

	pc := &ProviderConn{
		socket:    newSocket(conn, c.opts.IdleTimeout, c.opts.WriteTimeout),
		SessionID: sessionID,
	}

	payload, err := json.Marshal(c.sessionConfig())
	if err != nil {
		_ = pc.Close()
		return nil, fmt.Errorf("marshal provider config: %w", err)
	}

	if err := pc.WriteMessage(websocket.TextMessage, payload); err != nil {
		_ = pc.Close()
		return nil, &ConnectionError{Op: "configure", Err: err}
	}

	c.logger.Debug("connected", "session", sessionID, "model", c.config.Model, "url", c.config.URL)
	return pc, nil
}

func (c *ProviderClient) sessionConfig() speechmodel.ProviderConfig {
	return speechmodel.ProviderConfig{
		APIKey:                  c.config.APIKey,
		Model:                   c.config.Model,
		AudioFormat:             c.config.AudioFormat,
		ResultFormat:            c.config.ResultFormat,
		EnableEndpointDetection: c.config.EnableEndpointDetection,
	}
}
