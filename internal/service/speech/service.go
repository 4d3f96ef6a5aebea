package speech

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/z-relay/backend/internal/config"
	"github.com/zhouzirui/z-relay/backend/internal/model/transcript"
	"github.com/zhouzirui/z-relay/backend/internal/service/session"
)

// Options 连接级别的超时设置，同时作用于客户端与上游连接
type Options struct {
	IdleTimeout  time.Duration
	WriteTimeout time.Duration
	PingInterval time.Duration
}

// Decoder 将上游消息解码为转写事件
type Decoder interface {
	Feed(raw []byte) ([]transcript.Event, error)
}

// Service 语音转发服务：包装客户端连接、连接识别服务、创建解码器
type Service struct {
	provider *ProviderClient
	opts     Options
}

// NewService 创建语音服务实例
func NewService(cfg *config.Config, logger *log.Logger) *Service {
	opts := Options{
		IdleTimeout:  cfg.Relay.IdleTimeout,
		WriteTimeout: cfg.Relay.WriteTimeout,
		PingInterval: cfg.Relay.PingInterval,
	}

	return &Service{
		provider: NewProviderClient(cfg.Provider, opts, logger),
		opts:     opts,
	}
}

// WrapClient 包装已升级的客户端连接
func (s *Service) WrapClient(conn *websocket.Conn) session.Downstream {
	return NewClientConn(conn, s.opts)
}

// ConnectProvider 为会话建立上游识别连接
func (s *Service) ConnectProvider(ctx context.Context, sessionID string) (session.Upstream, error) {
	conn, err := s.provider.Connect(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// NewDecoder 为新会话创建独立的聚合器
func (s *Service) NewDecoder() Decoder {
	return NewAggregator()
}
