package speech

import (
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/gorilla/websocket"
)

var (
	// ErrMissingAPIKey 未配置识别服务密钥
	ErrMissingAPIKey = errors.New("provider api key is not configured")
	// ErrStreamFinished 识别服务声明本次会话已结束
	ErrStreamFinished = errors.New("provider finished the stream")
)

// ConnectionError 连接建立失败或连接中断
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection error during %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// ProtocolError 消息无法解析或字段类型不符，可跳过
type ProtocolError struct {
	Err error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error: %v", e.Err)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// ProviderError 识别服务返回的错误消息
type ProviderError struct {
	Code    int
	Message string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider error %d: %s", e.Code, e.Message)
}

// ErrorKind 返回错误分类，用于日志与指标
func ErrorKind(err error) string {
	var (
		connErr     *ConnectionError
		protoErr    *ProtocolError
		providerErr *ProviderError
		netErr      net.Error
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &providerErr):
		return "provider"
	case errors.As(err, &netErr) && netErr.Timeout():
		return "timeout"
	case errors.As(err, &protoErr):
		return "protocol"
	case errors.As(err, &connErr):
		return "connection"
	default:
		return "internal"
	}
}

// IsClosure 判断错误是否为对端正常关闭或本地已关闭连接
func IsClosure(err error) bool {
	if err == nil {
		return false
	}

	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
		return true
	}

	return errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) || errors.Is(err, websocket.ErrCloseSent)
}

// IsDisconnect 判断客户端是否已离开。移动端断网时不会发送关闭帧（1006），同样视为正常结束。
func IsDisconnect(err error) bool {
	return IsClosure(err) || websocket.IsCloseError(err, websocket.CloseAbnormalClosure)
}
