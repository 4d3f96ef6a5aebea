package speech

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	speechmodel "github.com/zhouzirui/z-relay/backend/internal/model/speech"
)

// ClientConn 客户端（移动端）一侧的 WebSocket 连接
type ClientConn struct {
	*socket
	pingInterval time.Duration
}

// NewClientConn 包装已升级的客户端连接，并启动 ping 保活
func NewClientConn(conn *websocket.Conn, opts Options) *ClientConn {
	c := &ClientConn{
		socket:       newSocket(conn, opts.IdleTimeout, opts.WriteTimeout),
		pingInterval: opts.PingInterval,
	}

	conn.SetPongHandler(func(string) error {
		c.extendReadDeadline()
		return nil
	})

	if c.pingInterval > 0 {
		go c.pingLoop()
	}
	return c
}

// Emit 以 {"event": ..., "data": ...} 的形式发送一条事件
func (c *ClientConn) Emit(event string, payload any) error {
	data, err := json.Marshal(speechmodel.OutgoingMessage{Event: event, Data: payload})
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", event, err)
	}
	return c.WriteMessage(websocket.TextMessage, data)
}

// pingLoop 定期发送ping消息
func (c *ClientConn) pingLoop() {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.Done():
			return
		case <-ticker.C:
			deadline := time.Now().Add(time.Second)
			if c.writeTimeout > 0 {
				deadline = time.Now().Add(c.writeTimeout)
			}
			if err := c.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}

// ParseControl 解析客户端发送的文本控制帧
func ParseControl(data []byte) (speechmodel.ControlMessage, error) {
	var msg speechmodel.ControlMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return speechmodel.ControlMessage{}, &ProtocolError{Err: err}
	}
	if msg.Event == "" {
		return speechmodel.ControlMessage{}, &ProtocolError{Err: fmt.Errorf("control message without event")}
	}
	return msg, nil
}
