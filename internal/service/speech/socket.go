package speech

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// socket 为 websocket.Conn 加上读写超时与串行写入
type socket struct {
	conn         *websocket.Conn
	idleTimeout  time.Duration
	writeTimeout time.Duration

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    chan struct{}
}

func newSocket(conn *websocket.Conn, idleTimeout, writeTimeout time.Duration) *socket {
	s := &socket{
		conn:         conn,
		idleTimeout:  idleTimeout,
		writeTimeout: writeTimeout,
		closed:       make(chan struct{}),
	}
	s.extendReadDeadline()
	return s
}

// ReadMessage blocks for the next frame. Every received frame pushes the idle deadline forward.
func (s *socket) ReadMessage() (int, []byte, error) {
	messageType, data, err := s.conn.ReadMessage()
	if err != nil {
		return messageType, data, err
	}
	s.extendReadDeadline()
	return messageType, data, nil
}

// WriteMessage writes one frame; concurrent callers are serialized.
func (s *socket) WriteMessage(messageType int, data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if s.writeTimeout > 0 {
		_ = s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	}
	return s.conn.WriteMessage(messageType, data)
}

// Close sends a best-effort close frame and closes the underlying connection.
func (s *socket) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		_ = s.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		err = s.conn.Close()
	})
	return err
}

// Done is closed once Close has been called.
func (s *socket) Done() <-chan struct{} {
	return s.closed
}

func (s *socket) extendReadDeadline() {
	if s.idleTimeout > 0 {
		_ = s.conn.SetReadDeadline(time.Now().Add(s.idleTimeout))
	}
}
