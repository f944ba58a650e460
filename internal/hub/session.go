package hub

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024

	// Outbound buffer per session. A session that cannot drain it during a
	// fan-out is dropped rather than allowed to block the push loop.
	sendBufferSize = 32
)

// Session 一条已注册的 WebSocket 连接
type Session struct {
	id     string
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	logger *zap.Logger

	// done gates enqueue so a concurrent broadcast can never write into a
	// session that is being torn down.
	done     chan struct{}
	shutdown sync.Once
}

func (s *Session) close() {
	s.shutdown.Do(func() {
		close(s.done)
		_ = s.conn.Close()
	})
}

// readPump reads commands from the peer until the connection drops, then
// unregisters the session. Runs on the connection's handler goroutine.
func (s *Session) readPump() {
	defer s.hub.unregister(s)

	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("session read failed", zap.String("session_id", s.id), zap.Error(err))
			}
			return
		}
		s.hub.handle(s, data)
	}
}

// writePump owns all writes on the connection: queued frames plus pings.
func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.close()
	}()

	for {
		select {
		case <-s.done:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case data := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// enqueue hands a frame to the session's writer without ever blocking the
// caller. It reports false when the buffer is full.
func (s *Session) enqueue(data []byte) bool {
	select {
	case <-s.done:
		return false
	case s.send <- data:
		return true
	default:
		return false
	}
}
