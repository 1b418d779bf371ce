package netws

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
	maxMessageSize = 1 << 20
	sendBuffer     = 64
)

// session wraps one websocket connection with a buffered outbound queue so
// the room's broadcast fan-out never blocks on a slow receiver.
type session struct {
	conn   *websocket.Conn
	send   chan []byte
	quit   chan struct{}
	once   sync.Once
	logger *zap.SugaredLogger
}

func newSession(conn *websocket.Conn, logger *zap.SugaredLogger) *session {
	return &session{
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		quit:   make(chan struct{}),
		logger: logger,
	}
}

// Send enqueues data for delivery. A full queue drops the message: stale
// snapshots are worth less than a stalled room loop.
func (s *session) Send(data []byte) {
	select {
	case s.send <- data:
	case <-s.quit:
	default:
		s.logger.Debugw("send queue full, dropping message")
	}
}

func (s *session) close() {
	s.once.Do(func() {
		close(s.quit)
		s.conn.Close()
	})
}

// writePump drains the send queue onto the wire and keeps the connection
// alive with pings.
func (s *session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.close()
	}()
	for {
		select {
		case <-s.quit:
			return
		case data := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
