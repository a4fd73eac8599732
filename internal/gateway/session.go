package gateway

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Session is one joined player connection. The server goroutine owns
// reads; a dedicated writer goroutine drains the out queue so a slow
// client never blocks a handler or the event bus.
type Session struct {
	id         uint64
	playerID   int64
	playerName string

	conn         *websocket.Conn
	out          chan []byte
	writeTimeout time.Duration

	closeCh   chan struct{}
	closeOnce sync.Once
	closed    atomic.Bool

	log *zap.Logger
}

func newSession(conn *websocket.Conn, id uint64, playerID int64, playerName string, outSize int, writeTimeout time.Duration, log *zap.Logger) *Session {
	return &Session{
		id:           id,
		playerID:     playerID,
		playerName:   playerName,
		conn:         conn,
		out:          make(chan []byte, outSize),
		writeTimeout: writeTimeout,
		closeCh:      make(chan struct{}),
		log:          log.With(zap.Uint64("session", id), zap.Int64("player", playerID)),
	}
}

func (s *Session) PlayerID() int64    { return s.playerID }
func (s *Session) PlayerName() string { return s.playerName }

// Send queues a frame for the writer goroutine. Non-blocking: a full
// queue means the client cannot keep up, and the session is closed
// rather than letting backpressure reach the game core.
func (s *Session) Send(f Frame) bool {
	if s.closed.Load() {
		return false
	}
	b, err := json.Marshal(f)
	if err != nil {
		s.log.Error("frame marshal failed", zap.String("type", f.Type), zap.Error(err))
		return false
	}
	select {
	case s.out <- b:
		return true
	default:
		s.log.Warn("out queue full, dropping slow client")
		s.Close()
		return false
	}
}

// Close shuts the session down once. Safe from any goroutine.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		close(s.closeCh)
		_ = s.conn.Close()
	})
}

// writeLoop drains the out queue to the socket until the session
// closes. Runs in its own goroutine.
func (s *Session) writeLoop() {
	defer s.Close()
	for {
		select {
		case b := <-s.out:
			_ = s.conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			if err := s.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				if !s.closed.Load() {
					s.log.Debug("write failed", zap.Error(err))
				}
				return
			}
		case <-s.closeCh:
			return
		}
	}
}
