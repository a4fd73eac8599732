package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/wardstone/server/internal/config"
	"github.com/wardstone/server/internal/geo"
	"github.com/wardstone/server/internal/observability"
	"github.com/wardstone/server/internal/world"
)

// handshakeTimeout bounds how long a fresh connection may take to send
// its join frame.
const handshakeTimeout = 10 * time.Second

// Authenticator is the session-lifecycle slice of the player directory.
// *directory.Directory satisfies it.
type Authenticator interface {
	Join(ctx context.Context, name, secret string, pos geo.Coordinate) (*world.PlayerSnapshot, bool, error)
	Leave(ctx context.Context, playerID int64)
}

// Server upgrades /ws connections, runs the join handshake, and feeds
// each session's frames through the registry in arrival order — the
// per-session reader goroutine is what gives a player's requests their
// submission-order guarantee.
type Server struct {
	cfg      config.GatewayConfig
	reg      *Registry
	auth     Authenticator
	movement *world.MovementValidator
	metrics  *observability.EngineCollector
	log      *zap.Logger

	hub      *Hub
	upgrader websocket.Upgrader
	nextID   atomic.Uint64
}

func NewServer(cfg config.GatewayConfig, reg *Registry, auth Authenticator, movement *world.MovementValidator, metrics *observability.EngineCollector, log *zap.Logger) *Server {
	return &Server{
		cfg:      cfg,
		reg:      reg,
		auth:     auth,
		movement: movement,
		metrics:  metrics,
		log:      log,
		hub:      NewHub(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Hub exposes the session table for event fan-out wiring.
func (s *Server) Hub() *Hub { return s.hub }

// Handler returns the HTTP mux: /ws for the game transport, /healthz
// for liveness, /metrics for Prometheus.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", s.metrics.Handler())
	return mux
}

type joinRequest struct {
	Name   string  `json:"name"`
	Secret string  `json:"secret"`
	Lat    float64 `json:"lat"`
	Lng    float64 `json:"lng"`
}

type welcomeData struct {
	PlayerID int64  `json:"player_id"`
	Name     string `json:"name"`
	Created  bool   `json:"created"`
	Position LatLng `json:"position"`
	Start    LatLng `json:"start"`
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	sess := s.handshake(conn)
	if sess == nil {
		_ = conn.Close()
		return
	}
	s.hub.add(sess)
	s.metrics.SetPlayersOnline(s.hub.Len())
	go sess.writeLoop()

	s.readLoop(sess)

	// Cleanup. Order matters: hub first so fan-out stops targeting the
	// session, then movement history, then the directory leave.
	s.hub.remove(sess)
	sess.Close()
	s.movement.RemovePlayer(sess.playerID)
	leaveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	s.auth.Leave(leaveCtx, sess.playerID)
	cancel()
	s.metrics.SetPlayersOnline(s.hub.Len())
}

// handshake reads the join frame, authenticates, and sends the welcome.
// Returns nil (after writing a closing error frame) on any failure.
func (s *Server) handshake(conn *websocket.Conn) *Session {
	conn.SetReadLimit(s.cfg.MaxMessageBytes)
	_ = conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		return nil
	}
	env, err := DecodeEnvelope(raw)
	if err != nil || env.Type != "join" {
		s.rejectHandshake(conn, env, "validation_failed", "first frame must be join")
		return nil
	}
	var req joinRequest
	if err := json.Unmarshal(env.Data, &req); err != nil {
		s.rejectHandshake(conn, env, "validation_failed", "malformed join data")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), handshakeTimeout)
	defer cancel()
	snap, created, err := s.auth.Join(ctx, req.Name, req.Secret, geo.Coordinate{Lat: req.Lat, Lng: req.Lng})
	if err != nil {
		code, reason := "internal", "join failed"
		if re, ok := world.AsRule(err); ok {
			code, reason = string(re.Code), re.Reason
		}
		s.metrics.RecordReject(code)
		s.rejectHandshake(conn, env, code, reason)
		return nil
	}

	sess := newSession(conn, s.nextID.Add(1), snap.ID, snap.Name, s.cfg.OutQueueSize, s.cfg.WriteTimeout, s.log)
	welcome := Reply(env, welcomeData{
		PlayerID: snap.ID,
		Name:     snap.Name,
		Created:  created,
		Position: LatLng{Lat: snap.Position.Lat, Lng: snap.Position.Lng},
		Start:    LatLng{Lat: snap.Start.Lat, Lng: snap.Start.Lng},
	})
	b, err := json.Marshal(welcome)
	if err != nil {
		s.auth.Leave(ctx, snap.ID)
		return nil
	}
	_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
		s.auth.Leave(ctx, snap.ID)
		return nil
	}
	s.log.Info("session joined",
		zap.Uint64("session", sess.id),
		zap.Int64("player", snap.ID),
		zap.String("name", snap.Name))
	return sess
}

func (s *Server) rejectHandshake(conn *websocket.Conn, env *Envelope, code, reason string) {
	if env == nil {
		env = &Envelope{Type: "join"}
	}
	if b, err := json.Marshal(ReplyError(env, code, reason)); err == nil {
		_ = conn.SetWriteDeadline(time.Now().Add(time.Second))
		_ = conn.WriteMessage(websocket.TextMessage, b)
	}
}

// readLoop dispatches the session's frames until the connection dies.
// A per-second frame counter disconnects clients that flood past the
// configured rate.
func (s *Server) readLoop(sess *Session) {
	var (
		frameCount int
		resetAt    int64
	)
	for {
		_ = sess.conn.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
		_, raw, err := sess.conn.ReadMessage()
		if err != nil {
			if !sess.closed.Load() {
				sess.log.Debug("read failed", zap.Error(err))
			}
			return
		}

		if s.cfg.EventsPerSecond > 0 {
			now := time.Now().Unix()
			if now != resetAt {
				frameCount = 0
				resetAt = now
			}
			frameCount++
			if frameCount > s.cfg.EventsPerSecond {
				sess.log.Warn("frame rate exceeded, disconnecting", zap.Int("fps", frameCount))
				return
			}
		}

		env, err := DecodeEnvelope(raw)
		if err != nil {
			sess.log.Debug("bad frame", zap.Error(err))
			continue
		}
		s.reg.Dispatch(context.Background(), sess, env)
	}
}
