package gateway

import "sync"

// Hub tracks joined sessions by player id for event fan-out. One
// session per player; the directory rejects a second concurrent join
// before a session ever reaches the hub.
type Hub struct {
	mu       sync.RWMutex
	sessions map[int64]*Session
}

func NewHub() *Hub {
	return &Hub{sessions: make(map[int64]*Session)}
}

func (h *Hub) add(s *Session) {
	h.mu.Lock()
	h.sessions[s.playerID] = s
	h.mu.Unlock()
}

// remove drops the session only if it is still the one registered for
// the player, so a stale disconnect cannot evict a fresh session.
func (h *Hub) remove(s *Session) {
	h.mu.Lock()
	if h.sessions[s.playerID] == s {
		delete(h.sessions, s.playerID)
	}
	h.mu.Unlock()
}

// SendTo queues a frame for one player. Returns false when the player
// has no session or the session's queue is full.
func (h *Hub) SendTo(playerID int64, f Frame) bool {
	h.mu.RLock()
	s := h.sessions[playerID]
	h.mu.RUnlock()
	if s == nil {
		return false
	}
	return s.Send(f)
}

// Broadcast queues a frame for every joined session.
func (h *Hub) Broadcast(f Frame) {
	h.mu.RLock()
	targets := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		targets = append(targets, s)
	}
	h.mu.RUnlock()
	for _, s := range targets {
		s.Send(f)
	}
}

// Len returns the number of joined sessions.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}
