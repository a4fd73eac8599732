package gateway

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Client is the handler-facing view of a session. *Session implements
// it; tests substitute fakes.
type Client interface {
	PlayerID() int64
	PlayerName() string
	// Send queues an outbound frame. Returns false when the session is
	// closed or the queue is full (the session is then disconnecting).
	Send(f Frame) bool
}

// HandlerFunc processes one inbound frame for a joined player.
type HandlerFunc func(ctx context.Context, c Client, req *Envelope)

// Registry maps frame types to handlers. All registration happens
// during startup wiring, before any session dispatches.
type Registry struct {
	handlers map[string]HandlerFunc
	log      *zap.Logger
}

func NewRegistry(log *zap.Logger) *Registry {
	return &Registry{
		handlers: make(map[string]HandlerFunc),
		log:      log,
	}
}

// Register maps a frame type to a handler. Registering the same type
// twice is a wiring bug.
func (reg *Registry) Register(msgType string, fn HandlerFunc) {
	if _, dup := reg.handlers[msgType]; dup {
		panic(fmt.Sprintf("gateway: duplicate handler for %q", msgType))
	}
	reg.handlers[msgType] = fn
}

// Dispatch routes one frame to its handler. Unknown types get an error
// reply rather than a disconnect; a handler panic is recovered so one
// bad request cannot take the session down with a stack dump.
func (reg *Registry) Dispatch(ctx context.Context, c Client, env *Envelope) {
	fn, ok := reg.handlers[env.Type]
	if !ok {
		reg.log.Debug("unknown frame type",
			zap.String("type", env.Type),
			zap.Int64("player", c.PlayerID()))
		c.Send(ReplyError(env, "unknown_type", fmt.Sprintf("unknown request type %q", env.Type)))
		return
	}
	reg.safeCall(ctx, fn, c, env)
}

func (reg *Registry) safeCall(ctx context.Context, fn HandlerFunc, c Client, env *Envelope) {
	defer func() {
		if rec := recover(); rec != nil {
			reg.log.Error("handler panic recovered",
				zap.String("type", env.Type),
				zap.Int64("player", c.PlayerID()),
				zap.Any("panic", rec))
			c.Send(ReplyError(env, "internal", "internal server error"))
		}
	}()
	fn(ctx, c, env)
}
