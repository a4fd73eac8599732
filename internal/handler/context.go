// Package handler maps inbound gateway frames to game-core calls:
// decode the request, run the operation, emit the broadcast event,
// answer the client. All territory and movement semantics live in
// internal/world; handlers only translate.
package handler

import (
	"context"

	"go.uber.org/zap"

	"github.com/wardstone/server/internal/config"
	"github.com/wardstone/server/internal/event"
	"github.com/wardstone/server/internal/gateway"
	"github.com/wardstone/server/internal/observability"
	"github.com/wardstone/server/internal/world"
)

// Wallet debits teleport tolls from player currency.
// *directory.Directory satisfies it.
type Wallet interface {
	Debit(ctx context.Context, playerID int64, amount float64) (float64, error)
	Credit(ctx context.Context, playerID int64, amount float64) (float64, error)
}

// Deps holds shared dependencies injected into all frame handlers.
type Deps struct {
	Config   *config.Config
	Log      *zap.Logger
	Ledger   *world.Ledger
	Areas    *world.AreaRegistry
	Movement *world.MovementValidator
	Wallet   Wallet
	Bus      *event.Bus
	Metrics  *observability.EngineCollector
}

// RegisterAll binds every frame type to its handler.
func RegisterAll(reg *gateway.Registry, deps *Deps) {
	reg.Register("move", func(ctx context.Context, c gateway.Client, req *gateway.Envelope) {
		HandleMove(ctx, c, req, deps)
	})
	reg.Register("render_position", func(ctx context.Context, c gateway.Client, req *gateway.Envelope) {
		HandleRenderPosition(ctx, c, req, deps)
	})
	reg.Register("place_flag", func(ctx context.Context, c gateway.Client, req *gateway.Envelope) {
		HandlePlaceFlag(ctx, c, req, deps)
	})
	reg.Register("remove_flag", func(ctx context.Context, c gateway.Client, req *gateway.Envelope) {
		HandleRemoveFlag(ctx, c, req, deps)
	})
	reg.Register("harden_flag", func(ctx context.Context, c gateway.Client, req *gateway.Envelope) {
		HandleHardenFlag(ctx, c, req, deps)
	})
	reg.Register("teleport_quote", func(ctx context.Context, c gateway.Client, req *gateway.Envelope) {
		HandleTeleportQuote(ctx, c, req, deps)
	})
	reg.Register("teleport", func(ctx context.Context, c gateway.Client, req *gateway.Envelope) {
		HandleTeleport(ctx, c, req, deps)
	})
	reg.Register("map_view", func(ctx context.Context, c gateway.Client, req *gateway.Envelope) {
		HandleMapView(ctx, c, req, deps)
	})
	reg.Register("my_flags", func(ctx context.Context, c gateway.Client, req *gateway.Envelope) {
		HandleMyFlags(ctx, c, req, deps)
	})
}
