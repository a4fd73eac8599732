package handler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/wardstone/server/internal/event"
	"github.com/wardstone/server/internal/gateway"
	"github.com/wardstone/server/internal/world"
)

type teleportQuoteReply struct {
	FlagID  int64   `json:"flag_id"`
	Allowed bool    `json:"allowed"`
	Cost    float64 `json:"cost"`
	Reason  string  `json:"reason,omitempty"`
}

// HandleTeleportQuote prices travel to a flag without committing to it.
func HandleTeleportQuote(ctx context.Context, c gateway.Client, req *gateway.Envelope, deps *Deps) {
	var r flagIDRequest
	if !decode(c, req, deps, &r) {
		return
	}
	q, err := deps.Ledger.CanTeleport(c.PlayerID(), r.FlagID)
	if err != nil {
		sendErr(c, req, deps, err)
		return
	}
	c.Send(gateway.Reply(req, teleportQuoteReply{
		FlagID:  r.FlagID,
		Allowed: q.Allowed,
		Cost:    q.Cost,
		Reason:  q.Reason,
	}))
}

type teleportReply struct {
	FlagID   int64          `json:"flag_id"`
	Position gateway.LatLng `json:"position"`
	Cost     float64        `json:"cost"`
	Balance  float64        `json:"balance"`
}

// HandleTeleport charges the toll and moves the player to a flag. The
// quote cannot go stale between pricing and commit: a flag's owner,
// kind, public bit and toll are all fixed at placement, so the debit
// happens up front and is refunded only if the flag vanishes underneath
// us.
func HandleTeleport(ctx context.Context, c gateway.Client, req *gateway.Envelope, deps *Deps) {
	var r flagIDRequest
	if !decode(c, req, deps, &r) {
		return
	}
	playerID := c.PlayerID()

	q, err := deps.Ledger.CanTeleport(playerID, r.FlagID)
	if err != nil {
		sendErr(c, req, deps, err)
		return
	}
	if !q.Allowed {
		sendErr(c, req, deps, world.NewRuleError(world.CodePermissionDenied, "%s", q.Reason))
		return
	}

	balance, err := deps.Wallet.Debit(ctx, playerID, q.Cost)
	if err != nil {
		sendErr(c, req, deps, err)
		return
	}

	res, err := deps.Ledger.Teleport(playerID, r.FlagID)
	if err != nil {
		if q.Cost > 0 {
			if _, cerr := deps.Wallet.Credit(ctx, playerID, q.Cost); cerr != nil {
				deps.Log.Error("teleport toll refund failed",
					zap.Int64("player", playerID),
					zap.Int64("flag", r.FlagID),
					zap.Float64("amount", q.Cost),
					zap.Error(cerr))
			}
		}
		sendErr(c, req, deps, err)
		return
	}

	now := time.Now()
	if err := deps.Movement.RecordTeleport(ctx, playerID, res.Position, now); err != nil {
		deps.Log.Warn("teleport position write-back failed",
			zap.Int64("player", playerID),
			zap.Int64("flag", r.FlagID),
			zap.Error(err))
	}

	event.Emit(deps.Bus, world.PlayerTeleported{
		PlayerID: playerID,
		FlagID:   res.FlagID,
		Position: res.Position,
		Cost:     res.Cost,
	})
	c.Send(gateway.Reply(req, teleportReply{
		FlagID:   res.FlagID,
		Position: gateway.LatLng{Lat: res.Position.Lat, Lng: res.Position.Lng},
		Cost:     res.Cost,
		Balance:  balance,
	}))
}
