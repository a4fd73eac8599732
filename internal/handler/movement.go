package handler

import (
	"context"
	"time"

	"github.com/wardstone/server/internal/event"
	"github.com/wardstone/server/internal/gateway"
	"github.com/wardstone/server/internal/geo"
	"github.com/wardstone/server/internal/world"
)

type moveRequest struct {
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	Direction float64 `json:"direction"`
	Timestamp int64   `json:"timestamp"` // client clock, unix milliseconds
}

type moveReply struct {
	Position       gateway.LatLng       `json:"position"`
	VisiblePlayers []gateway.PlayerData `json:"visible_players"`
}

// HandleMove validates one position report and answers with the players
// now visible to the mover.
func HandleMove(ctx context.Context, c gateway.Client, req *gateway.Envelope, deps *Deps) {
	var r moveRequest
	if !decode(c, req, deps, &r) {
		return
	}
	if r.Timestamp <= 0 {
		sendErr(c, req, deps, world.NewRuleError(world.CodeValidationFailed, "timestamp required"))
		return
	}
	upd := world.MovementUpdate{
		PlayerID:  c.PlayerID(),
		Position:  geo.Coordinate{Lat: r.Lat, Lng: r.Lng},
		Direction: r.Direction,
		Timestamp: gateway.MillisToTime(r.Timestamp),
	}
	res, err := deps.Movement.HandleMovement(ctx, upd)
	if err != nil {
		sendErr(c, req, deps, err)
		return
	}
	event.Emit(deps.Bus, world.PlayerMoved{
		PlayerID:  upd.PlayerID,
		Position:  upd.Position,
		Direction: upd.Direction,
		Timestamp: upd.Timestamp,
	})
	c.Send(gateway.Reply(req, moveReply{
		Position:       gateway.LatLng{Lat: upd.Position.Lat, Lng: upd.Position.Lng},
		VisiblePlayers: gateway.PlayersToWire(res.VisiblePlayers),
	}))
}

type renderPositionRequest struct {
	PlayerID int64 `json:"player_id"`
	At       int64 `json:"at,omitempty"` // render time, unix milliseconds; zero means now
}

type renderPositionReply struct {
	PlayerID int64          `json:"player_id"`
	Position gateway.LatLng `json:"position"`
	At       int64          `json:"at"`
}

// HandleRenderPosition answers where to draw a player, interpolated a
// short delay in the past so the path stays smooth between reports.
func HandleRenderPosition(ctx context.Context, c gateway.Client, req *gateway.Envelope, deps *Deps) {
	var r renderPositionRequest
	if !decode(c, req, deps, &r) {
		return
	}
	at := time.Now()
	if r.At > 0 {
		at = gateway.MillisToTime(r.At)
	}
	pos, ok := deps.Movement.InterpolatedPosition(r.PlayerID, at)
	if !ok {
		sendErr(c, req, deps, world.NewRuleError(world.CodeNotFound,
			"no movement history for player %d", r.PlayerID))
		return
	}
	c.Send(gateway.Reply(req, renderPositionReply{
		PlayerID: r.PlayerID,
		Position: gateway.LatLng{Lat: pos.Lat, Lng: pos.Lng},
		At:       at.UnixMilli(),
	}))
}
