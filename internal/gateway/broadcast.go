package gateway

import (
	"context"

	"github.com/wardstone/server/internal/event"
	"github.com/wardstone/server/internal/geo"
	"github.com/wardstone/server/internal/observability"
	"github.com/wardstone/server/internal/world"
)

// Broadcast event payloads as the client sees them.

type playerMovedData struct {
	PlayerID  int64   `json:"player_id"`
	Position  LatLng  `json:"position"`
	Direction float64 `json:"direction"`
	Timestamp int64   `json:"timestamp"`
}

type playerTeleportedData struct {
	PlayerID int64  `json:"player_id"`
	FlagID   int64  `json:"flag_id"`
	Position LatLng `json:"position"`
}

type flagRemovedData struct {
	FlagID  int64 `json:"flag_id"`
	OwnerID int64 `json:"owner_id"`
}

type flagStatusData struct {
	FlagID  int64 `json:"flag_id"`
	OwnerID int64 `json:"owner_id"`
}

// AttachBroadcast fans accepted-mutation events out to sessions and
// counts them. Territory changes go to every session (clients keep a
// whole-map picture); movement and teleports go only to players within
// visual range of the position, since that is all their clients render.
func AttachBroadcast(bus *event.Bus, hub *Hub, movement *world.MovementValidator, metrics *observability.EngineCollector) {
	event.Subscribe(bus, func(e world.FlagPlaced) {
		metrics.RecordEvent(e.EventType())
		hub.Broadcast(Event(e.EventType(), FlagToWire(e.Flag)))
	})
	event.Subscribe(bus, func(e world.FlagRemoved) {
		metrics.RecordEvent(e.EventType())
		hub.Broadcast(Event(e.EventType(), flagRemovedData{FlagID: e.FlagID, OwnerID: e.OwnerID}))
	})
	event.Subscribe(bus, func(e world.FlagHardened) {
		metrics.RecordEvent(e.EventType())
		hub.Broadcast(Event(e.EventType(), flagStatusData{FlagID: e.FlagID, OwnerID: e.OwnerID}))
	})
	event.Subscribe(bus, func(e world.FlagAbandoned) {
		metrics.RecordEvent(e.EventType())
		hub.Broadcast(Event(e.EventType(), flagStatusData{FlagID: e.FlagID, OwnerID: e.OwnerID}))
	})
	event.Subscribe(bus, func(e world.PlayerMoved) {
		metrics.RecordEvent(e.EventType())
		sendNearby(hub, movement, e.PlayerID, e.Position, Event(e.EventType(), playerMovedData{
			PlayerID:  e.PlayerID,
			Position:  LatLng{Lat: e.Position.Lat, Lng: e.Position.Lng},
			Direction: e.Direction,
			Timestamp: e.Timestamp.UnixMilli(),
		}))
	})
	event.Subscribe(bus, func(e world.PlayerTeleported) {
		metrics.RecordEvent(e.EventType())
		sendNearby(hub, movement, e.PlayerID, e.Position, Event(e.EventType(), playerTeleportedData{
			PlayerID: e.PlayerID,
			FlagID:   e.FlagID,
			Position: LatLng{Lat: e.Position.Lat, Lng: e.Position.Lng},
		}))
	})
}

func sendNearby(hub *Hub, movement *world.MovementValidator, actorID int64, pos geo.Coordinate, f Frame) {
	for _, p := range movement.PlayersNear(context.Background(), actorID, pos) {
		hub.SendTo(p.PlayerID, f)
	}
}
