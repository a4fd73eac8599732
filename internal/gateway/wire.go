package gateway

import (
	"time"

	"github.com/wardstone/server/internal/world"
)

// FlagData is the wire form of a flag, shared by replies and broadcast
// events. Timestamps go out as unix milliseconds.
type FlagData struct {
	ID             int64   `json:"id"`
	OwnerID        int64   `json:"owner_id"`
	OwnerName      string  `json:"owner_name"`
	Name           string  `json:"name"`
	Position       LatLng  `json:"position"`
	Radius         float64 `json:"radius"`
	VisualBoundary float64 `json:"visual_boundary"`
	Kind           string  `json:"kind"`
	Public         bool    `json:"public"`
	Toll           float64 `json:"toll"`
	Hardened       bool    `json:"hardened"`
	Abandoned      bool    `json:"abandoned"`
	Health         float64 `json:"health"`
	CreatedAt      int64   `json:"created_at"`
	LastVisited    int64   `json:"last_visited"`
}

// FlagToWire converts a ledger flag copy to its wire form.
func FlagToWire(f world.Flag) FlagData {
	return FlagData{
		ID:             f.ID,
		OwnerID:        f.OwnerID,
		OwnerName:      f.OwnerName,
		Name:           f.Name,
		Position:       LatLng{Lat: f.Position.Lat, Lng: f.Position.Lng},
		Radius:         f.Radius,
		VisualBoundary: f.VisualBoundary,
		Kind:           f.Kind.String(),
		Public:         f.Public,
		Toll:           f.Toll,
		Hardened:       f.Hardened,
		Abandoned:      f.Abandoned,
		Health:         f.Health,
		CreatedAt:      f.CreatedAt.UnixMilli(),
		LastVisited:    f.LastVisited.UnixMilli(),
	}
}

// AreaData is the wire form of an area.
type AreaData struct {
	ID         int64           `json:"id"`
	Name       string          `json:"name"`
	MinLat     float64         `json:"min_lat"`
	MaxLat     float64         `json:"max_lat"`
	MinLng     float64         `json:"min_lng"`
	MaxLng     float64         `json:"max_lng"`
	Properties map[string]bool `json:"properties,omitempty"`
}

// AreaToWire converts a registered area to its wire form.
func AreaToWire(a *world.Area) AreaData {
	return AreaData{
		ID:         a.ID,
		Name:       a.Name,
		MinLat:     a.Bounds.MinLat,
		MaxLat:     a.Bounds.MaxLat,
		MinLng:     a.Bounds.MinLng,
		MaxLng:     a.Bounds.MaxLng,
		Properties: a.Properties,
	}
}

// PlayerData is the wire form of a visible player.
type PlayerData struct {
	PlayerID int64  `json:"player_id"`
	Name     string `json:"name"`
	Position LatLng `json:"position"`
}

// PlayersToWire converts visible players to their wire form.
func PlayersToWire(players []world.VisiblePlayer) []PlayerData {
	out := make([]PlayerData, len(players))
	for i, p := range players {
		out[i] = PlayerData{
			PlayerID: p.PlayerID,
			Name:     p.Name,
			Position: LatLng{Lat: p.Position.Lat, Lng: p.Position.Lng},
		}
	}
	return out
}

// MillisToTime converts a client unix-millisecond timestamp.
func MillisToTime(ms int64) time.Time {
	return time.UnixMilli(ms)
}
