package world

import (
	"context"
	"time"

	"github.com/wardstone/server/internal/geo"
)

// PlayerSnapshot is the directory's view of one player at a moment in
// time. Position and LastUpdate reflect the last accepted movement
// write-back; Start is where the player entered the world and anchors
// both first-flag placement and flagless roaming.
type PlayerSnapshot struct {
	ID         int64
	Name       string
	Position   geo.Coordinate
	Start      geo.Coordinate
	LastUpdate time.Time // zero until the first accepted movement
}

// PlayerDirectory is the ledger's and movement validator's window onto
// player identity and position. Implementations may be backed by a
// remote service; every call takes a context and a failure means the
// request cannot be handled (surfaced as CodeDirectoryUnavailable).
//
// GetPlayer returns (nil, nil) when the player does not exist.
type PlayerDirectory interface {
	GetPlayer(ctx context.Context, playerID int64) (*PlayerSnapshot, error)
	UpdatePlayerPosition(ctx context.Context, playerID int64, pos geo.Coordinate, at time.Time) error
	PlayerExists(ctx context.Context, playerID int64) (bool, error)
}
