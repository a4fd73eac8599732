package world

import (
	"time"

	"github.com/wardstone/server/internal/geo"
)

// Broadcast event payloads. Every accepted mutation produces exactly one
// of these on the bus after commit; subscribers (gateway fan-out, the
// event journal, metrics) receive value copies and never share ledger
// state.

// Event is implemented by every broadcast payload; EventType is the
// stable wire name used in envelopes, the journal, and metric labels.
type Event interface {
	EventType() string
}

// FlagPlaced is emitted after a flag commits to the ledger.
type FlagPlaced struct {
	Flag Flag
}

// FlagRemoved is emitted after a flag is removed by its owner.
type FlagRemoved struct {
	FlagID  int64
	OwnerID int64
	Refund  Refund
}

// FlagHardened is emitted after a flag is hardened.
type FlagHardened struct {
	FlagID  int64
	OwnerID int64
}

// FlagAbandoned is emitted for each flag the abandonment sweep marks.
type FlagAbandoned struct {
	FlagID  int64
	OwnerID int64
}

// PlayerTeleported is emitted after a teleport completes, including the
// charged cost.
type PlayerTeleported struct {
	PlayerID int64
	FlagID   int64
	Position geo.Coordinate
	Cost     float64
}

// PlayerMoved is emitted after a movement update passes validation.
type PlayerMoved struct {
	PlayerID  int64
	Position  geo.Coordinate
	Direction float64
	Timestamp time.Time
}

func (FlagPlaced) EventType() string       { return "flag_placed" }
func (FlagRemoved) EventType() string      { return "flag_removed" }
func (FlagHardened) EventType() string     { return "flag_hardened" }
func (FlagAbandoned) EventType() string    { return "flag_abandoned" }
func (PlayerTeleported) EventType() string { return "player_teleported" }
func (PlayerMoved) EventType() string      { return "player_moved" }
