package world

import (
	"fmt"
	"time"

	"github.com/wardstone/server/internal/geo"
)

// FlagKind distinguishes ordinary player flags from special structures.
type FlagKind int8

const (
	// KindNormal is a regular player-planted flag.
	KindNormal FlagKind = iota
	// KindSystem flags are world infrastructure (the start flag,
	// waypoints). They never abandon, cannot be removed, and do not
	// block other players' placements.
	KindSystem
	// KindRocShrine is a player-built shrine structure.
	KindRocShrine
	// KindGuardTower is a player-built defensive structure.
	KindGuardTower
)

var kindNames = map[FlagKind]string{
	KindNormal:     "normal",
	KindSystem:     "system",
	KindRocShrine:  "roc_shrine",
	KindGuardTower: "guard_tower",
}

func (k FlagKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int8(k))
}

// ParseFlagKind maps a wire/seed string to a FlagKind.
func ParseFlagKind(s string) (FlagKind, error) {
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return KindNormal, fmt.Errorf("unknown flag kind %q", s)
}

// Flag is a territory marker. Position is immutable after placement;
// the ledger is the only writer of the mutable fields.
type Flag struct {
	ID             int64
	OwnerID        int64 // SystemOwnerID for world infrastructure
	OwnerName      string
	Name           string
	Position       geo.Coordinate
	Radius         float64 // claimed territory radius, meters
	VisualBoundary float64 // anchor/render radius, meters; >= Radius
	Kind           FlagKind
	Public         bool    // foreign players may teleport here for Toll
	Toll           float64 // teleport price; zero unless Public
	Hardened       bool
	Abandoned      bool
	Health         float64
	CreatedAt      time.Time
	UpdatedAt      time.Time
	LastVisited    time.Time
}

// Active reports whether the flag still counts as tended territory.
func (f *Flag) Active() bool {
	return !f.Abandoned
}

// Refund is the material returned when a flag is removed.
type Refund struct {
	Wood    int `json:"wood"`
	Leather int `json:"leather,omitempty"`
	Stone   int `json:"stone,omitempty"`
}

// RefundFor returns the removal refund for a flag. Hardened flags refund
// their hardening kit regardless of kind.
func RefundFor(f *Flag) Refund {
	switch {
	case f.Hardened:
		return Refund{Wood: 1, Leather: 1, Stone: 1}
	case f.Kind == KindRocShrine:
		return Refund{Wood: 5, Stone: 5}
	case f.Kind == KindGuardTower:
		return Refund{Wood: 10, Stone: 10}
	default:
		return Refund{Wood: 1, Leather: 1}
	}
}
