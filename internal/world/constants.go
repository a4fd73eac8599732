package world

import "time"

// Gameplay constants shared with deployed clients. Changing any of
// these breaks interoperability — they are not configuration.
const (
	// FlagRadius is the territory radius a flag claims, in meters.
	FlagRadius = 500.0

	// VisualBoundary is the anchor/render radius around a flag, in
	// meters. New flags must be planted inside an anchor's visual
	// boundary, and clients draw territory rings at this distance.
	VisualBoundary = 600.0

	// DefaultHealth is the health a freshly planted flag starts with.
	DefaultHealth = 200.0

	// AbandonedTimeout is how long a flag may go unvisited before the
	// abandonment sweep marks it abandoned.
	AbandonedTimeout = 14 * 24 * time.Hour

	// TakeoverTimeout is reserved for territory contesting. Takeover is
	// not implemented; nothing reads this value yet.
	TakeoverTimeout = 21 * 24 * time.Hour

	// MaxSpeed caps player movement, in meters per second.
	MaxSpeed = 5.0

	// MovementRadius is how far a player may roam from their nearest
	// owned flag (or from their start position before their first
	// flag), in meters.
	MovementRadius = 600.0

	// InterpolationDelay is how far in the past render-time position
	// sampling looks, so that a bracket of real samples exists.
	InterpolationDelay = 100 * time.Millisecond

	// MovementBufferCap is the per-player movement history depth.
	MovementBufferCap = 10

	// SystemTeleportCost is the flat toll for teleporting to a system
	// flag such as the start flag.
	SystemTeleportCost = 2.0

	// SystemOwnerID owns system flags. Player ids start at 1, so 0 is
	// never a real account.
	SystemOwnerID int64 = 0
)
