package world

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/wardstone/server/internal/geo"
	"github.com/wardstone/server/internal/spatial"
)

// moveCellSizeDeg sizes the player grid (~550 m cells), matching the
// visibility range.
const moveCellSizeDeg = 0.005

// moveStripes is the number of per-player lock shards. Power of two.
const moveStripes = 64

// MovementUpdate is one client position report.
type MovementUpdate struct {
	PlayerID  int64
	Position  geo.Coordinate
	Direction float64 // heading in degrees, client-supplied
	Timestamp time.Time
}

// VisiblePlayer is a nearby player surfaced to the mover's client.
type VisiblePlayer struct {
	PlayerID int64
	Name     string
	Position geo.Coordinate
}

// MovementResult is returned for an accepted update.
type MovementResult struct {
	VisiblePlayers []VisiblePlayer
}

// playerTrack is one player's short movement history plus the last
// position indexed in the player grid.
type playerTrack struct {
	samples [MovementBufferCap]MovementUpdate
	head    int // next write slot
	size    int
	gridPos geo.Coordinate
	inGrid  bool
}

func (t *playerTrack) append(u MovementUpdate) {
	t.samples[t.head] = u
	t.head = (t.head + 1) % MovementBufferCap
	if t.size < MovementBufferCap {
		t.size++
	}
}

// at returns the i-th buffered sample, oldest first, i in [0, size).
func (t *playerTrack) at(i int) MovementUpdate {
	idx := (t.head - t.size + i + MovementBufferCap) % MovementBufferCap
	return t.samples[idx]
}

func (t *playerTrack) reset() {
	t.head = 0
	t.size = 0
}

type moveStripe struct {
	mu      sync.Mutex
	players map[int64]*playerTrack
}

func (s *moveStripe) ensure(playerID int64) *playerTrack {
	t := s.players[playerID]
	if t == nil {
		t = &playerTrack{}
		s.players[playerID] = t
	}
	return t
}

// MovementValidator enforces the speed cap and the territorial leash
// on position reports, and keeps a short per-player history for render
// interpolation. Player state shards across stripes by id; a shared
// grid answers who-is-near queries. Per-player submission order is the
// caller's job (one session goroutine per player).
type MovementValidator struct {
	directory PlayerDirectory
	ledger    *Ledger

	stripes [moveStripes]moveStripe

	gridMu sync.Mutex
	grid   *spatial.Grid
}

// NewMovementValidator builds a validator over the given directory and
// ledger.
func NewMovementValidator(directory PlayerDirectory, ledger *Ledger) *MovementValidator {
	v := &MovementValidator{
		directory: directory,
		ledger:    ledger,
		grid:      spatial.NewGrid(moveCellSizeDeg),
	}
	for i := range v.stripes {
		v.stripes[i].players = make(map[int64]*playerTrack)
	}
	return v
}

func (v *MovementValidator) stripeFor(playerID int64) *moveStripe {
	return &v.stripes[uint64(playerID)%moveStripes]
}

// HandleMovement validates one position report. The sample is buffered
// for interpolation even when validation rejects it; the player's
// authoritative position changes only on acceptance.
func (v *MovementValidator) HandleMovement(ctx context.Context, upd MovementUpdate) (MovementResult, error) {
	if !upd.Position.IsFinite() {
		return MovementResult{}, NewRuleError(CodeValidationFailed, "position is not a finite coordinate")
	}
	snap, err := v.directory.GetPlayer(ctx, upd.PlayerID)
	if err != nil {
		return MovementResult{}, WrapRule(CodeDirectoryUnavailable, err, "player directory unreachable")
	}
	if snap == nil {
		return MovementResult{}, NewRuleError(CodeNotFound, "player %d not found", upd.PlayerID)
	}

	st := v.stripeFor(upd.PlayerID)
	st.mu.Lock()
	defer st.mu.Unlock()

	track := st.ensure(upd.PlayerID)
	track.append(upd) // display smoothing only, kept even when rejected below

	if err := v.checkRange(snap, upd); err != nil {
		return MovementResult{}, err
	}
	if err := checkSpeed(snap, upd); err != nil {
		return MovementResult{}, err
	}

	if err := v.directory.UpdatePlayerPosition(ctx, upd.PlayerID, upd.Position, upd.Timestamp); err != nil {
		return MovementResult{}, WrapRule(CodeDirectoryUnavailable, err, "position write-back failed")
	}
	v.indexPosition(track, upd.PlayerID, upd.Position)

	return MovementResult{VisiblePlayers: v.visibleTo(ctx, upd.PlayerID, upd.Position)}, nil
}

// checkRange enforces the territorial leash: players roam at most
// MovementRadius from their nearest owned flag, or from their start
// position before the first flag.
func (v *MovementValidator) checkRange(snap *PlayerSnapshot, upd MovementUpdate) error {
	owned := v.ledger.OwnerFlags(upd.PlayerID)
	if len(owned) == 0 {
		if geo.Distance(upd.Position, snap.Start) > MovementRadius {
			return NewRuleError(CodeRuleViolation, "too far from your start position")
		}
		return nil
	}
	for _, f := range owned {
		if geo.Distance(upd.Position, f.Position) <= MovementRadius {
			return nil
		}
	}
	return NewRuleError(CodeRuleViolation, "too far from your territory")
}

func checkSpeed(snap *PlayerSnapshot, upd MovementUpdate) error {
	if snap.LastUpdate.IsZero() {
		// first report; nothing to compare against
		return nil
	}
	elapsed := upd.Timestamp.Sub(snap.LastUpdate)
	if elapsed <= 0 {
		return NewRuleError(CodeValidationFailed, "timestamp not newer than your last update")
	}
	if d := geo.Distance(snap.Position, upd.Position); d > MaxSpeed*elapsed.Seconds() {
		return NewRuleError(CodeRuleViolation, "moving too fast")
	}
	return nil
}

func (v *MovementValidator) indexPosition(track *playerTrack, playerID int64, pos geo.Coordinate) {
	v.gridMu.Lock()
	if track.inGrid {
		v.grid.Move(playerID, track.gridPos, pos)
	} else {
		v.grid.Insert(playerID, pos)
		track.inGrid = true
	}
	track.gridPos = pos
	v.gridMu.Unlock()
}

// visibleTo lists players within visual range of pos, excluding the
// mover. Positions come from the directory so observers see accepted
// state, not raw buffer samples.
func (v *MovementValidator) visibleTo(ctx context.Context, selfID int64, pos geo.Coordinate) []VisiblePlayer {
	box := geo.BoxAround(pos, VisualBoundary)
	v.gridMu.Lock()
	ids := v.grid.Query(box)
	v.gridMu.Unlock()

	out := make([]VisiblePlayer, 0, len(ids))
	for _, id := range ids {
		if id == selfID {
			continue
		}
		snap, err := v.directory.GetPlayer(ctx, id)
		if err != nil || snap == nil {
			continue // logged off mid-query
		}
		if geo.Distance(pos, snap.Position) > VisualBoundary {
			continue
		}
		out = append(out, VisiblePlayer{PlayerID: id, Name: snap.Name, Position: snap.Position})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PlayerID < out[j].PlayerID })
	return out
}

// PlayersNear lists players within visual range of pos, excluding
// excludeID. The transport uses it to pick the audience for
// position-scoped broadcasts.
func (v *MovementValidator) PlayersNear(ctx context.Context, excludeID int64, pos geo.Coordinate) []VisiblePlayer {
	return v.visibleTo(ctx, excludeID, pos)
}

// RecordTeleport moves a player's authoritative position outside the
// speed check after a teleport commits. The movement buffer restarts
// at the destination so interpolation does not sweep the avatar across
// the map.
func (v *MovementValidator) RecordTeleport(ctx context.Context, playerID int64, pos geo.Coordinate, at time.Time) error {
	st := v.stripeFor(playerID)
	st.mu.Lock()
	defer st.mu.Unlock()
	if err := v.directory.UpdatePlayerPosition(ctx, playerID, pos, at); err != nil {
		return WrapRule(CodeDirectoryUnavailable, err, "position write-back failed")
	}
	track := st.ensure(playerID)
	track.reset()
	track.append(MovementUpdate{PlayerID: playerID, Position: pos, Timestamp: at})
	v.indexPosition(track, playerID, pos)
	return nil
}

// RemovePlayer drops a player's movement history and grid entry at
// logout.
func (v *MovementValidator) RemovePlayer(playerID int64) {
	st := v.stripeFor(playerID)
	st.mu.Lock()
	defer st.mu.Unlock()
	track := st.players[playerID]
	if track == nil {
		return
	}
	if track.inGrid {
		v.gridMu.Lock()
		v.grid.Remove(playerID, track.gridPos)
		v.gridMu.Unlock()
	}
	delete(st.players, playerID)
}

// Tracked returns how many players have movement history buffered.
func (v *MovementValidator) Tracked() int {
	n := 0
	for i := range v.stripes {
		st := &v.stripes[i]
		st.mu.Lock()
		n += len(st.players)
		st.mu.Unlock()
	}
	return n
}

// InterpolatedPosition renders a player's position as of renderTime,
// sampling InterpolationDelay in the past so a bracket of real samples
// usually exists. Reports false with fewer than two buffered samples.
// Output never extrapolates: a target outside the buffered range
// clamps to the nearest end sample.
func (v *MovementValidator) InterpolatedPosition(playerID int64, renderTime time.Time) (geo.Coordinate, bool) {
	st := v.stripeFor(playerID)
	st.mu.Lock()
	defer st.mu.Unlock()
	track := st.players[playerID]
	if track == nil || track.size < 2 {
		return geo.Coordinate{}, false
	}
	target := renderTime.Add(-InterpolationDelay)
	for i := track.size - 1; i >= 1; i-- {
		a := track.at(i - 1)
		b := track.at(i)
		if target.Before(a.Timestamp) || target.After(b.Timestamp) {
			continue
		}
		span := b.Timestamp.Sub(a.Timestamp)
		if span <= 0 {
			// equal bracket timestamps pin to the earlier sample
			return a.Position, true
		}
		frac := float64(target.Sub(a.Timestamp)) / float64(span)
		return geo.Coordinate{
			Lat: a.Position.Lat + (b.Position.Lat-a.Position.Lat)*frac,
			Lng: a.Position.Lng + (b.Position.Lng-a.Position.Lng)*frac,
		}, true
	}
	// target outside the buffered range: clamp to the nearest end
	newest := track.at(track.size - 1)
	if !target.Before(newest.Timestamp) {
		return newest.Position, true
	}
	return track.at(0).Position, true
}
