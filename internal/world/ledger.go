package world

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/wardstone/server/internal/geo"
	"github.com/wardstone/server/internal/spatial"
)

// flagCellSizeDeg sizes the flag grid (~111 m cells at the equator),
// matching the scale of territorial radii.
const flagCellSizeDeg = 0.001

// stripeCellDeg keys region stripes; 32x32 flag cells per super-cell.
const stripeCellDeg = flagCellSizeDeg * 32

// ledgerStripes is the number of region locks. Power of two.
const ledgerStripes = 64

// PlaceOptions carries the player-chosen fields of a new flag.
type PlaceOptions struct {
	Name   string
	Public bool
	Toll   float64
}

// TeleportQuote answers whether a player may travel to a flag and at
// what price. Reason is set only on refusal.
type TeleportQuote struct {
	Allowed bool
	Cost    float64
	Reason  string
}

// TeleportResult is the destination handed back on a successful
// teleport. The caller debits Cost and moves the player.
type TeleportResult struct {
	FlagID         int64
	Position       geo.Coordinate
	VisualBoundary float64
	Cost           float64
}

// Ledger owns every flag: placement, removal, hardening, teleport
// authorization and the abandonment sweep.
//
// Locking: mutations serialize per map region through stripes keyed by
// super-cell, so players in distant parts of the world never contend.
// Validation and geometry run under the stripes covering the touched
// region plus brief read locks; commits take mu for the O(1) map and
// grid writes only, so readers never observe a half-applied mutation.
// Stripes are always acquired in ascending index order, and never
// while holding mu.
//
// A flag's mutable fields (Hardened, Abandoned, LastVisited,
// UpdatedAt) are written only while holding both the flag's stripe and
// mu, and read while holding either. The remaining fields are fixed at
// insertion and safe to read once the pointer is resolved.
type Ledger struct {
	directory PlayerDirectory

	stripes [ledgerStripes]sync.Mutex

	mu          sync.RWMutex
	flags       map[int64]*Flag
	byOwner     map[int64]map[int64]*Flag
	grid        *spatial.Grid
	startID     int64
	maxBoundary float64 // widest visual boundary ever seen; pads coarse queries

	dirty   map[int64]struct{}
	removed map[int64]struct{}

	nextID atomic.Int64
}

// NewLedger builds an empty ledger backed by the given player
// directory.
func NewLedger(directory PlayerDirectory) *Ledger {
	return &Ledger{
		directory:   directory,
		flags:       make(map[int64]*Flag),
		byOwner:     make(map[int64]map[int64]*Flag),
		grid:        spatial.NewGrid(flagCellSizeDeg),
		maxBoundary: VisualBoundary,
		dirty:       make(map[int64]struct{}),
		removed:     make(map[int64]struct{}),
	}
}

func stripeOf(lat, lng int32) int {
	h := uint32(lat)*31 + uint32(lng)
	h ^= h >> 16
	return int(h & (ledgerStripes - 1))
}

func (l *Ledger) stripeFor(c geo.Coordinate) int {
	lat := int32(math.Floor(c.Lat / stripeCellDeg))
	lng := int32(math.Floor(c.Lng / stripeCellDeg))
	return stripeOf(lat, lng)
}

// stripesForBox returns the distinct stripes covering a box, sorted
// ascending for deadlock-free acquisition.
func (l *Ledger) stripesForBox(box geo.BoundingBox) []int {
	minLat := int32(math.Floor(box.MinLat / stripeCellDeg))
	maxLat := int32(math.Floor(box.MaxLat / stripeCellDeg))
	minLng := int32(math.Floor(box.MinLng / stripeCellDeg))
	maxLng := int32(math.Floor(box.MaxLng / stripeCellDeg))
	seen := make(map[int]struct{}, 4)
	out := make([]int, 0, 4)
	for lat := minLat; lat <= maxLat; lat++ {
		for lng := minLng; lng <= maxLng; lng++ {
			s := stripeOf(lat, lng)
			if _, ok := seen[s]; !ok {
				seen[s] = struct{}{}
				out = append(out, s)
			}
		}
	}
	sort.Ints(out)
	return out
}

func (l *Ledger) lockStripes(stripes []int) {
	for _, s := range stripes {
		l.stripes[s].Lock()
	}
}

func (l *Ledger) unlockStripes(stripes []int) {
	for i := len(stripes) - 1; i >= 0; i-- {
		l.stripes[stripes[i]].Unlock()
	}
}

// lockFlag resolves a flag and locks its region stripe. While the
// stripe is held the flag cannot be mutated or removed. The caller
// unlocks l.stripes[s].
func (l *Ledger) lockFlag(flagID int64) (f *Flag, s int, err error) {
	for {
		l.mu.RLock()
		f = l.flags[flagID]
		l.mu.RUnlock()
		if f == nil {
			return nil, -1, NewRuleError(CodeNotFound, "flag %d not found", flagID)
		}
		s = l.stripeFor(f.Position)
		l.stripes[s].Lock()
		l.mu.RLock()
		cur := l.flags[flagID]
		l.mu.RUnlock()
		if cur == f {
			return f, s, nil
		}
		// removed while we were acquiring the stripe; retry
		l.stripes[s].Unlock()
	}
}

func (l *Ledger) ownerIndexLocked(ownerID int64) map[int64]*Flag {
	m := l.byOwner[ownerID]
	if m == nil {
		m = make(map[int64]*Flag)
		l.byOwner[ownerID] = m
	}
	return m
}

// AddFlag installs an existing flag without placement validation, for
// seed system flags and rows loaded from storage at boot. Raises the
// id counter so later placements allocate past it.
func (l *Ledger) AddFlag(f *Flag) error {
	if !f.Position.IsFinite() {
		return fmt.Errorf("flag %d: position is not finite", f.ID)
	}
	if f.VisualBoundary < f.Radius {
		return fmt.Errorf("flag %d: visual boundary %.0f below radius %.0f", f.ID, f.VisualBoundary, f.Radius)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, dup := l.flags[f.ID]; dup {
		return fmt.Errorf("duplicate flag id %d", f.ID)
	}
	l.flags[f.ID] = f
	l.ownerIndexLocked(f.OwnerID)[f.ID] = f
	l.grid.Insert(f.ID, f.Position)
	if f.VisualBoundary > l.maxBoundary {
		l.maxBoundary = f.VisualBoundary
	}
	for {
		cur := l.nextID.Load()
		if f.ID <= cur || l.nextID.CompareAndSwap(cur, f.ID) {
			break
		}
	}
	return nil
}

// SetStart designates the flag new players anchor their first
// placement to. The flag must already be in the ledger.
func (l *Ledger) SetStart(flagID int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.flags[flagID] == nil {
		return fmt.Errorf("start flag %d not in ledger", flagID)
	}
	l.startID = flagID
	return nil
}

// StartFlag returns a copy of the designated start flag.
func (l *Ledger) StartFlag() (Flag, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	f := l.flags[l.startID]
	if f == nil {
		return Flag{}, false
	}
	return *f, true
}

// PlaceFlag validates and commits a new flag for a player. The whole
// check-then-insert runs under the region stripes covering the
// placement neighborhood, so two players cannot race overlapping
// claims past each other.
func (l *Ledger) PlaceFlag(ctx context.Context, playerID int64, pos geo.Coordinate, opts PlaceOptions) (Flag, error) {
	snap, err := l.directory.GetPlayer(ctx, playerID)
	if err != nil {
		return Flag{}, WrapRule(CodeDirectoryUnavailable, err, "player directory unreachable")
	}
	if snap == nil {
		return Flag{}, NewRuleError(CodeNotFound, "player %d not found", playerID)
	}
	if !pos.IsFinite() {
		return Flag{}, NewRuleError(CodeValidationFailed, "position is not a finite coordinate")
	}
	if opts.Toll < 0 || math.IsNaN(opts.Toll) || math.IsInf(opts.Toll, 1) {
		return Flag{}, NewRuleError(CodeValidationFailed, "toll must be a non-negative amount")
	}

	l.mu.RLock()
	anchors := make([]*Flag, 0, len(l.byOwner[playerID]))
	for _, f := range l.byOwner[playerID] {
		anchors = append(anchors, f)
	}
	start := l.flags[l.startID]
	reach := FlagRadius + l.maxBoundary
	l.mu.RUnlock()

	// A player's own flag set only changes through their own serialized
	// requests, so the anchor decision cannot go stale before commit.
	if err := checkAnchor(pos, anchors, start); err != nil {
		return Flag{}, err
	}

	box := geo.BoxAround(pos, reach)
	stripes := l.stripesForBox(box)
	l.lockStripes(stripes)
	defer l.unlockStripes(stripes)

	if err := l.checkOverlap(playerID, pos, box); err != nil {
		return Flag{}, err
	}

	toll := 0.0
	if opts.Public {
		toll = opts.Toll
	}
	now := time.Now()
	f := &Flag{
		ID:             l.nextID.Add(1),
		OwnerID:        playerID,
		OwnerName:      snap.Name,
		Name:           opts.Name,
		Position:       pos,
		Radius:         FlagRadius,
		VisualBoundary: VisualBoundary,
		Kind:           KindNormal,
		Public:         opts.Public,
		Toll:           toll,
		Health:         DefaultHealth,
		CreatedAt:      now,
		UpdatedAt:      now,
		LastVisited:    now,
	}

	l.mu.Lock()
	l.flags[f.ID] = f
	l.ownerIndexLocked(playerID)[f.ID] = f
	l.grid.Insert(f.ID, pos)
	l.dirty[f.ID] = struct{}{}
	l.mu.Unlock()
	return *f, nil
}

// checkAnchor enforces territorial expansion: the first flag plants
// near the start flag, every later flag inside the visual boundary of
// one the player already owns.
func checkAnchor(pos geo.Coordinate, anchors []*Flag, start *Flag) error {
	if len(anchors) == 0 {
		if start == nil {
			return fmt.Errorf("start flag not configured")
		}
		if geo.Distance(pos, start.Position) > start.VisualBoundary {
			return NewRuleError(CodeRuleViolation,
				"first flag must be planted within %.0fm of the start flag", start.VisualBoundary)
		}
		return nil
	}
	for _, a := range anchors {
		if geo.Distance(pos, a.Position) <= a.VisualBoundary {
			return nil
		}
	}
	return NewRuleError(CodeRuleViolation, "flag must be planted within reach of your own territory")
}

// checkOverlap rejects a placement whose territory would cut into a
// foreign claim. Own flags and system flags do not block; abandoned
// flags still do. The caller holds the stripes covering box.
func (l *Ledger) checkOverlap(playerID int64, pos geo.Coordinate, box geo.BoundingBox) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var (
		nearest     *Flag
		nearestDist float64
	)
	for _, id := range l.grid.Query(box) {
		f := l.flags[id]
		if f == nil {
			panic(fmt.Sprintf("world: flag grid references unknown flag %d", id))
		}
		if f.OwnerID == playerID || f.Kind == KindSystem {
			continue
		}
		d := geo.Distance(pos, f.Position)
		if d < FlagRadius+f.Radius && (nearest == nil || d < nearestDist) {
			nearest = f
			nearestDist = d
		}
	}
	if nearest != nil {
		return NewRuleError(CodeRuleViolation,
			"territory would overlap %s's flag %q", nearest.OwnerName, nearest.Name)
	}
	return nil
}

// RemoveFlag deletes a player's flag and reports the material refund.
// System flags are permanent.
func (l *Ledger) RemoveFlag(playerID, flagID int64) (Refund, error) {
	f, s, err := l.lockFlag(flagID)
	if err != nil {
		return Refund{}, err
	}
	defer l.stripes[s].Unlock()
	if f.Kind == KindSystem {
		return Refund{}, NewRuleError(CodeUnremovable, "flag %q cannot be removed", f.Name)
	}
	if f.OwnerID != playerID {
		return Refund{}, NewRuleError(CodePermissionDenied, "flag %q belongs to %s", f.Name, f.OwnerName)
	}
	refund := RefundFor(f)

	l.mu.Lock()
	delete(l.flags, flagID)
	if owned := l.byOwner[playerID]; owned != nil {
		delete(owned, flagID)
		if len(owned) == 0 {
			delete(l.byOwner, playerID)
		}
	}
	l.grid.Remove(flagID, f.Position)
	delete(l.dirty, flagID)
	l.removed[flagID] = struct{}{}
	l.mu.Unlock()
	return refund, nil
}

// HardenFlag upgrades a flag. Hardening is permanent and raises the
// removal refund.
func (l *Ledger) HardenFlag(playerID, flagID int64) error {
	f, s, err := l.lockFlag(flagID)
	if err != nil {
		return err
	}
	defer l.stripes[s].Unlock()
	if f.OwnerID != playerID {
		return NewRuleError(CodePermissionDenied, "flag %q belongs to %s", f.Name, f.OwnerName)
	}
	if f.Hardened {
		return NewRuleError(CodeAlreadyInState, "flag %q is already hardened", f.Name)
	}
	l.mu.Lock()
	f.Hardened = true
	f.UpdatedAt = time.Now()
	l.dirty[f.ID] = struct{}{}
	l.mu.Unlock()
	return nil
}

func (l *Ledger) quote(playerID int64, f *Flag) TeleportQuote {
	switch {
	case f.OwnerID == playerID:
		return TeleportQuote{Allowed: true}
	case f.Kind == KindSystem:
		return TeleportQuote{Allowed: true, Cost: SystemTeleportCost}
	case f.Public:
		return TeleportQuote{Allowed: true, Cost: f.Toll}
	default:
		return TeleportQuote{Reason: "this flag is private"}
	}
}

// CanTeleport quotes travel to a flag: owners ride free, system flags
// charge a flat fare, public flags charge their toll, private foreign
// flags refuse.
func (l *Ledger) CanTeleport(playerID, flagID int64) (TeleportQuote, error) {
	l.mu.RLock()
	f := l.flags[flagID]
	l.mu.RUnlock()
	if f == nil {
		return TeleportQuote{}, NewRuleError(CodeNotFound, "flag %d not found", flagID)
	}
	return l.quote(playerID, f), nil
}

// Teleport authorizes travel to a flag and stamps its visit time,
// resetting the abandonment clock. The caller debits the quoted cost
// and moves the player.
func (l *Ledger) Teleport(playerID, flagID int64) (TeleportResult, error) {
	f, s, err := l.lockFlag(flagID)
	if err != nil {
		return TeleportResult{}, err
	}
	defer l.stripes[s].Unlock()
	q := l.quote(playerID, f)
	if !q.Allowed {
		return TeleportResult{}, NewRuleError(CodePermissionDenied, "%s", q.Reason)
	}
	l.mu.Lock()
	f.LastVisited = time.Now()
	f.UpdatedAt = f.LastVisited
	l.dirty[f.ID] = struct{}{}
	l.mu.Unlock()
	return TeleportResult{
		FlagID:         f.ID,
		Position:       f.Position,
		VisualBoundary: f.VisualBoundary,
		Cost:           q.Cost,
	}, nil
}

// GetFlag returns a value copy of one flag.
func (l *Ledger) GetFlag(flagID int64) (Flag, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	f := l.flags[flagID]
	if f == nil {
		return Flag{}, false
	}
	return *f, true
}

// FlagsWithinRadius returns copies of every flag within the given
// distance of a point, nearest first.
func (l *Ledger) FlagsWithinRadius(p geo.Coordinate, meters float64) []Flag {
	box := geo.BoxAround(p, meters)
	l.mu.RLock()
	out := make([]Flag, 0, 8)
	for _, id := range l.grid.Query(box) {
		f := l.flags[id]
		if f == nil {
			panic(fmt.Sprintf("world: flag grid references unknown flag %d", id))
		}
		if geo.Distance(p, f.Position) <= meters {
			out = append(out, *f)
		}
	}
	l.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		di, dj := geo.Distance(p, out[i].Position), geo.Distance(p, out[j].Position)
		if di != dj {
			return di < dj
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// OwnerFlags returns copies of a player's flags, oldest first.
func (l *Ledger) OwnerFlags(playerID int64) []Flag {
	l.mu.RLock()
	owned := l.byOwner[playerID]
	out := make([]Flag, 0, len(owned))
	for _, f := range owned {
		out = append(out, *f)
	}
	l.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Count returns the number of flags in the ledger.
func (l *Ledger) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.flags)
}

// Counts reports total and not-yet-abandoned flag counts.
func (l *Ledger) Counts() (total, active int) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for _, f := range l.flags {
		total++
		if !f.Abandoned {
			active++
		}
	}
	return total, active
}

// SweepAbandoned marks normal flags unvisited for longer than
// AbandonedTimeout. System flags, shrines and towers never abandon.
// Returns copies of the flags flipped this pass.
func (l *Ledger) SweepAbandoned(now time.Time) []Flag {
	cutoff := now.Add(-AbandonedTimeout)

	// Collect candidates under the read lock, then take each flag's
	// stripe and re-check: a teleport may refresh a visit time while
	// the sweep is scanning.
	l.mu.RLock()
	candidates := make([]*Flag, 0, 16)
	for _, f := range l.flags {
		if f.Kind != KindNormal || f.Abandoned {
			continue
		}
		if f.LastVisited.Before(cutoff) {
			candidates = append(candidates, f)
		}
	}
	l.mu.RUnlock()

	var flipped []Flag
	for _, f := range candidates {
		s := l.stripeFor(f.Position)
		l.stripes[s].Lock()
		l.mu.RLock()
		present := l.flags[f.ID] == f
		l.mu.RUnlock()
		if !present || f.Abandoned || !f.LastVisited.Before(cutoff) {
			l.stripes[s].Unlock()
			continue
		}
		l.mu.Lock()
		f.Abandoned = true
		f.UpdatedAt = now
		l.dirty[f.ID] = struct{}{}
		flipped = append(flipped, *f)
		l.mu.Unlock()
		l.stripes[s].Unlock()
	}
	return flipped
}

// DrainDirty hands back copies of flags changed since the last drain
// plus the ids removed, clearing both sets. On a failed flush the
// caller requeues so nothing is lost.
func (l *Ledger) DrainDirty() ([]Flag, []int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.dirty) == 0 && len(l.removed) == 0 {
		return nil, nil
	}
	flags := make([]Flag, 0, len(l.dirty))
	for id := range l.dirty {
		if f := l.flags[id]; f != nil {
			flags = append(flags, *f)
		}
	}
	removed := make([]int64, 0, len(l.removed))
	for id := range l.removed {
		removed = append(removed, id)
	}
	l.dirty = make(map[int64]struct{})
	l.removed = make(map[int64]struct{})
	return flags, removed
}

// Requeue marks flags dirty and removals pending again after a failed
// flush.
func (l *Ledger) Requeue(flagIDs, removedIDs []int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, id := range flagIDs {
		if _, ok := l.flags[id]; ok {
			l.dirty[id] = struct{}{}
		}
	}
	for _, id := range removedIDs {
		l.removed[id] = struct{}{}
	}
}
