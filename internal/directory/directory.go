// Package directory maintains the live player table: who is online,
// where they are, and what they can spend. It implements the
// world.PlayerDirectory contract consumed by the core. Positions are
// batch-flushed; gold is written through to the store synchronously.
package directory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"github.com/wardstone/server/internal/geo"
	"github.com/wardstone/server/internal/persist"
	"github.com/wardstone/server/internal/world"
)

// startingGold is the balance granted to newly created players.
const startingGold = 100

// maxNameLen bounds player names in runes after normalization.
const maxNameLen = 32

// PlayerStore is the durable side of the directory. *persist.PlayerRepo
// satisfies it.
type PlayerStore interface {
	Load(ctx context.Context, id int64) (*persist.PlayerRow, error)
	LoadByName(ctx context.Context, name string) (*persist.PlayerRow, error)
	Create(ctx context.Context, name, rawSecret string, startLat, startLng, gold float64) (*persist.PlayerRow, error)
	ValidateSecret(hash string, rawSecret string) bool
	UpdatePosition(ctx context.Context, id int64, lat, lng float64) error
	AdjustGold(ctx context.Context, id int64, delta float64) (float64, error)
	SetOnline(ctx context.Context, id int64, online bool) error
}

type livePlayer struct {
	id         int64
	name       string
	secretHash string
	start      geo.Coordinate
	pos        geo.Coordinate
	lastUpdate time.Time
	gold       float64
}

// Directory is the in-memory live player table backed by a PlayerStore.
// All livePlayer state is guarded by mu; store calls happen outside it.
type Directory struct {
	mu     sync.RWMutex
	live   map[int64]*livePlayer
	byName map[string]int64
	dirty  map[int64]struct{}

	store      PlayerStore
	autoCreate bool
	log        *zap.Logger
}

var _ world.PlayerDirectory = (*Directory)(nil)

func NewDirectory(store PlayerStore, autoCreate bool, log *zap.Logger) *Directory {
	return &Directory{
		live:       make(map[int64]*livePlayer),
		byName:     make(map[string]int64),
		dirty:      make(map[int64]struct{}),
		store:      store,
		autoCreate: autoCreate,
		log:        log,
	}
}

// NormalizeName trims and NFC-normalizes a player-supplied name so that
// visually identical names compare and store identically.
func NormalizeName(raw string) string {
	return norm.NFC.String(strings.TrimSpace(raw))
}

// Join authenticates a player session, creating the player at pos when
// auto-create is on and the name is unknown. Returns the snapshot and
// whether the player was created. A second concurrent session for the
// same name is rejected; per-player request ordering depends on there
// being at most one.
func (d *Directory) Join(ctx context.Context, name, secret string, pos geo.Coordinate) (*world.PlayerSnapshot, bool, error) {
	name = NormalizeName(name)
	if name == "" {
		return nil, false, world.NewRuleError(world.CodeValidationFailed, "name required")
	}
	if utf8.RuneCountInString(name) > maxNameLen {
		return nil, false, world.NewRuleError(world.CodeValidationFailed, "name longer than %d characters", maxNameLen)
	}
	if secret == "" {
		return nil, false, world.NewRuleError(world.CodeValidationFailed, "secret required")
	}
	if !pos.IsFinite() {
		return nil, false, world.NewRuleError(world.CodeValidationFailed, "position must be finite")
	}

	d.mu.RLock()
	_, online := d.byName[name]
	d.mu.RUnlock()
	if online {
		return nil, false, world.NewRuleError(world.CodeAlreadyInState, "player %q is already online", name)
	}

	row, err := d.store.LoadByName(ctx, name)
	if err != nil {
		return nil, false, world.WrapRule(world.CodeDirectoryUnavailable, err, "player lookup failed")
	}
	created := false
	if row == nil {
		if !d.autoCreate {
			return nil, false, world.NewRuleError(world.CodeNotFound, "unknown player %q", name)
		}
		row, err = d.store.Create(ctx, name, secret, pos.Lat, pos.Lng, startingGold)
		if err != nil {
			return nil, false, world.WrapRule(world.CodeDirectoryUnavailable, err, "player create failed")
		}
		created = true
	} else if !d.store.ValidateSecret(row.SecretHash, secret) {
		return nil, false, world.NewRuleError(world.CodePermissionDenied, "wrong secret for %q", name)
	}

	p := &livePlayer{
		id:         row.ID,
		name:       row.Name,
		secretHash: row.SecretHash,
		start:      geo.Coordinate{Lat: row.StartLat, Lng: row.StartLng},
		pos:        geo.Coordinate{Lat: row.Lat, Lng: row.Lng},
		gold:       row.Gold,
	}
	// lastUpdate stays zero on purpose: client movement timestamps are
	// not durable, so the first update of a fresh session bypasses the
	// speed check instead of comparing against a stale clock.

	d.mu.Lock()
	if _, raced := d.byName[name]; raced {
		d.mu.Unlock()
		return nil, false, world.NewRuleError(world.CodeAlreadyInState, "player %q is already online", name)
	}
	d.live[row.ID] = p
	d.byName[name] = row.ID
	snap := snapshotOf(p)
	d.mu.Unlock()

	if err := d.store.SetOnline(ctx, row.ID, true); err != nil {
		d.log.Warn("set online failed", zap.Int64("player", row.ID), zap.Error(err))
	}
	d.log.Info("player joined",
		zap.Int64("player", row.ID),
		zap.String("name", name),
		zap.Bool("created", created))
	return snap, created, nil
}

// Leave saves the player's final position and drops them from the live
// table. Safe to call for players who are not online.
func (d *Directory) Leave(ctx context.Context, id int64) {
	d.mu.Lock()
	p, ok := d.live[id]
	if !ok {
		d.mu.Unlock()
		return
	}
	delete(d.live, id)
	delete(d.byName, p.name)
	delete(d.dirty, id)
	pos := p.pos
	d.mu.Unlock()

	if err := d.store.UpdatePosition(ctx, id, pos.Lat, pos.Lng); err != nil {
		d.log.Warn("final position save failed", zap.Int64("player", id), zap.Error(err))
	}
	if err := d.store.SetOnline(ctx, id, false); err != nil {
		d.log.Warn("set offline failed", zap.Int64("player", id), zap.Error(err))
	}
	d.log.Info("player left", zap.Int64("player", id), zap.String("name", p.name))
}

// GetPlayer returns a snapshot of the player, or (nil, nil) when no such
// player exists. Offline players are read through from the store without
// being pulled into the live table.
func (d *Directory) GetPlayer(ctx context.Context, id int64) (*world.PlayerSnapshot, error) {
	d.mu.RLock()
	if p, ok := d.live[id]; ok {
		snap := snapshotOf(p)
		d.mu.RUnlock()
		return snap, nil
	}
	d.mu.RUnlock()

	row, err := d.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, nil
	}
	return &world.PlayerSnapshot{
		ID:       row.ID,
		Name:     row.Name,
		Position: geo.Coordinate{Lat: row.Lat, Lng: row.Lng},
		Start:    geo.Coordinate{Lat: row.StartLat, Lng: row.StartLng},
	}, nil
}

// UpdatePlayerPosition records an accepted movement for an online player.
// at becomes the snapshot's LastUpdate, keeping speed checks on the
// client's clock.
func (d *Directory) UpdatePlayerPosition(ctx context.Context, id int64, pos geo.Coordinate, at time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.live[id]
	if !ok {
		return fmt.Errorf("player %d is not online", id)
	}
	p.pos = pos
	p.lastUpdate = at
	d.dirty[id] = struct{}{}
	return nil
}

func (d *Directory) PlayerExists(ctx context.Context, id int64) (bool, error) {
	d.mu.RLock()
	_, ok := d.live[id]
	d.mu.RUnlock()
	if ok {
		return true, nil
	}
	row, err := d.store.Load(ctx, id)
	if err != nil {
		return false, err
	}
	return row != nil, nil
}

// Gold returns the live balance of an online player.
func (d *Directory) Gold(id int64) (float64, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.live[id]
	if !ok {
		return 0, false
	}
	return p.gold, true
}

// Debit withdraws amount from an online player, writing the change
// through to the store. The in-memory balance is reconciled to the
// durable one on success and reverted on failure.
func (d *Directory) Debit(ctx context.Context, id int64, amount float64) (float64, error) {
	if amount < 0 {
		return 0, fmt.Errorf("negative debit %.2f", amount)
	}
	d.mu.Lock()
	p, ok := d.live[id]
	if !ok {
		d.mu.Unlock()
		return 0, world.NewRuleError(world.CodeNotFound, "player %d is not online", id)
	}
	if amount == 0 {
		bal := p.gold
		d.mu.Unlock()
		return bal, nil
	}
	if p.gold < amount {
		bal := p.gold
		d.mu.Unlock()
		return bal, world.NewRuleError(world.CodeRuleViolation, "not enough gold (need %.0f, have %.0f)", amount, bal)
	}
	p.gold -= amount
	d.mu.Unlock()

	bal, err := d.store.AdjustGold(ctx, id, -amount)
	if err != nil {
		d.mu.Lock()
		if p, ok := d.live[id]; ok {
			p.gold += amount
		}
		d.mu.Unlock()
		return 0, world.WrapRule(world.CodeDirectoryUnavailable, err, "gold debit failed")
	}
	d.reconcileGold(id, bal)
	return bal, nil
}

// Credit deposits amount to a player, online or not. Online balances are
// reconciled to the durable one.
func (d *Directory) Credit(ctx context.Context, id int64, amount float64) (float64, error) {
	if amount < 0 {
		return 0, fmt.Errorf("negative credit %.2f", amount)
	}
	if amount == 0 {
		bal, _ := d.Gold(id)
		return bal, nil
	}
	bal, err := d.store.AdjustGold(ctx, id, amount)
	if err != nil {
		return 0, world.WrapRule(world.CodeDirectoryUnavailable, err, "gold credit failed")
	}
	d.reconcileGold(id, bal)
	return bal, nil
}

func (d *Directory) reconcileGold(id int64, balance float64) {
	d.mu.Lock()
	if p, ok := d.live[id]; ok {
		p.gold = balance
	}
	d.mu.Unlock()
}

// Online returns the number of players in the live table.
func (d *Directory) Online() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.live)
}

// FlushDirty saves the positions of players that moved since the last
// flush. Players whose save fails stay dirty for the next round. Returns
// the number of players saved.
func (d *Directory) FlushDirty(ctx context.Context) int {
	type posSave struct {
		id       int64
		lat, lng float64
	}
	d.mu.Lock()
	saves := make([]posSave, 0, len(d.dirty))
	for id := range d.dirty {
		if p, ok := d.live[id]; ok {
			saves = append(saves, posSave{id: id, lat: p.pos.Lat, lng: p.pos.Lng})
		}
	}
	d.dirty = make(map[int64]struct{})
	d.mu.Unlock()

	flushed := 0
	for _, s := range saves {
		if err := d.store.UpdatePosition(ctx, s.id, s.lat, s.lng); err != nil {
			d.log.Warn("position flush failed", zap.Int64("player", s.id), zap.Error(err))
			d.mu.Lock()
			if _, stillLive := d.live[s.id]; stillLive {
				d.dirty[s.id] = struct{}{}
			}
			d.mu.Unlock()
			continue
		}
		flushed++
	}
	return flushed
}

func snapshotOf(p *livePlayer) *world.PlayerSnapshot {
	return &world.PlayerSnapshot{
		ID:         p.id,
		Name:       p.name,
		Position:   p.pos,
		Start:      p.start,
		LastUpdate: p.lastUpdate,
	}
}
