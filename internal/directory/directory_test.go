package directory

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/wardstone/server/internal/geo"
	"github.com/wardstone/server/internal/persist"
	"github.com/wardstone/server/internal/world"
)

type fakeStore struct {
	mu          sync.Mutex
	rows        map[int64]*persist.PlayerRow
	byName      map[string]int64
	nextID      int64
	failLoads   bool
	failUpdates bool
	failAdjust  bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		rows:   make(map[int64]*persist.PlayerRow),
		byName: make(map[string]int64),
	}
}

func (s *fakeStore) seed(name string, lat, lng, gold float64) *persist.PlayerRow {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	row := &persist.PlayerRow{
		ID: s.nextID, Name: name, SecretHash: "h:" + name,
		StartLat: lat, StartLng: lng, Lat: lat, Lng: lng, Gold: gold,
	}
	s.rows[row.ID] = row
	s.byName[name] = row.ID
	return row
}

func (s *fakeStore) Load(ctx context.Context, id int64) (*persist.PlayerRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failLoads {
		return nil, errors.New("store down")
	}
	row, ok := s.rows[id]
	if !ok {
		return nil, nil
	}
	copied := *row
	return &copied, nil
}

func (s *fakeStore) LoadByName(ctx context.Context, name string) (*persist.PlayerRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failLoads {
		return nil, errors.New("store down")
	}
	id, ok := s.byName[name]
	if !ok {
		return nil, nil
	}
	copied := *s.rows[id]
	return &copied, nil
}

func (s *fakeStore) Create(ctx context.Context, name, rawSecret string, startLat, startLng, gold float64) (*persist.PlayerRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.byName[name]; dup {
		return nil, errors.New("duplicate name")
	}
	s.nextID++
	row := &persist.PlayerRow{
		ID: s.nextID, Name: name, SecretHash: "h:" + rawSecret,
		StartLat: startLat, StartLng: startLng, Lat: startLat, Lng: startLng, Gold: gold,
	}
	s.rows[row.ID] = row
	s.byName[name] = row.ID
	copied := *row
	return &copied, nil
}

func (s *fakeStore) ValidateSecret(hash string, rawSecret string) bool {
	return hash == "h:"+rawSecret
}

func (s *fakeStore) UpdatePosition(ctx context.Context, id int64, lat, lng float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failUpdates {
		return errors.New("store down")
	}
	row, ok := s.rows[id]
	if !ok {
		return fmt.Errorf("no player %d", id)
	}
	row.Lat, row.Lng = lat, lng
	return nil
}

func (s *fakeStore) AdjustGold(ctx context.Context, id int64, delta float64) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAdjust {
		return 0, errors.New("store down")
	}
	row, ok := s.rows[id]
	if !ok {
		return 0, fmt.Errorf("no player %d", id)
	}
	row.Gold += delta
	return row.Gold, nil
}

func (s *fakeStore) SetOnline(ctx context.Context, id int64, online bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if row, ok := s.rows[id]; ok {
		row.Online = online
	}
	return nil
}

func (s *fakeStore) row(id int64) persist.PlayerRow {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.rows[id]
}

func newTestDirectory(store PlayerStore) *Directory {
	return NewDirectory(store, true, zap.NewNop())
}

var joinPos = geo.Coordinate{Lat: 48.1374, Lng: 11.5755}

func TestJoinCreatesPlayer(t *testing.T) {
	store := newFakeStore()
	d := newTestDirectory(store)

	snap, created, err := d.Join(context.Background(), "walt", "hunter2", joinPos)
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if !created {
		t.Fatalf("expected a fresh player")
	}
	if snap.Name != "walt" || snap.Start != joinPos || snap.Position != joinPos {
		t.Fatalf("snapshot = %+v", snap)
	}
	if !snap.LastUpdate.IsZero() {
		t.Fatalf("fresh session must start with zero LastUpdate")
	}
	if gold, ok := d.Gold(snap.ID); !ok || gold != startingGold {
		t.Fatalf("gold = %v/%v, want %v", gold, ok, startingGold)
	}
	if d.Online() != 1 {
		t.Fatalf("online = %d, want 1", d.Online())
	}
	if row := store.row(snap.ID); !row.Online {
		t.Fatalf("store row not marked online")
	}
}

func TestJoinExistingPlayer(t *testing.T) {
	store := newFakeStore()
	row := store.seed("rosa", 48.0, 11.0, 55)
	d := newTestDirectory(store)

	snap, created, err := d.Join(context.Background(), "rosa", "rosa", joinPos)
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if created {
		t.Fatalf("seeded player should not be re-created")
	}
	if snap.ID != row.ID {
		t.Fatalf("id = %d, want %d", snap.ID, row.ID)
	}
	if snap.Position.Lat != 48.0 || snap.Start.Lat != 48.0 {
		t.Fatalf("join must restore the stored position, got %+v", snap)
	}
	if gold, _ := d.Gold(row.ID); gold != 55 {
		t.Fatalf("gold = %v, want 55", gold)
	}
}

func TestJoinWrongSecret(t *testing.T) {
	store := newFakeStore()
	store.seed("rosa", 48.0, 11.0, 0)
	d := newTestDirectory(store)

	_, _, err := d.Join(context.Background(), "rosa", "nope", joinPos)
	if !world.IsRule(err, world.CodePermissionDenied) {
		t.Fatalf("err = %v, want permission_denied", err)
	}
}

func TestJoinUnknownWithoutAutoCreate(t *testing.T) {
	d := NewDirectory(newFakeStore(), false, zap.NewNop())
	_, _, err := d.Join(context.Background(), "ghost", "x", joinPos)
	if !world.IsRule(err, world.CodeNotFound) {
		t.Fatalf("err = %v, want not_found", err)
	}
}

func TestJoinValidation(t *testing.T) {
	d := newTestDirectory(newFakeStore())
	ctx := context.Background()

	if _, _, err := d.Join(ctx, "   ", "x", joinPos); !world.IsRule(err, world.CodeValidationFailed) {
		t.Fatalf("blank name: %v", err)
	}
	long := ""
	for i := 0; i < maxNameLen+1; i++ {
		long += "a"
	}
	if _, _, err := d.Join(ctx, long, "x", joinPos); !world.IsRule(err, world.CodeValidationFailed) {
		t.Fatalf("long name: %v", err)
	}
	if _, _, err := d.Join(ctx, "walt", "", joinPos); !world.IsRule(err, world.CodeValidationFailed) {
		t.Fatalf("empty secret: %v", err)
	}
	bad := geo.Coordinate{Lat: 48.0, Lng: math.NaN()}
	if _, _, err := d.Join(ctx, "walt", "x", bad); !world.IsRule(err, world.CodeValidationFailed) {
		t.Fatalf("non-finite position: %v", err)
	}
}

func TestJoinNormalizesName(t *testing.T) {
	store := newFakeStore()
	d := newTestDirectory(store)

	// Decomposed "é" must store as the composed form.
	snap, _, err := d.Join(context.Background(), "  José  ", "x", joinPos)
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if snap.Name != "José" {
		t.Fatalf("name = %q, want composed %q", snap.Name, "José")
	}
}

func TestJoinRejectsSecondSession(t *testing.T) {
	d := newTestDirectory(newFakeStore())
	ctx := context.Background()

	if _, _, err := d.Join(ctx, "walt", "hunter2", joinPos); err != nil {
		t.Fatalf("first join: %v", err)
	}
	_, _, err := d.Join(ctx, "walt", "hunter2", joinPos)
	if !world.IsRule(err, world.CodeAlreadyInState) {
		t.Fatalf("second join err = %v, want already_in_state", err)
	}
}

func TestLeaveSavesAndFreesName(t *testing.T) {
	store := newFakeStore()
	d := newTestDirectory(store)
	ctx := context.Background()

	snap, _, err := d.Join(ctx, "walt", "hunter2", joinPos)
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	moved := geo.Coordinate{Lat: 48.2, Lng: 11.6}
	if err := d.UpdatePlayerPosition(ctx, snap.ID, moved, time.Now()); err != nil {
		t.Fatalf("UpdatePlayerPosition: %v", err)
	}

	d.Leave(ctx, snap.ID)
	if d.Online() != 0 {
		t.Fatalf("online = %d after leave", d.Online())
	}
	row := store.row(snap.ID)
	if row.Lat != moved.Lat || row.Lng != moved.Lng {
		t.Fatalf("final position not saved: %+v", row)
	}
	if row.Online {
		t.Fatalf("store row still online")
	}

	// The name is free for the next session.
	if _, _, err := d.Join(ctx, "walt", "hunter2", joinPos); err != nil {
		t.Fatalf("rejoin after leave: %v", err)
	}
}

func TestGetPlayerReadsThroughOffline(t *testing.T) {
	store := newFakeStore()
	row := store.seed("rosa", 48.0, 11.0, 0)
	d := newTestDirectory(store)
	ctx := context.Background()

	snap, err := d.GetPlayer(ctx, row.ID)
	if err != nil {
		t.Fatalf("GetPlayer: %v", err)
	}
	if snap == nil || snap.Name != "rosa" {
		t.Fatalf("snapshot = %+v", snap)
	}
	if d.Online() != 0 {
		t.Fatalf("read-through must not pull the player online")
	}

	missing, err := d.GetPlayer(ctx, 9999)
	if err != nil || missing != nil {
		t.Fatalf("unknown player = %+v, %v; want nil, nil", missing, err)
	}

	store.failLoads = true
	if _, err := d.GetPlayer(ctx, row.ID); err == nil {
		t.Fatalf("expected store error to surface")
	}
}

func TestUpdatePositionRequiresOnline(t *testing.T) {
	store := newFakeStore()
	row := store.seed("rosa", 48.0, 11.0, 0)
	d := newTestDirectory(store)

	err := d.UpdatePlayerPosition(context.Background(), row.ID, joinPos, time.Now())
	if err == nil {
		t.Fatalf("expected error for offline player")
	}
}

func TestDebitAndCredit(t *testing.T) {
	store := newFakeStore()
	d := newTestDirectory(store)
	ctx := context.Background()

	snap, _, err := d.Join(ctx, "walt", "hunter2", joinPos)
	if err != nil {
		t.Fatalf("Join: %v", err)
	}

	bal, err := d.Debit(ctx, snap.ID, 30)
	if err != nil || bal != startingGold-30 {
		t.Fatalf("Debit = %v, %v; want %v", bal, err, startingGold-30)
	}
	if row := store.row(snap.ID); row.Gold != startingGold-30 {
		t.Fatalf("debit not written through: %v", row.Gold)
	}

	_, err = d.Debit(ctx, snap.ID, 10000)
	if !world.IsRule(err, world.CodeRuleViolation) {
		t.Fatalf("overdraft err = %v, want rule_violation", err)
	}
	if gold, _ := d.Gold(snap.ID); gold != startingGold-30 {
		t.Fatalf("overdraft changed balance to %v", gold)
	}

	bal, err = d.Credit(ctx, snap.ID, 5)
	if err != nil || bal != startingGold-25 {
		t.Fatalf("Credit = %v, %v", bal, err)
	}

	// Credit works for offline players too.
	offline := store.seed("rosa", 48.0, 11.0, 10)
	if _, err := d.Credit(ctx, offline.ID, 7); err != nil {
		t.Fatalf("offline credit: %v", err)
	}
	if row := store.row(offline.ID); row.Gold != 17 {
		t.Fatalf("offline credit balance = %v, want 17", row.Gold)
	}
}

func TestDebitRevertsOnStoreFailure(t *testing.T) {
	store := newFakeStore()
	d := newTestDirectory(store)
	ctx := context.Background()

	snap, _, err := d.Join(ctx, "walt", "hunter2", joinPos)
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	store.failAdjust = true

	_, err = d.Debit(ctx, snap.ID, 30)
	if !world.IsRule(err, world.CodeDirectoryUnavailable) {
		t.Fatalf("err = %v, want directory_unavailable", err)
	}
	if gold, _ := d.Gold(snap.ID); gold != startingGold {
		t.Fatalf("failed debit left balance at %v", gold)
	}
}

func TestFlushDirtyRetriesFailures(t *testing.T) {
	store := newFakeStore()
	d := newTestDirectory(store)
	ctx := context.Background()

	snap, _, err := d.Join(ctx, "walt", "hunter2", joinPos)
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	moved := geo.Coordinate{Lat: 48.2, Lng: 11.6}
	if err := d.UpdatePlayerPosition(ctx, snap.ID, moved, time.Now()); err != nil {
		t.Fatalf("UpdatePlayerPosition: %v", err)
	}

	store.failUpdates = true
	if n := d.FlushDirty(ctx); n != 0 {
		t.Fatalf("flush during outage = %d, want 0", n)
	}

	store.failUpdates = false
	if n := d.FlushDirty(ctx); n != 1 {
		t.Fatalf("retry flush = %d, want 1", n)
	}
	if row := store.row(snap.ID); row.Lat != moved.Lat {
		t.Fatalf("position not flushed: %+v", row)
	}
	if n := d.FlushDirty(ctx); n != 0 {
		t.Fatalf("clean flush = %d, want 0", n)
	}
}
