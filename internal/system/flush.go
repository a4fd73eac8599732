package system

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/wardstone/server/internal/geo"
	"github.com/wardstone/server/internal/persist"
	"github.com/wardstone/server/internal/world"
)

// flushTimeout bounds one persistence round trip.
const flushTimeout = 10 * time.Second

// FlagSink is the durable side of the flag flush. *persist.FlagRepo
// satisfies it.
type FlagSink interface {
	SaveBatch(ctx context.Context, upserts []persist.FlagRow, removed []int64) error
}

// PlayerFlusher saves dirty player positions. *directory.Directory
// satisfies it.
type PlayerFlusher interface {
	FlushDirty(ctx context.Context) int
}

// FlushSystem periodically writes dirty ledger flags and player
// positions behind the live state. A failed flag batch is requeued and
// retried next round.
type FlushSystem struct {
	ledger   *world.Ledger
	flags    FlagSink
	players  PlayerFlusher
	log      *zap.Logger
	interval time.Duration
}

func NewFlushSystem(ledger *world.Ledger, flags FlagSink, players PlayerFlusher, log *zap.Logger, interval time.Duration) *FlushSystem {
	return &FlushSystem{
		ledger:   ledger,
		flags:    flags,
		players:  players,
		log:      log,
		interval: interval,
	}
}

// Run flushes every interval until ctx is cancelled, then runs one final
// flush on a fresh context so shutdown does not lose dirty state.
func (s *FlushSystem) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			final, cancel := context.WithTimeout(context.Background(), flushTimeout)
			s.FlushOnce(final)
			cancel()
			return
		case <-ticker.C:
			s.FlushOnce(ctx)
		}
	}
}

// FlushOnce drains and saves the current dirty state. Returns the number
// of flags and players written.
func (s *FlushSystem) FlushOnce(ctx context.Context) (flags, players int) {
	dirty, removed := s.ledger.DrainDirty()
	if len(dirty) > 0 || len(removed) > 0 {
		rows := make([]persist.FlagRow, len(dirty))
		ids := make([]int64, len(dirty))
		for i := range dirty {
			rows[i] = FlagToRow(&dirty[i])
			ids[i] = dirty[i].ID
		}

		saveCtx, cancel := context.WithTimeout(ctx, flushTimeout)
		err := s.flags.SaveBatch(saveCtx, rows, removed)
		cancel()
		if err != nil {
			s.log.Error("flag flush failed",
				zap.Int("dirty", len(dirty)),
				zap.Int("removed", len(removed)),
				zap.Error(err))
			s.ledger.Requeue(ids, removed)
		} else {
			flags = len(dirty) + len(removed)
		}
	}

	players = s.players.FlushDirty(ctx)
	if flags > 0 || players > 0 {
		s.log.Debug("flush round",
			zap.Int("flags", flags),
			zap.Int("players", players))
	}
	return flags, players
}

// FlagToRow converts a ledger flag to its storage row.
func FlagToRow(f *world.Flag) persist.FlagRow {
	return persist.FlagRow{
		ID:             f.ID,
		OwnerID:        f.OwnerID,
		OwnerName:      f.OwnerName,
		Name:           f.Name,
		Lat:            f.Position.Lat,
		Lng:            f.Position.Lng,
		Radius:         f.Radius,
		VisualBoundary: f.VisualBoundary,
		Kind:           int16(f.Kind),
		Public:         f.Public,
		Toll:           f.Toll,
		Hardened:       f.Hardened,
		Abandoned:      f.Abandoned,
		Health:         f.Health,
		CreatedAt:      f.CreatedAt,
		UpdatedAt:      f.UpdatedAt,
		LastVisited:    f.LastVisited,
	}
}

// FlagFromRow rebuilds a ledger flag from its storage row.
func FlagFromRow(r *persist.FlagRow) *world.Flag {
	return &world.Flag{
		ID:             r.ID,
		OwnerID:        r.OwnerID,
		OwnerName:      r.OwnerName,
		Name:           r.Name,
		Position:       geo.Coordinate{Lat: r.Lat, Lng: r.Lng},
		Radius:         r.Radius,
		VisualBoundary: r.VisualBoundary,
		Kind:           world.FlagKind(r.Kind),
		Public:         r.Public,
		Toll:           r.Toll,
		Hardened:       r.Hardened,
		Abandoned:      r.Abandoned,
		Health:         r.Health,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.UpdatedAt,
		LastVisited:    r.LastVisited,
	}
}
