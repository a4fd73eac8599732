package system

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/wardstone/server/internal/event"
	"github.com/wardstone/server/internal/observability"
	"github.com/wardstone/server/internal/world"
)

// SweepSystem periodically marks unvisited flags abandoned and
// broadcasts the transitions.
type SweepSystem struct {
	ledger   *world.Ledger
	bus      *event.Bus
	metrics  *observability.EngineCollector
	log      *zap.Logger
	interval time.Duration
}

func NewSweepSystem(ledger *world.Ledger, bus *event.Bus, metrics *observability.EngineCollector, log *zap.Logger, interval time.Duration) *SweepSystem {
	return &SweepSystem{
		ledger:   ledger,
		bus:      bus,
		metrics:  metrics,
		log:      log,
		interval: interval,
	}
}

// Run sweeps every interval until ctx is cancelled.
func (s *SweepSystem) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepOnce(time.Now())
		}
	}
}

// SweepOnce runs a single sweep against the given clock and returns the
// number of flags flipped.
func (s *SweepSystem) SweepOnce(now time.Time) int {
	start := time.Now()
	flipped := s.ledger.SweepAbandoned(now)
	took := time.Since(start)
	s.metrics.ObserveSweep(took)

	for _, f := range flipped {
		event.Emit(s.bus, world.FlagAbandoned{FlagID: f.ID, OwnerID: f.OwnerID})
	}

	_, active := s.ledger.Counts()
	s.metrics.SetFlagsActive(active)

	if len(flipped) > 0 {
		s.log.Info("abandonment sweep",
			zap.Int("abandoned", len(flipped)),
			zap.Int("active", active),
			zap.Duration("took", took))
	}
	return len(flipped)
}
