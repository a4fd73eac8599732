package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollectorRecords(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewEngineCollector(reg)
	if err != nil {
		t.Fatalf("NewEngineCollector: %v", err)
	}

	c.RecordEvent("flag_placed")
	c.RecordEvent("flag_placed")
	c.RecordReject("rule_violation")
	c.SetFlagsActive(7)
	c.SetPlayersOnline(3)
	c.ObserveSweep(25 * time.Millisecond)

	if got := testutil.ToFloat64(c.Events.WithLabelValues("flag_placed")); got != 2 {
		t.Fatalf("events_total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.Rejects.WithLabelValues("rule_violation")); got != 1 {
		t.Fatalf("rejects_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.FlagsActive); got != 7 {
		t.Fatalf("flags_active = %v, want 7", got)
	}
	if got := testutil.ToFloat64(c.PlayersOnline); got != 3 {
		t.Fatalf("players_online = %v, want 3", got)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	found := false
	for _, mf := range families {
		if mf.GetName() == "wardstone_sweep_duration_seconds" {
			found = true
			if n := mf.GetMetric()[0].GetHistogram().GetSampleCount(); n != 1 {
				t.Fatalf("sweep sample_count = %d, want 1", n)
			}
		}
	}
	if !found {
		t.Fatalf("sweep histogram not gathered")
	}
}

func TestCollectorReregisterReturnsExisting(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewEngineCollector(reg)
	if err != nil {
		t.Fatalf("first NewEngineCollector: %v", err)
	}
	second, err := NewEngineCollector(reg)
	if err != nil {
		t.Fatalf("second NewEngineCollector: %v", err)
	}

	first.RecordEvent("teleport")
	second.RecordEvent("teleport")
	if got := testutil.ToFloat64(first.Events.WithLabelValues("teleport")); got != 2 {
		t.Fatalf("shared counter = %v, want 2", got)
	}
}

func TestNilCollectorIsInert(t *testing.T) {
	var c *EngineCollector
	c.RecordEvent("x")
	c.RecordReject("y")
	c.SetFlagsActive(1)
	c.SetPlayersOnline(1)
	c.ObserveSweep(time.Second)
	if c.Handler() == nil {
		t.Fatalf("nil collector should still serve a handler")
	}
}
