package journal

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"

	"github.com/wardstone/server/internal/event"
	"github.com/wardstone/server/internal/geo"
	"github.com/wardstone/server/internal/world"
)

func readBack(t *testing.T, dir string) []map[string]any {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read journal dir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("journal files = %d, want 1", len(entries))
	}
	f, err := os.Open(filepath.Join(dir, entries[0].Name()))
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		t.Fatalf("zstd reader: %v", err)
	}
	defer dec.Close()

	var records []map[string]any
	sc := bufio.NewScanner(dec)
	for sc.Scan() {
		var rec map[string]any
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			t.Fatalf("bad journal line %q: %v", sc.Text(), err)
		}
		records = append(records, rec)
	}
	if err := sc.Err(); err != nil {
		t.Fatalf("scan journal: %v", err)
	}
	return records
}

func TestWriterRoundTrip(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)

	if err := w.Write(record{At: time.Now().UTC(), Type: "flag_placed", Data: map[string]int{"id": 7}}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Write(record{At: time.Now().UTC(), Type: "flag_removed", Data: map[string]int{"id": 7}}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	records := readBack(t, dir)
	if len(records) != 2 {
		t.Fatalf("records = %d, want 2", len(records))
	}
	if records[0]["type"] != "flag_placed" || records[1]["type"] != "flag_removed" {
		t.Fatalf("record order wrong: %v", records)
	}
}

func TestAttachJournalsBusEvents(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)
	bus := event.NewBus()
	Attach(bus, w, zap.NewNop())

	event.Emit(bus, world.FlagPlaced{Flag: world.Flag{ID: 42, OwnerID: 9, Name: "North Camp"}})
	event.Emit(bus, world.PlayerMoved{
		PlayerID:  9,
		Position:  geo.Coordinate{Lat: 48.1, Lng: 11.5},
		Timestamp: time.Now(),
	})
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	records := readBack(t, dir)
	if len(records) != 2 {
		t.Fatalf("records = %d, want 2", len(records))
	}
	if records[0]["type"] != "flag_placed" {
		t.Fatalf("first record = %v", records[0])
	}
	data, ok := records[0]["data"].(map[string]any)
	if !ok {
		t.Fatalf("data shape: %v", records[0]["data"])
	}
	flag, ok := data["Flag"].(map[string]any)
	if !ok || flag["ID"].(float64) != 42 {
		t.Fatalf("flag payload: %v", data)
	}
}
