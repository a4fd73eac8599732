package data

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeSeed(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write seed: %v", err)
	}
	return path
}

func TestLoadAreaSeeds(t *testing.T) {
	path := writeSeed(t, "area_list.yaml", `
- id: 1
  name: "Old Town"
  min_lat: 48.13
  max_lat: 48.14
  min_lng: 11.56
  max_lng: 11.58
  properties:
    sanctuary: true
- id: 2
  name: "Meadow"
  min_lat: 48.11
  max_lat: 48.13
  min_lng: 11.58
  max_lng: 11.60
`)
	table, err := LoadAreaSeeds(path)
	if err != nil {
		t.Fatalf("LoadAreaSeeds: %v", err)
	}
	if table.Count() != 2 {
		t.Fatalf("count = %d, want 2", table.Count())
	}
	all := table.All()
	if all[0].Name != "Old Town" || !all[0].Properties["sanctuary"] {
		t.Fatalf("first area = %+v", all[0])
	}
	if all[1].Properties != nil && all[1].Properties["sanctuary"] {
		t.Fatalf("second area should not be a sanctuary")
	}
}

func TestLoadAreaSeedsRejectsBadRows(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"inverted bounds", `
- id: 1
  name: "Bad"
  min_lat: 48.14
  max_lat: 48.13
  min_lng: 11.56
  max_lng: 11.58
`, "inverted bounds"},
		{"duplicate id", `
- id: 1
  name: "A"
  min_lat: 1.0
  max_lat: 2.0
  min_lng: 1.0
  max_lng: 2.0
- id: 1
  name: "B"
  min_lat: 3.0
  max_lat: 4.0
  min_lng: 3.0
  max_lng: 4.0
`, "duplicate id"},
		{"missing name", `
- id: 1
  min_lat: 1.0
  max_lat: 2.0
  min_lng: 1.0
  max_lng: 2.0
`, "name required"},
	}
	for _, tc := range cases {
		path := writeSeed(t, "area_list.yaml", tc.body)
		_, err := LoadAreaSeeds(path)
		if err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
		if !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("%s: error %q does not mention %q", tc.name, err, tc.want)
		}
	}
}

func TestLoadFlagSeeds(t *testing.T) {
	path := writeSeed(t, "system_flag_list.yaml", `
- id: 1
  name: "Town Square"
  lat: 48.1374
  lng: 11.5755
  start: true
- id: 2
  name: "River Gate"
  lat: 48.1301
  lng: 11.5922
  kind: system
- id: 3
  name: "Old Shrine"
  lat: 48.15
  lng: 11.59
  kind: roc_shrine
`)
	table, err := LoadFlagSeeds(path)
	if err != nil {
		t.Fatalf("LoadFlagSeeds: %v", err)
	}
	if table.Count() != 3 {
		t.Fatalf("count = %d, want 3", table.Count())
	}
	start := table.Start()
	if start == nil || start.ID != 1 {
		t.Fatalf("start = %+v, want id 1", start)
	}
	if table.All()[0].Kind != "system" {
		t.Fatalf("kind should default to system, got %q", table.All()[0].Kind)
	}
}

func TestLoadFlagSeedsStartValidation(t *testing.T) {
	noStart := writeSeed(t, "a.yaml", `
- id: 1
  name: "Waypoint"
  lat: 1.0
  lng: 1.0
`)
	if _, err := LoadFlagSeeds(noStart); err == nil || !strings.Contains(err.Error(), "no start flag") {
		t.Fatalf("expected no-start error, got %v", err)
	}

	twoStarts := writeSeed(t, "b.yaml", `
- id: 1
  name: "A"
  lat: 1.0
  lng: 1.0
  start: true
- id: 2
  name: "B"
  lat: 2.0
  lng: 2.0
  start: true
`)
	if _, err := LoadFlagSeeds(twoStarts); err == nil || !strings.Contains(err.Error(), "second start flag") {
		t.Fatalf("expected second-start error, got %v", err)
	}
}

func TestLoadFlagSeedsRejectsUnknownKind(t *testing.T) {
	path := writeSeed(t, "flags.yaml", `
- id: 1
  name: "A"
  lat: 1.0
  lng: 1.0
  kind: castle
  start: true
`)
	if _, err := LoadFlagSeeds(path); err == nil || !strings.Contains(err.Error(), "unknown kind") {
		t.Fatalf("expected unknown-kind error, got %v", err)
	}
}
