package data

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// FlagSeed defines one system-owned flag planted at boot. Kind is one of
// "system", "roc_shrine", "guard_tower"; radius and visual_boundary fall
// back to the world defaults when zero.
type FlagSeed struct {
	ID             int64   `yaml:"id"`
	Name           string  `yaml:"name"`
	Lat            float64 `yaml:"lat"`
	Lng            float64 `yaml:"lng"`
	Kind           string  `yaml:"kind"`
	Radius         float64 `yaml:"radius"`
	VisualBoundary float64 `yaml:"visual_boundary"`
	Public         bool    `yaml:"public"`
	Toll           float64 `yaml:"toll"`
	Start          bool    `yaml:"start"`
}

// FlagTable holds the flag seeds in file order, with the start flag
// singled out.
type FlagTable struct {
	entries []FlagSeed
	start   *FlagSeed
}

var seedKinds = map[string]struct{}{
	"system":      {},
	"roc_shrine":  {},
	"guard_tower": {},
}

// LoadFlagSeeds loads system_flag_list.yaml. Exactly one seed must be
// marked as the start flag.
func LoadFlagSeeds(path string) (*FlagTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read system flag list: %w", err)
	}
	var entries []FlagSeed
	if err := yaml.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("parse system flag list: %w", err)
	}
	t := &FlagTable{entries: entries}
	seen := make(map[int64]struct{}, len(entries))
	for i := range entries {
		e := &entries[i]
		if e.ID <= 0 {
			return nil, fmt.Errorf("flag row %d: id must be positive", i)
		}
		if _, dup := seen[e.ID]; dup {
			return nil, fmt.Errorf("flag row %d: duplicate id %d", i, e.ID)
		}
		seen[e.ID] = struct{}{}
		if e.Kind == "" {
			e.Kind = "system"
		}
		if _, ok := seedKinds[e.Kind]; !ok {
			return nil, fmt.Errorf("flag row %d (id %d): unknown kind %q", i, e.ID, e.Kind)
		}
		if e.Start {
			if t.start != nil {
				return nil, fmt.Errorf("flag row %d (id %d): second start flag (first is id %d)", i, e.ID, t.start.ID)
			}
			t.start = e
		}
	}
	if t.start == nil {
		return nil, fmt.Errorf("system flag list %s: no start flag", path)
	}
	return t, nil
}

// All returns the seeds in file order.
func (t *FlagTable) All() []FlagSeed {
	return t.entries
}

// Start returns the seed marked as the start flag.
func (t *FlagTable) Start() *FlagSeed {
	return t.start
}

// Count returns the number of flag seeds loaded.
func (t *FlagTable) Count() int {
	return len(t.entries)
}
