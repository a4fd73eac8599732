package data

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// AreaSeed defines one named map region with gameplay properties.
type AreaSeed struct {
	ID         int64           `yaml:"id"`
	Name       string          `yaml:"name"`
	MinLat     float64         `yaml:"min_lat"`
	MaxLat     float64         `yaml:"max_lat"`
	MinLng     float64         `yaml:"min_lng"`
	MaxLng     float64         `yaml:"max_lng"`
	Properties map[string]bool `yaml:"properties"`
}

// AreaTable holds the area seeds in file order.
type AreaTable struct {
	entries []AreaSeed
}

// LoadAreaSeeds loads area_list.yaml.
func LoadAreaSeeds(path string) (*AreaTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read area list: %w", err)
	}
	var entries []AreaSeed
	if err := yaml.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("parse area list: %w", err)
	}
	seen := make(map[int64]struct{}, len(entries))
	for i := range entries {
		e := &entries[i]
		if e.ID <= 0 {
			return nil, fmt.Errorf("area row %d: id must be positive", i)
		}
		if _, dup := seen[e.ID]; dup {
			return nil, fmt.Errorf("area row %d: duplicate id %d", i, e.ID)
		}
		seen[e.ID] = struct{}{}
		if e.Name == "" {
			return nil, fmt.Errorf("area row %d (id %d): name required", i, e.ID)
		}
		if e.MinLat >= e.MaxLat || e.MinLng >= e.MaxLng {
			return nil, fmt.Errorf("area row %d (%s): inverted bounds", i, e.Name)
		}
	}
	return &AreaTable{entries: entries}, nil
}

// All returns the seeds in file order.
func (t *AreaTable) All() []AreaSeed {
	return t.entries
}

// Count returns the number of areas loaded.
func (t *AreaTable) Count() int {
	return len(t.entries)
}
