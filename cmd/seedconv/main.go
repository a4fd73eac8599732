// seedconv converts CSV exports of system flags into the YAML seed file
// the server loads at boot.
//
// Input columns: id,name,lat,lng,kind,radius,visual_boundary,public,toll,start
// Kind defaults to "system"; radius and visual_boundary may be empty to
// use the world defaults; boolean columns accept true/false/1/0.
//
// Usage:
//
//	go run ./cmd/seedconv flags.csv
package main

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type flagSeed struct {
	ID             int64   `yaml:"id"`
	Name           string  `yaml:"name"`
	Lat            float64 `yaml:"lat"`
	Lng            float64 `yaml:"lng"`
	Kind           string  `yaml:"kind"`
	Radius         float64 `yaml:"radius,omitempty"`
	VisualBoundary float64 `yaml:"visual_boundary,omitempty"`
	Public         bool    `yaml:"public,omitempty"`
	Toll           float64 `yaml:"toll,omitempty"`
	Start          bool    `yaml:"start,omitempty"`
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "usage: seedconv <flags.csv> [output.yaml]\n")
		os.Exit(1)
	}
	inputPath := os.Args[1]
	outputPath := filepath.Join("data", "yaml", "system_flag_list.yaml")
	if len(os.Args) >= 3 {
		outputPath = os.Args[2]
	}

	f, err := os.Open(inputPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error reading %s: %v\n", inputPath, err)
		os.Exit(1)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true
	records, err := r.ReadAll()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error parsing CSV: %v\n", err)
		os.Exit(1)
	}
	if len(records) == 0 {
		fmt.Fprintf(os.Stderr, "error: %s is empty\n", inputPath)
		os.Exit(1)
	}

	col := columnIndex(records[0])
	var seeds []flagSeed
	starts := 0
	for i, rec := range records[1:] {
		seed, err := parseRow(col, rec)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: row %d: %v\n", i+2, err)
			os.Exit(1)
		}
		if seed.Start {
			starts++
		}
		seeds = append(seeds, seed)
	}
	if starts != 1 {
		fmt.Fprintf(os.Stderr, "error: %d rows marked start, want exactly 1\n", starts)
		os.Exit(1)
	}

	yamlData, err := yaml.Marshal(seeds)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error marshalling YAML: %v\n", err)
		os.Exit(1)
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "error creating output directory: %v\n", err)
		os.Exit(1)
	}
	header := "# System-owned flags planted at boot. Exactly one entry carries\n# start: true; first placements anchor to its visual boundary.\n"
	if err := os.WriteFile(outputPath, append([]byte(header), yamlData...), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "error writing %s: %v\n", outputPath, err)
		os.Exit(1)
	}
	fmt.Printf("Wrote %d flag seeds to %s\n", len(seeds), outputPath)
}

func columnIndex(header []string) map[string]int {
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	return col
}

func parseRow(col map[string]int, rec []string) (flagSeed, error) {
	get := func(name string) string {
		i, ok := col[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	id, err := strconv.ParseInt(get("id"), 10, 64)
	if err != nil || id <= 0 {
		return flagSeed{}, fmt.Errorf("bad id %q", get("id"))
	}
	name := get("name")
	if name == "" {
		return flagSeed{}, fmt.Errorf("flag %d: name required", id)
	}
	lat, err := strconv.ParseFloat(get("lat"), 64)
	if err != nil {
		return flagSeed{}, fmt.Errorf("flag %d: bad lat %q", id, get("lat"))
	}
	lng, err := strconv.ParseFloat(get("lng"), 64)
	if err != nil {
		return flagSeed{}, fmt.Errorf("flag %d: bad lng %q", id, get("lng"))
	}

	kind := get("kind")
	if kind == "" {
		kind = "system"
	}
	switch kind {
	case "system", "roc_shrine", "guard_tower":
	default:
		return flagSeed{}, fmt.Errorf("flag %d: unknown kind %q", id, kind)
	}

	seed := flagSeed{ID: id, Name: name, Lat: lat, Lng: lng, Kind: kind}
	if v := get("radius"); v != "" {
		if seed.Radius, err = strconv.ParseFloat(v, 64); err != nil {
			return flagSeed{}, fmt.Errorf("flag %d: bad radius %q", id, v)
		}
	}
	if v := get("visual_boundary"); v != "" {
		if seed.VisualBoundary, err = strconv.ParseFloat(v, 64); err != nil {
			return flagSeed{}, fmt.Errorf("flag %d: bad visual_boundary %q", id, v)
		}
	}
	if v := get("toll"); v != "" {
		if seed.Toll, err = strconv.ParseFloat(v, 64); err != nil {
			return flagSeed{}, fmt.Errorf("flag %d: bad toll %q", id, v)
		}
	}
	if seed.Public, err = parseBool(get("public")); err != nil {
		return flagSeed{}, fmt.Errorf("flag %d: bad public %q", id, get("public"))
	}
	if seed.Start, err = parseBool(get("start")); err != nil {
		return flagSeed{}, fmt.Errorf("flag %d: bad start %q", id, get("start"))
	}
	return seed, nil
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "", "0", "false", "no":
		return false, nil
	case "1", "true", "yes":
		return true, nil
	default:
		return false, fmt.Errorf("not a boolean")
	}
}
