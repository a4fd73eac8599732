package world

import (
	"fmt"
	"sort"
	"sync"

	"github.com/wardstone/server/internal/geo"
	"github.com/wardstone/server/internal/spatial"
)

// areaCellSizeDeg sizes the area grid. Zones span kilometers, so cells
// are coarse (~5.5 km at the equator).
const areaCellSizeDeg = 0.05

// Area is a named rectangular zone carrying gameplay properties such
// as "pvp" or "sanctuary". Areas may overlap; a point can lie in any
// number of them.
type Area struct {
	ID         int64
	Name       string
	Bounds     geo.BoundingBox
	Properties map[string]bool
}

// Property reads a gameplay property, false when unset.
func (a *Area) Property(name string) bool {
	return a.Properties[name]
}

// AreaRegistry answers point-containment and box-intersection queries
// over registered areas. Results keep registration order so output is
// deterministic. Safe for concurrent use; registration is rare, reads
// dominate.
type AreaRegistry struct {
	mu    sync.RWMutex
	grid  *spatial.Grid
	areas map[int64]*Area
	order map[int64]int
	seq   int
}

// NewAreaRegistry creates an empty registry.
func NewAreaRegistry() *AreaRegistry {
	return &AreaRegistry{
		grid:  spatial.NewGrid(areaCellSizeDeg),
		areas: make(map[int64]*Area),
		order: make(map[int64]int),
	}
}

// Register adds an area. The bounding box must have MinLat < MaxLat
// and MinLng < MaxLng. The registry keeps the pointer; callers must
// not mutate the area afterwards.
func (r *AreaRegistry) Register(a *Area) error {
	if !a.Bounds.Valid() {
		return NewRuleError(CodeValidationFailed, "area %q has an invalid bounding box", a.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.areas[a.ID]; exists {
		return NewRuleError(CodeValidationFailed, "area id %d already registered", a.ID)
	}
	r.grid.InsertSpan(a.ID, a.Bounds)
	r.areas[a.ID] = a
	r.order[a.ID] = r.seq
	r.seq++
	return nil
}

// Get returns the area with the given id, or nil.
func (r *AreaRegistry) Get(id int64) *Area {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.areas[id]
}

// Count returns how many areas are registered.
func (r *AreaRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.areas)
}

// FindContaining returns every area whose box contains the point, in
// registration order.
func (r *AreaRegistry) FindContaining(p geo.Coordinate) []*Area {
	point := geo.BoundingBox{MinLat: p.Lat, MaxLat: p.Lat, MinLng: p.Lng, MaxLng: p.Lng}
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Area
	for _, id := range r.grid.Query(point) {
		a := r.areas[id]
		if a == nil {
			panic(fmt.Sprintf("world: area grid references unknown area %d", id))
		}
		if a.Bounds.Contains(p) {
			out = append(out, a)
		}
	}
	r.sortByRegistration(out)
	return out
}

// FindIntersecting returns every area whose box intersects the query
// box, in registration order. Touching edges count.
func (r *AreaRegistry) FindIntersecting(box geo.BoundingBox) []*Area {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[int64]struct{})
	var out []*Area
	for _, id := range r.grid.Query(box) {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		a := r.areas[id]
		if a == nil {
			panic(fmt.Sprintf("world: area grid references unknown area %d", id))
		}
		if a.Bounds.Intersects(box) {
			out = append(out, a)
		}
	}
	r.sortByRegistration(out)
	return out
}

// UpdateBounds moves an area to a new bounding box, preserving its
// identity and registration order.
func (r *AreaRegistry) UpdateBounds(id int64, bounds geo.BoundingBox) error {
	if !bounds.Valid() {
		return NewRuleError(CodeValidationFailed, "invalid bounding box")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	a := r.areas[id]
	if a == nil {
		return NewRuleError(CodeNotFound, "area %d not found", id)
	}
	r.grid.RemoveSpan(id, a.Bounds)
	r.grid.InsertSpan(id, bounds)
	a.Bounds = bounds
	return nil
}

func (r *AreaRegistry) sortByRegistration(areas []*Area) {
	sort.Slice(areas, func(i, j int) bool {
		return r.order[areas[i].ID] < r.order[areas[j].ID]
	})
}
