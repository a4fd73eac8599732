// Package spatial implements a cell-based index over lat/lng positions.
// Cell size is fixed per grid instance and chosen so that typical query
// boxes touch a handful of cells. The grid stores ids only; callers do
// exact distance filtering on query results.
package spatial

import (
	"math"

	"github.com/wardstone/server/internal/geo"
)

type cellKey struct {
	lat int32
	lng int32
}

// Grid tracks which ids occupy which cells. Not goroutine-safe — the
// owning component serializes access under its own locks.
type Grid struct {
	cellSize float64
	cells    map[cellKey]map[int64]struct{} // cellKey → set of ids
	count    int
}

// NewGrid creates a grid with the given cell size in degrees.
func NewGrid(cellSizeDeg float64) *Grid {
	if cellSizeDeg <= 0 {
		panic("spatial: cell size must be positive")
	}
	return &Grid{
		cellSize: cellSizeDeg,
		cells:    make(map[cellKey]map[int64]struct{}),
	}
}

func (g *Grid) toCellCoord(v float64) int32 {
	return int32(math.Floor(v / g.cellSize))
}

func (g *Grid) key(c geo.Coordinate) cellKey {
	return cellKey{lat: g.toCellCoord(c.Lat), lng: g.toCellCoord(c.Lng)}
}

func (g *Grid) add(k cellKey, id int64) {
	cell := g.cells[k]
	if cell == nil {
		cell = make(map[int64]struct{})
		g.cells[k] = cell
	}
	if _, ok := cell[id]; !ok {
		cell[id] = struct{}{}
		g.count++
	}
}

func (g *Grid) drop(k cellKey, id int64) {
	cell := g.cells[k]
	if cell == nil {
		return
	}
	if _, ok := cell[id]; ok {
		delete(cell, id)
		g.count--
		if len(cell) == 0 {
			delete(g.cells, k)
		}
	}
}

// Insert places an id into the cell containing the coordinate.
func (g *Grid) Insert(id int64, c geo.Coordinate) {
	g.add(g.key(c), id)
}

// Remove takes an id out of the grid. The coordinate must be the one the
// id was inserted with. Empty cells are deleted so the map does not grow
// without bound.
func (g *Grid) Remove(id int64, c geo.Coordinate) {
	g.drop(g.key(c), id)
}

// InsertSpan places an id into every cell the box covers, for entries
// that occupy a region rather than a point. Pair with RemoveSpan using
// the same box.
func (g *Grid) InsertSpan(id int64, box geo.BoundingBox) {
	minLat := g.toCellCoord(box.MinLat)
	maxLat := g.toCellCoord(box.MaxLat)
	minLng := g.toCellCoord(box.MinLng)
	maxLng := g.toCellCoord(box.MaxLng)
	for lat := minLat; lat <= maxLat; lat++ {
		for lng := minLng; lng <= maxLng; lng++ {
			g.add(cellKey{lat: lat, lng: lng}, id)
		}
	}
}

// RemoveSpan drops an id from every cell the box covers. The box must
// be the one the id was inserted with.
func (g *Grid) RemoveSpan(id int64, box geo.BoundingBox) {
	minLat := g.toCellCoord(box.MinLat)
	maxLat := g.toCellCoord(box.MaxLat)
	minLng := g.toCellCoord(box.MinLng)
	maxLng := g.toCellCoord(box.MaxLng)
	for lat := minLat; lat <= maxLat; lat++ {
		for lng := minLng; lng <= maxLng; lng++ {
			g.drop(cellKey{lat: lat, lng: lng}, id)
		}
	}
}

// Move updates an id's cell when its position changes. No-op when both
// positions fall in the same cell.
func (g *Grid) Move(id int64, oldPos, newPos geo.Coordinate) {
	oldK := g.key(oldPos)
	newK := g.key(newPos)
	if oldK == newK {
		return
	}
	g.Remove(id, oldPos)
	g.Insert(id, newPos)
}

// Query returns all ids in cells intersecting the box. The result
// over-approximates: ids in a straddling cell are returned even when
// their exact position falls outside the box, and an id inserted with
// InsertSpan appears once per covered cell. Callers filter and dedup.
func (g *Grid) Query(box geo.BoundingBox) []int64 {
	return g.QueryInto(box, nil)
}

// QueryInto appends query results to buf (reset to length zero first)
// and returns it, letting hot paths reuse one allocation.
func (g *Grid) QueryInto(box geo.BoundingBox, buf []int64) []int64 {
	result := buf[:0]
	minLat := g.toCellCoord(box.MinLat)
	maxLat := g.toCellCoord(box.MaxLat)
	minLng := g.toCellCoord(box.MinLng)
	maxLng := g.toCellCoord(box.MaxLng)
	for lat := minLat; lat <= maxLat; lat++ {
		for lng := minLng; lng <= maxLng; lng++ {
			for id := range g.cells[cellKey{lat: lat, lng: lng}] {
				result = append(result, id)
			}
		}
	}
	return result
}

// Len returns the number of id entries across all cells. Point entries
// count once; a span entry counts once per covered cell.
func (g *Grid) Len() int {
	return g.count
}
