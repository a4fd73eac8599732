// Package geo provides great-circle math over latitude/longitude
// coordinates on a spherical Earth. All distances are meters.
package geo

import "math"

// EarthRadiusMeters is the mean Earth radius used for all distance math.
// Fixed for client interoperability — do not tune.
const EarthRadiusMeters = 6371000.0

// metersPerDegreeLat is the arc length of one degree of latitude.
const metersPerDegreeLat = EarthRadiusMeters * math.Pi / 180.0

// Coordinate is a point on the Earth's surface in decimal degrees.
type Coordinate struct {
	Lat float64
	Lng float64
}

// IsFinite reports whether both components are real numbers
// (not NaN, not ±Inf). Inputs from the wire must pass this before
// any distance math.
func (c Coordinate) IsFinite() bool {
	return !math.IsNaN(c.Lat) && !math.IsInf(c.Lat, 0) &&
		!math.IsNaN(c.Lng) && !math.IsInf(c.Lng, 0)
}

// Distance returns the great-circle distance between a and b in meters,
// computed with the haversine formula.
func Distance(a, b Coordinate) float64 {
	lat1 := a.Lat * math.Pi / 180.0
	lat2 := b.Lat * math.Pi / 180.0
	dLat := (b.Lat - a.Lat) * math.Pi / 180.0
	dLng := (b.Lng - a.Lng) * math.Pi / 180.0

	sinLat := math.Sin(dLat / 2)
	sinLng := math.Sin(dLng / 2)
	h := sinLat*sinLat + math.Cos(lat1)*math.Cos(lat2)*sinLng*sinLng
	if h > 1 {
		h = 1
	}
	return 2 * EarthRadiusMeters * math.Asin(math.Sqrt(h))
}

// BoundingBox is an axis-aligned lat/lng rectangle. Min must not exceed
// Max on either axis; boxes never wrap the antimeridian.
type BoundingBox struct {
	MinLat float64
	MaxLat float64
	MinLng float64
	MaxLng float64
}

// Valid reports whether the box has positive extent on both axes and
// all finite corners.
func (b BoundingBox) Valid() bool {
	if math.IsNaN(b.MinLat) || math.IsNaN(b.MaxLat) || math.IsNaN(b.MinLng) || math.IsNaN(b.MaxLng) {
		return false
	}
	if math.IsInf(b.MinLat, 0) || math.IsInf(b.MaxLat, 0) || math.IsInf(b.MinLng, 0) || math.IsInf(b.MaxLng, 0) {
		return false
	}
	return b.MinLat < b.MaxLat && b.MinLng < b.MaxLng
}

// Contains reports whether the point lies inside the box (inclusive edges).
func (b BoundingBox) Contains(c Coordinate) bool {
	return c.Lat >= b.MinLat && c.Lat <= b.MaxLat &&
		c.Lng >= b.MinLng && c.Lng <= b.MaxLng
}

// Intersects reports whether the two boxes overlap (touching edges count).
func (b BoundingBox) Intersects(o BoundingBox) bool {
	return b.MinLat <= o.MaxLat && b.MaxLat >= o.MinLat &&
		b.MinLng <= o.MaxLng && b.MaxLng >= o.MinLng
}

// Center returns the midpoint of the box.
func (b BoundingBox) Center() Coordinate {
	return Coordinate{
		Lat: (b.MinLat + b.MaxLat) / 2,
		Lng: (b.MinLng + b.MaxLng) / 2,
	}
}

// BoxAround returns a bounding box guaranteed to contain the circle of
// the given radius (meters) around center. The box is a coarse
// pre-filter: it over-approximates near the poles, where a degree of
// longitude shrinks. Callers must do exact Distance checks on the
// results of any box query.
func BoxAround(center Coordinate, meters float64) BoundingBox {
	latDelta := meters / metersPerDegreeLat

	// Longitude degrees widen toward the poles. Use the widest cosine in
	// the latitude span so the box still covers the circle's east-west
	// extent at its extreme latitudes.
	maxAbsLat := math.Max(math.Abs(center.Lat-latDelta), math.Abs(center.Lat+latDelta))
	if maxAbsLat > 90 {
		maxAbsLat = 90
	}
	cosLat := math.Cos(maxAbsLat * math.Pi / 180.0)

	var lngDelta float64
	if cosLat < 1e-6 {
		lngDelta = 180 // polar circle: cover all longitudes
	} else {
		lngDelta = meters / (metersPerDegreeLat * cosLat)
		if lngDelta > 180 {
			lngDelta = 180
		}
	}

	return BoundingBox{
		MinLat: clampLat(center.Lat - latDelta),
		MaxLat: clampLat(center.Lat + latDelta),
		MinLng: center.Lng - lngDelta,
		MaxLng: center.Lng + lngDelta,
	}
}

func clampLat(v float64) float64 {
	if v < -90 {
		return -90
	}
	if v > 90 {
		return 90
	}
	return v
}
