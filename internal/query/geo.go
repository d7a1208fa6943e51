package query

import (
	"math"
	"sort"

	"github.com/cuemby/flapjack/internal/types"
)

const earthRadiusMeters = 6371000.0

// HaversineMeters returns the great-circle distance between two points
// in meters.
func HaversineMeters(a, b types.GeoPoint) float64 {
	lat1, lon1 := a.Lat*math.Pi/180, a.Lng*math.Pi/180
	lat2, lon2 := b.Lat*math.Pi/180, b.Lng*math.Pi/180
	dLat := lat2 - lat1
	dLon := lon2 - lon1
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusMeters * math.Asin(math.Sqrt(h))
}

// BoundingBox is a {minLat,minLng,maxLat,maxLng} rectangle
// (insideBoundingBox, spec §4.7.3).
type BoundingBox struct {
	MinLat, MinLng, MaxLat, MaxLng float64
}

// Contains reports whether p lies inside the box (min/max corners).
func (b BoundingBox) Contains(p types.GeoPoint) bool {
	return p.Lat >= b.MinLat && p.Lat <= b.MaxLat && p.Lng >= b.MinLng && p.Lng <= b.MaxLng
}

// Polygon is a closed vertex list tested with the even-odd rule
// (insidePolygon, spec §4.7.3).
type Polygon []types.GeoPoint

// Contains applies the even-odd ray-casting rule.
func (poly Polygon) Contains(p types.GeoPoint) bool {
	n := len(poly)
	if n < 3 {
		return false
	}
	inside := false
	j := n - 1
	for i := 0; i < n; i++ {
		vi, vj := poly[i], poly[j]
		if (vi.Lng > p.Lng) != (vj.Lng > p.Lng) {
			slope := (vj.Lat - vi.Lat) * (p.Lng - vi.Lng) / (vj.Lng - vi.Lng)
			if p.Lat < vi.Lat+slope {
				inside = !inside
			}
		}
		j = i
	}
	return inside
}

// ClosestPoint returns the point in pts nearest to center, and its
// distance in meters (spec: "documents with _geoloc as an array match
// via their closest point").
func ClosestPoint(center types.GeoPoint, pts []types.GeoPoint) (types.GeoPoint, float64, bool) {
	if len(pts) == 0 {
		return types.GeoPoint{}, 0, false
	}
	best := pts[0]
	bestDist := HaversineMeters(center, best)
	for _, p := range pts[1:] {
		d := HaversineMeters(center, p)
		if d < bestDist {
			best, bestDist = p, d
		}
	}
	return best, bestDist, true
}

// GeoMatch is one candidate document's geo evaluation result.
type GeoMatch struct {
	ObjectID string
	Point    types.GeoPoint
	Distance float64
}

// AutomaticRadius computes the radius spec §4.7.3 describes when
// aroundRadius is absent: the distance of the 1000th-closest match (or
// the furthest, when fewer), clamped to >= minRadius.
func AutomaticRadius(matches []GeoMatch, minRadius float64) float64 {
	if len(matches) == 0 {
		return minRadius
	}
	sorted := make([]GeoMatch, len(matches))
	copy(sorted, matches)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Distance < sorted[j].Distance })

	idx := 999 // 1000th closest, zero-indexed
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	radius := sorted[idx].Distance
	if radius < minRadius {
		return minRadius
	}
	return radius
}

// PrecisionBucket returns a distance bucket index for the given
// precision (meters per bucket); documents within the same bucket
// retain relevance order (spec §4.7.2 Geo sort).
func PrecisionBucket(distance, precision float64) int64 {
	if precision <= 0 {
		return int64(distance)
	}
	return int64(distance / precision)
}
