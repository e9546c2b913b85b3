// Package geo provides the geometric primitives behind airspace geofencing:
// point-in-polygon containment, boundary-crossing detection between
// consecutive position reports, polygon validation and great-circle
// distances.
package geo

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidGeometry is returned when a polygon cannot be used as an
// airspace boundary.
var ErrInvalidGeometry = errors.New("invalid geometry")

const (
	// EarthRadiusKm is the mean Earth radius used for haversine distances.
	EarthRadiusKm = 6371.0

	onEdgeEpsilon = 1e-9
)

// Point is a position in decimal degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Polygon is a simple polygon given as one exterior ring optionally followed
// by hole rings. Rings do not repeat their first vertex.
type Polygon struct {
	Rings [][]Point `json:"rings"`
}

// Crossing describes the boundary relation between two consecutive
// positions.
type Crossing int

const (
	CrossedNone Crossing = iota
	CrossedEntered
	CrossedExited
)

func (c Crossing) String() string {
	switch c {
	case CrossedEntered:
		return "entered"
	case CrossedExited:
		return "exited"
	default:
		return "none"
	}
}

// Contains reports whether p is inside the polygon. The boundary is closed:
// points exactly on an edge or vertex count as inside, so an aircraft flying
// along the border does not oscillate between sessions.
func (poly *Polygon) Contains(p Point) bool {
	if poly == nil || len(poly.Rings) == 0 {
		return false
	}
	for _, ring := range poly.Rings {
		if onRing(p, ring) {
			return true
		}
	}
	if !inRing(p, poly.Rings[0]) {
		return false
	}
	for _, hole := range poly.Rings[1:] {
		if inRing(p, hole) {
			return false
		}
	}
	return true
}

// Crossed derives the boundary crossing between two consecutive positions
// from containment of both endpoints. No sub-segment interpolation is done:
// the crossing is attributed to the report that produced curr.
func Crossed(prev, curr Point, poly *Polygon) Crossing {
	before := poly.Contains(prev)
	after := poly.Contains(curr)
	switch {
	case !before && after:
		return CrossedEntered
	case before && !after:
		return CrossedExited
	default:
		return CrossedNone
	}
}

// inRing is a standard ray-casting test, treating lon as x and lat as y.
// The edge from the last vertex back to the first is included.
func inRing(p Point, ring []Point) bool {
	inside := false
	for i := range ring {
		a, b := ring[i], ring[(i+1)%len(ring)]
		if (a.Lat <= p.Lat && p.Lat < b.Lat) || (b.Lat <= p.Lat && p.Lat < a.Lat) {
			x := a.Lon + (p.Lat-a.Lat)*(b.Lon-a.Lon)/(b.Lat-a.Lat)
			if x > p.Lon {
				inside = !inside
			}
		}
	}
	return inside
}

// onRing reports whether p lies on one of the ring's edges.
func onRing(p Point, ring []Point) bool {
	for i := range ring {
		if onSegment(p, ring[i], ring[(i+1)%len(ring)]) {
			return true
		}
	}
	return false
}

func onSegment(p, a, b Point) bool {
	cross := (b.Lon-a.Lon)*(p.Lat-a.Lat) - (b.Lat-a.Lat)*(p.Lon-a.Lon)
	if math.Abs(cross) > onEdgeEpsilon {
		return false
	}
	if p.Lon < math.Min(a.Lon, b.Lon)-onEdgeEpsilon || p.Lon > math.Max(a.Lon, b.Lon)+onEdgeEpsilon {
		return false
	}
	if p.Lat < math.Min(a.Lat, b.Lat)-onEdgeEpsilon || p.Lat > math.Max(a.Lat, b.Lat)+onEdgeEpsilon {
		return false
	}
	return true
}

// Validate checks that the polygon can serve as an airspace boundary: at
// least one ring, each ring with at least 3 distinct vertices and no
// self-intersection.
func Validate(poly Polygon) error {
	if len(poly.Rings) == 0 {
		return fmt.Errorf("%w: polygon has no rings", ErrInvalidGeometry)
	}
	for ri, ring := range poly.Rings {
		if distinctVertices(ring) < 3 {
			return fmt.Errorf("%w: ring %d has fewer than 3 distinct vertices", ErrInvalidGeometry, ri)
		}
		if selfIntersects(ring) {
			return fmt.Errorf("%w: ring %d is self-intersecting", ErrInvalidGeometry, ri)
		}
	}
	return nil
}

func distinctVertices(ring []Point) int {
	seen := make(map[Point]struct{}, len(ring))
	for _, p := range ring {
		seen[p] = struct{}{}
	}
	return len(seen)
}

// selfIntersects tests every pair of non-adjacent edges, including the
// closing edge from the last vertex back to the first.
func selfIntersects(ring []Point) bool {
	n := len(ring)
	for i := 0; i < n; i++ {
		a1, a2 := ring[i], ring[(i+1)%n]
		for j := i + 1; j < n; j++ {
			// Skip edges that share a vertex.
			if j == i+1 || (i == 0 && j == n-1) {
				continue
			}
			b1, b2 := ring[j], ring[(j+1)%n]
			if segmentsIntersect(a1, a2, b1, b2) {
				return true
			}
		}
	}
	return false
}

func segmentsIntersect(a1, a2, b1, b2 Point) bool {
	d1 := direction(b1, b2, a1)
	d2 := direction(b1, b2, a2)
	d3 := direction(a1, a2, b1)
	d4 := direction(a1, a2, b2)

	if ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) &&
		((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0)) {
		return true
	}

	return (d1 == 0 && onSegment(a1, b1, b2)) ||
		(d2 == 0 && onSegment(a2, b1, b2)) ||
		(d3 == 0 && onSegment(b1, a1, a2)) ||
		(d4 == 0 && onSegment(b2, a1, a2))
}

func direction(a, b, c Point) float64 {
	return (b.Lon-a.Lon)*(c.Lat-a.Lat) - (b.Lat-a.Lat)*(c.Lon-a.Lon)
}

// HaversineKm returns the great-circle distance between two points.
func HaversineKm(a, b Point) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return EarthRadiusKm * c
}

// TrajectoryDistanceKm sums the leg distances of an ordered trajectory.
func TrajectoryDistanceKm(points []Point) float64 {
	if len(points) < 2 {
		return 0
	}
	var total float64
	for i := 1; i < len(points); i++ {
		total += HaversineKm(points[i-1], points[i])
	}
	return total
}
