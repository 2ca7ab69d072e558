// Package geometry provides the planar measurements the classifiers and the
// comparator need on top of go-geom polygons.
package geometry

import (
	"math"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/xy"
	"github.com/twpayne/go-geom/xy/location"
)

// DefaultQuadrantSegments matches the circle resolution of the GEOS buffer
// operation (16 segments per quarter circle).
const DefaultQuadrantSegments = 16

// Centroid returns the area centroid of the polygon exterior. Degenerate
// polygons fall back to the vertex mean.
func Centroid(p *geom.Polygon) geom.Coord {
	if math.Abs(p.Area()) > 0 {
		return xy.PolygonsCentroid(p)
	}
	ring := exterior(p)
	n := len(ring) / 2
	if n == 0 {
		return geom.Coord{math.NaN(), math.NaN()}
	}
	var sx, sy float64
	for i := 0; i < n; i++ {
		sx += ring[2*i]
		sy += ring[2*i+1]
	}
	return geom.Coord{sx / float64(n), sy / float64(n)}
}

// Distance returns the euclidean distance between two coordinates.
func Distance(a, b geom.Coord) float64 {
	return math.Hypot(a[0]-b[0], a[1]-b[1])
}

// DistanceToBoundary returns the distance from c to the nearest segment of the
// polygon's exterior ring.
func DistanceToBoundary(c geom.Coord, p *geom.Polygon) float64 {
	ring := exterior(p)
	if len(ring) < 4 {
		return math.Inf(1)
	}
	return xy.DistanceFromPointToLineString(geom.XY, c, ring)
}

// DistanceToVertex returns the distance from c to the nearest exterior vertex.
func DistanceToVertex(c geom.Coord, p *geom.Polygon) float64 {
	ring := exterior(p)
	best := math.Inf(1)
	for i := 0; i+1 < len(ring); i += 2 {
		d := math.Hypot(c[0]-ring[i], c[1]-ring[i+1])
		if d < best {
			best = d
		}
	}
	return best
}

// FarthestVertex returns the distance from c to the farthest exterior vertex.
func FarthestVertex(c geom.Coord, p *geom.Polygon) float64 {
	ring := exterior(p)
	worst := -1.0
	for i := 0; i+1 < len(ring); i += 2 {
		d := math.Hypot(c[0]-ring[i], c[1]-ring[i+1])
		if d > worst {
			worst = d
		}
	}
	return worst
}

// Contains reports whether c lies strictly inside the polygon's exterior
// ring. Points on the boundary are not contained.
func Contains(p *geom.Polygon, c geom.Coord) bool {
	ring := exterior(p)
	if len(ring) < 6 {
		return false
	}
	return xy.LocatePointInRing(geom.XY, c, ring) == location.Interior
}

// SegmentIntersects reports whether the segment a-b touches the polygon,
// either by crossing or touching its boundary or by lying inside it.
func SegmentIntersects(a, b geom.Coord, p *geom.Polygon) bool {
	ring := exterior(p)
	if len(ring) >= 6 && (xy.IsPointInRing(geom.XY, a, ring) || xy.IsPointInRing(geom.XY, b, ring)) {
		return true
	}
	for i := 0; i+3 < len(ring); i += 2 {
		c := geom.Coord{ring[i], ring[i+1]}
		d := geom.Coord{ring[i+2], ring[i+3]}
		if segmentsIntersect(a, b, c, d) {
			return true
		}
	}
	return false
}

// Circle approximates a circle as a closed polygon with 4*quadSegs segments.
func Circle(center geom.Coord, radius float64, quadSegs int) *geom.Polygon {
	if quadSegs <= 0 {
		quadSegs = DefaultQuadrantSegments
	}
	n := 4 * quadSegs
	flat := make([]float64, 0, 2*(n+1))
	for i := 0; i < n; i++ {
		a := 2 * math.Pi * float64(i) / float64(n)
		flat = append(flat, center[0]+radius*math.Cos(a), center[1]+radius*math.Sin(a))
	}
	flat = append(flat, flat[0], flat[1])
	return geom.NewPolygonFlat(geom.XY, flat, []int{len(flat)})
}

func exterior(p *geom.Polygon) []float64 {
	if p == nil || p.NumLinearRings() == 0 {
		return nil
	}
	return p.LinearRing(0).FlatCoords()
}

// cross returns the z component of (b-a) x (c-a).
func cross(a, b, c geom.Coord) float64 {
	return (b[0]-a[0])*(c[1]-a[1]) - (b[1]-a[1])*(c[0]-a[0])
}

func onSegment(a, b, c geom.Coord) bool {
	return math.Min(a[0], b[0]) <= c[0] && c[0] <= math.Max(a[0], b[0]) &&
		math.Min(a[1], b[1]) <= c[1] && c[1] <= math.Max(a[1], b[1])
}

func segmentsIntersect(a, b, c, d geom.Coord) bool {
	d1 := cross(c, d, a)
	d2 := cross(c, d, b)
	d3 := cross(a, b, c)
	d4 := cross(a, b, d)
	if ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) && ((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0)) {
		return true
	}
	switch {
	case d1 == 0 && onSegment(c, d, a):
		return true
	case d2 == 0 && onSegment(c, d, b):
		return true
	case d3 == 0 && onSegment(a, b, c):
		return true
	case d4 == 0 && onSegment(a, b, d):
		return true
	}
	return false
}
