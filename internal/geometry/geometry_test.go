package geometry

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/twpayne/go-geom"
)

func unitSquare() *geom.Polygon {
	return geom.NewPolygonFlat(geom.XY, []float64{0, 0, 1, 0, 1, 1, 0, 1, 0, 0}, []int{10})
}

func TestCentroid(t *testing.T) {
	c := Centroid(unitSquare())
	assert.InDelta(t, 0.5, c[0], 1e-12)
	assert.InDelta(t, 0.5, c[1], 1e-12)
}

func TestCentroidTriangle(t *testing.T) {
	tri := geom.NewPolygonFlat(geom.XY, []float64{0, 0, 3, 0, 0, 3, 0, 0}, []int{8})
	c := Centroid(tri)
	assert.InDelta(t, 1.0, c[0], 1e-12)
	assert.InDelta(t, 1.0, c[1], 1e-12)
}

func TestCentroidDegenerate(t *testing.T) {
	line := geom.NewPolygonFlat(geom.XY, []float64{0, 0, 2, 0, 0, 0}, []int{6})
	c := Centroid(line)
	assert.InDelta(t, 2.0/3.0, c[0], 1e-12)
	assert.InDelta(t, 0, c[1], 1e-12)
}

func TestDistanceToBoundary(t *testing.T) {
	tests := []struct {
		name string
		pt   geom.Coord
		want float64
	}{
		{"inside near left edge", geom.Coord{0.1, 0.5}, 0.1},
		{"outside right", geom.Coord{3, 0.5}, 2},
		{"outside corner", geom.Coord{2, 2}, math.Sqrt2},
		{"on edge", geom.Coord{0.5, 0}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, DistanceToBoundary(tt.pt, unitSquare()), 1e-12)
		})
	}
}

func TestDistanceToVertex(t *testing.T) {
	assert.InDelta(t, math.Sqrt(0.5), DistanceToVertex(geom.Coord{0.5, 0.5}, unitSquare()), 1e-12)
	assert.InDelta(t, 1, DistanceToVertex(geom.Coord{2, 1}, unitSquare()), 1e-12)
}

func TestFarthestVertex(t *testing.T) {
	assert.InDelta(t, math.Sqrt2, FarthestVertex(geom.Coord{0, 0}, unitSquare()), 1e-12)
}

func TestContains(t *testing.T) {
	assert.True(t, Contains(unitSquare(), geom.Coord{0.5, 0.5}))
	assert.False(t, Contains(unitSquare(), geom.Coord{1.5, 0.5}))
	assert.False(t, Contains(nil, geom.Coord{0.5, 0.5}))
}

func TestContainsExcludesBoundary(t *testing.T) {
	tests := []struct {
		name string
		pt   geom.Coord
	}{
		{"edge", geom.Coord{0.5, 0}},
		{"vertex", geom.Coord{1, 1}},
		{"left edge", geom.Coord{0, 0.25}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.False(t, Contains(unitSquare(), tt.pt))
			assert.True(t, SegmentIntersects(tt.pt, tt.pt, unitSquare()), "touching the boundary intersects")
		})
	}
}

func TestSegmentIntersects(t *testing.T) {
	tests := []struct {
		name string
		a, b geom.Coord
		want bool
	}{
		{"crosses boundary", geom.Coord{-1, 0.5}, geom.Coord{0.5, 0.5}, true},
		{"passes through", geom.Coord{-1, 0.5}, geom.Coord{2, 0.5}, true},
		{"inside", geom.Coord{0.2, 0.2}, geom.Coord{0.3, 0.3}, true},
		{"misses", geom.Coord{2, 2}, geom.Coord{3, 3}, false},
		{"touches corner", geom.Coord{1, 1}, geom.Coord{2, 2}, true},
		{"parallel miss", geom.Coord{-1, 2}, geom.Coord{2, 2}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SegmentIntersects(tt.a, tt.b, unitSquare()))
		})
	}
}

func TestCircle(t *testing.T) {
	c := Circle(geom.Coord{1, 1}, 2, 16)
	assert.Equal(t, 65, c.NumCoords())
	// Area of the regular 64-gon inscribed in the circle.
	n := 64.0
	assert.InDelta(t, n/2*4*math.Sin(2*math.Pi/n), c.Area(), 1e-9)
	assert.Less(t, c.Area(), math.Pi*4)
	assert.True(t, Contains(c, geom.Coord{1, 1}))
	assert.False(t, Contains(c, geom.Coord{3.5, 1}))
}

func TestCircleDefaultSegments(t *testing.T) {
	c := Circle(geom.Coord{0, 0}, 1, 0)
	assert.Equal(t, 4*DefaultQuadrantSegments+1, c.NumCoords())
}
