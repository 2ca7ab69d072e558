package comparator

import (
	"fmt"
	"math"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkb"
	"github.com/twpayne/go-geos"

	"github.com/sells-group/sptp/internal/geometry"
)

// Metric selects the similarity measure.
type Metric int

// Available metrics.
const (
	// MetricDefault is the Dice coefficient of the two convex hulls.
	MetricDefault Metric = iota
	// MetricTwoCircle scores the computed hull against circles around the
	// truth centroid.
	MetricTwoCircle
)

// outerCircleScale enlarges the outer circle beyond the farthest vertex.
const outerCircleScale = 1.5

func (m Metric) String() string {
	switch m {
	case MetricDefault:
		return "default"
	case MetricTwoCircle:
		return "two-circle"
	default:
		return fmt.Sprintf("metric(%d)", int(m))
	}
}

// engine runs overlay operations on GEOS. A Context is not shared between
// goroutines, so every engine owns one.
type engine struct {
	ctx *geos.Context
}

func newEngine() *engine {
	return &engine{ctx: geos.NewContext()}
}

func (e *engine) geom(p *geom.Polygon) (*geos.Geom, error) {
	data, err := wkb.Marshal(p, wkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "comparator: encode wkb")
	}
	g, err := e.ctx.NewGeomFromWKB(data)
	if err != nil {
		return nil, eris.Wrap(err, "comparator: decode wkb")
	}
	return g, nil
}

// ratio computes the similarity of computed to truth. GEOS reports topology
// failures by panicking; those come back as errors together with any
// non-finite result.
func (e *engine) ratio(m Metric, truth, computed *geom.Polygon, threshold float64) (r float64, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r, err = 0, eris.Errorf("comparator: geos: %v", rec)
		}
	}()

	t, err := e.geom(truth)
	if err != nil {
		return 0, err
	}
	c, err := e.geom(computed)
	if err != nil {
		return 0, err
	}
	computedHull := c.ConvexHull()

	switch m {
	case MetricDefault:
		truthHull := t.ConvexHull()
		r = 2 * truthHull.Intersection(computedHull).Area() / (truthHull.Area() + computedHull.Area())
	case MetricTwoCircle:
		r, err = e.twoCircle(truth, computedHull, threshold)
		if err != nil {
			return 0, err
		}
	default:
		return 0, eris.Errorf("comparator: unknown metric %d", int(m))
	}

	if math.IsNaN(r) || math.IsInf(r, 0) {
		return 0, eris.Errorf("comparator: undefined %s ratio", m)
	}
	return r, nil
}

// twoCircle returns the share of the inner circle covered by the computed hull
// when the hull covers less than threshold of the outer circle, and 0
// otherwise.
func (e *engine) twoCircle(truth *geom.Polygon, computedHull *geos.Geom, threshold float64) (float64, error) {
	center := geometry.Centroid(truth)
	inner, err := e.geom(geometry.Circle(center, geometry.DistanceToBoundary(center, truth), geometry.DefaultQuadrantSegments))
	if err != nil {
		return 0, err
	}
	outer, err := e.geom(geometry.Circle(center, outerCircleScale*geometry.FarthestVertex(center, truth), geometry.DefaultQuadrantSegments))
	if err != nil {
		return 0, err
	}
	if math.Abs(outer.Intersection(computedHull).Area()/outer.Area()) < threshold {
		return math.Abs(inner.Intersection(computedHull).Area() / inner.Area()), nil
	}
	return 0, nil
}

// Ratio computes the similarity of two polygons with a fresh GEOS context.
func Ratio(m Metric, truth, computed *geom.Polygon, threshold float64) (float64, error) {
	return newEngine().ratio(m, truth, computed, threshold)
}
