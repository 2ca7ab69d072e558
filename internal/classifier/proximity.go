package classifier

import (
	"math"
	"sort"

	"github.com/twpayne/go-geom"

	"github.com/sells-group/sptp/internal/geometry"
	"github.com/sells-group/sptp/internal/model"
)

// Rank scoring: the closest polygon gets rankStart, every following one
// rankStep less, never below MinScore.
const (
	rankStart = 100
	rankStep  = 25
)

type measureFunc func(pt geom.Coord, p *geom.Polygon) float64

func centroidDistance(pt geom.Coord, p *geom.Polygon) float64 {
	return geometry.Distance(pt, geometry.Centroid(p))
}

func edgeDistance(pt geom.Coord, p *geom.Polygon) float64 {
	return geometry.DistanceToBoundary(pt, p)
}

func vertexDistance(pt geom.Coord, p *geom.Polygon) float64 {
	return geometry.DistanceToVertex(pt, p)
}

// proximity ranks polygons by ascending distance from the location point.
type proximity struct {
	kind    Kind
	measure measureFunc
}

func (c proximity) Name() string { return c.kind.String() }

func (c proximity) Classify(loc *model.Location) model.ScoreMap {
	pt := loc.Point.Coords()
	distances := make(map[string]float64, len(loc.Ways))
	for id, w := range loc.Ways {
		d := c.measure(pt, w.Polygon)
		if math.IsNaN(d) {
			d = math.Inf(1)
		}
		distances[id] = d
	}
	return rank(distances)
}

// rank assigns the rank scores in ascending distance order. Equal distances
// are ordered by way id.
func rank(distances map[string]float64) model.ScoreMap {
	ids := make([]string, 0, len(distances))
	for id := range distances {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		di, dj := distances[ids[i]], distances[ids[j]]
		if di != dj {
			return di < dj
		}
		return ids[i] < ids[j]
	})

	out := make(model.ScoreMap, len(ids))
	score := rankStart
	for _, id := range ids {
		out[id] = score
		score = max(score-rankStep, MinScore)
	}
	return out
}

type pointInPolygon struct{}

func (pointInPolygon) Name() string { return PointInPolygon.String() }

func (pointInPolygon) Classify(loc *model.Location) model.ScoreMap {
	pt := loc.Point.Coords()
	out := make(model.ScoreMap, len(loc.Ways))
	for id, w := range loc.Ways {
		if geometry.Contains(w.Polygon, pt) {
			out[id] = 100
		} else {
			out[id] = -75
		}
	}
	return out
}
