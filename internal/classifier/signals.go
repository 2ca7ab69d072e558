package classifier

import (
	"math"

	"github.com/twpayne/go-geom"

	"github.com/sells-group/sptp/internal/geometry"
	"github.com/sells-group/sptp/internal/imaging"
	"github.com/sells-group/sptp/internal/model"
)

// rayLength is the heading ray length in degrees.
const rayLength = 0.001

// headingRay casts a short ray from the location along the camera heading and
// awards every polygon it touches.
type headingRay struct{}

func (headingRay) Name() string { return HeadingRay.String() }

func (headingRay) Classify(loc *model.Location) model.ScoreMap {
	if loc.Heading == nil {
		return fill(loc, 0)
	}
	a, b := Ray(loc.Point.Coords(), *loc.Heading)
	out := make(model.ScoreMap, len(loc.Ways))
	for id, w := range loc.Ways {
		if geometry.SegmentIntersects(a, b, w.Polygon) {
			out[id] = 100
		} else {
			out[id] = 0
		}
	}
	return out
}

// Ray returns the end points of the heading ray starting at p. The unit
// vector (0, rayLength) is rotated counter-clockwise by heading degrees.
func Ray(p geom.Coord, heading float64) (geom.Coord, geom.Coord) {
	s, c := math.Sincos(heading * math.Pi / 180)
	return geom.Coord{p[0], p[1]}, geom.Coord{p[0] - s*rayLength, p[1] + c*rayLength}
}

// provenance penalizes polygons with a given source tag.
type provenance struct {
	kind   Kind
	source string
}

func (c provenance) Name() string { return c.kind.String() }

func (c provenance) Classify(loc *model.Location) model.ScoreMap {
	out := make(model.ScoreMap, len(loc.Ways))
	for id, w := range loc.Ways {
		if w.Source() == c.source {
			out[id] = -100
		} else {
			out[id] = 0
		}
	}
	return out
}

// outsideKeys mark a polygon as an outdoor area.
var outsideKeys = set("natural", "landuse")

// imageOutside awards outdoor polygons when the location photo looks like it
// was taken outside.
type imageOutside struct{}

func (imageOutside) Name() string { return ImageOutside.String() }

func (imageOutside) Classify(loc *model.Location) model.ScoreMap {
	if loc.Image == nil || !imaging.Outside(loc.Image) {
		return fill(loc, 0)
	}
	out := make(model.ScoreMap, len(loc.Ways))
	for id, w := range loc.Ways {
		out[id] = 0
		for k := range w.Tags {
			if outsideKeys[k] {
				out[id] = 100
				break
			}
		}
	}
	return out
}
