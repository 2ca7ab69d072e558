package model

import (
	"encoding/json"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
)

// Tag keys and source values used across packages.
const (
	TagSource      = "source"
	TagDescription = "description"

	SourceOSM       = "osm"
	SourceGenerated = "gen_from_osm_node"
)

// ScoreMap maps way ids to a classifier score in [-100, 100].
type ScoreMap map[string]int

// Way is a closed candidate polygon with its tags.
type Way struct {
	ID      string
	Tags    map[string]string
	Polygon *geom.Polygon

	// Name is assigned when the way is exported as a winner.
	Name string
}

// Node is a tagged point feature.
type Node struct {
	ID    string
	Tags  map[string]string
	Point *geom.Point
}

// NewPoint builds an XY point from lon/lat.
func NewPoint(lon, lat float64) *geom.Point {
	return geom.NewPointFlat(geom.XY, []float64{lon, lat})
}

// NewPolygon builds a single-ring polygon from lon/lat pairs, closing the ring
// when the last coordinate differs from the first. At least three distinct
// coordinates are required.
func NewPolygon(coords [][2]float64) (*geom.Polygon, error) {
	if len(coords) < 3 {
		return nil, eris.Errorf("model: polygon needs at least 3 coordinates, got %d", len(coords))
	}
	flat := make([]float64, 0, 2*(len(coords)+1))
	for _, c := range coords {
		flat = append(flat, c[0], c[1])
	}
	first, last := coords[0], coords[len(coords)-1]
	if first != last {
		flat = append(flat, first[0], first[1])
	}
	return geom.NewPolygonFlat(geom.XY, flat, []int{len(flat)}), nil
}

// Ring returns the exterior ring coordinates of p as lon/lat pairs.
func Ring(p *geom.Polygon) [][2]float64 {
	if p == nil || p.NumLinearRings() == 0 {
		return nil
	}
	coords := p.LinearRing(0).Coords()
	out := make([][2]float64, len(coords))
	for i, c := range coords {
		out[i] = [2]float64{c.X(), c.Y()}
	}
	return out
}

// Clone returns a copy of the way that shares the polygon but not the tags.
func (w *Way) Clone() *Way {
	tags := make(map[string]string, len(w.Tags))
	for k, v := range w.Tags {
		tags[k] = v
	}
	return &Way{ID: w.ID, Tags: tags, Polygon: w.Polygon, Name: w.Name}
}

// Source returns the provenance tag of the way.
func (w *Way) Source() string { return w.Tags[TagSource] }

type wayJSON struct {
	ID      string            `json:"id"`
	Tags    map[string]string `json:"tags"`
	Polygon [][2]float64      `json:"polygon"`
}

// MarshalJSON writes the polygon ring as [lat, lon] pairs.
func (w *Way) MarshalJSON() ([]byte, error) {
	ring := Ring(w.Polygon)
	latLon := make([][2]float64, len(ring))
	for i, c := range ring {
		latLon[i] = [2]float64{c[1], c[0]}
	}
	return json.Marshal(wayJSON{ID: w.ID, Tags: w.Tags, Polygon: latLon})
}

type nodeJSON struct {
	ID    string            `json:"id"`
	Tags  map[string]string `json:"tags"`
	Point [2]float64        `json:"point"`
}

// MarshalJSON writes the point as [lat, lon].
func (n *Node) MarshalJSON() ([]byte, error) {
	return json.Marshal(nodeJSON{ID: n.ID, Tags: n.Tags, Point: [2]float64{n.Point.Y(), n.Point.X()}})
}
