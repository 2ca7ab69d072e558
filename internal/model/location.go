// Package model holds the location, way and node types shared by the
// classification, comparison and batch packages.
package model

import (
	"encoding/json"
	"image"
	"sort"

	"github.com/twpayne/go-geom"
)

// Provenance prefixes applied to way and node ids when they are merged into a
// location.
const (
	PrefixOSM       = "osm_"
	PrefixGenerated = "gen_"
)

// Location is a GPS point carrying space usage rules together with the
// candidate polygons and point features found around it.
type Location struct {
	ID    string
	Point *geom.Point
	SURs  map[string]string
	Ways  map[string]*Way
	Nodes map[string]*Node

	// Image is the decoded, orientation-corrected photo of the location, if any.
	Image image.Image
	// Heading is the camera direction in degrees, if the photo recorded one.
	Heading *float64
}

// NewLocation returns an empty location at lon/lat.
func NewLocation(id string, lon, lat float64) *Location {
	return &Location{
		ID:    id,
		Point: NewPoint(lon, lat),
		SURs:  make(map[string]string),
		Ways:  make(map[string]*Way),
		Nodes: make(map[string]*Node),
	}
}

// Lon returns the longitude of the location.
func (l *Location) Lon() float64 { return l.Point.X() }

// Lat returns the latitude of the location.
func (l *Location) Lat() float64 { return l.Point.Y() }

// AddWays merges ways into the location, prefixing each id.
func (l *Location) AddWays(prefix string, ways map[string]*Way) {
	for id, w := range ways {
		l.Ways[prefix+id] = w
	}
}

// AddNodes merges nodes into the location, prefixing each id.
func (l *Location) AddNodes(prefix string, nodes map[string]*Node) {
	for id, n := range nodes {
		l.Nodes[prefix+id] = n
	}
}

// WayIDs returns the location's way ids in ascending order.
func (l *Location) WayIDs() []string {
	ids := make([]string, 0, len(l.Ways))
	for id := range l.Ways {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

type locationJSON struct {
	ID    string            `json:"id"`
	Point [2]float64        `json:"point"`
	SURs  map[string]string `json:"surs"`
	Nodes map[string]*Node  `json:"nodes"`
	Ways  map[string]*Way   `json:"ways"`
}

// MarshalJSON renders the location dump. Image and heading are omitted;
// coordinates are written as [lat, lon].
func (l *Location) MarshalJSON() ([]byte, error) {
	return json.Marshal(locationJSON{
		ID:    l.ID,
		Point: [2]float64{l.Lat(), l.Lon()},
		SURs:  l.SURs,
		Nodes: l.Nodes,
		Ways:  l.Ways,
	})
}
