// Package generated synthesizes candidate polygons from tagged OSM point
// features such as shops or pubs that are mapped as a single node.
package generated

import (
	"github.com/sells-group/sptp/internal/geometry"
	"github.com/sells-group/sptp/internal/model"
)

// IDPrefix is prepended to the node id of a generated way.
const IDPrefix = "from_node_"

// RadiusScale converts a radius table entry into degrees.
const RadiusScale = 0.00015

// DefaultRadius applies to nodes that match no radius rule.
const DefaultRadius = 1.0

const wildcard = "*"

type tag struct{ key, value string }

func (t tag) matches(key, value string) bool {
	return (t.key == wildcard || t.key == key) && (t.value == wildcard || t.value == value)
}

// excluded lists node tags that never describe an area.
var excluded = []tag{
	{"amenity", "waste_basket"},
	{"amenity", "telephone"},
	{"amenity", "emergency_phone"},
	{"amenity", "bench"},
	{"amenity", "post_box"},
	{"amenity", "vending_machine"},
	{"amenity", "atm"},
	{"barrier", wildcard},
	{"building", "entrance"},
	{"crossing_ref", wildcard},
	{"emergency", "fire_hydrant"},
	{"entrance", wildcard},
	{"FIXME", wildcard},
	{"fixme", wildcard},
	{"highway", "bus_stop"},
	{"highway", "traffic_signals"},
	{"highway", "crossing"},
	{"highway", "street_lamp"},
	{"highway", "stop"},
	{"highway", "speed_camera"},
	{"highway", "give_way"},
	{"highway", "turning_circle"},
	{"historic", "memorial"},
	{"information", "board"},
	{"natural", "tree"},
	{"noexit", wildcard},
	{"public_transport", "stop_position"},
	{"railway", "switch"},
	{"railway", "flat_crossing"},
	{"railway", "buffer_stop"},
	{"railway", "signal"},
	{"railway", "level_crossing"},
	{"railway", "subway_entrance"},
	{"railway", "derail"},
	{"railway", "crossing"},
	{"railway", "railway_crossing"},
	{"railway", "rail"},
	{"railway", "abandoned"},
	{"railway", "tram"},
	{"railway", "disused"},
	{"railway", "light_rail"},
	{"railway:switch", wildcard},
	{"traffic_sign", wildcard},
}

// singleTags do not qualify a node when they are its only tag besides source.
var singleTags = map[string]bool{"created_by": true, "name": true, "ele": true, "level": true}

type radiusRule struct {
	tag    tag
	radius float64
}

// radii is ordered; the first rule matching any node tag wins.
var radii = []radiusRule{
	{tag{"leisure", "playground"}, 3},
	{tag{"leisure", wildcard}, 2},
	{tag{"shop", "bakery"}, 0.5},
	{tag{"amenity", "place_of_worship"}, 4},
	{tag{"amenity", "pub"}, 0.5},
	{tag{"railway", "station"}, 10},
}

// Excluded reports whether a node is skipped: it needs at least one tag
// besides source, must come from OSM, must not only carry a single-tag key
// and must not carry an excluded tag.
func Excluded(n *model.Node) bool {
	if len(n.Tags) < 2 || n.Tags[model.TagSource] != model.SourceOSM {
		return true
	}
	if len(n.Tags) == 2 {
		for k := range n.Tags {
			if singleTags[k] {
				return true
			}
		}
	}
	for k, v := range n.Tags {
		for _, ex := range excluded {
			if ex.matches(k, v) {
				return true
			}
		}
	}
	return false
}

// Radius returns the unscaled polygon radius for a node.
func Radius(n *model.Node) float64 {
	for _, r := range radii {
		for k, v := range n.Tags {
			if r.tag.matches(k, v) {
				return r.radius
			}
		}
	}
	return DefaultRadius
}

// Ways returns a circular polygon for every node of nodes that is not
// Excluded. Keys are IDPrefix plus the node id; tags are copied with
// source=gen_from_osm_node.
func Ways(nodes map[string]*model.Node) map[string]*model.Way {
	out := make(map[string]*model.Way)
	for _, n := range nodes {
		if Excluded(n) {
			continue
		}
		tags := make(map[string]string, len(n.Tags))
		for k, v := range n.Tags {
			tags[k] = v
		}
		tags[model.TagSource] = model.SourceGenerated

		id := IDPrefix + n.ID
		poly := geometry.Circle(n.Point.Coords(), Radius(n)*RadiusScale, geometry.DefaultQuadrantSegments)
		out[id] = &model.Way{ID: id, Tags: tags, Polygon: poly}
	}
	return out
}

// AddTo synthesizes polygons for the location's nodes and merges them with
// the generated prefix.
func AddTo(loc *model.Location) int {
	ways := Ways(loc.Nodes)
	loc.AddWays(model.PrefixGenerated, ways)
	return len(ways)
}
