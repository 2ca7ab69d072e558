package classifier

import "github.com/sells-group/sptp/internal/model"

const descriptionScale = 25

// category ties a set of SUR keys to the polygon tags that fit them.
type category struct {
	surKeys map[string]bool
	osmKeys map[string]bool
	// values lists tag values that qualify a polygon even without one of
	// osmKeys, e.g. landuse=retail for buildings.
	values map[string]map[string]bool
}

func set(items ...string) map[string]bool {
	m := make(map[string]bool, len(items))
	for _, s := range items {
		m[s] = true
	}
	return m
}

var categories = []category{
	{ // building
		surKeys: set("access:dog", "smoking", "food", "access:age", "access:fire_case"),
		osmKeys: set("building", "shop"),
		values:  map[string]map[string]bool{"landuse": set("retail")},
	},
	{ // outside
		surKeys: set("dog_waste", "littering", "open_fire", "animal_feeding"),
		osmKeys: set("natural", "landuse"),
	},
	{ // street
		surKeys: set("maxspeed", "minspeed", "oneway"),
		osmKeys: set("highway", "sidewalk", "cycleway", "busway", "public_transport",
			"railway", "bridge", "tracks", "tunnel", "route"),
	},
	{ // water
		surKeys: set("swimming", "fishing"),
		osmKeys: set("waterway"),
		values: map[string]map[string]bool{
			"natural": set("water", "bay", "spring"),
			"landuse": set("reservoir", "basin", "reservoir_watershed"),
		},
	},
}

func (c category) fits(tags map[string]string) bool {
	for k, v := range tags {
		if c.osmKeys[k] || c.values[k][v] {
			return true
		}
	}
	return false
}

// description rates polygons by whether their tags fit the kind of place the
// SURs describe. Each SUR in a category adds +1 or -1; a polygon tag equal to
// the SUR key and value adds another +1.
type description struct{}

func (description) Name() string { return SURDescription.String() }

func (description) Classify(loc *model.Location) model.ScoreMap {
	out := make(model.ScoreMap, len(loc.Ways))
	for id, w := range loc.Ways {
		points := 0
		for key, value := range loc.SURs {
			for _, c := range categories {
				if !c.surKeys[key] {
					continue
				}
				if c.fits(w.Tags) {
					points++
				} else {
					points--
				}
			}
			if v, ok := w.Tags[key]; ok && v == value {
				points++
			}
		}
		out[id] = clamp(points * descriptionScale)
	}
	return out
}
