// Package classifier implements the scoring heuristics that rate every
// candidate polygon of a location between -100 (unlikely) and 100 (likely).
package classifier

import (
	"github.com/rotisserie/eris"

	"github.com/sells-group/sptp/internal/model"
)

// Score bounds shared by every classifier.
const (
	MaxScore = 100
	MinScore = -100
)

// Kind enumerates the classifier variants.
type Kind int

// Classifier kinds in canonical ensemble order.
const (
	ProximityCentroid Kind = iota
	PointInPolygon
	ProximityClosestEdge
	ProximityClosestVertex
	SURMapping
	SURDescription
	HeadingRay
	GeneratedWeight
	OSMWeight
	ImageOutside
)

var kindNames = [...]string{
	ProximityCentroid:      "Proximity (centroid)",
	PointInPolygon:         "Point in polygon",
	ProximityClosestEdge:   "Proximity (closest edge)",
	ProximityClosestVertex: "Proximity (closest vertex)",
	SURMapping:             "SUR-OSM Mapping",
	SURDescription:         "SUR Description",
	HeadingRay:             "Exif GPSInfo Direction",
	GeneratedWeight:        "Generated Weight",
	OSMWeight:              "OSM Weight",
	ImageOutside:           "Image processing",
}

// String returns the classifier name for k.
func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "unknown"
	}
	return kindNames[k]
}

// Slow reports whether the kind is excluded by the slow-classifier flag.
func (k Kind) Slow() bool {
	return k == ImageOutside
}

// Kinds returns every kind in canonical order.
func Kinds() []Kind {
	kinds := make([]Kind, len(kindNames))
	for i := range kindNames {
		kinds[i] = Kind(i)
	}
	return kinds
}

// ParseKind resolves a classifier name to its kind.
func ParseKind(name string) (Kind, error) {
	for i, n := range kindNames {
		if n == name {
			return Kind(i), nil
		}
	}
	return 0, eris.Errorf("classifier: unknown classifier %q", name)
}

// Names lists every classifier name in canonical order. These are also the
// keys of weight files.
func Names() []string {
	names := make([]string, len(kindNames))
	copy(names, kindNames[:])
	return names
}

// Classifier rates the candidate polygons of a location. Implementations are
// pure: the returned map has exactly one entry per way of the location.
type Classifier interface {
	Name() string
	Classify(loc *model.Location) model.ScoreMap
}

// Ensemble is an ordered list of classifiers.
type Ensemble []Classifier

// For returns the classifier implementing k with its default configuration.
func For(k Kind) (Classifier, error) {
	switch k {
	case ProximityCentroid:
		return proximity{kind: k, measure: centroidDistance}, nil
	case ProximityClosestEdge:
		return proximity{kind: k, measure: edgeDistance}, nil
	case ProximityClosestVertex:
		return proximity{kind: k, measure: vertexDistance}, nil
	case PointInPolygon:
		return pointInPolygon{}, nil
	case SURMapping:
		return NewMapping(DefaultRules()), nil
	case SURDescription:
		return description{}, nil
	case HeadingRay:
		return headingRay{}, nil
	case GeneratedWeight:
		return provenance{kind: k, source: model.SourceGenerated}, nil
	case OSMWeight:
		return provenance{kind: k, source: model.SourceOSM}, nil
	case ImageOutside:
		return imageOutside{}, nil
	}
	return nil, eris.Errorf("classifier: unknown kind %d", int(k))
}

// New builds an ensemble from an explicit list of enabled kinds.
func New(kinds ...Kind) (Ensemble, error) {
	e := make(Ensemble, 0, len(kinds))
	seen := make(map[Kind]bool, len(kinds))
	for _, k := range kinds {
		if seen[k] {
			return nil, eris.Errorf("classifier: %s enabled twice", k)
		}
		seen[k] = true
		c, err := For(k)
		if err != nil {
			return nil, err
		}
		e = append(e, c)
	}
	return e, nil
}

// Default returns the canonical ensemble, omitting slow classifiers when
// excludeSlow is set.
func Default(excludeSlow bool) Ensemble {
	var kinds []Kind
	for _, k := range Kinds() {
		if excludeSlow && k.Slow() {
			continue
		}
		kinds = append(kinds, k)
	}
	e, _ := New(kinds...) //nolint:errcheck // Kinds yields only known, distinct kinds.
	return e
}

// Names returns the classifier names in ensemble order.
func (e Ensemble) Names() []string {
	names := make([]string, len(e))
	for i, c := range e {
		names[i] = c.Name()
	}
	return names
}

// WithMapping returns a copy of e whose tag mapping classifier uses rules.
func (e Ensemble) WithMapping(rules []Rule) Ensemble {
	out := make(Ensemble, len(e))
	for i, c := range e {
		if _, ok := c.(*Mapping); ok {
			c = NewMapping(rules)
		}
		out[i] = c
	}
	return out
}

func clamp(v int) int {
	return max(MinScore, min(MaxScore, v))
}

func fill(loc *model.Location, score int) model.ScoreMap {
	out := make(model.ScoreMap, len(loc.Ways))
	for id := range loc.Ways {
		out[id] = score
	}
	return out
}
