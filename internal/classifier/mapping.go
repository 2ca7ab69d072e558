package classifier

import (
	_ "embed"
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/sptp/internal/model"
)

// Wildcard matches any key or value in a mapping rule.
const Wildcard = "*"

// mappingScale multiplies the summed rule deltas before clamping.
const mappingScale = 10

//go:embed mapping.yaml
var defaultMappingYAML []byte

// Rule adds Delta to a polygon when the location has a SUR matching
// SURKey=SURValue and the polygon carries OSMKey=OSMValue.
type Rule struct {
	SURKey   string `yaml:"sur_key"`
	SURValue string `yaml:"sur_value"`
	OSMKey   string `yaml:"osm_key"`
	OSMValue string `yaml:"osm_value"`
	Delta    int    `yaml:"delta"`
}

type ruleFile struct {
	Rules []Rule `yaml:"rules"`
}

// ParseRules decodes a YAML mapping table.
func ParseRules(data []byte) ([]Rule, error) {
	var f ruleFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "classifier: parse mapping rules")
	}
	for i, r := range f.Rules {
		if r.SURKey == "" || r.SURValue == "" || r.OSMKey == "" || r.OSMValue == "" {
			return nil, eris.Errorf("classifier: mapping rule %d has an empty field", i)
		}
	}
	return f.Rules, nil
}

// LoadRules reads a YAML mapping table from disk.
func LoadRules(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "classifier: read mapping rules %s", path)
	}
	return ParseRules(data)
}

// DefaultRules returns the built-in mapping table.
func DefaultRules() []Rule {
	rules, err := ParseRules(defaultMappingYAML)
	if err != nil {
		panic(err)
	}
	return rules
}

func (r Rule) matchesSUR(key, value string) bool {
	return (r.SURKey == Wildcard || r.SURKey == key) &&
		(r.SURValue == Wildcard || r.SURValue == value)
}

func (r Rule) matchesTags(tags map[string]string) bool {
	if r.OSMKey != Wildcard {
		v, ok := tags[r.OSMKey]
		return ok && (r.OSMValue == Wildcard || v == r.OSMValue)
	}
	if r.OSMValue == Wildcard {
		return len(tags) > 0
	}
	for _, v := range tags {
		if v == r.OSMValue {
			return true
		}
	}
	return false
}

// Mapping scores polygons through a SUR to OSM tag table. Every matching
// (SUR, rule) pair adds the rule's delta; the sum is scaled and clamped.
type Mapping struct {
	rules []Rule
}

// NewMapping returns a mapping classifier over rules.
func NewMapping(rules []Rule) *Mapping {
	return &Mapping{rules: append([]Rule(nil), rules...)}
}

// Rules returns a copy of the rule table.
func (m *Mapping) Rules() []Rule { return append([]Rule(nil), m.rules...) }

// Name implements Classifier.
func (m *Mapping) Name() string { return SURMapping.String() }

// Classify implements Classifier.
func (m *Mapping) Classify(loc *model.Location) model.ScoreMap {
	out := make(model.ScoreMap, len(loc.Ways))
	for id, w := range loc.Ways {
		points := 0
		for key, value := range loc.SURs {
			for _, r := range m.rules {
				if r.matchesSUR(key, value) && r.matchesTags(w.Tags) {
					points += r.Delta
				}
			}
		}
		out[id] = clamp(points * mappingScale)
	}
	return out
}
