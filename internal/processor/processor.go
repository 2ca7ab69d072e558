// Package processor combines the classifier ensemble into a weighted
// consensus and writes the per-location artifacts.
package processor

import (
	"context"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/sptp/internal/classifier"
	"github.com/sells-group/sptp/internal/factors"
	"github.com/sells-group/sptp/internal/kml"
	"github.com/sells-group/sptp/internal/model"
)

// ErrNoCandidates is returned for a location without candidate polygons.
var ErrNoCandidates = eris.New("processor: location has no candidate polygons")

// File suffixes of the artifacts written per location.
const (
	SuffixJSON     = ".json"
	SuffixCSV      = ".points.csv"
	SuffixComputed = ".computed.kml"

	csvSeparator = ";"
	totalColumn  = "Total"
)

// Total is the weighted score sum of one polygon.
type Total struct {
	WayID string `json:"way_id"`
	Score int    `json:"score"`
}

// Result holds the weighted scores of every classifier and the ranked totals.
type Result struct {
	LocationID string
	// Classifiers lists classifier names in ensemble order.
	Classifiers []string
	Scores      map[string]model.ScoreMap
	// Totals is sorted by score descending, ties by ascending way id.
	Totals []Total
}

// Winner returns the highest ranked polygon.
func (r *Result) Winner() (Total, bool) {
	if r == nil || len(r.Totals) == 0 {
		return Total{}, false
	}
	return r.Totals[0], true
}

// Processor applies a classifier ensemble with a weight vector.
type Processor struct {
	Classifiers classifier.Ensemble
	Factors     *factors.Factors
	// OutputDir receives the artifacts. Nothing is written when empty.
	OutputDir string
	// WriteCSV enables the per-location score table.
	WriteCSV bool
	Logger   *zap.Logger
}

// New returns a Processor writing to outputDir.
func New(ensemble classifier.Ensemble, f *factors.Factors, outputDir string) *Processor {
	return &Processor{Classifiers: ensemble, Factors: f, OutputDir: outputDir}
}

func (p *Processor) logger() *zap.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return zap.L()
}

// Score runs every classifier on loc, scales each score by the classifier
// weight rounded half away from zero, and sums the scores per polygon.
func (p *Processor) Score(ctx context.Context, loc *model.Location) (*Result, error) {
	if len(loc.Ways) == 0 {
		return nil, eris.Wrapf(ErrNoCandidates, "processor: location %s", loc.ID)
	}
	res := &Result{
		LocationID: loc.ID,
		Scores:     make(map[string]model.ScoreMap, len(p.Classifiers)),
	}
	sums := make(map[string]int, len(loc.Ways))
	for _, c := range p.Classifiers {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrapf(err, "processor: location %s", loc.ID)
		}
		name := c.Name()
		weight := p.Factors.Get(name)
		raw := c.Classify(loc)
		weighted := make(model.ScoreMap, len(raw))
		for id, score := range raw {
			v := int(math.Round(weight * float64(score)))
			weighted[id] = v
			sums[id] += v
		}
		res.Classifiers = append(res.Classifiers, name)
		res.Scores[name] = weighted
	}

	for _, id := range loc.WayIDs() {
		res.Totals = append(res.Totals, Total{WayID: id, Score: sums[id]})
	}
	sort.SliceStable(res.Totals, func(i, j int) bool {
		return res.Totals[i].Score > res.Totals[j].Score
	})
	return res, nil
}

// Run scores loc and writes its artifacts: the JSON dump, the optional score
// table and the computed KML holding the winner and the location point.
func (p *Processor) Run(ctx context.Context, loc *model.Location) (*Result, error) {
	res, err := p.Score(ctx, loc)
	if err != nil {
		return nil, err
	}
	if p.OutputDir == "" {
		return res, nil
	}
	if err := p.writeJSON(loc); err != nil {
		return nil, err
	}
	if p.WriteCSV {
		if err := p.writeCSV(loc, res); err != nil {
			return nil, err
		}
	}
	if err := p.writeKML(loc, res); err != nil {
		return nil, err
	}
	w, _ := res.Winner()
	p.logger().Debug("processor: location done",
		zap.String("location", loc.ID),
		zap.String("winner", w.WayID),
		zap.Int("score", w.Score),
		zap.Int("candidates", len(res.Totals)),
	)
	return res, nil
}

func (p *Processor) path(loc *model.Location, suffix string) string {
	return filepath.Join(p.OutputDir, loc.ID+suffix)
}

func (p *Processor) writeJSON(loc *model.Location) error {
	data, err := json.Marshal(loc)
	if err != nil {
		return eris.Wrapf(err, "processor: marshal location %s", loc.ID)
	}
	path := p.path(loc, SuffixJSON)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "processor: write %s", path)
	}
	return nil
}

// Table returns the score table with one row per polygon in ascending id
// order. The first row holds the classifier names and a Total column.
func (r *Result) Table() [][]string {
	ids := make([]string, 0, len(r.Totals))
	sums := make(map[string]int, len(r.Totals))
	for _, t := range r.Totals {
		ids = append(ids, t.WayID)
		sums[t.WayID] = t.Score
	}
	sort.Strings(ids)

	rows := make([][]string, 0, len(ids)+1)
	head := append([]string{""}, r.Classifiers...)
	rows = append(rows, append(head, totalColumn))
	for _, id := range ids {
		row := make([]string, 0, len(r.Classifiers)+2)
		row = append(row, id)
		for _, name := range r.Classifiers {
			row = append(row, strconv.Itoa(r.Scores[name][id]))
		}
		rows = append(rows, append(row, strconv.Itoa(sums[id])))
	}
	return rows
}

func (p *Processor) writeCSV(loc *model.Location, res *Result) error {
	var b strings.Builder
	for _, row := range res.Table() {
		b.WriteString(strings.Join(row, csvSeparator))
		b.WriteByte('\n')
	}
	path := p.path(loc, SuffixCSV)
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return eris.Wrapf(err, "processor: write %s", path)
	}
	return nil
}

// ImageDescription is the KML description linking the location photo.
func ImageDescription(id string) string {
	return `<img src="` + id + `.jpg" width="400"/>`
}

func (p *Processor) writeKML(loc *model.Location, res *Result) error {
	w, _ := res.Winner()
	winner := loc.Ways[w.WayID].Clone()
	winner.Name = loc.ID
	if loc.Image != nil {
		winner.Tags[model.TagDescription] = ImageDescription(loc.ID)
	}
	point := &model.Node{ID: loc.ID, Tags: map[string]string{}, Point: loc.Point}

	if err := kml.WriteFile(p.path(loc, SuffixComputed), []kml.Placemark{kml.FromWay(winner), kml.FromNode(point)}); err != nil {
		return eris.Wrapf(err, "processor: location %s", loc.ID)
	}
	return nil
}
