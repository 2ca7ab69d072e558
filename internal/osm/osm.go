// Package osm turns OpenStreetMap XML into the location model.
package osm

import (
	"io"
	"os"
	"strconv"

	"github.com/paulmach/osm"
	"github.com/rotisserie/eris"

	"github.com/sells-group/sptp/internal/fetcher"
	"github.com/sells-group/sptp/internal/model"
)

// ErrMalformed marks input that is not well-formed OSM XML. Callers use it to
// tell a corrupt cache file from a failure to read one.
var ErrMalformed = eris.New("osm: malformed document")

// Data holds the nodes and ways of one OSM document keyed by OSM id.
type Data struct {
	Nodes map[string]*model.Node
	Ways  map[string]*model.Way
}

// Parse decodes an OSM XML document. Every node and way gets source=osm;
// ways with fewer than three resolvable nodes are dropped.
func Parse(r io.Reader) (*Data, error) {
	var doc osm.OSM
	if err := fetcher.NewXMLDecoder(r).Decode(&doc); err != nil {
		if fetcher.IsSyntaxError(err) || eris.Is(err, io.EOF) || eris.Is(err, io.ErrUnexpectedEOF) {
			return nil, eris.Wrapf(ErrMalformed, "osm: decode: %v", err)
		}
		return nil, eris.Wrap(err, "osm: decode")
	}

	data := &Data{
		Nodes: make(map[string]*model.Node, len(doc.Nodes)),
		Ways:  make(map[string]*model.Way, len(doc.Ways)),
	}
	for _, n := range doc.Nodes {
		id := strconv.FormatInt(int64(n.ID), 10)
		data.Nodes[id] = &model.Node{
			ID:    id,
			Tags:  tags(n.Tags),
			Point: model.NewPoint(n.Lon, n.Lat),
		}
	}

	for _, w := range doc.Ways {
		coords := make([][2]float64, 0, len(w.Nodes))
		for _, ref := range w.Nodes {
			n, ok := data.Nodes[strconv.FormatInt(int64(ref.ID), 10)]
			if !ok {
				continue
			}
			coords = append(coords, [2]float64{n.Point.X(), n.Point.Y()})
		}
		if len(coords) < 3 {
			continue
		}
		poly, err := model.NewPolygon(coords)
		if err != nil {
			continue
		}
		id := strconv.FormatInt(int64(w.ID), 10)
		data.Ways[id] = &model.Way{ID: id, Tags: tags(w.Tags), Polygon: poly}
	}
	return data, nil
}

// ParseFile parses the OSM document at path.
func ParseFile(path string) (*Data, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "osm: open %s", path)
	}
	defer f.Close() //nolint:errcheck
	return Parse(f)
}

func tags(in osm.Tags) map[string]string {
	out := make(map[string]string, len(in)+1)
	for _, t := range in {
		out[t.Key] = t.Value
	}
	out[model.TagSource] = model.SourceOSM
	return out
}
