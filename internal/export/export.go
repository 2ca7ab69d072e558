// Package export writes the winning polygons of a batch as GIS layers.
package export

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/sptp/internal/batch"
	"github.com/sells-group/sptp/internal/model"
)

// Shapefile attribute names.
const (
	FieldLocation = "LOCATION"
	FieldWay      = "WAY"
	FieldScore    = "SCORE"
	FieldSource   = "SOURCE"
)

var fields = []shp.Field{
	shp.StringField(FieldLocation, 32),
	shp.StringField(FieldWay, 48),
	shp.NumberField(FieldScore, 10),
	shp.StringField(FieldSource, 24),
}

// Write exports winners to path. The format follows the extension: .shp for
// an ESRI shapefile, .geojson or .json for a GeoJSON feature collection.
func Write(path string, winners []batch.Winner) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".shp":
		return WriteShapefile(path, winners)
	case ".geojson", ".json":
		return WriteGeoJSON(path, winners)
	default:
		return eris.Errorf("export: unsupported format %q", filepath.Ext(path))
	}
}

// WriteShapefile writes one polygon record per winner with the location id,
// way id, score and source as attributes.
func WriteShapefile(path string, winners []batch.Winner) error {
	w, err := shp.Create(path, shp.POLYGON)
	if err != nil {
		return eris.Wrapf(err, "export: create shapefile %s", path)
	}
	w.SetFields(fields)
	err = writeRecords(w, winners)
	w.Close()
	if err != nil {
		return err
	}
	return fixDBFName(path)
}

func writeRecords(w *shp.Writer, winners []batch.Winner) error {
	for _, win := range winners {
		if win.Way == nil || win.Way.Polygon == nil {
			return eris.Errorf("export: location %s has no polygon", win.LocationID)
		}
		poly := shapePolygon(win.Way.Polygon)
		row := int(w.Write(poly))
		for i, v := range []any{win.LocationID, win.Way.ID, win.Score, win.Way.Source()} {
			if err := w.WriteAttribute(row, i, v); err != nil {
				return eris.Wrapf(err, "export: write attribute %s of %s", fields[i].String(), win.LocationID)
			}
		}
	}
	return nil
}

// fixDBFName moves the attribute table go-shp writes as "<base>dbf" next to
// the geometry as "<base>.dbf", where readers look for it.
func fixDBFName(path string) error {
	base := strings.TrimSuffix(path, filepath.Ext(path))
	bad, good := base+"dbf", base+".dbf"
	if _, err := os.Stat(bad); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return eris.Wrapf(err, "export: stat %s", bad)
	}
	if err := os.Rename(bad, good); err != nil {
		return eris.Wrapf(err, "export: rename %s", bad)
	}
	return nil
}

// shapePolygon converts rings to shapefile parts. Shapefiles want the outer
// ring clockwise and holes counter-clockwise.
func shapePolygon(p *geom.Polygon) *shp.Polygon {
	parts := make([][]shp.Point, 0, p.NumLinearRings())
	for i := 0; i < p.NumLinearRings(); i++ {
		coords := p.LinearRing(i).Coords()
		pts := make([]shp.Point, len(coords))
		for j, c := range coords {
			pts[j] = shp.Point{X: c.X(), Y: c.Y()}
		}
		if clockwise(pts) != (i == 0) {
			for l, r := 0, len(pts)-1; l < r; l, r = l+1, r-1 {
				pts[l], pts[r] = pts[r], pts[l]
			}
		}
		parts = append(parts, pts)
	}
	poly := shp.Polygon(*shp.NewPolyLine(parts))
	return &poly
}

func clockwise(pts []shp.Point) bool {
	area := 0.0
	for i := range pts {
		j := (i + 1) % len(pts)
		area += pts[i].X*pts[j].Y - pts[j].X*pts[i].Y
	}
	return area < 0
}

// WriteGeoJSON writes a feature collection with the same attributes as the
// shapefile as properties.
func WriteGeoJSON(path string, winners []batch.Winner) error {
	fc := geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, len(winners))}
	for _, win := range winners {
		if win.Way == nil || win.Way.Polygon == nil {
			return eris.Errorf("export: location %s has no polygon", win.LocationID)
		}
		fc.Features = append(fc.Features, &geojson.Feature{
			ID:       win.LocationID,
			Geometry: win.Way.Polygon,
			Properties: map[string]any{
				"way":    win.Way.ID,
				"score":  win.Score,
				"source": win.Way.Source(),
				"tags":   tagsOrEmpty(win.Way),
			},
		})
	}
	data, err := json.MarshalIndent(&fc, "", "  ")
	if err != nil {
		return eris.Wrap(err, "export: marshal geojson")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "export: write %s", path)
	}
	return nil
}

func tagsOrEmpty(w *model.Way) map[string]string {
	if w.Tags == nil {
		return map[string]string{}
	}
	return w.Tags
}
