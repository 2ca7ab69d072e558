// Package kml reads and writes the KML subset exchanged with map viewers and
// ground-truth tooling: polygon and point placemarks with a name and a
// description.
package kml

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/sptp/internal/fetcher"
	"github.com/sells-group/sptp/internal/model"
)

// Unknown is used for placemarks without a name or description.
const Unknown = "?"

// ErrMalformed marks a document whose placemarks cannot be interpreted.
var ErrMalformed = eris.New("kml: malformed document")

const header = `<?xml version="1.0" encoding="UTF-8"?>
<kml xmlns="http://www.opengis.net/kml/2.2">
<Document>
<Style id="poly1">
<LineStyle>
<width>1.5</width>
</LineStyle>
<PolyStyle>
<color>7dff0000</color>
</PolyStyle>
</Style>
<!--
Contains information from http://www.openstreetmap.org/, which is made available
here under the Open Database License (ODbL) [http://opendatacommons.org/licenses/odbl/1.0/].
-->
`

const footer = "</Document>\n</kml>"

// Placemark is a single KML feature. Exactly one of Polygon and Point is set.
type Placemark struct {
	Name        string
	Description string
	Polygon     *geom.Polygon
	Point       *geom.Point
}

// FromWay builds a polygon placemark named after w.Name, or w.ID when the way
// has no name.
func FromWay(w *model.Way) Placemark {
	name := w.Name
	if name == "" {
		name = w.ID
	}
	return Placemark{Name: name, Description: w.Tags[model.TagDescription], Polygon: w.Polygon}
}

// FromNode builds a point placemark.
func FromNode(n *model.Node) Placemark {
	return Placemark{Name: n.ID, Description: n.Tags[model.TagDescription], Point: n.Point}
}

// Encode writes a KML document holding placemarks in order.
func Encode(w io.Writer, placemarks []Placemark) error {
	var buf bytes.Buffer
	buf.WriteString(header)
	for i, p := range placemarks {
		switch {
		case p.Polygon != nil:
			writePolygon(&buf, p)
		case p.Point != nil:
			writePoint(&buf, p)
		default:
			return eris.Errorf("kml: placemark %d (%s) has no geometry", i, p.Name)
		}
	}
	buf.WriteString(footer)
	_, err := w.Write(buf.Bytes())
	return eris.Wrap(err, "kml: write")
}

// WriteFile encodes placemarks into the file at path.
func WriteFile(path string, placemarks []Placemark) error {
	var buf bytes.Buffer
	if err := Encode(&buf, placemarks); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return eris.Wrapf(err, "kml: write %s", path)
	}
	return nil
}

func escape(s string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}

func writePolygon(buf *bytes.Buffer, p Placemark) {
	fmt.Fprintf(buf, "<Placemark>\n<name>%s</name>\n<styleUrl>#poly1</styleUrl>\n", escape(p.Name))
	buf.WriteString("<altitudeMode>clampToGround</altitudeMode>\n<extrude>1</extrude>\n<tessellate>1</tessellate>\n")
	fmt.Fprintf(buf, "<description>%s</description>\n", escape(p.Description))
	buf.WriteString("<Polygon>\n<outerBoundaryIs>\n<LinearRing>\n<coordinates>\n")
	for _, c := range model.Ring(p.Polygon) {
		fmt.Fprintf(buf, "%f,%f\n", c[0], c[1])
	}
	buf.WriteString("</coordinates>\n</LinearRing>\n</outerBoundaryIs>\n</Polygon>\n")
	buf.WriteString("<ExtendedData>\n</ExtendedData>\n</Placemark>\n")
}

func writePoint(buf *bytes.Buffer, p Placemark) {
	fmt.Fprintf(buf, "<Placemark>\n<name>%s</name>\n<description>%s</description>\n", escape(p.Name), escape(p.Description))
	fmt.Fprintf(buf, "<Point>\n<coordinates>\n%f,%f\n</coordinates>\n</Point>\n", p.Point.X(), p.Point.Y())
	buf.WriteString("<ExtendedData>\n</ExtendedData>\n</Placemark>\n")
}

// Document is the decoded content of a KML file keyed by placemark name.
type Document struct {
	Nodes map[string]*model.Node
	Ways  map[string]*model.Way
}

type placemarkXML struct {
	Name        *string `xml:"name"`
	Description *string `xml:"description"`
	Polygon     *struct {
		Coordinates string `xml:"outerBoundaryIs>LinearRing>coordinates"`
	} `xml:"Polygon"`
	Point *struct {
		Coordinates string `xml:"coordinates"`
	} `xml:"Point"`
}

func textOr(s *string) string {
	if s == nil || *s == "" {
		return Unknown
	}
	return *s
}

// Decode reads every placemark of a KML document. Polygons with fewer than
// three coordinates are skipped; a point must carry exactly one coordinate.
// Each feature gets a single "description" tag.
func Decode(r io.Reader) (*Document, error) {
	placemarks, err := fetcher.DecodeElements[placemarkXML](r, "Placemark")
	if err != nil {
		if fetcher.IsSyntaxError(err) {
			return nil, eris.Wrapf(ErrMalformed, "kml: decode: %v", err)
		}
		return nil, eris.Wrap(err, "kml: decode")
	}

	doc := &Document{Nodes: make(map[string]*model.Node), Ways: make(map[string]*model.Way)}
	for _, p := range placemarks {
		name, description := textOr(p.Name), textOr(p.Description)

		if p.Polygon != nil {
			coords, err := parseCoordinates(p.Polygon.Coordinates)
			if err != nil {
				return nil, eris.Wrapf(err, "kml: placemark %s", name)
			}
			if len(coords) >= 3 {
				poly, err := model.NewPolygon(coords)
				if err != nil {
					return nil, eris.Wrapf(err, "kml: placemark %s", name)
				}
				doc.Ways[name] = &model.Way{
					ID:      name,
					Name:    name,
					Tags:    map[string]string{model.TagDescription: description},
					Polygon: poly,
				}
			}
		}

		if p.Point != nil {
			coords, err := parseCoordinates(p.Point.Coordinates)
			if err != nil {
				return nil, eris.Wrapf(err, "kml: placemark %s", name)
			}
			if len(coords) != 1 {
				return nil, eris.Wrapf(ErrMalformed, "kml: placemark %s: point has %d coordinates", name, len(coords))
			}
			doc.Nodes[name] = &model.Node{
				ID:    name,
				Tags:  map[string]string{model.TagDescription: description},
				Point: model.NewPoint(coords[0][0], coords[0][1]),
			}
		}
	}
	return doc, nil
}

// DecodeFile reads the KML document at path.
func DecodeFile(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "kml: open %s", path)
	}
	defer f.Close() //nolint:errcheck
	return Decode(f)
}

// parseCoordinates splits a whitespace separated list of lon,lat[,alt] tuples.
func parseCoordinates(text string) ([][2]float64, error) {
	fields := strings.Fields(text)
	out := make([][2]float64, 0, len(fields))
	for _, f := range fields {
		parts := strings.Split(f, ",")
		if len(parts) < 2 {
			return nil, eris.Wrapf(ErrMalformed, "kml: coordinate %q", f)
		}
		lon, err := strconv.ParseFloat(parts[0], 64)
		if err != nil {
			return nil, eris.Wrapf(ErrMalformed, "kml: coordinate %q: %v", f, err)
		}
		lat, err := strconv.ParseFloat(parts[1], 64)
		if err != nil {
			return nil, eris.Wrapf(ErrMalformed, "kml: coordinate %q: %v", f, err)
		}
		out = append(out, [2]float64{lon, lat})
	}
	return out, nil
}
