// Package surs parses space usage rule files. Each line carries one rule:
//
//	<location id>, <latitude>, <longitude>, <key>=<"value">
//
// Lines starting with '#' and lines that do not match the format are ignored.
package surs

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/sptp/internal/model"
)

// ErrNoLocations is returned when a rule file yields no location.
var ErrNoLocations = eris.New("surs: no locations")

// Parse reads a rule file. Locations are returned in the order their id is
// first seen; later rules for the same id are merged into it and keep the
// position of the first line.
func Parse(r io.Reader) ([]*model.Location, error) {
	var (
		out  []*model.Location
		byID = make(map[string]*model.Location)
	)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if strings.HasPrefix(line, "#") {
			continue
		}
		id, lon, lat, key, value, ok := parseLine(line)
		if !ok {
			continue
		}
		loc, seen := byID[id]
		if !seen {
			loc = model.NewLocation(id, lon, lat)
			byID[id] = loc
			out = append(out, loc)
		}
		loc.SURs[key] = value
	}
	if err := sc.Err(); err != nil {
		return nil, eris.Wrap(err, "surs: read")
	}
	if len(out) == 0 {
		return nil, ErrNoLocations
	}
	return out, nil
}

func parseLine(line string) (id string, lon, lat float64, key, value string, ok bool) {
	parts := strings.Split(line, ",")
	if len(parts) != 4 {
		return
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	var err error
	if lat, err = strconv.ParseFloat(parts[1], 64); err != nil {
		return
	}
	if lon, err = strconv.ParseFloat(parts[2], 64); err != nil {
		return
	}
	k, v, found := strings.Cut(parts[3], "=")
	if !found {
		return
	}
	key = strings.TrimSpace(k)
	value = strings.TrimSpace(strings.Trim(strings.TrimSpace(v), `"`))
	if parts[0] == "" || key == "" || value == "" {
		return
	}
	return parts[0], lon, lat, key, value, true
}

// Load parses the rule file at path.
func Load(path string) ([]*model.Location, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "surs: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	locs, err := Parse(f)
	if err != nil {
		return nil, eris.Wrapf(err, "surs: load %s", path)
	}
	return locs, nil
}
