// Package factors holds the per-classifier weight vector and its text codec.
package factors

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// DefaultWeight is returned for classifiers without an explicit weight.
const DefaultWeight = 1.0

// ErrEmpty is returned when a weight file yields no rows.
var ErrEmpty = eris.New("factors: empty factors file")

// Factors maps classifier names to weights.
type Factors struct {
	weights map[string]float64
}

// New returns Factors holding a copy of weights.
func New(weights map[string]float64) *Factors {
	f := &Factors{weights: make(map[string]float64, len(weights))}
	for k, v := range weights {
		f.weights[k] = v
	}
	return f
}

// Get returns the weight for name, or DefaultWeight when none is set.
// A nil receiver behaves as an empty vector.
func (f *Factors) Get(name string) float64 {
	if f == nil {
		return DefaultWeight
	}
	if w, ok := f.weights[name]; ok {
		return w
	}
	return DefaultWeight
}

// Lookup returns the explicit weight for name.
func (f *Factors) Lookup(name string) (float64, bool) {
	if f == nil {
		return 0, false
	}
	w, ok := f.weights[name]
	return w, ok
}

// Set assigns a weight.
func (f *Factors) Set(name string, weight float64) {
	if f.weights == nil {
		f.weights = make(map[string]float64)
	}
	f.weights[name] = weight
}

// Len returns the number of explicit weights.
func (f *Factors) Len() int {
	if f == nil {
		return 0
	}
	return len(f.weights)
}

// Names returns the names with explicit weights in ascending order.
func (f *Factors) Names() []string {
	if f == nil {
		return nil
	}
	names := make([]string, 0, len(f.weights))
	for k := range f.weights {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Map returns a copy of the weights.
func (f *Factors) Map() map[string]float64 {
	out := make(map[string]float64, f.Len())
	if f == nil {
		return out
	}
	for k, v := range f.weights {
		out[k] = v
	}
	return out
}

// Clone returns a deep copy.
func (f *Factors) Clone() *Factors {
	return New(f.Map())
}

// Validate checks that every weight is finite and positive.
func (f *Factors) Validate() error {
	var bad []string
	for _, name := range f.Names() {
		w := f.weights[name]
		if math.IsNaN(w) || math.IsInf(w, 0) || w <= 0 {
			bad = append(bad, fmt.Sprintf("%s=%v", name, w))
		}
	}
	if len(bad) > 0 {
		return eris.Errorf("factors: weights must be positive and finite: %s", strings.Join(bad, "; "))
	}
	return nil
}

// Parse reads "name, weight" rows. Rows that do not split into exactly two
// comma separated parts are ignored; an unparsable weight is an error.
func Parse(r io.Reader) (*Factors, error) {
	f := New(nil)
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		parts := strings.Split(sc.Text(), ",")
		if len(parts) != 2 {
			continue
		}
		name := strings.TrimSpace(parts[0])
		w, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil {
			return nil, eris.Wrapf(err, "factors: line %d: parse weight", line)
		}
		f.Set(name, w)
	}
	if err := sc.Err(); err != nil {
		return nil, eris.Wrap(err, "factors: read")
	}
	if f.Len() == 0 {
		return nil, ErrEmpty
	}
	return f, nil
}

// Load reads a weight file from disk.
func Load(path string) (*Factors, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "factors: open %s", path)
	}
	defer file.Close() //nolint:errcheck

	f, err := Parse(file)
	if err != nil {
		return nil, eris.Wrapf(err, "factors: load %s", path)
	}
	return f, nil
}

// WriteTo writes "name, weight" rows sorted by name.
func (f *Factors) WriteTo(w io.Writer) (int64, error) {
	var total int64
	for _, name := range f.Names() {
		n, err := fmt.Fprintf(w, "%s, %s\n", name, strconv.FormatFloat(f.weights[name], 'g', -1, 64))
		total += int64(n)
		if err != nil {
			return total, eris.Wrap(err, "factors: write")
		}
	}
	return total, nil
}

// Write saves the weights to path.
func (f *Factors) Write(path string) error {
	file, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "factors: create %s", path)
	}
	if _, err := f.WriteTo(file); err != nil {
		_ = file.Close()
		return err
	}
	return eris.Wrapf(file.Close(), "factors: close %s", path)
}
