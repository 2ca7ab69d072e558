package comparator

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Stats summarizes the ratio distribution of a comparison.
type Stats struct {
	Count    int     `json:"count"`
	Mean     float64 `json:"mean"`
	Variance float64 `json:"variance"`
	StdDev   float64 `json:"std_dev"`
	Min      float64 `json:"min"`
	Q1       float64 `json:"q1"`
	Median   float64 `json:"median"`
	Q3       float64 `json:"q3"`
	Max      float64 `json:"max"`
}

// NewStats computes population statistics and quartiles. Quartile k of n
// sorted values is the value at index round(n*k/4), ties to even, clamped to
// the last value. It returns nil for an empty sample.
func NewStats(values []float64) *Stats {
	if len(values) == 0 {
		return nil
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	mean, variance := stat.PopMeanVariance(sorted, nil)
	return &Stats{
		Count:    len(sorted),
		Mean:     mean,
		Variance: variance,
		StdDev:   math.Sqrt(variance),
		Min:      sorted[0],
		Q1:       quartile(sorted, 1),
		Median:   quartile(sorted, 2),
		Q3:       quartile(sorted, 3),
		Max:      sorted[len(sorted)-1],
	}
}

func quartile(sorted []float64, k int) float64 {
	i := int(math.RoundToEven(float64(len(sorted)*k) / 4))
	return sorted[min(i, len(sorted)-1)]
}
