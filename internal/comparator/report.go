package comparator

import (
	"bufio"
	"fmt"
	"io"
	"sort"
)

func percent(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total) * 100
}

type ranked struct {
	id    string
	ratio float64
}

func byRatio(m map[string]float64) []ranked {
	out := make([]ranked, 0, len(m))
	for id, r := range m {
		out = append(out, ranked{id, r})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ratio != out[j].ratio {
			return out[i].ratio < out[j].ratio
		}
		return out[i].id < out[j].id
	})
	return out
}

// Print writes the summary. In long mode every bucket is listed, failed and
// passed ids by ascending ratio, erroneous ids alphabetically.
func (r *Report) Print(w io.Writer, long bool) error {
	bw := bufio.NewWriter(w)
	passed, failed, erroneous := len(r.Passed), len(r.Failed), len(r.Erroneous)
	total := r.Total()

	fmt.Fprintf(bw, "Results: %d total, %d correct (%.2f%%), %d incorrect (%.2f%%), %d failed to compare (%.2f%%)\n",
		total, passed, percent(passed, total), failed, percent(failed, total), erroneous, percent(erroneous, total))
	if s := r.Stats; s != nil {
		fmt.Fprintf(bw, "Average intersection ratio: %.3f\n", s.Mean)
		fmt.Fprintf(bw, "Variance: %.3f\n", s.Variance)
		fmt.Fprintf(bw, "Standard deviation: %.3f\n", s.StdDev)
		fmt.Fprintf(bw, "Minimum: %.3f\n", s.Min)
		fmt.Fprintf(bw, "Q1: %.3f\n", s.Q1)
		fmt.Fprintf(bw, "Median: %.3f\n", s.Median)
		fmt.Fprintf(bw, "Q3: %.3f\n", s.Q3)
		fmt.Fprintf(bw, "Maximum: %.3f\n\n", s.Max)
	} else {
		fmt.Fprint(bw, "No ratios to summarize.\n\n")
	}

	if long {
		fmt.Fprintf(bw, "%d incorrect\n", failed)
		for _, e := range byRatio(r.Failed) {
			fmt.Fprintf(bw, "\t%s -> %.8f\n", e.id, e.ratio)
		}
		fmt.Fprintf(bw, "%d correct\n", passed)
		for _, e := range byRatio(r.Passed) {
			fmt.Fprintf(bw, "\t%s -> %.8f\n", e.id, e.ratio)
		}
		fmt.Fprintf(bw, "%d failed to compare\n", erroneous)
		ids := make([]string, 0, erroneous)
		for id := range r.Erroneous {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			fmt.Fprintf(bw, "\t%s -> %v\n", id, r.Erroneous[id])
		}
	}
	return bw.Flush()
}
