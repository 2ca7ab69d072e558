package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/sells-group/sptp/internal/comparator"
)

var compareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Compare computed polygons with ground truth",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("compare"); err != nil {
			return err
		}
		f := cmd.Flags()
		opts := comparator.Options{
			TruthDir:    cfg.Paths.Input,
			ComputedDir: cfg.Paths.Output,
			Threshold:   cfg.Compare.Threshold,
		}
		if cfg.Compare.TwoCircle {
			opts.Metric = comparator.MetricTwoCircle
		}
		if f.Changed("input-folder-path") {
			opts.TruthDir, _ = f.GetString("input-folder-path")
		}
		if f.Changed("output-folder-path") {
			opts.ComputedDir, _ = f.GetString("output-folder-path")
		}
		if f.Changed("threshold") {
			opts.Threshold, _ = f.GetFloat64("threshold")
		}
		if on, _ := f.GetBool("two-circle-intersection"); on {
			opts.Metric = comparator.MetricTwoCircle
		}
		opts.RaiseOnCritical, _ = f.GetBool("raise-on-critical")
		long, _ := f.GetBool("long")

		rep, err := comparator.Compare(cmd.Context(), opts)
		if err != nil {
			return err
		}
		return rep.Print(os.Stdout, long)
	},
}

func registerCompareFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringP("input-folder-path", "i", "", "folder with <id>.truth.kml files (default ./input/)")
	f.StringP("output-folder-path", "o", "", "folder with <id>.computed.kml files (default ./output/)")
	f.Float64("threshold", 0, "minimum intersection ratio to pass (default 0.7)")
	f.Bool("two-circle-intersection", false, "use the two circle intersection ratio")
	f.Bool("raise-on-critical", false, "abort on missing or unreadable files")
	f.Bool("long", true, "list every location")
}

func init() {
	registerCompareFlags(compareCmd)
	rootCmd.AddCommand(compareCmd)
}
