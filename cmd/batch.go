package main

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/sptp/internal/batch"
	"github.com/sells-group/sptp/internal/comparator"
	"github.com/sells-group/sptp/internal/config"
	"github.com/sells-group/sptp/internal/export"
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Compute the polygon of every location in a SURs file",
	Long:  "Downloads map data for every location, runs the classifier ensemble in parallel workers and writes one computed KML per location.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("batch"); err != nil {
			return err
		}
		s := batchSettings(cmd, cfg)

		st, err := openStore(ctx, false)
		if err != nil {
			return err
		}
		if st != nil {
			defer st.Close() //nolint:errcheck
		}

		deps := batch.Deps{
			Maps:   newMapFetcher(cfg.Overpass, s.OverpassRadius),
			Store:  st,
			Stdout: os.Stdout,
		}
		rep, err := batch.Run(ctx, s, deps)
		if err != nil {
			zap.L().Error("batch failed", zap.Error(err))
			return err
		}

		if path, _ := cmd.Flags().GetString("export"); path != "" {
			if err := export.Write(path, rep.Winners); err != nil {
				return err
			}
			zap.L().Info("exported winners", zap.String("path", path), zap.Int("count", len(rep.Winners)))
		}
		return nil
	},
}

// batchSettings merges configuration and the flags that were set.
func batchSettings(cmd *cobra.Command, c *config.Config) batch.Settings {
	s := batch.DefaultSettings()
	s.InputDir = c.Paths.Input
	s.OutputDir = c.Paths.Output
	s.SURsFile = c.Paths.SURs
	s.FactorsFile = c.Paths.Factors
	s.MappingFile = c.Paths.Mapping
	s.CacheDir = c.Paths.Cache
	s.LogDir = c.Paths.Log
	s.LogPrefix = c.Batch.LogPrefix
	s.MaxCacheAge = c.Cache.MaxAge
	s.OverpassRadius = c.Overpass.Radius
	s.Workers = c.Batch.Workers
	s.ExcludeSlow = c.Batch.ExcludeSlow
	s.DebugCSV = c.Batch.DebugCSV
	s.Threshold = c.Compare.Threshold
	if c.Compare.TwoCircle {
		s.Metric = comparator.MetricTwoCircle
	}

	f := cmd.Flags()
	stringFlag := func(name string, dst *string) {
		if f.Changed(name) {
			*dst, _ = f.GetString(name)
		}
	}
	boolFlag := func(name string, dst *bool) {
		if f.Changed(name) {
			*dst, _ = f.GetBool(name)
		}
	}
	intFlag := func(name string, dst *int) {
		if f.Changed(name) {
			*dst, _ = f.GetInt(name)
		}
	}
	stringFlag("input-folder-path", &s.InputDir)
	stringFlag("output-folder-path", &s.OutputDir)
	stringFlag("surs-file-path", &s.SURsFile)
	stringFlag("factors-file-path", &s.FactorsFile)
	stringFlag("cache-folder-path", &s.CacheDir)
	stringFlag("mapping-file-path", &s.MappingFile)
	stringFlag("log-prefix", &s.LogPrefix)
	boolFlag("force-cache-update", &s.ForceCacheUpdate)
	boolFlag("skip-cache-update", &s.SkipCacheUpdate)
	boolFlag("quiet-mode", &s.Quiet)
	boolFlag("exclude-slow-classifiers", &s.ExcludeSlow)
	boolFlag("compare-results", &s.Compare)
	boolFlag("debug-output", &s.DebugCSV)
	intFlag("overpass-radius", &s.OverpassRadius)
	intFlag("workers", &s.Workers)
	if f.Changed("two-circle-intersection") {
		if on, _ := f.GetBool("two-circle-intersection"); on {
			s.Metric = comparator.MetricTwoCircle
		} else {
			s.Metric = comparator.MetricDefault
		}
	}
	if f.Changed("max-cache-age") {
		s.MaxCacheAge, _ = f.GetDuration("max-cache-age")
	}
	return s
}

func registerBatchFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringP("input-folder-path", "i", "", "folder with <id>.jpg photos and <id>.truth.kml files (default ./input/)")
	f.StringP("output-folder-path", "o", "", "folder receiving the computed files, recreated on every run (default ./output/)")
	f.StringP("surs-file-path", "s", "", "SURs file (default ./input/surs.txt)")
	f.StringP("factors-file-path", "f", "", "classifier weights file (default ./data/factors.txt)")
	f.StringP("cache-folder-path", "c", "", "map data cache folder (default ./cache/)")
	f.String("mapping-file-path", "", "YAML SUR-OSM mapping table replacing the built-in one")
	f.BoolP("force-cache-update", "u", false, "download map data even if the cache is fresh")
	f.Bool("skip-cache-update", false, "never download map data")
	f.Duration("max-cache-age", 0, "maximum age of a cache file (default 96h)")
	f.BoolP("quiet-mode", "q", false, "do not write to stdout")
	f.Bool("exclude-slow-classifiers", false, "skip the image classifier")
	f.Int("overpass-radius", 0, "Overpass query radius in meters (default 200)")
	f.Bool("compare-results", false, "compare the output with the truth files")
	f.String("log-prefix", "", "log file name prefix (default icup_)")
	f.Bool("debug-output", false, "write a CSV score table per location")
	f.Bool("two-circle-intersection", false, "use the two circle intersection ratio")
	f.Int("workers", 0, "parallel workers (default number of CPUs)")
	f.String("export", "", "write the winning polygons to a .shp or .geojson file")
}

func init() {
	registerBatchFlags(batchCmd)
	rootCmd.AddCommand(batchCmd)
}
