package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/sptp/internal/comparator"
	"github.com/sells-group/sptp/internal/config"
	"github.com/sells-group/sptp/internal/learn"
)

var learnCmd = &cobra.Command{
	Use:   "learn",
	Short: "Learn classifier weights on a training set",
	Long:  "Runs an evolutionary search over classifier weights, writes the best weights to the factors file and verifies them on a held-out set.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("learn"); err != nil {
			return err
		}
		s := learnSettings(cmd, cfg)
		if err := s.Validate(); err != nil {
			return err
		}

		st, err := openStore(ctx, false)
		if err != nil {
			return err
		}
		if st != nil {
			defer st.Close() //nolint:errcheck
		}

		rep, err := learn.Run(ctx, s, learn.Deps{
			Maps:   newMapFetcher(cfg.Overpass, s.OverpassRadius),
			Store:  st,
			Stdout: os.Stdout,
		})
		if err != nil {
			fmt.Fprintln(os.Stdout, "Learning failed. Check log files for details.")
			zap.L().Error("learning failed", zap.Error(err))
			return err
		}
		fmt.Fprintln(os.Stdout, "Learning finished successfully.")
		zap.L().Info("learning finished",
			zap.Float64("fitness", rep.TestFitness),
			zap.String("factors", s.FactorsFile),
			zap.Duration("elapsed", rep.Elapsed),
		)
		return nil
	},
}

// learnSettings merges configuration and the flags that were set.
func learnSettings(cmd *cobra.Command, c *config.Config) learn.Settings {
	s := learn.DefaultSettings()
	s.Population = c.Learn.Population
	s.Children = c.Learn.Children
	s.Rounds = c.Learn.Rounds
	s.MutationRate = c.Learn.MutationRate
	s.MaxFactor = c.Learn.MaxFactor
	s.Seed = c.Learn.Seed
	s.TrainDir = c.Learn.TrainDir
	s.TrainSURs = c.Learn.TrainSURs
	s.TestDir = c.Learn.TestDir
	s.TestSURs = c.Learn.TestSURs
	s.TempDir = c.Learn.TempDir
	s.FactorsFile = c.Paths.Factors
	s.CacheDir = c.Paths.Cache
	s.LogDir = c.Paths.Log
	s.MaxCacheAge = c.Cache.MaxAge
	s.OverpassRadius = c.Overpass.Radius
	s.Threshold = c.Compare.Threshold
	s.Workers = c.Batch.Workers
	s.ExcludeSlow = c.Batch.ExcludeSlow
	if c.Compare.TwoCircle {
		s.Metric = comparator.MetricTwoCircle
	}

	f := cmd.Flags()
	if f.Changed("factor-value") {
		v, _ := f.GetInt("factor-value")
		s.MaxFactor = float64(v)
	}
	if f.Changed("rounds") {
		s.Rounds, _ = f.GetInt("rounds")
	}
	if f.Changed("population") {
		s.Population, _ = f.GetInt("population")
	}
	if f.Changed("children") {
		s.Children, _ = f.GetInt("children")
	}
	if f.Changed("mutation-rate") {
		s.MutationRate, _ = f.GetFloat64("mutation-rate")
	}
	if f.Changed("seed") {
		s.Seed, _ = f.GetUint64("seed")
	}
	if f.Changed("overpass-radius") {
		s.OverpassRadius, _ = f.GetInt("overpass-radius")
	}
	for name, dst := range map[string]*string{
		"learning-db":       &s.TrainDir,
		"learning-sur-file": &s.TrainSURs,
		"test-db":           &s.TestDir,
		"test-sur-file":     &s.TestSURs,
		"factors-file-path": &s.FactorsFile,
	} {
		if f.Changed(name) {
			*dst, _ = f.GetString(name)
		}
	}
	if f.Changed("temp-output") {
		dir, _ := f.GetString("temp-output")
		if !strings.HasSuffix(dir, string(filepath.Separator)) {
			dir += string(filepath.Separator)
		}
		s.TempDir = dir
	}
	if on, _ := f.GetBool("two-circle-intersection"); on {
		s.Metric = comparator.MetricTwoCircle
	}
	return s
}

func registerLearnFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.IntP("factor-value", "f", 0, "maximum value the factors can have (default 5)")
	f.IntP("rounds", "r", 0, "number of rounds (default 20)")
	f.IntP("population", "p", 0, "population carried from one round to the next (default 30)")
	f.IntP("children", "c", 0, "children bred in every round (default 30)")
	f.Float64P("mutation-rate", "m", 0, "probability of a child changing one factor (default 0.5)")
	f.Uint64("seed", 0, "random seed for a reproducible search")
	f.Int("overpass-radius", 0, "Overpass query radius in meters (default 200)")
	f.String("learning-db", "", "folder with the training photos and truth files (default ./learning/db/)")
	f.String("learning-sur-file", "", "SURs file of the training set (default ./learning/db/surs.txt)")
	f.String("test-db", "", "folder with the verification photos and truth files (default ./learning/test/)")
	f.String("test-sur-file", "", "SURs file of the verification set (default ./learning/test/surs.txt)")
	f.String("temp-output", "", "temporary output folder, deleted at the end (default ./learning/tmp/)")
	f.String("factors-file-path", "", "file receiving the learned weights (default ./data/factors.txt)")
	f.Bool("two-circle-intersection", false, "use the two circle intersection ratio")
}

func init() {
	registerLearnFlags(learnCmd)
	rootCmd.AddCommand(learnCmd)
}
