package learn

import (
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/sptp/internal/batch"
	"github.com/sells-group/sptp/internal/comparator"
)

// Params are the knobs of the evolutionary search.
type Params struct {
	// Population is the number of genomes carried from one round to the next.
	Population int `json:"population"`
	// Children is the number of genomes bred per round.
	Children int `json:"children"`
	Rounds   int `json:"rounds"`
	// MutationRate is the probability that a child gets one gene redrawn.
	MutationRate float64 `json:"mutation_rate"`
	// MaxFactor bounds the upper mode of the weight distribution.
	MaxFactor float64 `json:"max_factor"`
	// Seed makes a search reproducible; 0 picks a random seed.
	Seed uint64 `json:"seed,omitempty"`
}

// DefaultParams returns the parameters used when nothing is configured.
func DefaultParams() Params {
	return Params{
		Population:   30,
		Children:     30,
		Rounds:       20,
		MutationRate: 0.5,
		MaxFactor:    5,
	}
}

// Validate checks the parameter ranges.
func (p Params) Validate() error {
	var errs []string
	if p.Population < 1 {
		errs = append(errs, "population must be larger or equal to 1")
	}
	if p.Rounds < 1 {
		errs = append(errs, "rounds must be larger or equal to 1")
	}
	if p.Children < 0 {
		errs = append(errs, "children must not be negative")
	}
	if p.MutationRate < 0 || p.MutationRate > 1 {
		errs = append(errs, "mutation rate must be between 0.0 and 1.0")
	}
	if p.MaxFactor < 1 {
		errs = append(errs, "factor value must be larger or equal to 1")
	}
	if len(errs) > 0 {
		sort.Strings(errs)
		return eris.Errorf("learn: invalid parameters: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Settings configures a learning run.
type Settings struct {
	Params

	// TrainDir holds the photos and truth files of the training set.
	TrainDir  string `json:"train_dir"`
	TrainSURs string `json:"train_surs"`
	// TestDir holds the held-out verification set.
	TestDir  string `json:"test_dir"`
	TestSURs string `json:"test_surs"`
	// TempDir receives the computed files of every evaluation and is
	// removed at the end.
	TempDir string `json:"temp_dir"`
	// FactorsFile receives the best weights.
	FactorsFile string `json:"factors_file"`

	CacheDir       string            `json:"cache_dir"`
	LogDir         string            `json:"log_dir"`
	MaxCacheAge    time.Duration     `json:"max_cache_age"`
	OverpassRadius int               `json:"overpass_radius"`
	Threshold      float64           `json:"threshold"`
	Metric         comparator.Metric `json:"metric"`
	Workers        int               `json:"workers"`
	ExcludeSlow    bool              `json:"exclude_slow"`
}

// DefaultSettings returns the settings used when nothing is configured.
func DefaultSettings() Settings {
	b := batch.DefaultSettings()
	return Settings{
		Params:         DefaultParams(),
		TrainDir:       "./learning/db/",
		TrainSURs:      "./learning/db/surs.txt",
		TestDir:        "./learning/test/",
		TestSURs:       "./learning/test/surs.txt",
		TempDir:        "./learning/tmp/",
		FactorsFile:    b.FactorsFile,
		CacheDir:       b.CacheDir,
		LogDir:         b.LogDir,
		MaxCacheAge:    b.MaxCacheAge,
		OverpassRadius: b.OverpassRadius,
		Threshold:      b.Threshold,
	}
}

// Validate checks parameters and paths.
func (s Settings) Validate() error {
	if err := s.Params.Validate(); err != nil {
		return err
	}
	for name, v := range map[string]string{
		"training folder": s.TrainDir, "training SURs": s.TrainSURs,
		"test folder": s.TestDir, "test SURs": s.TestSURs,
		"temporary folder": s.TempDir, "factors file": s.FactorsFile,
	} {
		if v == "" {
			return eris.Errorf("learn: invalid settings: %s path is empty", name)
		}
	}
	return nil
}

// batchSettings returns the batch configuration for evaluations on the
// training set. The first evaluation refreshes the cache.
func (s Settings) batchSettings() batch.Settings {
	b := batch.DefaultSettings()
	b.InputDir = s.TrainDir
	b.SURsFile = s.TrainSURs
	b.OutputDir = s.TempDir
	b.CacheDir = s.CacheDir
	b.LogDir = s.LogDir
	b.LogPrefix = "learning_"
	b.MaxCacheAge = s.MaxCacheAge
	b.ForceCacheUpdate = true
	b.OverpassRadius = s.OverpassRadius
	b.Threshold = s.Threshold
	b.Metric = s.Metric
	b.Workers = s.Workers
	b.ExcludeSlow = s.ExcludeSlow
	b.Quiet = true
	return b
}

// Header summarizes the settings for the operator and the learning log.
func (s Settings) Header() string {
	var b strings.Builder
	b.WriteString("SPtP - Learning\n-----------------------\n\n")
	b.WriteString(batch.HeaderItem("Maximum factor value", s.MaxFactor))
	b.WriteString(batch.HeaderItem("Rounds", s.Rounds))
	b.WriteString(batch.HeaderItem("Population", s.Population))
	b.WriteString(batch.HeaderItem("Children", s.Children))
	b.WriteString(batch.HeaderItem("Mutation rate", s.MutationRate))
	b.WriteString(batch.HeaderItem("Overpass radius [m]", s.OverpassRadius))
	b.WriteString(batch.HeaderItem("Learning database path", s.TrainDir))
	b.WriteString(batch.HeaderItem("Learning SUR file path", s.TrainSURs))
	b.WriteString(batch.HeaderItem("Verification database path", s.TestDir))
	b.WriteString(batch.HeaderItem("Verification SUR file path", s.TestSURs))
	b.WriteString(batch.HeaderItem("Temporary output path", s.TempDir))
	return b.String()
}
