package batch

import (
	"fmt"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/sptp/internal/comparator"
	"github.com/sells-group/sptp/internal/factors"
)

// Settings configures a batch run.
type Settings struct {
	// InputDir holds <id>.jpg photos and <id>.truth.kml files.
	InputDir string `json:"input_dir"`
	// OutputDir is recreated on every run.
	OutputDir   string `json:"output_dir"`
	SURsFile    string `json:"surs_file"`
	FactorsFile string `json:"factors_file"`
	// Factors overrides FactorsFile when set.
	Factors *factors.Factors `json:"-"`
	// MappingFile replaces the built-in SUR-OSM mapping table when set.
	MappingFile string `json:"mapping_file,omitempty"`

	CacheDir         string        `json:"cache_dir"`
	LogDir           string        `json:"log_dir"`
	LogPrefix        string        `json:"log_prefix"`
	MaxCacheAge      time.Duration `json:"max_cache_age"`
	ForceCacheUpdate bool          `json:"force_cache_update"`
	SkipCacheUpdate  bool          `json:"skip_cache_update"`
	OverpassRadius   int           `json:"overpass_radius"`

	// Workers is the number of shards; 0 means runtime.NumCPU().
	Workers     int  `json:"workers"`
	ExcludeSlow bool `json:"exclude_slow"`
	DebugCSV    bool `json:"debug_csv"`

	Compare   bool              `json:"compare"`
	Threshold float64           `json:"threshold"`
	Metric    comparator.Metric `json:"metric"`

	// Quiet suppresses the header and progress output.
	Quiet bool `json:"quiet"`
}

// DefaultSettings returns the settings used when nothing is configured.
func DefaultSettings() Settings {
	return Settings{
		InputDir:    "./input/",
		OutputDir:   "./output/",
		SURsFile:    "./input/surs.txt",
		FactorsFile: "./data/factors.txt",
		CacheDir:    "./cache/",
		LogDir:      "./log/",
		LogPrefix:   "icup_",
		MaxCacheAge: 96 * time.Hour,

		OverpassRadius: 200,
		Threshold:      comparator.DefaultThreshold,
	}
}

// Validate checks the settings that cannot be defaulted.
func (s Settings) Validate() error {
	var errs []string
	for name, v := range map[string]string{"input": s.InputDir, "output": s.OutputDir, "cache": s.CacheDir, "log": s.LogDir, "surs file": s.SURsFile} {
		if v == "" {
			errs = append(errs, name+" path is empty")
		}
	}
	if s.Factors == nil && s.FactorsFile == "" {
		errs = append(errs, "factors file path is empty")
	}
	if s.Workers < 0 {
		errs = append(errs, "workers must not be negative")
	}
	if s.OverpassRadius <= 0 {
		errs = append(errs, "overpass radius must be positive")
	}
	if s.ForceCacheUpdate && s.SkipCacheUpdate {
		errs = append(errs, "force and skip cache update are exclusive")
	}
	if len(errs) > 0 {
		sort.Strings(errs)
		return eris.Errorf("batch: invalid settings: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (s Settings) workers() int {
	if s.Workers > 0 {
		return s.Workers
	}
	return runtime.NumCPU()
}

func (s Settings) comparatorOptions() comparator.Options {
	return comparator.Options{
		TruthDir:    s.InputDir,
		ComputedDir: s.OutputDir,
		Threshold:   s.Threshold,
		Metric:      s.Metric,
	}
}

func abs(path string) string {
	if p, err := filepath.Abs(path); err == nil {
		return p
	}
	return path
}

// FormatAge renders a duration as days, hours, minutes and seconds.
func FormatAge(d time.Duration) string {
	secs := int64(d / time.Second)
	return fmt.Sprintf("%02dd %02dh %02dm %02ds", secs/86400, secs%86400/3600, secs%3600/60, secs%60)
}

// HeaderItem renders one dotted header line.
func HeaderItem(label string, value any) string {
	if len(label) < 30 {
		label += strings.Repeat(".", 30-len(label))
	}
	return label + ": " + fmt.Sprint(value) + "\n"
}

// Header summarizes the settings for the operator and the batch log.
func (s Settings) Header() string {
	var b strings.Builder
	b.WriteString("SPtP - Batch Processing\n-----------------------\n\n")
	b.WriteString(HeaderItem("Input folder path", abs(s.InputDir)))
	b.WriteString(HeaderItem("Output folder path", abs(s.OutputDir)))
	b.WriteString(HeaderItem("SURs file path", abs(s.SURsFile)))
	if s.Factors != nil {
		b.WriteString(HeaderItem("Factors file path", "(supplied)"))
	} else {
		b.WriteString(HeaderItem("Factors file path", abs(s.FactorsFile)))
	}
	b.WriteString(HeaderItem("Cache folder path", abs(s.CacheDir)))
	b.WriteString(HeaderItem("Log folder path", abs(s.LogDir)))
	b.WriteString(HeaderItem("Log file prefix", s.LogPrefix))
	b.WriteString(HeaderItem("Force cache update", strconv.FormatBool(s.ForceCacheUpdate)))
	b.WriteString(HeaderItem("Skip cache update", strconv.FormatBool(s.SkipCacheUpdate)))
	b.WriteString(HeaderItem("Maximum cache file age", FormatAge(s.MaxCacheAge)))
	b.WriteString(HeaderItem("Workers", s.workers()))
	b.WriteString(HeaderItem("Exclude slow classifiers", strconv.FormatBool(s.ExcludeSlow)))
	b.WriteString(HeaderItem("Overpass radius [m]", s.OverpassRadius))
	b.WriteString(HeaderItem("Minimum intersection ratio", s.Threshold))
	b.WriteString(HeaderItem("Compare results", strconv.FormatBool(s.Compare)))
	b.WriteString(HeaderItem("Debug CSV output", strconv.FormatBool(s.DebugCSV)))
	b.WriteString(HeaderItem("Use two circle intersection ratio", strconv.FormatBool(s.Metric == comparator.MetricTwoCircle)))
	return b.String()
}
