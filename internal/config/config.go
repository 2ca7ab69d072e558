package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Paths    PathsConfig    `yaml:"paths" mapstructure:"paths"`
	Cache    CacheConfig    `yaml:"cache" mapstructure:"cache"`
	Overpass OverpassConfig `yaml:"overpass" mapstructure:"overpass"`
	Batch    BatchConfig    `yaml:"batch" mapstructure:"batch"`
	Compare  CompareConfig  `yaml:"compare" mapstructure:"compare"`
	Learn    LearnConfig    `yaml:"learn" mapstructure:"learn"`
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// PathsConfig locates the inputs and outputs of a batch.
type PathsConfig struct {
	Input   string `yaml:"input" mapstructure:"input"`
	Output  string `yaml:"output" mapstructure:"output"`
	SURs    string `yaml:"surs" mapstructure:"surs"`
	Factors string `yaml:"factors" mapstructure:"factors"`
	// Mapping replaces the built-in SUR-OSM mapping table when set.
	Mapping string `yaml:"mapping" mapstructure:"mapping"`
	Cache   string `yaml:"cache" mapstructure:"cache"`
	Log     string `yaml:"log" mapstructure:"log"`
}

// CacheConfig configures the map data cache.
type CacheConfig struct {
	MaxAge time.Duration `yaml:"max_age" mapstructure:"max_age"`
}

// OverpassConfig configures the map fetcher.
type OverpassConfig struct {
	Endpoint    string `yaml:"endpoint" mapstructure:"endpoint"`
	Radius      int    `yaml:"radius" mapstructure:"radius"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	// MaxAttempts counts the first request; 2 allows one retry.
	MaxAttempts int    `yaml:"max_attempts" mapstructure:"max_attempts"`
	UserAgent   string `yaml:"user_agent" mapstructure:"user_agent"`
}

// BatchConfig configures batch processing.
type BatchConfig struct {
	// Workers is the number of parallel shards; 0 uses every CPU.
	Workers     int    `yaml:"workers" mapstructure:"workers"`
	ExcludeSlow bool   `yaml:"exclude_slow" mapstructure:"exclude_slow"`
	LogPrefix   string `yaml:"log_prefix" mapstructure:"log_prefix"`
	DebugCSV    bool   `yaml:"debug_csv" mapstructure:"debug_csv"`
}

// CompareConfig configures the comparator.
type CompareConfig struct {
	Threshold float64 `yaml:"threshold" mapstructure:"threshold"`
	TwoCircle bool    `yaml:"two_circle" mapstructure:"two_circle"`
}

// LearnConfig configures weight learning.
type LearnConfig struct {
	Population   int     `yaml:"population" mapstructure:"population"`
	Children     int     `yaml:"children" mapstructure:"children"`
	Rounds       int     `yaml:"rounds" mapstructure:"rounds"`
	MutationRate float64 `yaml:"mutation_rate" mapstructure:"mutation_rate"`
	MaxFactor    float64 `yaml:"max_factor" mapstructure:"max_factor"`
	Seed         uint64  `yaml:"seed" mapstructure:"seed"`
	TrainDir     string  `yaml:"train_dir" mapstructure:"train_dir"`
	TrainSURs    string  `yaml:"train_surs" mapstructure:"train_surs"`
	TestDir      string  `yaml:"test_dir" mapstructure:"test_dir"`
	TestSURs     string  `yaml:"test_surs" mapstructure:"test_surs"`
	TempDir      string  `yaml:"temp_dir" mapstructure:"temp_dir"`
}

// StoreConfig configures the run history database. An empty path disables it.
type StoreConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("SPTP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("paths.input", "./input/")
	v.SetDefault("paths.output", "./output/")
	v.SetDefault("paths.surs", "./input/surs.txt")
	v.SetDefault("paths.factors", "./data/factors.txt")
	v.SetDefault("paths.mapping", "")
	v.SetDefault("paths.cache", "./cache/")
	v.SetDefault("paths.log", "./log/")
	v.SetDefault("cache.max_age", 96*time.Hour)
	v.SetDefault("overpass.endpoint", "http://overpass-api.de/api/interpreter")
	v.SetDefault("overpass.radius", 200)
	v.SetDefault("overpass.timeout_secs", 60)
	v.SetDefault("overpass.max_attempts", 2)
	v.SetDefault("overpass.user_agent", "sptp/1.0")
	v.SetDefault("batch.workers", 0)
	v.SetDefault("batch.exclude_slow", false)
	v.SetDefault("batch.log_prefix", "icup_")
	v.SetDefault("batch.debug_csv", false)
	v.SetDefault("compare.threshold", 0.7)
	v.SetDefault("compare.two_circle", false)
	v.SetDefault("learn.population", 30)
	v.SetDefault("learn.children", 30)
	v.SetDefault("learn.rounds", 20)
	v.SetDefault("learn.mutation_rate", 0.5)
	v.SetDefault("learn.max_factor", 5)
	v.SetDefault("learn.seed", 0)
	v.SetDefault("learn.train_dir", "./learning/db/")
	v.SetDefault("learn.train_surs", "./learning/db/surs.txt")
	v.SetDefault("learn.test_dir", "./learning/test/")
	v.SetDefault("learn.test_surs", "./learning/test/surs.txt")
	v.SetDefault("learn.temp_dir", "./learning/tmp/")
	v.SetDefault("store.path", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Timeout returns the per-request Overpass timeout.
func (c OverpassConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}

// Validate checks the values a command depends on.
func (c *Config) Validate(command string) error {
	var errs []string
	if c.Compare.Threshold < 0 || c.Compare.Threshold > 1 {
		errs = append(errs, "compare.threshold must be between 0 and 1")
	}
	switch command {
	case "batch":
		if c.Overpass.Radius <= 0 {
			errs = append(errs, "overpass.radius must be positive")
		}
		if c.Overpass.TimeoutSecs <= 0 {
			errs = append(errs, "overpass.timeout_secs must be positive")
		}
		if c.Batch.Workers < 0 {
			errs = append(errs, "batch.workers must not be negative")
		}
		if c.Paths.SURs == "" {
			errs = append(errs, "paths.surs is required")
		}
	case "learn":
		if c.Overpass.Radius <= 0 {
			errs = append(errs, "overpass.radius must be positive")
		}
		if c.Learn.TrainSURs == "" || c.Learn.TestSURs == "" {
			errs = append(errs, "learn.train_surs and learn.test_surs are required")
		}
	case "runs":
		if c.Store.Path == "" {
			errs = append(errs, "store.path is required")
		}
	}
	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}
