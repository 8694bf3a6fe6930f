package config

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "PERFVIEW"

type Config struct {
	DebounceDelay      time.Duration `mapstructure:"debounce_delay"`
	WarningTimeout     time.Duration `mapstructure:"warning_timeout"`
	SnapshotBandOffset float64       `mapstructure:"snapshot_band_offset"`
	SnapshotBandHeight float64       `mapstructure:"snapshot_band_height"`
	GPUCounters        []string      `mapstructure:"gpu_counters"`
	TimeMetric         string        `mapstructure:"time_metric"`
	DatasetCacheSize   int           `mapstructure:"dataset_cache_size"`
	StripDomain        bool          `mapstructure:"strip_domain"`
	LogLevel           string        `mapstructure:"log_level"`
	MetricsAddress     string        `mapstructure:"metrics_address"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("debounce_delay", 500*time.Millisecond)
	v.SetDefault("warning_timeout", 10*time.Second)
	v.SetDefault("snapshot_band_offset", 0.45)
	v.SetDefault("snapshot_band_height", 0.10)
	v.SetDefault("gpu_counters", []string{"inst_executed", "flop_count_sp"})
	v.SetDefault("time_metric", "time")
	v.SetDefault("dataset_cache_size", 4)
	v.SetDefault("strip_domain", true)
	v.SetDefault("log_level", "info")
	v.SetDefault("metrics_address", "")
}

// Default returns the configuration used when no file, environment or flags
// override anything.
func Default() *Config {
	cfg, err := LoadConfig("", nil)
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadConfig reads the optional YAML file at path, applies PERFVIEW_*
// environment overrides and then any flags in flags whose names match a key.
func LoadConfig(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "reading config %s", path)
		}
	}

	if flags != nil {
		var bindErr error
		flags.VisitAll(func(f *pflag.Flag) {
			key := strings.ReplaceAll(f.Name, "-", "_")
			if !v.IsSet(key) && !isKnownKey(key) {
				return
			}
			if err := v.BindPFlag(key, f); err != nil && bindErr == nil {
				bindErr = err
			}
		})
		if bindErr != nil {
			return nil, errors.Wrap(bindErr, "binding flags")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "decoding config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func isKnownKey(key string) bool {
	switch key {
	case "debounce_delay", "warning_timeout", "snapshot_band_offset", "snapshot_band_height",
		"gpu_counters", "time_metric", "dataset_cache_size", "strip_domain", "log_level", "metrics_address":
		return true
	}
	return false
}

func (c *Config) Validate() error {
	if c.DebounceDelay <= 0 {
		return errors.Errorf("debounce_delay must be positive, got %s", c.DebounceDelay)
	}
	if c.SnapshotBandOffset < 0 || c.SnapshotBandOffset >= 1 {
		return errors.Errorf("snapshot_band_offset must be in [0,1), got %g", c.SnapshotBandOffset)
	}
	if c.SnapshotBandHeight <= 0 || c.SnapshotBandOffset+c.SnapshotBandHeight > 1 {
		return errors.Errorf("snapshot_band_height %g does not fit below offset %g", c.SnapshotBandHeight, c.SnapshotBandOffset)
	}
	if c.DatasetCacheSize <= 0 {
		return errors.Errorf("dataset_cache_size must be positive, got %d", c.DatasetCacheSize)
	}
	if c.TimeMetric == "" {
		return errors.New("time_metric must not be empty")
	}
	return nil
}
