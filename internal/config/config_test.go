package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 500*time.Millisecond, cfg.DebounceDelay)
	assert.Equal(t, 10*time.Second, cfg.WarningTimeout)
	assert.Equal(t, 0.45, cfg.SnapshotBandOffset)
	assert.Equal(t, 0.10, cfg.SnapshotBandHeight)
	assert.Equal(t, []string{"inst_executed", "flop_count_sp"}, cfg.GPUCounters)
	assert.Equal(t, "time", cfg.TimeMetric)
	assert.True(t, cfg.StripDomain)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "perfview.yaml")
	content := []byte("debounce_delay: 250ms\ngpu_counters: [sm_efficiency]\nstrip_domain: false\n")
	require.NoError(t, os.WriteFile(path, content, 0o644))

	cfg, err := LoadConfig(path, nil)
	require.NoError(t, err)

	assert.Equal(t, 250*time.Millisecond, cfg.DebounceDelay)
	assert.Equal(t, []string{"sm_efficiency"}, cfg.GPUCounters)
	assert.False(t, cfg.StripDomain)
	assert.Equal(t, 10*time.Second, cfg.WarningTimeout)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("PERFVIEW_DEBOUNCE_DELAY", "1s")
	t.Setenv("PERFVIEW_TIME_METRIC", "exclusive_time")

	cfg, err := LoadConfig("", nil)
	require.NoError(t, err)
	assert.Equal(t, time.Second, cfg.DebounceDelay)
	assert.Equal(t, "exclusive_time", cfg.TimeMetric)
}

func TestLoadConfigFlags(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Duration("debounce-delay", 500*time.Millisecond, "")
	flags.String("unrelated", "", "")
	require.NoError(t, flags.Parse([]string{"--debounce-delay=2s"}))

	cfg, err := LoadConfig("", flags)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, cfg.DebounceDelay)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := map[string]func(c *Config){
		"zero delay":      func(c *Config) { c.DebounceDelay = 0 },
		"band past image": func(c *Config) { c.SnapshotBandOffset = 0.95 },
		"no band height":  func(c *Config) { c.SnapshotBandHeight = 0 },
		"no cache":        func(c *Config) { c.DatasetCacheSize = 0 },
		"no time metric":  func(c *Config) { c.TimeMetric = "" },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
