package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boltride/tripflow/pkg/tripflow/config"
	"github.com/boltride/tripflow/pkg/tripflow/store"
)

// TestNew verifies Config creation from maps.
func TestNew(t *testing.T) {
	tests := []struct {
		name string
		data map[string]any
	}{
		{"nil map", nil},
		{"empty map", map[string]any{}},
		{"with values", map[string]any{"key": "value"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.New(tt.data)
			assert.NotNil(t, cfg.Raw())
		})
	}
}

func TestAccessors(t *testing.T) {
	cfg := config.New(map[string]any{
		"name":     "tripflow",
		"workers":  4,
		"max_fare": 750.5,
		"ttl":      "24h",
		"seconds":  90,
		"enabled":  true,
	})

	assert.Equal(t, "tripflow", cfg.String("name", "fallback"))
	assert.Equal(t, "fallback", cfg.String("missing", "fallback"))
	assert.Equal(t, "fallback", cfg.String("workers", "fallback"))

	assert.Equal(t, 4, cfg.Int("workers", 1))
	assert.Equal(t, 1, cfg.Int("missing", 1))

	assert.Equal(t, 750.5, cfg.Float("max_fare", 0))
	assert.Equal(t, 4.0, cfg.Float("workers", 0))

	assert.Equal(t, 24*time.Hour, cfg.Duration("ttl", time.Minute))
	assert.Equal(t, 90*time.Second, cfg.Duration("seconds", time.Minute))
	assert.Equal(t, time.Minute, cfg.Duration("missing", time.Minute))

	assert.True(t, cfg.Bool("enabled", false))
	assert.False(t, cfg.Bool("missing", false))

	assert.True(t, cfg.Has("name"))
	assert.False(t, cfg.Has("missing"))
}

func TestSection(t *testing.T) {
	cfg := config.New(map[string]any{
		"store": map[string]any{
			"path": "trips.db",
			"ttl":  "12h",
		},
		"scalar": 42,
	})

	st := cfg.Section("store")
	assert.Equal(t, "trips.db", st.String("path", ""))
	assert.Equal(t, 12*time.Hour, st.Duration("ttl", 0))

	// Missing or non-mapping keys yield empty sections, not panics.
	assert.Equal(t, "d", cfg.Section("missing").String("x", "d"))
	assert.Equal(t, "d", cfg.Section("scalar").String("x", "d"))
}

func TestFromYAML(t *testing.T) {
	data := []byte(`
store:
  path: trips.db
  ttl: 24h
validator:
  max_fare: 500.0
engine:
  max_attempts: 5
`)

	cfg, err := config.FromYAML(data)
	require.NoError(t, err)
	assert.Equal(t, "trips.db", cfg.Section("store").String("path", ""))
	assert.Equal(t, 5, cfg.Section("engine").Int("max_attempts", 0))

	_, err = config.FromYAML([]byte("   ]unbalanced"))
	assert.Error(t, err)
}

func TestFromJSON(t *testing.T) {
	cfg, err := config.FromJSON([]byte(`{"pool": {"workers": 8}}`))
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Section("pool").Int("workers", 0))

	_, err = config.FromJSON([]byte(`{`))
	assert.Error(t, err)
}

func TestFromFile(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "tripflow.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("store:\n  ttl: 6h\n"), 0o644))

	cfg, err := config.FromFile(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, 6*time.Hour, cfg.Section("store").Duration("ttl", 0))

	_, err = config.FromFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	badExt := filepath.Join(dir, "tripflow.toml")
	require.NoError(t, os.WriteFile(badExt, []byte(""), 0o644))
	_, err = config.FromFile(badExt)
	assert.Error(t, err)
}

func TestBindPipelineDefaults(t *testing.T) {
	p := config.BindPipeline(config.New(nil))

	assert.Empty(t, p.StorePath)
	assert.Equal(t, store.DefaultTTL, p.TTL)
	assert.Equal(t, 5*time.Minute, p.SweepInterval)
	assert.Equal(t, 1000.00, p.Validator.MaxFare)
	assert.Equal(t, 30*time.Minute, p.Validator.ClockSkew)
	assert.Equal(t, 3, p.Engine.MaxAttempts)
	assert.Equal(t, 3, p.Poison.Threshold)
	assert.Equal(t, time.Hour, p.Poison.Window)
	assert.Equal(t, 10000, p.RetryQueue.MaxSize)
	assert.Equal(t, time.Second, p.RetryQueue.Backoff.InitialBackoff)
	assert.Equal(t, 4, p.Pool.Workers)
}

func TestBindPipelineOverrides(t *testing.T) {
	cfg, err := config.FromYAML([]byte(`
store:
  path: /var/lib/tripflow/trips.db
  ttl: 48h
  sweep_interval: 1m
validator:
  max_fare: 500.0
  clock_skew: 10m
engine:
  max_attempts: 7
classifier:
  poison_threshold: 5
  poison_window: 30m
retry:
  max_size: 100
  max_attempts: 2
  initial_backoff: 250ms
pool:
  workers: 16
  queue_size: 1024
`))
	require.NoError(t, err)

	p := config.BindPipeline(cfg)

	assert.Equal(t, "/var/lib/tripflow/trips.db", p.StorePath)
	assert.Equal(t, 48*time.Hour, p.TTL)
	assert.Equal(t, time.Minute, p.SweepInterval)
	assert.Equal(t, 500.0, p.Validator.MaxFare)
	assert.Equal(t, 10*time.Minute, p.Validator.ClockSkew)
	assert.Equal(t, 7, p.Engine.MaxAttempts)
	assert.Equal(t, 5, p.Poison.Threshold)
	assert.Equal(t, 30*time.Minute, p.Poison.Window)
	assert.Equal(t, 100, p.RetryQueue.MaxSize)
	assert.Equal(t, 2, p.RetryQueue.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, p.RetryQueue.Backoff.InitialBackoff)
	assert.Equal(t, 16, p.Pool.Workers)
	assert.Equal(t, 1024, p.Pool.QueueSize)
}
