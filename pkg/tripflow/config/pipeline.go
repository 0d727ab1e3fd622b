package config

import (
	"time"

	"github.com/boltride/tripflow/pkg/tripflow/failure"
	"github.com/boltride/tripflow/pkg/tripflow/ingest"
	"github.com/boltride/tripflow/pkg/tripflow/reconcile"
	"github.com/boltride/tripflow/pkg/tripflow/retry"
	"github.com/boltride/tripflow/pkg/tripflow/store"
	"github.com/boltride/tripflow/pkg/tripflow/validate"
)

// Pipeline holds the component configurations bound from one config file.
type Pipeline struct {
	// StorePath is the SQLite database path. Empty selects the
	// in-memory store.
	StorePath string

	// TTL is the trip record time-to-live.
	TTL time.Duration

	// SweepInterval is how often the sweeper flips overdue records.
	SweepInterval time.Duration

	Validator  validate.Config
	Engine     reconcile.Config
	Poison     failure.PoisonConfig
	RetryQueue failure.MemoryRetryQueueConfig
	Pool       ingest.PoolConfig
}

// BindPipeline maps a loaded Config onto component configurations.
// Missing keys fall back to each component's defaults, so an empty file
// binds a fully usable pipeline.
//
// Expected layout:
//
//	store:
//	  path: trips.db
//	  ttl: 24h
//	  sweep_interval: 5m
//	validator:
//	  max_fare: 1000.0
//	  clock_skew: 30m
//	  stale_after: 168h
//	engine:
//	  max_attempts: 3
//	classifier:
//	  poison_threshold: 3
//	  poison_window: 1h
//	retry:
//	  max_size: 10000
//	  max_attempts: 3
//	  initial_backoff: 1s
//	  max_backoff: 30s
//	  backoff_factor: 2.0
//	pool:
//	  workers: 4
//	  queue_size: 256
func BindPipeline(c Config) Pipeline {
	st := c.Section("store")
	val := c.Section("validator")
	eng := c.Section("engine")
	cls := c.Section("classifier")
	rty := c.Section("retry")
	pool := c.Section("pool")

	return Pipeline{
		StorePath:     st.String("path", ""),
		TTL:           st.Duration("ttl", store.DefaultTTL),
		SweepInterval: st.Duration("sweep_interval", 5*time.Minute),

		Validator: validate.Config{
			MaxFare:    val.Float("max_fare", validate.DefaultConfig.MaxFare),
			ClockSkew:  val.Duration("clock_skew", validate.DefaultConfig.ClockSkew),
			StaleAfter: val.Duration("stale_after", validate.DefaultConfig.StaleAfter),
		},
		Engine: reconcile.Config{
			MaxAttempts: eng.Int("max_attempts", reconcile.DefaultConfig.MaxAttempts),
		},
		Poison: failure.PoisonConfig{
			Threshold: cls.Int("poison_threshold", failure.DefaultPoisonConfig.Threshold),
			Window:    cls.Duration("poison_window", failure.DefaultPoisonConfig.Window),
		},
		RetryQueue: failure.MemoryRetryQueueConfig{
			MaxSize:     rty.Int("max_size", failure.DefaultMemoryRetryQueueConfig.MaxSize),
			MaxAttempts: rty.Int("max_attempts", failure.DefaultMemoryRetryQueueConfig.MaxAttempts),
			Backoff: retry.Config{
				MaxAttempts:    rty.Int("max_attempts", retry.Default.MaxAttempts),
				InitialBackoff: rty.Duration("initial_backoff", retry.Default.InitialBackoff),
				MaxBackoff:     rty.Duration("max_backoff", retry.Default.MaxBackoff),
				BackoffFactor:  rty.Float("backoff_factor", retry.Default.BackoffFactor),
				Jitter:         rty.Float("jitter", retry.Default.Jitter),
			},
		},
		Pool: ingest.PoolConfig{
			Workers:   pool.Int("workers", ingest.DefaultPoolConfig.Workers),
			QueueSize: pool.Int("queue_size", ingest.DefaultPoolConfig.QueueSize),
		},
	}
}
