package scheduler

import (
	"time"
)

// Config controls sweep intervals and batch sizes.
type Config struct {
	RunInterval time.Duration
	BatchSize   int
	// QuietPeriod is how long a PENDING order must sit untouched before the
	// sweep retries it, so it does not race the client's own settle call.
	QuietPeriod time.Duration
	// AbandonAfter fails paid orders whose payment was never confirmed.
	AbandonAfter time.Duration
	EnabledJobs  []string
}

func DefaultConfig() Config {
	return Config{
		RunInterval:  time.Minute,
		BatchSize:    50,
		QuietPeriod:  10 * time.Minute,
		AbandonAfter: 24 * time.Hour,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	if c.QuietPeriod <= 0 {
		c.QuietPeriod = defaults.QuietPeriod
	}
	if c.AbandonAfter <= 0 {
		c.AbandonAfter = defaults.AbandonAfter
	}
	return c
}
