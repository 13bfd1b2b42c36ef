// Package vacuum implements the retention-horizon maintenance pass and its
// adaptive-cadence scheduler (spec.md §4.7).
package vacuum

import "time"

// Config mirrors the vacuum configuration block named in spec.md §6
// ("vacuum: { enabled, interval, retention_window, log_high_water_bytes,
// max_pages_per_pass, max_millis_per_pass, index_cleanup, reader_timeout,
// reader_timeout_warn_threshold_pct }").
type Config struct {
	Enabled       bool
	Interval      time.Duration
	Retention     time.Duration
	LogHighWaterBytes int64

	MaxEntriesPerPass int
	MaxDuration       time.Duration

	IndexCleanup bool

	ReaderTimeout               time.Duration
	ReaderTimeoutWarnThresholdPct int
}

func (c *Config) withDefaults() {
	if c.Interval <= 0 {
		c.Interval = time.Minute
	}
	if c.Retention <= 0 {
		c.Retention = 5 * time.Minute
	}
	if c.MaxEntriesPerPass <= 0 {
		c.MaxEntriesPerPass = 10000
	}
	if c.MaxDuration <= 0 {
		c.MaxDuration = 30 * time.Second
	}
}
