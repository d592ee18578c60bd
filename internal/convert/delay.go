package convert

import (
	"time"

	"morpho/internal/config"
)

// Default delays mirror the historical policy: the quality setting
// controls the base simulated conversion time, batch members are
// staggered by index so progress is observable when polling. The
// stagger gives expected, not guaranteed, completion order.
const (
	defaultHighDelayMs    = 3000
	defaultMediumDelayMs  = 2000
	defaultLowDelayMs     = 1000
	defaultBatchStaggerMs = 100
)

// Delay computes the deferral before a job's terminal transition:
// a quality-dependent base plus index*stagger for batch members
// (index is 0 for single submissions).
func Delay(cfg config.ConversionConfig, quality string, index int) time.Duration {
	base := cfg.LowDelayMs
	switch quality {
	case "high":
		base = cfg.HighDelayMs
		if base <= 0 {
			base = defaultHighDelayMs
		}
	case "medium":
		base = cfg.MediumDelayMs
		if base <= 0 {
			base = defaultMediumDelayMs
		}
	default:
		if base <= 0 {
			base = defaultLowDelayMs
		}
	}

	stagger := cfg.BatchStaggerMs
	if stagger <= 0 {
		stagger = defaultBatchStaggerMs
	}
	if index < 0 {
		index = 0
	}

	return time.Duration(base+index*stagger) * time.Millisecond
}
