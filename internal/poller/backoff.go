package poller

import (
	"fmt"
	"math"
	"time"
)

// Config holds the adaptive interval settings.
//
// Intervals are whole numbers of Unit (seconds in production). Backoff
// floors after every multiplication, so with base 5, max 30 and multiplier
// 1.5 the sleeps run 5, 7, 10, 15, 22, 30, 30.
type Config struct {
	BaseInterval int
	MaxInterval  int
	Multiplier   float64

	// Unit is the duration of one interval step. Zero means time.Second.
	Unit time.Duration
}

// Validate checks that the interval bounds and multiplier are usable.
func (c Config) Validate() error {
	if c.BaseInterval < 1 {
		return fmt.Errorf("base interval must be at least 1, got %d", c.BaseInterval)
	}
	if c.MaxInterval < c.BaseInterval {
		return fmt.Errorf("max interval (%d) must not be below base interval (%d)", c.MaxInterval, c.BaseInterval)
	}
	if c.Multiplier < 1 || math.IsNaN(c.Multiplier) || math.IsInf(c.Multiplier, 0) {
		return fmt.Errorf("backoff multiplier must be a finite number >= 1, got %v", c.Multiplier)
	}
	if c.Unit < 0 {
		return fmt.Errorf("interval unit cannot be negative, got %s", c.Unit)
	}
	return nil
}

func (c Config) duration(n int) time.Duration {
	return time.Duration(n) * c.Unit
}

// NextInterval returns the interval that follows an idle cycle.
//
// The product is floored; a product above max clamps to max so the ceiling
// is reached exactly, and an interval already at max stays there. The
// comparison happens before the conversion to int, so a product too large
// for int still clamps.
func NextInterval(current, max int, multiplier float64) int {
	next := math.Floor(float64(current) * multiplier)
	switch {
	case next <= float64(max):
		return int(next)
	case current < max:
		return max
	default:
		return current
	}
}
