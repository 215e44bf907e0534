// Package costing derives per-style cost, revenue, profit and margin figures.
package costing

import (
	"github.com/odyssey-erp/marginboard/internal/shared"
)

// Config carries the constants the formulas depend on.
type Config struct {
	// CurrencyDivisor converts price × rate into local currency units.
	CurrencyDivisor float64
	// LowThreshold is the margin percent below which a style is "low".
	LowThreshold float64
	// MediumThreshold is the margin percent below which a style is "medium".
	MediumThreshold float64
	// GoodThreshold splits the high band into "good" and "excellent" brackets.
	GoodThreshold float64
}

// DefaultConfig mirrors the values the business has operated with.
func DefaultConfig() Config {
	return Config{
		CurrencyDivisor: 6.2,
		LowThreshold:    15,
		MediumThreshold: 22,
		GoodThreshold:   30,
	}
}

// Validate checks the divisor and threshold ordering.
func (c Config) Validate() error {
	if c.CurrencyDivisor <= 0 {
		return shared.NewConfigError("CURRENCY_DIVISOR", "must be greater than zero, got %v", c.CurrencyDivisor)
	}
	if c.LowThreshold >= c.MediumThreshold {
		return shared.NewConfigError("MARGIN_LOW_THRESHOLD", "must be below MARGIN_MEDIUM_THRESHOLD (%v >= %v)", c.LowThreshold, c.MediumThreshold)
	}
	if c.MediumThreshold >= c.GoodThreshold {
		return shared.NewConfigError("MARGIN_MEDIUM_THRESHOLD", "must be below MARGIN_GOOD_THRESHOLD (%v >= %v)", c.MediumThreshold, c.GoodThreshold)
	}
	return nil
}
