package costing

// Status is the three-way margin classification shown per row.
type Status string

const (
	StatusLow    Status = "low"
	StatusMedium Status = "medium"
	StatusHigh   Status = "high"
)

// Bracket is the five-way margin partition used by portfolio histograms.
// Its low/medium boundaries are the Status thresholds.
type Bracket string

const (
	BracketNegative  Bracket = "negative"
	BracketLow       Bracket = "low"
	BracketMedium    Bracket = "medium"
	BracketGood      Bracket = "good"
	BracketExcellent Bracket = "excellent"
)

// Status classifies a margin percentage.
func (c *Calculator) Status(marginPercent float64) Status {
	switch {
	case marginPercent < c.cfg.LowThreshold:
		return StatusLow
	case marginPercent < c.cfg.MediumThreshold:
		return StatusMedium
	default:
		return StatusHigh
	}
}

// Bracket places a margin percentage into its histogram bucket.
func (c *Calculator) Bracket(marginPercent float64) Bracket {
	switch {
	case marginPercent < 0:
		return BracketNegative
	case marginPercent < c.cfg.LowThreshold:
		return BracketLow
	case marginPercent < c.cfg.MediumThreshold:
		return BracketMedium
	case marginPercent < c.cfg.GoodThreshold:
		return BracketGood
	default:
		return BracketExcellent
	}
}
