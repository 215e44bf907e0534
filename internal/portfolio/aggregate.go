// Package portfolio folds a customer's styles into portfolio-level totals.
package portfolio

import (
	"github.com/odyssey-erp/marginboard/internal/costing"
	"github.com/odyssey-erp/marginboard/internal/styles"
)

// Brackets is the five-way margin histogram.
type Brackets struct {
	Negative  int `json:"negative"`
	Low       int `json:"low"`
	Medium    int `json:"medium"`
	Good      int `json:"good"`
	Excellent int `json:"excellent"`
}

// Summary aggregates a set of styles.
type Summary struct {
	TotalRevenue          float64  `json:"total_revenue"`
	TotalProfit           float64  `json:"total_profit"`
	WeightedAverageMargin float64  `json:"weighted_average_margin"`
	TotalUnits            int64    `json:"total_units"`
	BelowTargetCount      int      `json:"below_target_count"`
	AtRiskCount           int      `json:"at_risk_count"`
	Brackets              Brackets `json:"margin_brackets"`
	ItemCount             int      `json:"item_count"`
}

// Aggregate computes the Summary of records. Order does not matter and an
// empty input yields the zero Summary.
func Aggregate(calc *costing.Calculator, records []styles.Style) Summary {
	var sum Summary
	for _, rec := range records {
		m := calc.Compute(rec.Inputs())
		sum.ItemCount++
		sum.TotalRevenue += m.Revenue
		sum.TotalProfit += m.TotalProfit
		if rec.Units != nil {
			sum.TotalUnits += *rec.Units
		}

		switch calc.Status(m.MarginPercent) {
		case costing.StatusLow:
			sum.BelowTargetCount++
		case costing.StatusMedium:
			sum.AtRiskCount++
		}

		switch calc.Bracket(m.MarginPercent) {
		case costing.BracketNegative:
			sum.Brackets.Negative++
		case costing.BracketLow:
			sum.Brackets.Low++
		case costing.BracketMedium:
			sum.Brackets.Medium++
		case costing.BracketGood:
			sum.Brackets.Good++
		default:
			sum.Brackets.Excellent++
		}
	}
	if sum.TotalRevenue > 0 {
		sum.WeightedAverageMargin = sum.TotalProfit / sum.TotalRevenue * 100
	}
	return sum
}
