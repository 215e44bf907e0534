// Package export projects styles and their derived metrics into spreadsheet rows.
package export

import (
	"strconv"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/odyssey-erp/marginboard/internal/styles"
)

// Flavor selects how numbers are rendered.
type Flavor string

const (
	// FlavorNumeric rounds to 2 dp and leaves values unformatted.
	FlavorNumeric Flavor = "numeric"
	// FlavorDisplay renders currency-prefixed and percent-suffixed strings.
	FlavorDisplay Flavor = "display"
)

// ParseFlavor defaults to numeric.
func ParseFlavor(s string) Flavor {
	if Flavor(s) == FlavorDisplay {
		return FlavorDisplay
	}
	return FlavorNumeric
}

// Header lists the exported columns in order.
var Header = []string{
	"Style Code", "Factory", "Delivery Date", "Description", "Fabric/Trim", "Type",
	"Units", "Pack", "Price", "Rate", "Extra Cost", "Selling Price",
	"Landed Cost", "Total Cost/Unit", "Revenue", "Total Profit", "Margin %", "Profit/Unit", "Status",
}

// NumericRow is the machine-readable projection. Absent inputs stay nil.
type NumericRow struct {
	Text             [6]string
	Units            *int64
	Pack             *int64
	Price            *float64
	Rate             *float64
	ExtraCost        *float64
	SellingPrice     *float64
	LandedCost       float64
	TotalCostPerUnit float64
	Revenue          float64
	TotalProfit      float64
	MarginPercent    float64
	ProfitPerUnit    float64
	Status           string
}

// NewNumericRow rounds a computed row to 2 decimal places.
func NewNumericRow(row styles.Row) NumericRow {
	m := row.Metrics
	return NumericRow{
		Text:             textCells(row.Style),
		Units:            row.Units,
		Pack:             row.Pack,
		Price:            roundPtr(row.Price),
		Rate:             roundPtr(row.Rate),
		ExtraCost:        roundPtr(row.ExtraCost),
		SellingPrice:     roundPtr(row.SellingPrice),
		LandedCost:       round2(m.LandedCost),
		TotalCostPerUnit: round2(m.TotalCostPerUnit),
		Revenue:          round2(m.Revenue),
		TotalProfit:      round2(m.TotalProfit),
		MarginPercent:    round2(m.MarginPercent),
		ProfitPerUnit:    round2(m.ProfitPerUnit),
		Status:           string(m.Status),
	}
}

// Cells returns typed values for spreadsheet writers; absent inputs are nil.
func (r NumericRow) Cells() []any {
	cells := make([]any, 0, len(Header))
	for _, t := range r.Text {
		cells = append(cells, t)
	}
	cells = append(cells,
		intCell(r.Units), intCell(r.Pack),
		floatCell(r.Price), floatCell(r.Rate), floatCell(r.ExtraCost), floatCell(r.SellingPrice),
		r.LandedCost, r.TotalCostPerUnit, r.Revenue, r.TotalProfit, r.MarginPercent, r.ProfitPerUnit,
		r.Status,
	)
	return cells
}

// Strings renders the row for CSV.
func (r NumericRow) Strings() []string {
	out := make([]string, 0, len(Header))
	for _, cell := range r.Cells() {
		switch v := cell.(type) {
		case nil:
			out = append(out, "")
		case string:
			out = append(out, v)
		case int64:
			out = append(out, strconv.FormatInt(v, 10))
		case float64:
			out = append(out, decimal.NewFromFloat(v).StringFixed(2))
		}
	}
	return out
}

// DisplayRow is the human-readable projection.
type DisplayRow struct {
	Cells []string
}

// Formatter renders display rows for one locale and currency.
type Formatter struct {
	printer *message.Printer
	symbol  string
}

// NewFormatter builds a Formatter. An empty symbol renders bare amounts.
func NewFormatter(currencySymbol string) *Formatter {
	return &Formatter{printer: message.NewPrinter(language.English), symbol: currencySymbol}
}

// DisplayRow renders row with grouped thousands, a currency prefix on local
// amounts and a percent suffix on the margin.
func (f *Formatter) DisplayRow(row styles.Row) DisplayRow {
	n := NewNumericRow(row)
	cells := make([]string, 0, len(Header))
	cells = append(cells, n.Text[:]...)
	cells = append(cells,
		f.count(n.Units), f.count(n.Pack),
		f.plain(n.Price), f.plain(n.Rate),
		f.moneyPtr(n.ExtraCost), f.moneyPtr(n.SellingPrice),
		f.money(n.LandedCost), f.money(n.TotalCostPerUnit), f.money(n.Revenue), f.money(n.TotalProfit),
		f.percent(n.MarginPercent), f.money(n.ProfitPerUnit),
		n.Status,
	)
	return DisplayRow{Cells: cells}
}

func (f *Formatter) money(v float64) string {
	if v < 0 {
		return "-" + f.symbol + f.printer.Sprintf("%.2f", -v)
	}
	return f.symbol + f.printer.Sprintf("%.2f", v)
}

func (f *Formatter) moneyPtr(v *float64) string {
	if v == nil {
		return ""
	}
	return f.money(*v)
}

func (f *Formatter) plain(v *float64) string {
	if v == nil {
		return ""
	}
	return f.printer.Sprintf("%.2f", *v)
}

func (f *Formatter) count(v *int64) string {
	if v == nil {
		return ""
	}
	return f.printer.Sprintf("%d", *v)
}

func (f *Formatter) percent(v float64) string {
	return f.printer.Sprintf("%.2f", v) + "%"
}

func textCells(s styles.Style) [6]string {
	return [6]string{s.StyleCode, s.Factory, s.DeliveryDate, s.Description, s.FabricTrim, s.Type}
}

func round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

func roundPtr(v *float64) *float64 {
	if v == nil {
		return nil
	}
	r := round2(*v)
	return &r
}

func intCell(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func floatCell(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}
