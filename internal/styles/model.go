package styles

import (
	"time"

	"github.com/odyssey-erp/marginboard/internal/costing"
)

// Style is one product line item costed and priced for a customer.
// Numeric inputs are pointers: nil means "not provided", zero is a value.
type Style struct {
	ID           string    `json:"id"`
	CustomerID   string    `json:"customer_id"`
	StyleCode    string    `json:"style_code"`
	Factory      string    `json:"factory"`
	DeliveryDate string    `json:"delivery_date"`
	Description  string    `json:"description"`
	FabricTrim   string    `json:"fabric_trim"`
	Type         string    `json:"type"`
	Units        *int64    `json:"units"`
	Pack         *int64    `json:"pack"`
	Price        *float64  `json:"price"`
	Rate         *float64  `json:"rate"`
	ExtraCost    *float64  `json:"extra_cost"`
	SellingPrice *float64  `json:"selling_price"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Inputs projects the numeric fields for the formula library.
func (s Style) Inputs() costing.Inputs {
	return costing.Inputs{
		Price:        s.Price,
		Rate:         s.Rate,
		ExtraCost:    s.ExtraCost,
		SellingPrice: s.SellingPrice,
		Units:        s.Units,
		Pack:         s.Pack,
	}
}

// Clone deep-copies the pointer fields.
func (s Style) Clone() Style {
	out := s
	out.Units = cloneInt(s.Units)
	out.Pack = cloneInt(s.Pack)
	out.Price = cloneFloat(s.Price)
	out.Rate = cloneFloat(s.Rate)
	out.ExtraCost = cloneFloat(s.ExtraCost)
	out.SellingPrice = cloneFloat(s.SellingPrice)
	return out
}

// SameContent compares editable fields, ignoring identity and timestamps.
func (s Style) SameContent(o Style) bool {
	for _, spec := range fieldSpecs {
		if spec.format(s) != spec.format(o) {
			return false
		}
	}
	return true
}

// Row is a style together with its derived metrics.
type Row struct {
	Style
	Metrics costing.Metrics `json:"metrics"`
}

// NewRow computes metrics for s through calc.
func NewRow(calc *costing.Calculator, s Style) Row {
	return Row{Style: s, Metrics: calc.Compute(s.Inputs())}
}

// Filter scopes a listing.
type Filter struct {
	CustomerID string
	Search     string
	SortBy     string
	SortDir    string
}

// Action is the kind of change carried by an Event.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Event is a change notification delivered on the push channel.
type Event struct {
	Action Action `json:"action"`
	Record Style  `json:"record"`
	// Origin identifies the editing connection that caused the change, if any.
	Origin string `json:"origin,omitempty"`
}

func cloneInt(v *int64) *int64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
