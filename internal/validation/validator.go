// Package validation checks raw numeric style inputs before they are persisted.
package validation

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/marginboard/internal/shared"
)

// Numeric field names, as submitted by editors and importers.
const (
	Units        = "units"
	Pack         = "pack"
	Price        = "price"
	Rate         = "rate"
	ExtraCost    = "extraCost"
	SellingPrice = "sellingPrice"
)

// Fields lists every validated field in display order.
var Fields = []string{Units, Pack, Price, Rate, ExtraCost, SellingPrice}

// Config bounds the numeric inputs.
type Config struct {
	MaxUnits int64
	MaxPack  int64
	RateMin  float64
	RateMax  float64
}

// DefaultConfig returns the limits used when none are configured.
func DefaultConfig() Config {
	return Config{MaxUnits: 1_000_000, MaxPack: 10_000, RateMin: 1, RateMax: 200}
}

// Validate checks the limits are usable.
func (c Config) Validate() error {
	if c.MaxUnits < 1 {
		return shared.NewConfigError("UNITS_MAX", "must be at least 1, got %d", c.MaxUnits)
	}
	if c.MaxPack < 1 {
		return shared.NewConfigError("PACK_MAX", "must be at least 1, got %d", c.MaxPack)
	}
	if c.RateMin <= 0 || c.RateMin >= c.RateMax {
		return shared.NewConfigError("RATE_MIN", "must be positive and below RATE_MAX (%v, %v)", c.RateMin, c.RateMax)
	}
	return nil
}

type rule struct {
	required bool
	integer  bool
	tag      string
	rangeMsg string
}

// Validator applies the per-field rules.
type Validator struct {
	validate *validator.Validate
	rules    map[string]rule
}

// New builds a Validator for cfg.
func New(cfg Config) (*Validator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	v := validator.New()
	if err := v.RegisterValidation("integral", isIntegral); err != nil {
		return nil, fmt.Errorf("validation: register integral: %w", err)
	}
	rateMin := formatParam(cfg.RateMin)
	rateMax := formatParam(cfg.RateMax)
	return &Validator{
		validate: v,
		rules: map[string]rule{
			Units:        {required: true, integer: true, tag: fmt.Sprintf("gte=1,lte=%d", cfg.MaxUnits)},
			Pack:         {required: true, integer: true, tag: fmt.Sprintf("gte=1,lte=%d", cfg.MaxPack)},
			Price:        {required: true, tag: "gt=0"},
			Rate:         {required: true, tag: fmt.Sprintf("gte=%s,lte=%s", rateMin, rateMax), rangeMsg: fmt.Sprintf("must be between %s and %s", rateMin, rateMax)},
			ExtraCost:    {tag: "gte=0"},
			SellingPrice: {required: true, tag: "gt=0"},
		},
	}, nil
}

// MustNew is New for tests and static defaults.
func MustNew(cfg Config) *Validator {
	v, err := New(cfg)
	if err != nil {
		panic(err)
	}
	return v
}

// ValidateField checks one raw value. A nil result means the value is acceptable.
// Unknown fields are not validated.
func (v *Validator) ValidateField(field, raw string) *FieldError {
	r, ok := v.rules[field]
	if !ok {
		return nil
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		if r.required {
			return &FieldError{Field: field, Kind: KindRequired, Message: "is required"}
		}
		return nil
	}
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return &FieldError{Field: field, Kind: KindFormat, Message: "must be a valid number"}
	}
	if r.integer {
		if err := v.validate.Var(n, "integral"); err != nil {
			return &FieldError{Field: field, Kind: KindFormat, Message: "must be a whole number"}
		}
	}
	if err := v.validate.Var(n, r.tag); err != nil {
		return rangeError(field, r, err)
	}
	return nil
}

// ValidateRecord runs every rule over values and aggregates the failures.
// Fields missing from values are treated as empty.
func (v *Validator) ValidateRecord(values map[string]string) Result {
	res := Result{Valid: true, FieldErrors: map[string]*FieldError{}}
	for _, field := range Fields {
		if fe := v.ValidateField(field, values[field]); fe != nil {
			res.Valid = false
			res.FieldErrors[field] = fe
		}
	}
	return res
}

// Result aggregates a record validation.
type Result struct {
	Valid       bool                   `json:"valid"`
	FieldErrors map[string]*FieldError `json:"field_errors,omitempty"`
}

// Err returns the failures as an *Errors, or nil when valid.
func (r Result) Err() error {
	if r.Valid {
		return nil
	}
	return &Errors{Fields: r.FieldErrors}
}

// Messages flattens the failures into field → message.
func (r Result) Messages() map[string]string {
	out := make(map[string]string, len(r.FieldErrors))
	for field, fe := range r.FieldErrors {
		out[field] = fe.Message
	}
	return out
}

func rangeError(field string, r rule, err error) *FieldError {
	fe := &FieldError{Field: field, Kind: KindRange, Message: "is out of range"}
	if r.rangeMsg != "" {
		fe.Message = r.rangeMsg
		return fe
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fe
	}
	failed := verrs[0]
	switch failed.Tag() {
	case "gt":
		if failed.Param() == "0" {
			fe.Message = "must be positive"
		} else {
			fe.Message = "must be greater than " + failed.Param()
		}
	case "gte":
		if failed.Param() == "0" {
			fe.Message = "must not be negative"
		} else {
			fe.Message = "must be at least " + failed.Param()
		}
	case "lte":
		fe.Message = "must be at most " + failed.Param()
	}
	return fe
}

func isIntegral(fl validator.FieldLevel) bool {
	f := fl.Field().Float()
	return f == math.Trunc(f)
}

func formatParam(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// SortedFields returns the field names of errs in a stable order.
func SortedFields(errs map[string]*FieldError) []string {
	out := make([]string, 0, len(errs))
	for field := range errs {
		out = append(out, field)
	}
	sort.Strings(out)
	return out
}
