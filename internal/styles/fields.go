package styles

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/odyssey-erp/marginboard/internal/validation"
)

// Field names an editable attribute of a Style.
type Field string

const (
	FieldStyleCode    Field = "styleCode"
	FieldFactory      Field = "factory"
	FieldDeliveryDate Field = "deliveryDate"
	FieldDescription  Field = "description"
	FieldFabricTrim   Field = "fabricTrim"
	FieldType         Field = "type"
	FieldUnits        Field = validation.Units
	FieldPack         Field = validation.Pack
	FieldPrice        Field = validation.Price
	FieldRate         Field = validation.Rate
	FieldExtraCost    Field = validation.ExtraCost
	FieldSellingPrice Field = validation.SellingPrice
)

type fieldSpec struct {
	name    Field
	column  string
	numeric bool
	format  func(Style) string
	set     func(*Style, string) error
}

var fieldSpecs = []fieldSpec{
	textField(FieldStyleCode, "style_code", func(s *Style) *string { return &s.StyleCode }),
	textField(FieldFactory, "factory", func(s *Style) *string { return &s.Factory }),
	textField(FieldDeliveryDate, "delivery_date", func(s *Style) *string { return &s.DeliveryDate }),
	textField(FieldDescription, "description", func(s *Style) *string { return &s.Description }),
	textField(FieldFabricTrim, "fabric_trim", func(s *Style) *string { return &s.FabricTrim }),
	textField(FieldType, "style_type", func(s *Style) *string { return &s.Type }),
	intField(FieldUnits, "units", func(s *Style) **int64 { return &s.Units }),
	intField(FieldPack, "pack", func(s *Style) **int64 { return &s.Pack }),
	floatField(FieldPrice, "price", func(s *Style) **float64 { return &s.Price }),
	floatField(FieldRate, "rate", func(s *Style) **float64 { return &s.Rate }),
	floatField(FieldExtraCost, "extra_cost", func(s *Style) **float64 { return &s.ExtraCost }),
	floatField(FieldSellingPrice, "selling_price", func(s *Style) **float64 { return &s.SellingPrice }),
}

var specByName = func() map[Field]fieldSpec {
	out := make(map[Field]fieldSpec, len(fieldSpecs))
	for _, spec := range fieldSpecs {
		out[spec.name] = spec
	}
	return out
}()

// ErrUnknownField is returned for attributes that cannot be edited.
type ErrUnknownField struct {
	Field string
}

func (e *ErrUnknownField) Error() string {
	return fmt.Sprintf("styles: unknown field %q", e.Field)
}

// LookupField resolves a field name.
func LookupField(name string) (Field, bool) {
	_, ok := specByName[Field(name)]
	return Field(name), ok
}

// IsNumeric reports whether f is one of the validated numeric inputs.
func (f Field) IsNumeric() bool {
	return specByName[f].numeric
}

// Format renders the value of f in s as raw editor text. Absent numbers render empty.
func (s Style) Format(f Field) string {
	spec, ok := specByName[f]
	if !ok {
		return ""
	}
	return spec.format(s)
}

// Set parses raw into field f. Empty text clears a numeric field.
func (s *Style) Set(f Field, raw string) error {
	spec, ok := specByName[f]
	if !ok {
		return &ErrUnknownField{Field: string(f)}
	}
	return spec.set(s, raw)
}

// NumericValues returns the raw text of the numeric inputs keyed by field name,
// the shape the validator consumes.
func (s Style) NumericValues() map[string]string {
	out := make(map[string]string, len(validation.Fields))
	for _, name := range validation.Fields {
		out[name] = s.Format(Field(name))
	}
	return out
}

// Patch is a partial update. Values are already parsed: strings for text fields,
// *int64 or *float64 (possibly nil) for numeric fields.
type Patch map[Field]any

// Fields returns the patched fields in a stable order.
func (p Patch) Fields() []Field {
	out := make([]Field, 0, len(p))
	for f := range p {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Apply returns s with the patch applied.
func (p Patch) Apply(s Style) Style {
	out := s.Clone()
	for f, v := range p {
		switch val := v.(type) {
		case string:
			_ = out.Set(f, val)
		case *int64:
			_ = out.Set(f, formatInt(val))
		case *float64:
			_ = out.Set(f, formatFloat(val))
		}
	}
	return out
}

// ParsePatch converts raw editor values into a Patch.
func ParsePatch(raw map[string]string) (Patch, error) {
	var scratch Style
	patch := make(Patch, len(raw))
	for name, value := range raw {
		f, ok := LookupField(name)
		if !ok {
			return nil, &ErrUnknownField{Field: name}
		}
		if err := scratch.Set(f, value); err != nil {
			return nil, err
		}
		patch[f] = specByName[f].value(scratch)
	}
	return patch, nil
}

// Diff returns the fields whose content differs between from and to.
func Diff(from, to Style) Patch {
	patch := Patch{}
	for _, spec := range fieldSpecs {
		if spec.format(from) != spec.format(to) {
			patch[spec.name] = spec.value(to)
		}
	}
	return patch
}

func (spec fieldSpec) value(s Style) any {
	switch spec.name {
	case FieldUnits:
		return cloneInt(s.Units)
	case FieldPack:
		return cloneInt(s.Pack)
	case FieldPrice:
		return cloneFloat(s.Price)
	case FieldRate:
		return cloneFloat(s.Rate)
	case FieldExtraCost:
		return cloneFloat(s.ExtraCost)
	case FieldSellingPrice:
		return cloneFloat(s.SellingPrice)
	default:
		return spec.format(s)
	}
}

func textField(name Field, column string, ref func(*Style) *string) fieldSpec {
	return fieldSpec{
		name:   name,
		column: column,
		format: func(s Style) string { return *ref(&s) },
		set: func(s *Style, raw string) error {
			*ref(s) = strings.TrimSpace(raw)
			return nil
		},
	}
}

func intField(name Field, column string, ref func(*Style) **int64) fieldSpec {
	return fieldSpec{
		name:    name,
		column:  column,
		numeric: true,
		format:  func(s Style) string { return formatInt(*ref(&s)) },
		set: func(s *Style, raw string) error {
			raw = strings.TrimSpace(raw)
			if raw == "" {
				*ref(s) = nil
				return nil
			}
			n, err := strconv.ParseFloat(raw, 64)
			if err != nil || n != math.Trunc(n) || math.IsInf(n, 0) {
				return fmt.Errorf("styles: %s must be a whole number", name)
			}
			// 2^63 itself is representable as a float but not as an int64.
			if n >= math.MaxInt64 || n < math.MinInt64 {
				return fmt.Errorf("styles: %s is out of range", name)
			}
			v := int64(n)
			*ref(s) = &v
			return nil
		},
	}
}

func floatField(name Field, column string, ref func(*Style) **float64) fieldSpec {
	return fieldSpec{
		name:    name,
		column:  column,
		numeric: true,
		format:  func(s Style) string { return formatFloat(*ref(&s)) },
		set: func(s *Style, raw string) error {
			raw = strings.TrimSpace(raw)
			if raw == "" {
				*ref(s) = nil
				return nil
			}
			n, err := strconv.ParseFloat(raw, 64)
			if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
				return fmt.Errorf("styles: %s must be a valid number", name)
			}
			*ref(s) = &n
			return nil
		},
	}
}

func formatInt(v *int64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatInt(*v, 10)
}

func formatFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}
