package costing

// Inputs are the raw numeric fields of a style. A nil pointer means the value
// was not provided; zero is a real value and is never treated as absent.
type Inputs struct {
	Price        *float64
	Rate         *float64
	ExtraCost    *float64
	SellingPrice *float64
	Units        *int64
	Pack         *int64
}

// Metrics is the derived projection of a style. It is never persisted.
type Metrics struct {
	LandedCost       float64 `json:"landed_cost"`
	TotalCostPerUnit float64 `json:"total_cost_per_unit"`
	Revenue          float64 `json:"revenue"`
	TotalExpense     float64 `json:"total_expense"`
	TotalProfit      float64 `json:"total_profit"`
	MarginPercent    float64 `json:"margin_percent"`
	ProfitPerUnit    float64 `json:"profit_per_unit"`
	Val1             float64 `json:"val1"`
	Val2             float64 `json:"val2"`
	Status           Status  `json:"margin_status"`
}

// Calculator evaluates the formulas for a validated Config.
type Calculator struct {
	cfg Config
}

// NewCalculator validates cfg and returns a Calculator.
func NewCalculator(cfg Config) (*Calculator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Calculator{cfg: cfg}, nil
}

// MustCalculator is NewCalculator for tests and static defaults.
func MustCalculator(cfg Config) *Calculator {
	calc, err := NewCalculator(cfg)
	if err != nil {
		panic(err)
	}
	return calc
}

// Config returns the configuration the calculator was built with.
func (c *Calculator) Config() Config {
	return c.cfg
}

// Compute derives Metrics from in.
func (c *Calculator) Compute(in Inputs) Metrics {
	price := floatOr(in.Price, 0)
	rate := floatOr(in.Rate, 0)
	extra := floatOr(in.ExtraCost, 0)
	selling := floatOr(in.SellingPrice, 0)
	units := float64(intOr(in.Units, 0))
	pack := float64(intOr(in.Pack, 1))

	var m Metrics
	m.LandedCost = (price * rate) / c.cfg.CurrencyDivisor
	m.TotalCostPerUnit = m.LandedCost + extra
	m.Revenue = selling * units
	m.TotalExpense = m.TotalCostPerUnit * units
	m.TotalProfit = m.Revenue - m.TotalExpense
	if m.Revenue > 0 {
		m.MarginPercent = (m.TotalProfit / m.Revenue) * 100
	}
	// Strictly profit over unit count; pack does not scale it.
	if units > 0 {
		m.ProfitPerUnit = m.TotalProfit / units
	}
	m.Val1 = price / c.cfg.CurrencyDivisor
	if pack > 0 {
		m.Val2 = m.Val1 / pack
	}
	m.Status = c.Status(m.MarginPercent)
	return m
}

func floatOr(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}

func intOr(v *int64, def int64) int64 {
	if v == nil {
		return def
	}
	return *v
}

// Float returns a pointer to v. Handy when building Inputs literals.
func Float(v float64) *float64 { return &v }

// Int returns a pointer to v.
func Int(v int64) *int64 { return &v }
