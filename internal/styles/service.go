package styles

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/odyssey-erp/marginboard/internal/costing"
	"github.com/odyssey-erp/marginboard/internal/resilience"
	"github.com/odyssey-erp/marginboard/internal/shared"
	"github.com/odyssey-erp/marginboard/internal/validation"
)

// Publisher delivers change events to subscribed editors.
type Publisher interface {
	Publish(ctx context.Context, customerID string, ev Event) error
}

// Invalidator drops cached projections of a customer's records.
type Invalidator interface {
	Invalidate(ctx context.Context, customerID string) error
}

// ServiceParams wires a Service. Events and Invalidator are optional.
type ServiceParams struct {
	Store       Store
	Executor    *resilience.Executor
	Validator   *validation.Validator
	Calculator  *costing.Calculator
	Events      Publisher
	Invalidator Invalidator
	Logger      *slog.Logger
}

// Service coordinates validation, retried persistence and change fan-out.
type Service struct {
	store       Store
	exec        *resilience.Executor
	validator   *validation.Validator
	calc        *costing.Calculator
	events      Publisher
	invalidator Invalidator
	logger      *slog.Logger
}

// NewService constructs the style service.
func NewService(p ServiceParams) *Service {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:       p.Store,
		exec:        p.Executor,
		validator:   p.Validator,
		calc:        p.Calculator,
		events:      p.Events,
		invalidator: p.Invalidator,
		logger:      logger,
	}
}

// Validator exposes the configured field validator.
func (s *Service) Validator() *validation.Validator { return s.validator }

// Calculator exposes the configured formula calculator.
func (s *Service) Calculator() *costing.Calculator { return s.calc }

// List returns the customer's styles.
func (s *Service) List(ctx context.Context, filter Filter) ([]Style, error) {
	if strings.TrimSpace(filter.CustomerID) == "" {
		return nil, shared.ErrInvalidID
	}
	return resilience.Do(ctx, s.exec, func(ctx context.Context) ([]Style, error) {
		return s.store.List(ctx, filter)
	}, nil)
}

// Rows lists styles with their derived metrics.
func (s *Service) Rows(ctx context.Context, filter Filter) ([]Row, error) {
	list, err := s.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	rows := make([]Row, 0, len(list))
	for _, st := range list {
		rows = append(rows, NewRow(s.calc, st))
	}
	return rows, nil
}

// Get loads one style.
func (s *Service) Get(ctx context.Context, customerID, id string) (Style, error) {
	if customerID == "" || id == "" {
		return Style{}, shared.ErrInvalidID
	}
	return resilience.Do(ctx, s.exec, func(ctx context.Context) (Style, error) {
		return s.store.Get(ctx, customerID, id)
	}, nil)
}

// Create validates raw editor values and persists a new style.
func (s *Service) Create(ctx context.Context, customerID string, raw map[string]string) (Style, error) {
	if customerID == "" {
		return Style{}, shared.ErrInvalidID
	}
	style, err := s.build(raw)
	if err != nil {
		return Style{}, err
	}
	style.CustomerID = customerID
	// The identifier is fixed before the first attempt so a retried insert
	// that already landed conflicts instead of duplicating.
	style.ID = uuid.NewString()

	attempts := 0
	created, err := resilience.Do(ctx, s.exec, func(ctx context.Context) (Style, error) {
		attempts++
		created, err := s.store.Create(ctx, style)
		if err != nil && attempts > 1 && shared.StatusOf(err) == http.StatusConflict {
			return s.readBack(ctx, style, err)
		}
		return created, err
	}, nil)
	if err != nil {
		return Style{}, err
	}
	s.afterWrite(ctx, ActionCreate, created)
	return created, nil
}

// readBack resolves a conflict on a retried insert. The earlier attempt
// landed when the row with our identifier exists; otherwise conflictErr
// stands, e.g. a duplicate style code.
func (s *Service) readBack(ctx context.Context, style Style, conflictErr error) (Style, error) {
	existing, err := s.store.Get(ctx, style.CustomerID, style.ID)
	if err != nil {
		if shared.StatusOf(err) == http.StatusNotFound {
			return Style{}, conflictErr
		}
		return Style{}, err
	}
	s.logger.Info("style create resolved from earlier attempt", slog.String("style_id", style.ID))
	return existing, nil
}

// Update merges raw editor values into the stored style, validates the
// result and persists only the changed fields.
func (s *Service) Update(ctx context.Context, customerID, id string, raw map[string]string) (Style, error) {
	if err := s.checkRaw(raw); err != nil {
		return Style{}, err
	}
	patch, err := ParsePatch(raw)
	if err != nil {
		return Style{}, err
	}
	current, err := s.Get(ctx, customerID, id)
	if err != nil {
		return Style{}, err
	}
	merged := patch.Apply(current)
	if err := s.validator.ValidateRecord(merged.NumericValues()).Err(); err != nil {
		return Style{}, err
	}
	patch = Diff(current, merged)
	if len(patch) == 0 {
		return current, nil
	}
	return s.Save(ctx, customerID, id, patch, nil)
}

// Save persists an already validated patch. onRetry is told about every retry.
func (s *Service) Save(ctx context.Context, customerID, id string, patch Patch, onRetry resilience.RetryFunc) (Style, error) {
	if customerID == "" || id == "" {
		return Style{}, shared.ErrInvalidID
	}
	saved, err := resilience.Do(ctx, s.exec, func(ctx context.Context) (Style, error) {
		return s.store.Update(ctx, customerID, id, patch)
	}, onRetry)
	if err != nil {
		return Style{}, err
	}
	s.afterWrite(ctx, ActionUpdate, saved)
	return saved, nil
}

// Delete removes one style.
func (s *Service) Delete(ctx context.Context, customerID, id string) error {
	if customerID == "" || id == "" {
		return shared.ErrInvalidID
	}
	err := resilience.Run(ctx, s.exec, func(ctx context.Context) error {
		return s.store.Delete(ctx, customerID, id)
	}, nil)
	if err != nil {
		return err
	}
	s.afterWrite(ctx, ActionDelete, Style{ID: id, CustomerID: customerID})
	return nil
}

// build turns raw editor or import values into a validated Style.
func (s *Service) build(raw map[string]string) (Style, error) {
	if err := s.checkRaw(raw); err != nil {
		return Style{}, err
	}
	numeric := make(map[string]string, len(validation.Fields))
	for _, field := range validation.Fields {
		numeric[field] = raw[field]
	}
	if err := s.validator.ValidateRecord(numeric).Err(); err != nil {
		return Style{}, err
	}
	var style Style
	for name, value := range raw {
		if err := style.Set(Field(name), value); err != nil {
			return Style{}, err
		}
	}
	return style, nil
}

// checkRaw rejects unknown fields and badly formatted numeric values.
func (s *Service) checkRaw(raw map[string]string) error {
	errs := map[string]*validation.FieldError{}
	for name, value := range raw {
		f, ok := LookupField(name)
		if !ok {
			return &ErrUnknownField{Field: name}
		}
		if !f.IsNumeric() {
			continue
		}
		if fe := s.validator.ValidateField(name, value); fe != nil && fe.Kind == validation.KindFormat {
			errs[name] = fe
		}
	}
	if len(errs) > 0 {
		return &validation.Errors{Fields: errs}
	}
	return nil
}

func (s *Service) afterWrite(ctx context.Context, action Action, style Style) {
	// Fan-out runs after the write is durable; a canceled request must not drop it.
	ctx = context.WithoutCancel(ctx)
	if s.events != nil {
		ev := Event{Action: action, Record: style, Origin: OriginFromContext(ctx)}
		if err := s.events.Publish(ctx, style.CustomerID, ev); err != nil {
			s.logger.Warn("publish style event failed",
				slog.String("customer_id", style.CustomerID),
				slog.String("style_id", style.ID),
				slog.Any("error", err))
		}
	}
	if s.invalidator != nil {
		if err := s.invalidator.Invalidate(ctx, style.CustomerID); err != nil {
			s.logger.Warn("invalidate summary cache failed",
				slog.String("customer_id", style.CustomerID),
				slog.Any("error", err))
		}
	}
}

// IsUnknownField reports whether err names a field that cannot be edited.
func IsUnknownField(err error) bool {
	var uf *ErrUnknownField
	return errors.As(err, &uf)
}
