package customers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/odyssey-erp/marginboard/internal/shared"
	"github.com/odyssey-erp/marginboard/internal/validation"
)

const defaultPerPage = 50

// Invalidator drops cached summaries for a customer.
type Invalidator interface {
	Invalidate(ctx context.Context, customerID string) error
}

// Service applies the customer use cases.
type Service struct {
	repo        Repository
	validate    *validator.Validate
	invalidator Invalidator
	logger      *slog.Logger
}

// NewService builds a Service. invalidator may be nil.
func NewService(repo Repository, invalidator Invalidator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Service{repo: repo, validate: v, invalidator: invalidator, logger: logger}
}

// List returns one page of customers and its pagination metadata.
func (s *Service) List(ctx context.Context, req ListRequest) ([]Customer, shared.Pagination, error) {
	if err := s.check(req); err != nil {
		return nil, shared.Pagination{}, err
	}
	if req.PerPage == 0 {
		req.PerPage = defaultPerPage
	}
	page := shared.NewPagination(req.Page, req.PerPage, 0)
	list, total, err := s.repo.List(ctx, strings.TrimSpace(req.Search), page.PerPage, page.Offset())
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return list, shared.NewPagination(page.Page, page.PerPage, total), nil
}

// Get loads one customer.
func (s *Service) Get(ctx context.Context, id string) (Customer, error) {
	if id == "" {
		return Customer{}, shared.ErrInvalidID
	}
	return s.repo.Get(ctx, id)
}

// Create validates req and stores a new customer.
func (s *Service) Create(ctx context.Context, req CreateRequest) (Customer, error) {
	req.Code = strings.TrimSpace(req.Code)
	req.Name = strings.TrimSpace(req.Name)
	if err := s.check(req); err != nil {
		return Customer{}, err
	}
	created, err := s.repo.Create(ctx, Customer{
		ID:        uuid.NewString(),
		Code:      req.Code,
		Name:      req.Name,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return Customer{}, fmt.Errorf("create customer: %w", err)
	}
	s.logger.Info("customer created", slog.String("customer_id", created.ID), slog.String("code", created.Code),
		slog.String("principal", shared.PrincipalFromContext(ctx)))
	return created, nil
}

// Delete removes a customer and every style it owns.
func (s *Service) Delete(ctx context.Context, id string) error {
	if id == "" {
		return shared.ErrInvalidID
	}
	removed, err := s.repo.Delete(ctx, id)
	if err != nil {
		return err
	}
	s.logger.Info("customer deleted", slog.String("customer_id", id), slog.Int64("styles_removed", removed),
		slog.String("principal", shared.PrincipalFromContext(ctx)))
	if s.invalidator != nil {
		if err := s.invalidator.Invalidate(context.WithoutCancel(ctx), id); err != nil {
			s.logger.Warn("summary invalidation failed", slog.String("customer_id", id), slog.Any("error", err))
		}
	}
	return nil
}

// check runs the struct tags and reports failures as *validation.Errors.
func (s *Service) check(req any) error {
	err := s.validate.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	out := &validation.Errors{Fields: map[string]*validation.FieldError{}}
	for _, fe := range verrs {
		out.Fields[fe.Field()] = tagError(fe)
	}
	return out
}

func tagError(fe validator.FieldError) *validation.FieldError {
	switch fe.Tag() {
	case "required":
		return &validation.FieldError{Field: fe.Field(), Kind: validation.KindRequired, Message: "is required"}
	case "max":
		return &validation.FieldError{Field: fe.Field(), Kind: validation.KindRange, Message: "must be at most " + fe.Param() + " characters"}
	case "lte":
		return &validation.FieldError{Field: fe.Field(), Kind: validation.KindRange, Message: "must be at most " + fe.Param()}
	case "gte":
		return &validation.FieldError{Field: fe.Field(), Kind: validation.KindRange, Message: "must be at least " + fe.Param()}
	default:
		return &validation.FieldError{Field: fe.Field(), Kind: validation.KindFormat, Message: "is invalid"}
	}
}
