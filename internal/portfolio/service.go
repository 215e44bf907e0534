package portfolio

import (
	"context"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/marginboard/internal/costing"
	"github.com/odyssey-erp/marginboard/internal/styles"
)

// RecordLister returns a customer's styles.
type RecordLister interface {
	List(ctx context.Context, filter styles.Filter) ([]styles.Style, error)
}

// Service resolves customer summaries through the cache.
type Service struct {
	records RecordLister
	calc    *costing.Calculator
	cache   *Cache
	logger  *slog.Logger
	group   singleflight.Group
}

// NewService wires the summary service. cache may be nil.
func NewService(records RecordLister, calc *costing.Calculator, cache *Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{records: records, calc: calc, cache: cache, logger: logger}
}

// Summary returns the customer's portfolio summary. Concurrent misses for the
// same customer share one load.
func (s *Service) Summary(ctx context.Context, customerID string) (Summary, error) {
	loader := func(ctx context.Context) (any, error) {
		list, err := s.records.List(ctx, styles.Filter{CustomerID: customerID})
		if err != nil {
			return Summary{}, err
		}
		return Aggregate(s.calc, list), nil
	}

	key, err := s.cache.BuildKey(ctx, customerID, "summary")
	if err != nil {
		s.logger.Warn("summary cache unavailable", slog.String("customer_id", customerID), slog.Any("error", err))
		value, err := loader(ctx)
		if err != nil {
			return Summary{}, err
		}
		return value.(Summary), nil
	}

	ch := s.group.DoChan(key, func() (any, error) {
		// Shared loads outlive any single caller's cancellation.
		loadCtx := context.WithoutCancel(ctx)
		var out Summary
		if err := s.cache.FetchJSON(loadCtx, key, &out, loader); err != nil {
			return Summary{}, err
		}
		return out, nil
	})
	select {
	case <-ctx.Done():
		return Summary{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Summary{}, res.Err
		}
		return res.Val.(Summary), nil
	}
}
