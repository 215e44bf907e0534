package styles

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/odyssey-erp/marginboard/internal/shared"
	"github.com/odyssey-erp/marginboard/internal/validation"
)

// ImportRow is one already-parsed spreadsheet row keyed by field name.
type ImportRow map[string]string

// blank reports rows with no style code and no numeric input.
func (r ImportRow) blank() bool {
	if strings.TrimSpace(r[string(FieldStyleCode)]) != "" {
		return false
	}
	for _, field := range validation.Fields {
		if strings.TrimSpace(r[field]) != "" {
			return false
		}
	}
	return true
}

// RowError reports why one import row was not persisted. Row is 1-based.
type RowError struct {
	Row     int               `json:"row"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// ImportReport tallies a bulk import.
type ImportReport struct {
	Imported int        `json:"imported"`
	Skipped  int        `json:"skipped"`
	Errors   []RowError `json:"errors"`
}

// ItemError reports why one id could not be deleted.
type ItemError struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

// BulkReport tallies a bulk delete.
type BulkReport struct {
	Succeeded int         `json:"succeeded"`
	Failed    []ItemError `json:"failed"`
}

// Import validates and persists rows one at a time. A failing row is
// recorded and the remaining rows still run.
func (s *Service) Import(ctx context.Context, customerID string, rows []ImportRow) ImportReport {
	report := ImportReport{Errors: []RowError{}}
	for i, row := range rows {
		if ctx.Err() != nil {
			report.Errors = append(report.Errors, RowError{Row: i + 1, Message: "import canceled"})
			continue
		}
		if row.blank() {
			report.Skipped++
			continue
		}
		if _, err := s.Create(ctx, customerID, row); err != nil {
			report.Errors = append(report.Errors, rowError(i+1, err))
			continue
		}
		report.Imported++
	}
	s.logger.Info("style import finished",
		slog.String("customer_id", customerID),
		slog.Int("imported", report.Imported),
		slog.Int("skipped", report.Skipped),
		slog.Int("errors", len(report.Errors)))
	return report
}

// BulkDelete removes ids one at a time, tallying each outcome independently.
func (s *Service) BulkDelete(ctx context.Context, customerID string, ids []string) BulkReport {
	report := BulkReport{Failed: []ItemError{}}
	for _, id := range ids {
		if err := s.Delete(ctx, customerID, id); err != nil {
			s.logger.Warn("bulk delete item failed",
				slog.String("customer_id", customerID),
				slog.String("style_id", id),
				slog.Any("error", err))
			report.Failed = append(report.Failed, ItemError{ID: id, Message: itemMessage(err)})
			continue
		}
		report.Succeeded++
	}
	return report
}

func rowError(row int, err error) RowError {
	re := RowError{Row: row, Message: itemMessage(err)}
	var verrs *validation.Errors
	if errors.As(err, &verrs) {
		re.Message = "invalid values"
		re.Fields = make(map[string]string, len(verrs.Fields))
		for field, fe := range verrs.Fields {
			re.Fields[field] = fe.Message
		}
	}
	return re
}

func itemMessage(err error) string {
	switch {
	case IsUnknownField(err):
		return err.Error()
	case errors.Is(err, shared.ErrInvalidID):
		return "invalid identifier"
	default:
		return shared.UserMessage(err)
	}
}
