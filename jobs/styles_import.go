package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/marginboard/internal/jobs"
	"github.com/odyssey-erp/marginboard/internal/styles"
)

// Importer persists a batch of import rows.
type Importer interface {
	Import(ctx context.Context, customerID string, rows []styles.ImportRow) styles.ImportReport
}

// ImportJob runs queued bulk imports.
type ImportJob struct {
	Importer Importer
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
}

// NewImportJob initialises the import handler.
func NewImportJob(importer Importer, logger *slog.Logger, metrics *jobmetrics.Metrics) *ImportJob {
	return &ImportJob{Importer: importer, Logger: logger, Metrics: metrics}
}

// Handle decodes the payload and imports its rows. Row failures are part of
// the report, not task failures; only a canceled context fails the task.
func (j *ImportJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Importer == nil {
		return errors.New("styles import: handler not configured")
	}
	var payload ImportPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("styles import: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	if err := payload.validate(); err != nil {
		return fmt.Errorf("styles import: %v: %w", err, asynq.SkipRetry)
	}

	start := time.Now()
	tracker := j.Metrics.Track(TaskStylesImport)
	logger := j.logger().With(
		slog.String("customer_id", payload.CustomerID),
		slog.Int("rows", len(payload.Rows)),
	)
	logger.Info("starting style import")

	report := j.Importer.Import(ctx, payload.CustomerID, payload.Rows)
	j.Metrics.AddImportRows(report.Imported, report.Skipped, len(report.Errors))

	logger.Info("completed style import",
		slog.Int("imported", report.Imported),
		slog.Int("skipped", report.Skipped),
		slog.Int("errors", len(report.Errors)),
		slog.Duration("duration", time.Since(start)),
	)
	return tracker.End(ctx.Err())
}

func (j *ImportJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
