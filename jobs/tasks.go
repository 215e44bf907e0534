package jobs

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/marginboard/internal/styles"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskStylesImport runs a bulk style import for one customer.
	TaskStylesImport = "styles:import"
)

// ImportPayload carries the parsed rows of a bulk import.
type ImportPayload struct {
	CustomerID string             `json:"customer_id"`
	Rows       []styles.ImportRow `json:"rows"`
}

func (p ImportPayload) validate() error {
	if strings.TrimSpace(p.CustomerID) == "" {
		return errors.New("customer_id is required")
	}
	return nil
}

// NewImportTask constructs an Asynq task for a bulk import.
func NewImportTask(payload ImportPayload) (*asynq.Task, error) {
	if err := payload.validate(); err != nil {
		return nil, err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskStylesImport, data), nil
}
