package export

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/marginboard/internal/platform/httpx"
	"github.com/odyssey-erp/marginboard/internal/styles"
)

// RowLister returns a customer's styles with computed metrics.
type RowLister interface {
	Rows(ctx context.Context, filter styles.Filter) ([]styles.Row, error)
}

// Handler serves GET .../styles/export.
type Handler struct {
	logger *slog.Logger
	rows   RowLister
	writer *Writer
}

// NewHandler constructs the export handler.
func NewHandler(logger *slog.Logger, rows RowLister, writer *Writer) *Handler {
	return &Handler{logger: logger, rows: rows, writer: writer}
}

// Export streams the customer's styles as CSV (default) or XLSX.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	customerID := chi.URLParam(r, "customerID")
	q := r.URL.Query()
	flavor := ParseFlavor(q.Get("flavor"))

	rows, err := h.rows.Rows(r.Context(), styles.Filter{
		CustomerID: customerID,
		Search:     q.Get("search"),
		SortBy:     q.Get("sort"),
		SortDir:    q.Get("dir"),
	})
	if err != nil {
		h.logger.Error("export styles failed", slog.String("customer_id", customerID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	var buf bytes.Buffer
	var ext string
	switch q.Get("format") {
	case "xlsx":
		ext = "xlsx"
		err = h.writer.WriteXLSX(&buf, rows, flavor)
	case "", "csv":
		ext = "csv"
		err = h.writer.WriteCSV(&buf, rows, flavor)
	default:
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "format must be csv or xlsx")
		return
	}
	if err != nil {
		h.logger.Error("render export failed", slog.String("format", ext), slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}

	filename := fmt.Sprintf("styles-%s-%s-%s.%s", customerID, flavor, time.Now().UTC().Format("20060102"), ext)
	w.Header().Set("Content-Type", contentType(ext))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func contentType(ext string) string {
	if typ := mime.TypeByExtension("." + ext); typ != "" {
		return typ
	}
	return "application/octet-stream"
}
