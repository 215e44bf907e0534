package portfolio

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/marginboard/internal/platform/httpx"
)

// Handler serves GET /api/customers/{customerID}/summary.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs the summary handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// Summary writes the customer's portfolio summary as JSON.
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	customerID := chi.URLParam(r, "customerID")
	summary, err := h.service.Summary(r.Context(), customerID)
	if err != nil {
		h.logger.Error("load summary failed", slog.String("customer_id", customerID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}
