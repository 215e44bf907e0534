package styles

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/marginboard/internal/platform/httpx"
)

// Enqueuer hands a bulk import to the background worker.
type Enqueuer interface {
	EnqueueImport(ctx context.Context, customerID string, rows []ImportRow) (string, error)
}

// Handler serves the styles JSON API.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	enqueuer Enqueuer
}

// NewHandler builds the handler. enqueuer may be nil, disabling async imports.
func NewHandler(logger *slog.Logger, service *Service, enqueuer Enqueuer) *Handler {
	return &Handler{logger: logger, service: service, enqueuer: enqueuer}
}

// MountRoutes registers routes under /api/customers/{customerID}/styles.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Post("/bulk-delete", h.bulkDelete)
	r.Post("/import", h.importRows)
	r.Route("/{styleID}", func(r chi.Router) {
		r.Get("/", h.get)
		r.Patch("/", h.update)
		r.Delete("/", h.remove)
	})
}

type valuesRequest struct {
	Values map[string]string `json:"values"`
}

type bulkDeleteRequest struct {
	IDs []string `json:"ids"`
}

type importRequest struct {
	Rows []ImportRow `json:"rows"`
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rows, err := h.service.Rows(r.Context(), Filter{
		CustomerID: chi.URLParam(r, "customerID"),
		Search:     q.Get("search"),
		SortBy:     q.Get("sort"),
		SortDir:    q.Get("dir"),
	})
	if err != nil {
		h.logger.Error("list styles failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if rows == nil {
		rows = []Row{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"styles": rows})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	style, err := h.service.Get(r.Context(), chi.URLParam(r, "customerID"), chi.URLParam(r, "styleID"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, NewRow(h.service.Calculator(), style))
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req valuesRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	style, err := h.service.Create(r.Context(), chi.URLParam(r, "customerID"), req.Values)
	if err != nil {
		h.respondWriteError(w, "create style failed", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, NewRow(h.service.Calculator(), style))
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	var req valuesRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	style, err := h.service.Update(r.Context(), chi.URLParam(r, "customerID"), chi.URLParam(r, "styleID"), req.Values)
	if err != nil {
		h.respondWriteError(w, "update style failed", err)
		return
	}
	httpx.JSON(w, http.StatusOK, NewRow(h.service.Calculator(), style))
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "customerID"), chi.URLParam(r, "styleID")); err != nil {
		h.respondWriteError(w, "delete style failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) bulkDelete(w http.ResponseWriter, r *http.Request) {
	var req bulkDeleteRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	report := h.service.BulkDelete(r.Context(), chi.URLParam(r, "customerID"), req.IDs)
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) importRows(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	customerID := chi.URLParam(r, "customerID")
	if r.URL.Query().Get("async") == "1" && h.enqueuer != nil {
		taskID, err := h.enqueuer.EnqueueImport(r.Context(), customerID, req.Rows)
		if err != nil {
			h.logger.Error("enqueue style import failed", slog.String("customer_id", customerID), slog.Any("error", err))
			httpx.Problem(w, http.StatusServiceUnavailable, "Queue Unavailable", "import could not be queued, retry later")
			return
		}
		httpx.JSON(w, http.StatusAccepted, map[string]string{"task_id": taskID})
		return
	}
	report := h.service.Import(r.Context(), customerID, req.Rows)
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) respondWriteError(w http.ResponseWriter, msg string, err error) {
	if IsUnknownField(err) {
		httpx.Problem(w, http.StatusBadRequest, "Unknown Field", err.Error())
		return
	}
	h.logger.Warn(msg, slog.Any("error", err))
	httpx.RespondError(w, err)
}
