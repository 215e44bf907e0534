package customers

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/marginboard/internal/platform/httpx"
	"github.com/odyssey-erp/marginboard/internal/shared"
)

// Handler serves the customer JSON API.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs the customer handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers the collection routes under /api/customers. Item
// routes are exposed separately so other modules can share the
// /{customerID} subtree.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
}

type listResponse struct {
	Customers  []Customer        `json:"customers"`
	Pagination shared.Pagination `json:"pagination"`
}

// List handles GET /api/customers.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := ListRequest{Search: q.Get("search")}
	if p, err := strconv.Atoi(q.Get("page")); err == nil {
		req.Page = p
	}
	if pp, err := strconv.Atoi(q.Get("per_page")); err == nil {
		req.PerPage = pp
	}

	list, page, err := h.service.List(r.Context(), req)
	if err != nil {
		h.logger.Error("list customers failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if list == nil {
		list = []Customer{}
	}
	httpx.JSON(w, http.StatusOK, listResponse{Customers: list, Pagination: page})
}

// Create handles POST /api/customers.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	created, err := h.service.Create(r.Context(), req)
	if err != nil {
		h.logger.Warn("create customer failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

// Get handles GET /api/customers/{customerID}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	c, err := h.service.Get(r.Context(), chi.URLParam(r, "customerID"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, c)
}

// Delete handles DELETE /api/customers/{customerID}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "customerID")
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.logger.Warn("delete customer failed", slog.String("customer_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
