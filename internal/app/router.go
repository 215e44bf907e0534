package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/marginboard/internal/customers"
	"github.com/odyssey-erp/marginboard/internal/observability"
	"github.com/odyssey-erp/marginboard/internal/portfolio"
	"github.com/odyssey-erp/marginboard/internal/styles"
	"github.com/odyssey-erp/marginboard/internal/styles/export"
	"github.com/odyssey-erp/marginboard/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger    *slog.Logger
	Config    *Config
	Metrics   *observability.Metrics
	Auth      *TokenAuth
	Customers *customers.Handler
	Styles    *styles.Handler
	Export    *export.Handler
	Summary   *portfolio.Handler
	Live      http.Handler
	Jobs      *jobs.Handler
}

// NewRouter constructs the chi.Router with marginboard defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	timeout := RequestTimeout(params.Config)

	r.Route("/api", func(r chi.Router) {
		if params.Auth != nil {
			r.Use(params.Auth.Middleware)
		}
		if params.Jobs != nil {
			r.With(timeout).Route("/jobs", params.Jobs.MountRoutes)
		}
		r.Route("/customers", func(r chi.Router) {
			r.With(timeout).Group(params.Customers.MountRoutes)
			r.Route("/{customerID}", func(r chi.Router) {
				if params.Live != nil {
					r.Method(http.MethodGet, "/live", params.Live)
				}
				r.Group(func(r chi.Router) {
					r.Use(timeout)
					r.Get("/", params.Customers.Get)
					r.Delete("/", params.Customers.Delete)
					if params.Summary != nil {
						r.Get("/summary", params.Summary.Summary)
					}
					r.Route("/styles", func(r chi.Router) {
						if params.Export != nil {
							r.Get("/export", params.Export.Export)
						}
						params.Styles.MountRoutes(r)
					})
				})
			})
		})
	})

	return r
}
