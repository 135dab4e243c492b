package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/freightline-erp/freightline/internal/allocations"
	"github.com/freightline-erp/freightline/internal/items"
	"github.com/freightline-erp/freightline/internal/receipts"
	"github.com/freightline-erp/freightline/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	ItemsHandler       *items.Handler
	AllocationsHandler *allocations.Handler
	ReceiptsHandler    *receipts.Handler
	JobHandler         *jobs.Handler
}

// NewRouter constructs the chi.Router with Freightline defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger: params.Logger,
		Config: params.Config,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/items", params.ItemsHandler.MountRoutes)
		r.Route("/allocations", params.AllocationsHandler.MountRoutes)
		r.Route("/receipts", params.ReceiptsHandler.MountRoutes)
	})

	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	return r
}
