package app

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/veta-logistics/veta/internal/audit"
	"github.com/veta-logistics/veta/internal/auth"
	"github.com/veta-logistics/veta/internal/dispatches"
	"github.com/veta-logistics/veta/internal/kardex"
	"github.com/veta-logistics/veta/internal/masterdata/measures"
	"github.com/veta-logistics/veta/internal/masterdata/mines"
	"github.com/veta-logistics/veta/internal/masterdata/products"
	"github.com/veta-logistics/veta/internal/masterdata/suppliers"
	"github.com/veta-logistics/veta/internal/masterdata/supervisors"
	"github.com/veta-logistics/veta/internal/observability"
	"github.com/veta-logistics/veta/internal/requirements"
	"github.com/veta-logistics/veta/internal/trips"
	"github.com/veta-logistics/veta/internal/users"
	"github.com/veta-logistics/veta/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger *slog.Logger
	Config *Config

	AuthService *auth.Service
	AuthHandler *auth.Handler

	ProductsHandler    *products.Handler
	SuppliersHandler   *suppliers.Handler
	MinesHandler       *mines.Handler
	SupervisorsHandler *supervisors.Handler
	MeasuresHandler    *measures.Handler

	RequirementsHandler *requirements.Handler
	TripsHandler        *trips.Handler
	DispatchesHandler   *dispatches.Handler
	KardexHandler       *kardex.Handler

	UsersHandler *users.Handler
	AuditHandler *audit.Handler

	JobHandler *jobs.Handler
	Metrics    *observability.Metrics
}

// NewRouter constructs the chi.Router for the API.
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

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			// Login gets its own tighter rate limit to slow down credential
			// stuffing.
			r.Group(func(r chi.Router) {
				r.Use(httprate.Limit(10, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)))
				params.AuthHandler.MountRoutes(r)
			})
			r.Group(func(r chi.Router) {
				r.Use(params.AuthService.Middleware)
				params.AuthHandler.MountProtectedRoutes(r)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(params.AuthService.Middleware)
			r.Use(writerGate)

			r.Route("/productos", params.ProductsHandler.MountRoutes)
			r.Route("/proveedores", params.SuppliersHandler.MountRoutes)
			r.Route("/minas", params.MinesHandler.MountRoutes)
			r.Route("/supervisores", params.SupervisorsHandler.MountRoutes)
			r.Route("/medidas", params.MeasuresHandler.MountRoutes)

			r.Route("/requerimientos", params.RequirementsHandler.MountRoutes)
			r.Route("/viajes", params.TripsHandler.MountRoutes)
			r.Route("/despachos", params.DispatchesHandler.MountRoutes)

			params.KardexHandler.MountRoutes(r, auth.RequireAdmin)

			r.Group(func(r chi.Router) {
				r.Use(auth.RequireAdmin)
				r.Route("/usuarios", params.UsersHandler.MountRoutes)
				r.Route("/auditoria", params.AuditHandler.MountRoutes)
			})

			if params.JobHandler != nil {
				r.Route("/jobs", params.JobHandler.MountRoutes)
			}
		})
	})

	return r
}

// writerGate lets read verbs through untouched and applies the writer role
// check to everything else.
func writerGate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
		default:
			auth.RequireWriter(next).ServeHTTP(w, r)
		}
	})
}
