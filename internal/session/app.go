package session

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"Storefront/pkg/kit"
)

type HTTPDeps struct {
	Log      *zap.Logger
	Service  string
	Registry *prometheus.Registry

	MetricsEnabled bool
	MetricsToken   string

	CORSOrigins []string
	// CreateLimitPerMin caps session creation per client address; zero disables it.
	CreateLimitPerMin int
}

const limitWindow = 60 * time.Second

func NewHandler(s *Server, deps HTTPDeps) http.Handler {
	r := chi.NewRouter()

	setupMiddleware(r, deps)
	setupMetrics(r, deps)
	setupRoutes(r, s, deps)

	return r
}

func setupMiddleware(r *chi.Mux, deps HTTPDeps) {
	r.Use(chimw.RequestID)
	r.Use(kit.Recoverer)
	r.Use(kit.Logging(deps.Log))

	if len(deps.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: deps.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
			MaxAge:         300,
		}))
	}
}

func setupMetrics(r *chi.Mux, deps HTTPDeps) {
	if deps.Registry == nil {
		return
	}

	metrics := kit.NewMetrics(deps.Registry)
	r.Use(metrics.Middleware(deps.Service, kit.ChiRoutePatternOrPath))

	if !deps.MetricsEnabled {
		return
	}

	r.With(kit.MetricsAuth(deps.MetricsToken)).
		Handle("/metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))
}

func setupRoutes(r *chi.Mux, s *Server, deps HTTPDeps) {
	createLimiter := kit.NewIPRateLimiter(deps.CreateLimitPerMin, limitWindow)

	r.Get("/healthz", healthz)
	r.Get("/readyz", s.handleReady)

	r.With(createLimiter.Middleware).Post("/sessions", s.handleCreate)

	r.Group(func(pr chi.Router) {
		pr.Use(s.RequireSession)

		pr.Get("/products", s.handleList)
		pr.Post("/products/{id}/increase", s.handleQuantity(opIncrease))
		pr.Post("/products/{id}/decrease", s.handleQuantity(opDecrease))
		pr.Post("/products/{id}/reset", s.handleQuantity(opReset))

		pr.Get("/last-sale", s.handleGetLastSale)
		pr.Put("/last-sale", s.handlePutLastSale)

		pr.Get("/events", s.handleEvents)
		pr.Delete("/session", s.handleClose)
	})
}

func healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}
