// Package api wires the gateway's HTTP surface: the query/conversation
// lifecycle, feedback submission, health, metrics, and a provider-status
// enrichment endpoint, all over go-chi routing and middleware.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/usorama/engg-context-gateway/conversation"
	"github.com/usorama/engg-context-gateway/health"
	"github.com/usorama/engg-context-gateway/internal/logging"
	"github.com/usorama/engg-context-gateway/orchestrator"
	"github.com/usorama/engg-context-gateway/store"
)

// ProviderStatus is one provider's reported health for the /providers
// enrichment endpoint.
type ProviderStatus struct {
	Name  string `json:"name"`
	State string `json:"state"`
}

// Deps bundles everything the router needs to construct handlers.
type Deps struct {
	Orchestrator *orchestrator.Orchestrator
	Conv         *conversation.Manager
	Repo         store.Repository
	Health       *health.Monitor
	Logger       logging.Logger

	// Providers, when non-nil, is polled for the /providers endpoint.
	Providers func() []ProviderStatus

	CORSOrigins []string
}

// NewRouter builds the gateway's chi.Router with the full route table.
func NewRouter(d Deps) chi.Router {
	if d.Logger == nil {
		d.Logger = logging.NoOp{}
	}
	logger := d.Logger.WithComponent("api")

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(requestLogger(logger))

	origins := d.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	h := &handlers{orch: d.Orchestrator, conv: d.Conv, repo: d.Repo, health: d.Health, providers: d.Providers, logger: logger}

	r.Route("/query", func(r chi.Router) {
		r.Post("/", h.handleQuery)
		r.Post("/continue", h.handleContinue)
		r.Get("/conversation/{id}", h.handleGetConversation)
		r.Delete("/conversation/{id}", h.handleDeleteConversation)
	})
	r.Post("/feedback", h.handleFeedback)
	r.Get("/health", h.handleHealth)
	r.Get("/providers", h.handleProviders)
	r.Handle("/metrics", promhttp.Handler())

	return r
}

func requestLogger(logger logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.InfoContext(r.Context(), "request handled", map[string]interface{}{
				"method": r.Method, "path": r.URL.Path,
				"status": ww.Status(), "duration_ms": time.Since(start).Milliseconds(),
			})
		})
	}
}
