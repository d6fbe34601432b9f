package server

import (
	"net/http"

	"kageforge-hq/forge/pkg/telemetry/health"
	"kageforge-hq/forge/pkg/telemetry/tracing"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
)

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	// Recovery is outermost so panics in other middleware are caught.
	r.Use(s.recoveryMiddleware)
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(tracing.HTTPMiddleware)

	if s.config.CORS.Enabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.config.CORS.AllowedOrigins,
			AllowedMethods: s.config.CORS.AllowedMethods,
			AllowedHeaders: s.config.CORS.AllowedHeaders,
			ExposedHeaders: []string{RequestIDHeader, ProviderHeader, CacheHeader},
			MaxAge:         s.config.CORS.MaxAge,
		}))
	}

	r.Get("/health", s.deps.Health.LivenessHandler())
	r.Get("/health/ready", s.deps.Health.ReadinessHandler())
	r.Get("/version", health.VersionHandler(s.deps.Version, s.deps.Commit, s.deps.BuildTime))
	if s.deps.Metrics != nil {
		r.Handle(s.deps.MetricsPath, s.deps.Metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Post("/chat/completions", s.handleChatCompletions)
		r.Get("/usage", s.handleUsage)
		r.Get("/budget", s.handleBudget)
		r.Get("/cache/stats", s.handleCacheStats)
		r.Delete("/cache", s.handleCachePurge)
		r.Get("/providers", s.handleProviders)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, ErrorDetail{
			Message: "route not found: " + r.URL.Path,
			Type:    ErrorTypeNotFound,
		})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, ErrorDetail{
			Message: r.Method + " not allowed on " + r.URL.Path,
			Type:    ErrorTypeInvalidRequest,
		})
	})

	return r
}
