package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/revops/pipeline-monitor/app"
	"github.com/revops/pipeline-monitor/handlers"
	"github.com/revops/pipeline-monitor/services/platform"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(deps.Logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Config.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", "X-Tenant-ID", "X-Agent-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "X-Data-Source"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", handlers.HealthCheck(deps))
	r.Get("/readyz", handlers.ReadinessCheck(deps))

	r.Get(platform.ConfigPath, handlers.PlatformConfigHandler(deps))

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/views", func(r chi.Router) {
			r.Get("/pipeline-health", handlers.PipelineHealthHandler(deps))
			r.Get("/crm-integrity", handlers.CRMIntegrityHandler(deps))
			r.Get("/overview", handlers.OverviewHandler(deps))
		})

		r.Route("/fallback", func(r chi.Router) {
			r.Get("/status", handlers.FallbackStatusHandler(deps))
			r.Get("/stats", handlers.FallbackStatsHandler(deps))
			r.Get("/events", handlers.FallbackEventsHandler(deps))
			r.Delete("/events", handlers.ClearFallbackEventsHandler(deps))
		})

		r.Get("/diagnostics", handlers.DiagnosticsHandler(deps))
		r.Get("/connectors", handlers.ConnectorsHandler(deps))
		r.Get("/connectors/{name}", handlers.ConnectorHandler(deps))
		r.Post("/intents", handlers.IntentHandler(deps))

		r.Route("/alerts", func(r chi.Router) {
			r.Post("/escalations", handlers.EscalationAlertsHandler(deps))
			r.Post("/pipeline-risk", handlers.PipelineRiskAlertsHandler(deps))
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"endpoint not found"}`))
	})

	return r
}

// requestLogger logs one line per request through zap.
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
