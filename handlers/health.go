package handlers

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/revops/pipeline-monitor/app"
	"github.com/revops/pipeline-monitor/utils"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// HealthCheck returns a simple health check handler
func HealthCheck(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteOK(w, HealthResponse{
			Status:    "healthy",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// ReadinessCheck reports the state of every dependency. Only the session
// database can make the service unready; the views always have local data.
func ReadinessCheck(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		checks := map[string]string{}
		ready := true

		if deps.DB != nil {
			if err := deps.DB.HealthCheck(ctx); err != nil {
				deps.Logger.Error("database health check failed", zap.Error(err))
				checks["database"] = "unhealthy"
				ready = false
			} else {
				checks["database"] = "healthy"
			}
		}

		switch {
		case !deps.Config.Platform.Enabled:
			checks["platform"] = "disabled"
		case deps.Platform.Ready():
			checks["platform"] = "ready"
		default:
			checks["platform"] = "not_configured"
		}

		if deps.Monitor.DataSourceStatus().UsingFallback {
			checks["data_source"] = "fallback"
		} else {
			checks["data_source"] = "primary"
		}

		status, code := "healthy", http.StatusOK
		if !ready {
			status, code = "unhealthy", http.StatusServiceUnavailable
		}
		resp := HealthResponse{
			Status:    status,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Checks:    checks,
		}
		if err := utils.WriteJSON(w, code, utils.SuccessResponse{Data: resp}); err != nil {
			deps.Logger.Error("failed to write readiness response", zap.Error(err))
		}
	}
}
