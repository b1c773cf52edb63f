package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/revops/pipeline-monitor/app"
	"github.com/revops/pipeline-monitor/services/platform"
	"github.com/revops/pipeline-monitor/utils"
)

const platformConfigUnavailable = "Platform configuration not available - credentials not configured in backend"

// PlatformConfigHandler publishes the platform credentials to dashboard
// clients. The document is written bare so platform.ConfigLoader can read it.
func PlatformConfigHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pc := deps.Config.Platform
		if !pc.Configured() {
			deps.Logger.Warn("platform config requested but credentials are not configured")
			if err := utils.WriteServiceUnavailable(w, platformConfigUnavailable); err != nil {
				deps.Logger.Error("failed to write service unavailable response", zap.Error(err))
			}
			return
		}

		doc := platform.RemoteConfig{
			BaseURL:  pc.BaseURL,
			TenantID: pc.TenantID,
			AgentID:  pc.AgentID,
			JWT:      pc.JWT,
		}
		if err := utils.WriteJSON(w, http.StatusOK, doc); err != nil {
			deps.Logger.Error("failed to write platform config response", zap.Error(err))
		}
	}
}
