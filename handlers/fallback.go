package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/revops/pipeline-monitor/app"
	"github.com/revops/pipeline-monitor/services"
	"github.com/revops/pipeline-monitor/services/fallback"
	"github.com/revops/pipeline-monitor/utils"
)

// FallbackStatusResponse is the data-source banner state.
type FallbackStatusResponse struct {
	fallback.Status
	SessionID          string `json:"session_id"`
	RepeatedFailures   bool   `json:"repeated_failures"`
	PrimaryEnabled     bool   `json:"primary_enabled"`
	PrimaryClientReady bool   `json:"primary_client_ready"`
}

// FallbackStatusHandler returns the current data-source status.
func FallbackStatusHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := FallbackStatusResponse{
			Status:             deps.Monitor.DataSourceStatus(),
			SessionID:          deps.Monitor.SessionID(),
			RepeatedFailures:   deps.Monitor.HasRepeatedFailures(),
			PrimaryEnabled:     deps.Config.Platform.Enabled,
			PrimaryClientReady: deps.Platform.Ready(),
		}
		if err := utils.WriteOK(w, resp); err != nil {
			deps.Logger.Error("failed to write fallback status response", zap.Error(err))
		}
	}
}

// FallbackStatsHandler returns aggregates over the session log.
func FallbackStatsHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := utils.WriteOK(w, deps.Monitor.Stats()); err != nil {
			deps.Logger.Error("failed to write fallback stats response", zap.Error(err))
		}
	}
}

// FallbackEventsHandler returns the session log, oldest first.
func FallbackEventsHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := utils.WriteOK(w, deps.Monitor.Events()); err != nil {
			deps.Logger.Error("failed to write fallback events response", zap.Error(err))
		}
	}
}

// ClearFallbackEventsHandler empties the session log and its persisted copy.
func ClearFallbackEventsHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Monitor.Clear(r.Context()); err != nil {
			HandleServiceError(w, services.WrapInternal("clear fallback log", err), deps.Logger)
			return
		}
		deps.Logger.Info("fallback log cleared", zap.String("session_id", deps.Monitor.SessionID()))
		utils.WriteNoContent(w)
	}
}
