package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/revops/pipeline-monitor/app"
	"github.com/revops/pipeline-monitor/services/adapters"
	"github.com/revops/pipeline-monitor/services/fallback"
	"github.com/revops/pipeline-monitor/services/fetcher"
	"github.com/revops/pipeline-monitor/utils"
)

// PlatformDiagnostics describes the primary source without exposing its token.
type PlatformDiagnostics struct {
	Enabled    bool   `json:"enabled"`
	Configured bool   `json:"configured"`
	Ready      bool   `json:"ready"`
	BaseURL    string `json:"base_url,omitempty"`
	TenantID   string `json:"tenant_id,omitempty"`
	AgentID    string `json:"agent_id,omitempty"`
	HasToken   bool   `json:"has_token"`
	TraceID    string `json:"trace_id,omitempty"`
}

// MonitorDiagnostics summarises the session log.
type MonitorDiagnostics struct {
	SessionID string          `json:"session_id"`
	Store     string          `json:"store"`
	Status    fallback.Status `json:"status"`
	Stats     fallback.Stats  `json:"stats"`
}

// DiagnosticsResponse is the operator view of the data-access layer.
type DiagnosticsResponse struct {
	Environment   string                             `json:"environment"`
	Platform      PlatformDiagnostics                `json:"platform"`
	Cache         fetcher.StoreStats                 `json:"cache"`
	Monitor       MonitorDiagnostics                 `json:"monitor"`
	FieldMappings map[string][]adapters.FieldMapping `json:"field_mappings"`
}

// DiagnosticsHandler reports platform readiness, cache and monitor state.
func DiagnosticsHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pc := deps.Platform.Config()
		resp := DiagnosticsResponse{
			Environment: deps.Config.Environment,
			Platform: PlatformDiagnostics{
				Enabled:    deps.Config.Platform.Enabled,
				Configured: pc.Configured(),
				Ready:      deps.Platform.Ready(),
				BaseURL:    pc.BaseURL,
				TenantID:   pc.TenantID,
				AgentID:    pc.AgentID,
				HasToken:   pc.JWT != "",
				TraceID:    deps.Platform.TraceID(),
			},
			Cache: deps.Cache.Stats(),
			Monitor: MonitorDiagnostics{
				SessionID: deps.Monitor.SessionID(),
				Store:     deps.Config.Monitor.Store,
				Status:    deps.Monitor.DataSourceStatus(),
				Stats:     deps.Monitor.Stats(),
			},
			FieldMappings: adapters.Mappings(),
		}
		if err := utils.WriteOK(w, resp); err != nil {
			deps.Logger.Error("failed to write diagnostics response", zap.Error(err))
		}
	}
}
