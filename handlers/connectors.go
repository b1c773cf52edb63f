package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/revops/pipeline-monitor/app"
	"github.com/revops/pipeline-monitor/services/connectors"
	"github.com/revops/pipeline-monitor/utils"
)

// ConnectorsResponse lists every data source and its health.
type ConnectorsResponse struct {
	Connectors []connectors.Info `json:"connectors"`
	Healthy    int               `json:"healthy"`
	Total      int               `json:"total"`
}

// ConnectorsHandler returns every connector. force_check=true bypasses
// the cached health results.
func ConnectorsHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		force, err := queryBool(r, "force_check")
		if err != nil {
			HandleValidationError(w, err, deps.Logger)
			return
		}

		infos := deps.Connectors.List(r.Context(), force)
		resp := ConnectorsResponse{Connectors: infos, Total: len(infos)}
		for _, info := range infos {
			if info.Status == connectors.StatusHealthy || info.Status == connectors.StatusMock {
				resp.Healthy++
			}
		}
		if err := utils.WriteOK(w, resp); err != nil {
			deps.Logger.Error("failed to write connectors response", zap.Error(err))
		}
	}
}

// ConnectorHandler returns one connector by name.
func ConnectorHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		force, err := queryBool(r, "force_check")
		if err != nil {
			HandleValidationError(w, err, deps.Logger)
			return
		}

		info, err := deps.Connectors.Status(r.Context(), chi.URLParam(r, "name"), force)
		if err != nil {
			HandleServiceError(w, err, deps.Logger)
			return
		}
		if err := utils.WriteOK(w, info); err != nil {
			deps.Logger.Error("failed to write connector response", zap.Error(err))
		}
	}
}
