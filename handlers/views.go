package handlers

import (
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/revops/pipeline-monitor/app"
	"github.com/revops/pipeline-monitor/services"
	"github.com/revops/pipeline-monitor/services/adapters"
	"github.com/revops/pipeline-monitor/services/fallback"
	"github.com/revops/pipeline-monitor/utils"
)

// PipelineHealthHandler serves one page of the pipeline health view.
func PipelineHealthHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, err := parsePageQuery(r)
		if err != nil {
			HandleValidationError(w, err, deps.Logger)
			return
		}
		result := deps.Orchestrator.PipelineHealth(r.Context(), q.Params(adapters.FilterStalled))
		writeView(w, r, deps, result, result.Source)
	}
}

// CRMIntegrityHandler serves one page of the CRM integrity view.
func CRMIntegrityHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, err := parsePageQuery(r)
		if err != nil {
			HandleValidationError(w, err, deps.Logger)
			return
		}
		result := deps.Orchestrator.CRMIntegrity(r.Context(), q.Params(adapters.FilterRiskLevel))
		writeView(w, r, deps, result, result.Source)
	}
}

// OverviewResponse is the first page of both views together with the
// data-source status that resulted from loading them.
type OverviewResponse struct {
	PipelineHealth fallback.Result[adapters.Opportunity] `json:"pipeline_health"`
	CRMIntegrity   fallback.Result[adapters.Validation]  `json:"crm_integrity"`
	Status         fallback.Status                       `json:"status"`
}

// OverviewHandler loads both views concurrently.
func OverviewHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, err := parsePageQuery(r)
		if err != nil {
			HandleValidationError(w, err, deps.Logger)
			return
		}
		// A cursor belongs to a single view.
		q.Cursor = ""
		pipelineParams := q.Params(adapters.FilterStalled)
		crmParams := q.Params(adapters.FilterRiskLevel)

		var resp OverviewResponse
		g, ctx := errgroup.WithContext(r.Context())
		g.Go(func() error {
			resp.PipelineHealth = deps.Orchestrator.PipelineHealth(ctx, pipelineParams)
			return ctx.Err()
		})
		g.Go(func() error {
			resp.CRMIntegrity = deps.Orchestrator.CRMIntegrity(ctx, crmParams)
			return ctx.Err()
		})
		if err := g.Wait(); err != nil {
			HandleServiceError(w, cancelled(err), deps.Logger)
			return
		}
		resp.Status = deps.Monitor.DataSourceStatus()

		if err := utils.WriteOK(w, resp); err != nil {
			deps.Logger.Error("failed to write overview response", zap.Error(err))
		}
	}
}

func writeView(w http.ResponseWriter, r *http.Request, deps *app.Dependencies, result interface{}, source fallback.Source) {
	if err := r.Context().Err(); err != nil {
		HandleServiceError(w, cancelled(err), deps.Logger)
		return
	}
	w.Header().Set("X-Data-Source", string(source))
	if err := utils.WriteOK(w, result); err != nil {
		deps.Logger.Error("failed to write view response", zap.Error(err))
	}
}

func cancelled(err error) error {
	return services.WrapError(services.ErrorTypeCancelled, "request cancelled", err)
}
