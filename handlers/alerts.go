package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/revops/pipeline-monitor/app"
	"github.com/revops/pipeline-monitor/services"
	"github.com/revops/pipeline-monitor/services/alerts"
	"github.com/revops/pipeline-monitor/services/workflows"
	"github.com/revops/pipeline-monitor/utils"
)

// AlertRequest controls one alert run. A zero Limit sends every candidate.
type AlertRequest struct {
	DryRun bool `json:"dry_run"`
	Limit  int  `json:"limit" validate:"gte=0,lte=50"`
}

// AlertResponse reports what was found and delivered.
type AlertResponse struct {
	DryRun     bool        `json:"dry_run"`
	Candidates int         `json:"candidates"`
	Attempted  int         `json:"attempted"`
	Sent       int         `json:"sent"`
	Items      interface{} `json:"items"`
}

// EscalationAlertsHandler sends one Slack alert per HIGH risk BANT result.
func EscalationAlertsHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := readAlertRequest(w, r, deps)
		if !ok {
			return
		}

		items := workflows.EscalationItems(deps.Local.BANTResults())
		payloads := make([]alerts.Payload, 0, len(items))
		for _, e := range items {
			payloads = append(payloads, deps.Alerter.BANTViolation(e))
		}
		sendAlerts(w, r, deps, req, items, payloads)
	}
}

// PipelineRiskAlertsHandler sends one Slack alert per stalled opportunity.
func PipelineRiskAlertsHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := readAlertRequest(w, r, deps)
		if !ok {
			return
		}

		type riskItem struct {
			OpportunityID  string  `json:"opportunity_id"`
			Name           string  `json:"name"`
			RiskScore      float64 `json:"risk_score"`
			Recommendation string  `json:"recommendation"`
		}
		items := []riskItem{}
		payloads := []alerts.Payload{}
		for _, o := range deps.Local.Opportunities() {
			if !o.IsStalled {
				continue
			}
			rec := workflows.Recommendation(o.IsStalled, o.RiskScore, o.HealthScore)
			items = append(items, riskItem{OpportunityID: o.ID, Name: o.Name, RiskScore: o.RiskScore, Recommendation: rec})
			payloads = append(payloads, deps.Alerter.PipelineRisk(o, rec))
		}
		sendAlerts(w, r, deps, req, items, payloads)
	}
}

func readAlertRequest(w http.ResponseWriter, r *http.Request, deps *app.Dependencies) (AlertRequest, bool) {
	var req AlertRequest
	if err := decodeJSON(r, &req); err != nil {
		HandleValidationError(w, err, deps.Logger)
		return req, false
	}
	if err := utils.ValidateStruct(&req); err != nil {
		HandleValidationError(w, err, deps.Logger)
		return req, false
	}
	if !req.DryRun && !deps.Alerter.Enabled() {
		HandleServiceError(w, services.ErrAlertsNotConfigured, deps.Logger)
		return req, false
	}
	return req, true
}

func sendAlerts(w http.ResponseWriter, r *http.Request, deps *app.Dependencies, req AlertRequest, items interface{}, payloads []alerts.Payload) {
	resp := AlertResponse{DryRun: req.DryRun, Candidates: len(payloads), Items: items}

	batch := payloads
	if req.Limit > 0 && len(batch) > req.Limit {
		batch = batch[:req.Limit]
	}
	if !req.DryRun {
		resp.Attempted = len(batch)
		resp.Sent = deps.Alerter.SendBatch(r.Context(), batch)
		deps.Logger.Info("alerts sent",
			zap.Int("attempted", resp.Attempted),
			zap.Int("sent", resp.Sent),
		)
	}

	if err := utils.WriteOK(w, resp); err != nil {
		deps.Logger.Error("failed to write alerts response", zap.Error(err))
	}
}
