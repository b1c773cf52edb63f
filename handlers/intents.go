package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/revops/pipeline-monitor/app"
	"github.com/revops/pipeline-monitor/services/platform"
	"github.com/revops/pipeline-monitor/utils"
)

// IntentRequest is a write-side action to forward to the platform.
type IntentRequest struct {
	Action  string         `json:"action" validate:"required,max=100"`
	Target  string         `json:"target" validate:"max=200"`
	Payload map[string]any `json:"payload"`
}

// IntentResponse is the platform acknowledgement.
type IntentResponse struct {
	ID             string `json:"id,omitempty"`
	Status         string `json:"status,omitempty"`
	IdempotencyKey string `json:"idempotency_key"`
	TraceID        string `json:"trace_id,omitempty"`
}

// IntentHandler forwards one intent to the platform. A caller retrying the
// same action must resend the Idempotency-Key it used first; without one a
// fresh key is generated. Intents are never served from local data.
func IntentHandler(deps *app.Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req IntentRequest
		if err := decodeJSON(r, &req); err != nil {
			HandleValidationError(w, err, deps.Logger)
			return
		}
		if err := utils.ValidateStruct(&req); err != nil {
			HandleValidationError(w, err, deps.Logger)
			return
		}

		result, err := deps.Platform.SendIntent(r.Context(), platform.Intent{
			Action:  req.Action,
			Target:  req.Target,
			Payload: req.Payload,
		}, r.Header.Get(platform.IdempotencyHeader))
		if err != nil {
			HandleServiceError(w, err, deps.Logger)
			return
		}

		deps.Logger.Info("intent accepted",
			zap.String("action", req.Action),
			zap.String("idempotency_key", result.IdempotencyKey),
		)
		resp := IntentResponse{
			ID:             result.ID,
			Status:         result.Status,
			IdempotencyKey: result.IdempotencyKey,
			TraceID:        result.TraceID,
		}
		if err := utils.WriteAccepted(w, resp); err != nil {
			deps.Logger.Error("failed to write intent response", zap.Error(err))
		}
	}
}
