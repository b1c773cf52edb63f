package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/revops/pipeline-monitor/services"
)

// IdempotencyHeader carries the key of a write-side intent.
const IdempotencyHeader = "Idempotency-Key"

// Intent is a write-side action requested through the platform.
type Intent struct {
	Action  string         `json:"action"`
	Target  string         `json:"target,omitempty"`
	Payload map[string]any `json:"payload,omitempty"`
}

// IntentResult is the platform acknowledgement of an intent.
type IntentResult struct {
	ID             string `json:"id,omitempty"`
	Status         string `json:"status,omitempty"`
	IdempotencyKey string `json:"-"`
	TraceID        string `json:"-"`
}

// NewIdempotencyKey returns a fresh key for one logical user action.
func NewIdempotencyKey() string {
	return uuid.NewString()
}

// SendIntent posts an intent exactly once. It is never retried here;
// callers that retry must reuse the same key.
func (c *Client) SendIntent(ctx context.Context, intent Intent, idempotencyKey string) (*IntentResult, error) {
	if !c.Ready() {
		return nil, services.ErrPlatformNotReady
	}
	if intent.Action == "" {
		return nil, services.NewDomainError(services.ErrorTypeValidation, "intent action is required", nil)
	}
	if idempotencyKey == "" {
		idempotencyKey = NewIdempotencyKey()
	}

	body, err := json.Marshal(intent)
	if err != nil {
		return nil, services.WrapInternal("marshal intent", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/api/v1/intents", bytes.NewReader(body))
	if err != nil {
		return nil, services.WrapInternal("build intent request", err)
	}
	c.setHeaders(req)
	req.Header.Set(IdempotencyHeader, idempotencyKey)

	respBody, err := c.do(ctx, req)
	if err != nil {
		c.logger.Warn("intent failed",
			zap.String("action", intent.Action),
			zap.String("idempotency_key", idempotencyKey),
			zap.Error(err),
		)
		return nil, err
	}

	result := &IntentResult{}
	if len(bytes.TrimSpace(respBody)) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return nil, services.NewDomainError(services.ErrorTypeValidation, "decode intent response", err)
		}
	}
	result.IdempotencyKey = idempotencyKey
	result.TraceID = c.TraceID()
	return result, nil
}
