// Package alerts posts human-in-the-loop escalations to a Slack webhook.
package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/revops/pipeline-monitor/services"
)

const (
	defaultTimeout = 10 * time.Second
	botUsername    = "Pipeline Health Monitor"
	botIcon        = ":robot_face:"

	// IdempotencyHeader carries the key of one alert delivery.
	IdempotencyHeader = "Idempotency-Key"
)

// Config configures the webhook.
type Config struct {
	WebhookURL string
	Channel    string
	Timeout    time.Duration
}

// Field is one attachment field.
type Field struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

// Attachment is a Slack message attachment.
type Attachment struct {
	Color  string  `json:"color"`
	Fields []Field `json:"fields"`
	Footer string  `json:"footer"`
	Ts     int64   `json:"ts"`
}

// Payload is the webhook request body.
type Payload struct {
	Username    string       `json:"username"`
	IconEmoji   string       `json:"icon_emoji"`
	Channel     string       `json:"channel,omitempty"`
	Text        string       `json:"text"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Alerter sends payloads to the webhook.
type Alerter struct {
	config     Config
	httpClient *http.Client
	logger     *zap.Logger
	now        func() time.Time
}

// NewAlerter creates an alerter. An empty webhook URL yields an alerter
// whose Send always fails with ErrAlertsNotConfigured.
func NewAlerter(config Config, logger *zap.Logger) *Alerter {
	if config.Timeout <= 0 {
		config.Timeout = defaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Alerter{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		logger:     logger,
		now:        time.Now,
	}
}

// Enabled reports whether a webhook is configured.
func (a *Alerter) Enabled() bool {
	return a != nil && a.config.WebhookURL != ""
}

// Send posts p once under a fresh idempotency key. Failed deliveries are
// not retried.
func (a *Alerter) Send(ctx context.Context, p Payload) error {
	if !a.Enabled() {
		return services.ErrAlertsNotConfigured
	}
	p.Username = botUsername
	p.IconEmoji = botIcon
	if a.config.Channel != "" {
		p.Channel = a.config.Channel
	}

	body, err := json.Marshal(p)
	if err != nil {
		return services.WrapInternal("marshal alert", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return services.WrapInternal("build alert request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(IdempotencyHeader, uuid.NewString())

	resp, err := a.httpClient.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return services.WrapError(services.ErrorTypeCancelled, "alert cancelled", err)
		}
		a.logger.Warn("alert delivery failed", zap.Error(err))
		return services.WrapTransport("alert delivery failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		a.logger.Warn("alert rejected",
			zap.Int("status", resp.StatusCode),
			zap.String("body", strings.TrimSpace(string(msg))),
		)
		return services.NewUpstreamError(resp.StatusCode, fmt.Sprintf("webhook returned %d", resp.StatusCode))
	}
	return nil
}

// SendBatch sends each payload and returns how many were delivered.
func (a *Alerter) SendBatch(ctx context.Context, payloads []Payload) int {
	sent := 0
	for _, p := range payloads {
		if ctx.Err() != nil {
			break
		}
		if err := a.Send(ctx, p); err == nil {
			sent++
		}
	}
	return sent
}
