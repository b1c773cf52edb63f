package alerts

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/revops/pipeline-monitor/services"
	"github.com/revops/pipeline-monitor/services/adapters"
	"github.com/revops/pipeline-monitor/services/workflows"
)

type webhook struct {
	mu       sync.Mutex
	status   []int
	payloads []Payload
	keys     []string
}

func (w *webhook) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	w.mu.Lock()
	defer w.mu.Unlock()

	var p Payload
	_ = json.NewDecoder(r.Body).Decode(&p)
	w.payloads = append(w.payloads, p)
	w.keys = append(w.keys, r.Header.Get(IdempotencyHeader))

	status := http.StatusOK
	if len(w.status) > 0 {
		status = w.status[0]
		w.status = w.status[1:]
	}
	rw.WriteHeader(status)
}

func newTestAlerter(t *testing.T, hook *webhook) *Alerter {
	t.Helper()
	srv := httptest.NewServer(hook)
	t.Cleanup(srv.Close)
	a := NewAlerter(Config{WebhookURL: srv.URL, Channel: "#revops"}, nil)
	a.now = func() time.Time { return time.Unix(1767225600, 0) }
	return a
}

func TestAlerter_Send(t *testing.T) {
	ctx := context.Background()

	t.Run("delivers once with identity", func(t *testing.T) {
		hook := &webhook{}
		a := newTestAlerter(t, hook)

		require.NoError(t, a.Send(ctx, Payload{Text: "hello"}))
		require.Len(t, hook.payloads, 1)
		assert.Equal(t, Payload{Username: "Pipeline Health Monitor", IconEmoji: ":robot_face:", Channel: "#revops", Text: "hello"}, hook.payloads[0])
		assert.NotEmpty(t, hook.keys[0])
	})

	t.Run("non-200 is not retried", func(t *testing.T) {
		hook := &webhook{status: []int{http.StatusInternalServerError}}
		a := newTestAlerter(t, hook)

		err := a.Send(ctx, Payload{Text: "hello"})
		require.Error(t, err)
		assert.True(t, services.IsUpstreamError(err))
		assert.Equal(t, http.StatusInternalServerError, services.StatusCode(err))
		assert.Len(t, hook.payloads, 1)
	})

	t.Run("accepted but not 200", func(t *testing.T) {
		hook := &webhook{status: []int{http.StatusAccepted}}
		a := newTestAlerter(t, hook)
		assert.Error(t, a.Send(ctx, Payload{Text: "hello"}))
	})

	t.Run("not configured", func(t *testing.T) {
		a := NewAlerter(Config{}, nil)
		assert.False(t, a.Enabled())
		assert.ErrorIs(t, a.Send(ctx, Payload{}), services.ErrAlertsNotConfigured)
	})

	t.Run("unreachable webhook", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		a := NewAlerter(Config{WebhookURL: url, Timeout: time.Second}, nil)
		err := a.Send(ctx, Payload{Text: "hello"})
		assert.True(t, services.IsTransportError(err))
	})
}

func TestAlerter_SendBatch(t *testing.T) {
	hook := &webhook{status: []int{http.StatusOK, http.StatusBadGateway, http.StatusOK}}
	a := newTestAlerter(t, hook)

	sent := a.SendBatch(context.Background(), []Payload{{Text: "a"}, {Text: "b"}, {Text: "c"}})
	assert.Equal(t, 2, sent)
	require.Len(t, hook.keys, 3)
	assert.NotEqual(t, hook.keys[0], hook.keys[2])
}

func TestAlerter_BANTViolation(t *testing.T) {
	a := NewAlerter(Config{}, nil)
	a.now = func() time.Time { return time.Unix(1767225600, 0) }

	p := a.BANTViolation(workflows.Escalation{
		Type:            "BANT_VIOLATION",
		OpportunityName: "Globex",
		Stage:           "Negotiation/Review",
		Issues:          []string{"Budget: low", "Timeline: Close date is in the past"},
		ActionRequired:  workflows.EscalationAction,
	})

	assert.Equal(t, "🚨 *CRM Integrity Alert: BANT Violation Detected*", p.Text)
	require.Len(t, p.Attachments, 1)
	att := p.Attachments[0]
	assert.Equal(t, "danger", att.Color)
	assert.Equal(t, int64(1767225600), att.Ts)
	assert.Equal(t, []Field{
		{Title: "Opportunity", Value: "Globex", Short: true},
		{Title: "Stage", Value: "Negotiation/Review", Short: true},
		{Title: "Issues Found", Value: "• Budget: low\n• Timeline: Close date is in the past"},
		{Title: "Action Required", Value: workflows.EscalationAction},
	}, att.Fields)
}

func TestAlerter_PipelineRisk(t *testing.T) {
	a := NewAlerter(Config{}, nil)
	login := 21

	high := a.PipelineRisk(adapters.Opportunity{
		Name: "Acme", AccountName: "Acme Corp", RiskScore: 81.75, HealthScore: 38,
		Amount: 120000, LastLoginDays: &login,
	}, workflows.RecommendUrgent)
	assert.Equal(t, "🔴 HIGH *Pipeline Risk Alert*", high.Text)
	fields := high.Attachments[0].Fields
	assert.Equal(t, "warning", high.Attachments[0].Color)
	assert.Equal(t, "81.8/100", fields[2].Value)
	assert.Equal(t, "38/100", fields[3].Value)
	assert.Equal(t, "21 days ago", fields[4].Value)
	assert.Equal(t, "$120,000", fields[5].Value)
	assert.Equal(t, workflows.RecommendUrgent, fields[6].Value)

	medium := a.PipelineRisk(adapters.Opportunity{RiskScore: 70}, "")
	assert.Equal(t, "🟡 MEDIUM *Pipeline Risk Alert*", medium.Text)
	assert.Equal(t, "good", medium.Attachments[0].Color)
	assert.Equal(t, "Unknown", medium.Attachments[0].Fields[0].Value)
	assert.Equal(t, "N/A days ago", medium.Attachments[0].Fields[4].Value)
	assert.Equal(t, "Review required", medium.Attachments[0].Fields[6].Value)
}
