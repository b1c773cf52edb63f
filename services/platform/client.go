// Package platform is the client for the remote analytics platform, the
// primary source of dashboard views.
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/santhosh-tekuri/jsonschema/v6"
	"go.uber.org/zap"

	"github.com/revops/pipeline-monitor/services"
	"github.com/revops/pipeline-monitor/services/adapters"
)

const (
	// TraceHeader carries the platform trace id on every response.
	TraceHeader = "X-Trace-Id"

	defaultTimeout = 15 * time.Second
	maxErrorBody   = 512
)

// Config holds the platform connection settings.
type Config struct {
	BaseURL  string
	TenantID string
	AgentID  string
	JWT      string
	Timeout  time.Duration
}

// ViewRequest asks the platform for one page of a view.
type ViewRequest struct {
	Entity   string         `json:"-"`
	Filters  map[string]any `json:"filters"`
	Fields   []string       `json:"fields,omitempty"`
	Page     int            `json:"page"`
	PageSize int            `json:"pageSize"`
}

// ViewResponse is one page of raw view records.
type ViewResponse struct {
	Data     []adapters.Record
	Total    int
	Page     int
	PageSize int
	Metadata map[string]any
	TraceID  string
}

// Configured reports whether base URL, tenant and agent are all set.
func (c Config) Configured() bool {
	return c.BaseURL != "" && c.TenantID != "" && c.AgentID != ""
}

// Client talks to the platform views API.
type Client struct {
	config     Config
	httpClient *http.Client
	schema     *jsonschema.Schema
	logger     *zap.Logger
	now        func() time.Time

	mu      sync.RWMutex
	traceID string
}

// NewClient creates a platform client. A zero Config yields a client that
// reports not ready.
func NewClient(config Config, logger *zap.Logger) (*Client, error) {
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if logger == nil {
		logger = zap.NewNop()
	}

	schema, err := compileEnvelopeSchema()
	if err != nil {
		return nil, fmt.Errorf("compile view envelope schema: %w", err)
	}

	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		schema:     schema,
		logger:     logger,
		now:        time.Now,
	}, nil
}

// Ready reports whether the client has everything it needs to call the
// platform. A token that is present must parse and must not be expired.
func (c *Client) Ready() bool {
	if c == nil || !c.config.Configured() {
		return false
	}
	if c.config.JWT == "" {
		return true
	}

	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(c.config.JWT, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return false
	}
	return exp == nil || c.now().Before(exp.Time)
}

// Config returns the settings the client was built with, which may come
// from the dashboard backend rather than the environment.
func (c *Client) Config() Config {
	if c == nil {
		return Config{}
	}
	return c.config
}

// TraceID returns the trace id of the most recent response that carried one.
func (c *Client) TraceID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.traceID
}

// GetView fetches one page of a view. Non-2xx responses become upstream
// errors, failures without a response become transport errors, and bodies
// that break the envelope contract become validation errors.
func (c *Client) GetView(ctx context.Context, req ViewRequest) (*ViewResponse, error) {
	if !c.Ready() {
		return nil, services.ErrPlatformNotReady
	}
	if req.Entity == "" {
		return nil, services.NewDomainError(services.ErrorTypeValidation, "view entity is required", nil)
	}
	if req.Filters == nil {
		req.Filters = map[string]any{}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, services.WrapInternal("marshal view request", err)
	}

	endpoint := c.config.BaseURL + "/api/v1/views/" + url.PathEscape(req.Entity)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, services.WrapInternal("build view request", err)
	}
	c.setHeaders(httpReq)

	respBody, err := c.do(ctx, httpReq)
	if err != nil {
		return nil, err
	}

	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(respBody))
	if err != nil {
		return nil, services.NewDomainError(services.ErrorTypeValidation, "view response is not valid JSON", err)
	}
	if err := c.schema.Validate(inst); err != nil {
		return nil, services.NewDomainError(services.ErrorTypeValidation, "view response does not match the view contract", err).
			WithDetail("entity", req.Entity)
	}

	var raw struct {
		Data      []adapters.Record `json:"data"`
		Total     int               `json:"total"`
		Page      int               `json:"page"`
		PageSize  int               `json:"pageSize"`
		PageSnake int               `json:"page_size"`
		Metadata  map[string]any    `json:"metadata"`
	}
	if err := json.Unmarshal(respBody, &raw); err != nil {
		return nil, services.NewDomainError(services.ErrorTypeValidation, "decode view response", err)
	}

	out := &ViewResponse{
		Data:     raw.Data,
		Total:    raw.Total,
		Page:     raw.Page,
		PageSize: raw.PageSize,
		Metadata: raw.Metadata,
		TraceID:  c.TraceID(),
	}
	if out.PageSize == 0 {
		out.PageSize = raw.PageSnake
	}
	if out.Data == nil {
		out.Data = []adapters.Record{}
	}
	return out, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.config.JWT != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.JWT)
	}
	req.Header.Set("X-Tenant-ID", c.config.TenantID)
	req.Header.Set("X-Agent-ID", c.config.AgentID)
}

// do executes one attempt and returns the body of a 2xx response.
func (c *Client) do(ctx context.Context, req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, services.WrapError(services.ErrorTypeCancelled, "platform request cancelled", err)
		}
		return nil, services.WrapTransport("platform request failed", err)
	}
	defer resp.Body.Close()

	c.recordTrace(resp.Header.Get(TraceHeader))

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, services.WrapTransport("read platform response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := strings.TrimSpace(string(respBody))
		if len(msg) > maxErrorBody {
			msg = msg[:maxErrorBody]
		}
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		c.logger.Debug("platform returned error status",
			zap.String("url", req.URL.Path),
			zap.Int("status", resp.StatusCode),
		)
		return nil, services.NewUpstreamError(resp.StatusCode, fmt.Sprintf("platform returned %d: %s", resp.StatusCode, msg))
	}
	return respBody, nil
}

func (c *Client) recordTrace(id string) {
	if id == "" {
		return
	}
	c.mu.Lock()
	c.traceID = id
	c.mu.Unlock()
}
