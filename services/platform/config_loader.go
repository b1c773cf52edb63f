package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/revops/pipeline-monitor/services"
	"github.com/revops/pipeline-monitor/services/fetcher"
)

// ConfigPath is where a dashboard backend publishes platform credentials.
const ConfigPath = "/api/platform/config"

// RemoteConfig is the credential document served at ConfigPath.
type RemoteConfig struct {
	BaseURL  string `json:"baseUrl"`
	TenantID string `json:"tenantId"`
	AgentID  string `json:"agentId"`
	JWT      string `json:"jwt,omitempty"`
}

// Config converts the document into client settings.
func (r RemoteConfig) Config() Config {
	return Config{BaseURL: r.BaseURL, TenantID: r.TenantID, AgentID: r.AgentID, JWT: r.JWT}
}

// ConfigLoader fetches platform credentials from a dashboard backend,
// cached and retried through a fetcher subscriber.
type ConfigLoader struct {
	endpoint   string
	httpClient *http.Client
	sub        *fetcher.Subscriber[RemoteConfig]
}

// NewConfigLoader creates a loader for the backend at backendURL.
func NewConfigLoader(backendURL string, store fetcher.Store, opts fetcher.Options, logger *zap.Logger) (*ConfigLoader, error) {
	if backendURL == "" {
		return nil, fmt.Errorf("platform: backend URL is required")
	}
	l := &ConfigLoader{
		endpoint:   strings.TrimRight(backendURL, "/") + ConfigPath,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	if opts.CacheKey == "" {
		opts.CacheKey = "GET " + l.endpoint
	}
	sub, err := fetcher.NewSubscriber(store, l.fetch, opts, logger)
	if err != nil {
		return nil, err
	}
	l.sub = sub
	return l, nil
}

// Load returns the credentials, from cache when fresh.
func (l *ConfigLoader) Load(ctx context.Context) (Config, error) {
	return l.result(l.sub.Fetch(ctx))
}

// Reload bypasses the cache.
func (l *ConfigLoader) Reload(ctx context.Context) (Config, error) {
	return l.result(l.sub.Refetch(ctx))
}

// Close stops background refreshes.
func (l *ConfigLoader) Close() {
	l.sub.Close()
}

func (l *ConfigLoader) result(st fetcher.State[RemoteConfig]) (Config, error) {
	if st.Error != "" {
		return Config{}, services.NewDomainError(services.ErrorTypeUnavailable, st.Error, nil)
	}
	if !st.HasData {
		return Config{}, services.ErrPlatformConfig
	}
	return st.Data.Config(), nil
}

func (l *ConfigLoader) fetch(ctx context.Context) (RemoteConfig, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.endpoint, nil)
	if err != nil {
		return RemoteConfig{}, services.WrapInternal("build config request", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := l.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return RemoteConfig{}, services.WrapError(services.ErrorTypeCancelled, "config request cancelled", err)
		}
		return RemoteConfig{}, services.WrapTransport("config request failed", err)
	}
	defer resp.Body.Close()

	// 503 means the backend has no credentials; retrying will not help.
	if resp.StatusCode == http.StatusServiceUnavailable {
		return RemoteConfig{}, services.NewDomainError(services.ErrorTypeUnavailable, "platform configuration not available", nil)
	}
	if resp.StatusCode != http.StatusOK {
		return RemoteConfig{}, services.NewUpstreamError(resp.StatusCode, fmt.Sprintf("config endpoint returned %d", resp.StatusCode))
	}

	var cfg RemoteConfig
	if err := json.NewDecoder(resp.Body).Decode(&cfg); err != nil {
		return RemoteConfig{}, services.NewDomainError(services.ErrorTypeValidation, "decode platform config", err)
	}
	return cfg, nil
}
