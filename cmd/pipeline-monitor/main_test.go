package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/revops/pipeline-monitor/app"
	"github.com/revops/pipeline-monitor/config"
	"github.com/revops/pipeline-monitor/services/adapters"
	"github.com/revops/pipeline-monitor/services/connectors"
	"github.com/revops/pipeline-monitor/services/fallback"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Environment: "test",
		Server:      config.ServerConfig{Host: "127.0.0.1", Port: 8000, ShutdownTimeout: 5 * time.Second},
		Platform:    config.PlatformConfig{Enabled: true},
		Fetch:       config.FetchConfig{CacheTTL: time.Minute, CacheSize: 8, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond},
		Monitor:     config.MonitorConfig{Capacity: 10, Window: time.Minute, Threshold: 3, Store: config.StoreMemory},
	}
}

func newDeps(t *testing.T, c *config.Config) *app.Dependencies {
	t.Helper()
	deps, err := app.NewDependencies(context.Background(), c, zap.NewNop())
	require.NoError(t, err)
	return deps
}

func TestRunView(t *testing.T) {
	ctx := context.Background()

	t.Run("pipeline health second page", func(t *testing.T) {
		deps := newDeps(t, testConfig(t))
		defer deps.Close(ctx)

		var out bytes.Buffer
		require.NoError(t, runView(ctx, &out, deps, viewPipelineHealth, 2, 25, nil))

		var got struct {
			View string `json:"view"`
			Page struct {
				Data       []adapters.Opportunity `json:"data"`
				Page       int                    `json:"page"`
				TotalPages int                    `json:"total_pages"`
				HasMore    bool                   `json:"has_more"`
			} `json:"page"`
			Status fallback.Status `json:"status"`
		}
		require.NoError(t, json.Unmarshal(out.Bytes(), &got))
		assert.Equal(t, viewPipelineHealth, got.View)
		assert.Equal(t, 2, got.Page.Page)
		assert.Equal(t, 3, got.Page.TotalPages)
		assert.Len(t, got.Page.Data, 25)
		assert.True(t, got.Page.HasMore)
		assert.True(t, got.Status.UsingFallback)
	})

	t.Run("crm integrity first page", func(t *testing.T) {
		deps := newDeps(t, testConfig(t))
		defer deps.Close(ctx)

		var out bytes.Buffer
		require.NoError(t, runView(ctx, &out, deps, viewCRMIntegrity, 1, 10, nil))
		assert.Contains(t, out.String(), `"view": "crm-integrity"`)
		assert.Contains(t, out.String(), `"risk_level"`)
	})

	t.Run("stalled deals", func(t *testing.T) {
		deps := newDeps(t, testConfig(t))
		defer deps.Close(ctx)

		var out bytes.Buffer
		require.NoError(t, runView(ctx, &out, deps, viewPipelineHealth, 1, 100, viewFilters(true, "")))

		var got struct {
			Page struct {
				Data  []adapters.Opportunity `json:"data"`
				Total int                    `json:"total"`
			} `json:"page"`
		}
		require.NoError(t, json.Unmarshal(out.Bytes(), &got))
		require.NotEmpty(t, got.Page.Data)
		assert.Len(t, got.Page.Data, got.Page.Total)
		for _, o := range got.Page.Data {
			assert.True(t, o.IsStalled)
		}
	})

	t.Run("high risk validations", func(t *testing.T) {
		deps := newDeps(t, testConfig(t))
		defer deps.Close(ctx)

		var out bytes.Buffer
		require.NoError(t, runView(ctx, &out, deps, viewCRMIntegrity, 1, 100, viewFilters(false, "high")))
		assert.NotContains(t, out.String(), `"risk_level": "LOW"`)
		assert.NotContains(t, out.String(), `"risk_level": "MEDIUM"`)
	})

	tests := []struct {
		name     string
		view     string
		page     int
		pageSize int
		filters  map[string]string
		wantErr  string
	}{
		{"unknown view", "forecast", 1, 10, nil, "unknown view"},
		{"page below one", viewPipelineHealth, 0, 10, nil, "page must be at least 1"},
		{"page above limit", viewPipelineHealth, math.MaxInt, 10, nil, "page must be at most"},
		{"page size too large", viewPipelineHealth, 1, 101, nil, "page size must be between"},
		{"page out of range", viewCRMIntegrity, 9, 10, nil, "out of range"},
		{"risk level on pipeline health", viewPipelineHealth, 1, 10, viewFilters(false, "HIGH"), "applies to crm-integrity only"},
		{"stalled on crm integrity", viewCRMIntegrity, 1, 10, viewFilters(true, ""), "applies to pipeline-health only"},
		{"unknown risk level", viewCRMIntegrity, 1, 10, viewFilters(false, "severe"), "unknown risk level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deps := newDeps(t, testConfig(t))
			defer deps.Close(ctx)

			err := runView(ctx, &bytes.Buffer{}, deps, tt.view, tt.page, tt.pageSize, tt.filters)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRunStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("refresh records fallbacks", func(t *testing.T) {
		c := testConfig(t)
		c.Platform.Enabled = false
		deps := newDeps(t, c)
		defer deps.Close(ctx)

		var out bytes.Buffer
		require.NoError(t, runStatus(ctx, &out, deps, "", true))

		var got statusOutput
		require.NoError(t, json.Unmarshal(out.Bytes(), &got))
		assert.Equal(t, fallback.ReasonSourceDisabled, got.Status.Reason)
		assert.Equal(t, 2, got.Stats.Total)
		assert.Equal(t, deps.Monitor.SessionID(), got.SessionID)
		require.Len(t, got.Connectors, 4)
		assert.Equal(t, connectors.StatusDisabled, got.Connectors[0].Status)
	})

	t.Run("restores a persisted session", func(t *testing.T) {
		c := testConfig(t)
		c.Monitor.Store = config.StoreLevelDB
		c.Monitor.LevelDBPath = filepath.Join(t.TempDir(), "fallback")

		first := newDeps(t, c)
		require.NoError(t, runStatus(ctx, &bytes.Buffer{}, first, "", true))
		session := first.Monitor.SessionID()
		require.NoError(t, first.Close(ctx))

		second := newDeps(t, c)
		defer second.Close(ctx)

		var out bytes.Buffer
		require.NoError(t, runStatus(ctx, &out, second, session, false))

		var got statusOutput
		require.NoError(t, json.Unmarshal(out.Bytes(), &got))
		assert.Equal(t, session, got.SessionID)
		assert.Equal(t, 2, got.Stats.Total)
		assert.Equal(t, fallback.ReasonClientNotReady, got.Status.Reason)
	})
}

func TestRunServer(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runServer(ctx, testConfig(t), zap.NewNop(), ln) }()

	url := fmt.Sprintf("http://%s/healthz", ln.Addr().String())
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestLoadConfig(t *testing.T) {
	os.Clearenv()
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("MONITOR_THRESHOLD", "4")

	path := filepath.Join(t.TempDir(), "pipeline-monitor.yaml")
	require.NoError(t, os.WriteFile(path, []byte("monitor:\n  threshold: 9\n  window: 2m\n"), 0o600))

	c, err := loadConfig(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 4, c.Monitor.Threshold)
	assert.Equal(t, 2*time.Minute, c.Monitor.Window)

	_, err = loadConfig(context.Background(), filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
