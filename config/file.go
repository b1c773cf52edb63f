package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// FileConfig is the optional YAML tuning file. Durations are Go duration
// strings such as "30s" or "5m".
type FileConfig struct {
	Fetch struct {
		CacheTTL   string `yaml:"cacheTTL"`
		CacheSize  int    `yaml:"cacheSize"`
		RetryLimit *int   `yaml:"retryLimit"`
		BaseDelay  string `yaml:"baseDelay"`
		MaxDelay   string `yaml:"maxDelay"`
		HealthTTL  string `yaml:"healthTTL"`
	} `yaml:"fetch"`

	Monitor struct {
		Capacity    int    `yaml:"capacity"`
		Window      string `yaml:"window"`
		Threshold   int    `yaml:"threshold"`
		Store       string `yaml:"store"`
		LevelDBPath string `yaml:"leveldbPath"`
	} `yaml:"monitor"`

	Platform struct {
		Enabled        *bool  `yaml:"enabled"`
		Timeout        string `yaml:"timeout"`
		ViewRetryLimit *int   `yaml:"viewRetryLimit"`
	} `yaml:"platform"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// LoadFile reads a YAML tuning file.
func LoadFile(path string) (FileConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return FileConfig{}, err
	}
	var fc FileConfig
	if err := yaml.Unmarshal(b, &fc); err != nil {
		return FileConfig{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return fc, nil
}

// Apply overlays the file onto c. A value from the file only replaces a
// setting whose environment variable is unset, so the environment wins.
// Credentials are never read from the file.
func (c *Config) Apply(fc FileConfig) error {
	var err error
	setDuration := func(env, field, raw string, dst *time.Duration) {
		if err != nil || raw == "" || envSet(env) {
			return
		}
		d, perr := time.ParseDuration(raw)
		if perr != nil {
			err = fmt.Errorf("%s: %w", field, perr)
			return
		}
		*dst = d
	}
	setInt := func(env string, v int, dst *int) {
		if v != 0 && !envSet(env) {
			*dst = v
		}
	}
	setString := func(env, v string, dst *string) {
		if v != "" && !envSet(env) {
			*dst = v
		}
	}

	setDuration("FETCH_CACHE_TTL", "fetch.cacheTTL", fc.Fetch.CacheTTL, &c.Fetch.CacheTTL)
	setDuration("FETCH_BASE_DELAY", "fetch.baseDelay", fc.Fetch.BaseDelay, &c.Fetch.BaseDelay)
	setDuration("FETCH_MAX_DELAY", "fetch.maxDelay", fc.Fetch.MaxDelay, &c.Fetch.MaxDelay)
	setDuration("CONNECTOR_HEALTH_TTL", "fetch.healthTTL", fc.Fetch.HealthTTL, &c.Fetch.HealthTTL)
	setDuration("MONITOR_WINDOW", "monitor.window", fc.Monitor.Window, &c.Monitor.Window)
	setDuration("PLATFORM_TIMEOUT", "platform.timeout", fc.Platform.Timeout, &c.Platform.Timeout)
	if err != nil {
		return err
	}

	setInt("FETCH_CACHE_SIZE", fc.Fetch.CacheSize, &c.Fetch.CacheSize)
	setInt("MONITOR_CAPACITY", fc.Monitor.Capacity, &c.Monitor.Capacity)
	setInt("MONITOR_THRESHOLD", fc.Monitor.Threshold, &c.Monitor.Threshold)
	if fc.Fetch.RetryLimit != nil && !envSet("FETCH_RETRY_LIMIT") {
		c.Fetch.RetryLimit = *fc.Fetch.RetryLimit
	}
	if fc.Platform.ViewRetryLimit != nil && !envSet("PLATFORM_VIEW_RETRIES") {
		c.Platform.ViewRetryLimit = *fc.Platform.ViewRetryLimit
	}
	if fc.Platform.Enabled != nil && !envSet("PLATFORM_ENABLED") {
		c.Platform.Enabled = *fc.Platform.Enabled
	}

	setString("MONITOR_STORE", fc.Monitor.Store, &c.Monitor.Store)
	setString("MONITOR_LEVELDB_PATH", fc.Monitor.LevelDBPath, &c.Monitor.LevelDBPath)
	setString("LOG_LEVEL", fc.Log.Level, &c.Observability.LogLevel)
	setString("LOG_FORMAT", fc.Log.Format, &c.Observability.LogFormat)

	return c.Validate()
}

func envSet(key string) bool {
	return os.Getenv(key) != ""
}
