package config

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Session store kinds for the fallback monitor.
const (
	StoreMemory   = "memory"
	StoreLevelDB  = "leveldb"
	StorePostgres = "postgres"
)

// Config represents the complete application configuration
type Config struct {
	Server        ServerConfig
	Platform      PlatformConfig
	Fetch         FetchConfig
	Monitor       MonitorConfig
	Database      DatabaseConfig
	Alerts        AlertsConfig
	Observability ObservabilityConfig
	Environment   string
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

// PlatformConfig holds the primary source credentials. Enabled is the
// administrative switch; the credentials decide readiness.
type PlatformConfig struct {
	BaseURL  string
	TenantID string
	AgentID  string
	JWT      string
	Enabled  bool
	Timeout  time.Duration
	// ConfigURL is a dashboard backend serving credentials when none are set locally.
	ConfigURL string
	// ViewRetryLimit is the retry budget for orchestrated view reads.
	ViewRetryLimit int
}

// FetchConfig holds cache and retry defaults for cached fetches
type FetchConfig struct {
	CacheTTL   time.Duration
	CacheSize  int
	RetryLimit int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	// HealthTTL is how long a connector health check is cached.
	HealthTTL  time.Duration
}

// MonitorConfig holds fallback monitor tuning
type MonitorConfig struct {
	Capacity    int
	Window      time.Duration
	Threshold   int
	Store       string
	LevelDBPath string
}

// DatabaseConfig holds PostgreSQL database configuration.
// When ConnectionString (from DATABASE_URL) is set, it takes precedence over individual fields.
type DatabaseConfig struct {
	ConnectionString string
	Host             string
	Port             int
	User             string
	Password         string
	Database         string
	SSLMode          string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
}

// AlertsConfig holds the escalation webhook
type AlertsConfig struct {
	SlackWebhookURL string
	Channel         string
	Timeout         time.Duration
}

// ObservabilityConfig holds logging configuration
type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string // json or console
}

// New creates a new Config instance by loading environment variables
func New(ctx context.Context) (*Config, error) {
	_ = godotenv.Load(".env")

	env := getEnv("ENVIRONMENT", "development")
	defaultFormat := "json"
	if env == "development" || env == "dev" {
		defaultFormat = "console"
	}

	cfg := &Config{
		Environment: env,
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getPort(),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			AllowedOrigins:  getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:5173"}),
		},
		Platform: PlatformConfig{
			BaseURL:        strings.TrimRight(getEnv("AOS_BASE_URL", ""), "/"),
			TenantID:       getEnv("AOS_TENANT_ID", ""),
			AgentID:        getEnv("AOS_AGENT_ID", ""),
			JWT:            getEnv("AOS_JWT", ""),
			Enabled:        getEnvAsBool("PLATFORM_ENABLED", true),
			Timeout:        getEnvAsDuration("PLATFORM_TIMEOUT", 15*time.Second),
			ConfigURL:      strings.TrimRight(getEnv("PLATFORM_CONFIG_URL", ""), "/"),
			ViewRetryLimit: getEnvAsInt("PLATFORM_VIEW_RETRIES", 0),
		},
		Fetch: FetchConfig{
			CacheTTL:   getEnvAsDuration("FETCH_CACHE_TTL", 5*time.Minute),
			CacheSize:  getEnvAsInt("FETCH_CACHE_SIZE", 256),
			RetryLimit: getEnvAsInt("FETCH_RETRY_LIMIT", 3),
			BaseDelay:  getEnvAsDuration("FETCH_BASE_DELAY", time.Second),
			MaxDelay:   getEnvAsDuration("FETCH_MAX_DELAY", 10*time.Second),
			HealthTTL:  getEnvAsDuration("CONNECTOR_HEALTH_TTL", 60*time.Second),
		},
		Monitor: MonitorConfig{
			Capacity:    getEnvAsInt("MONITOR_CAPACITY", 100),
			Window:      getEnvAsDuration("MONITOR_WINDOW", 5*time.Minute),
			Threshold:   getEnvAsInt("MONITOR_THRESHOLD", 3),
			Store:       getEnv("MONITOR_STORE", StoreMemory),
			LevelDBPath: getEnv("MONITOR_LEVELDB_PATH", "data/fallback"),
		},
		Database: loadDatabaseConfig(),
		Alerts: AlertsConfig{
			SlackWebhookURL: getEnv("SLACK_WEBHOOK_URL", ""),
			Channel:         getEnv("SLACK_CHANNEL", ""),
			Timeout:         getEnvAsDuration("SLACK_TIMEOUT", 10*time.Second),
		},
		Observability: ObservabilityConfig{
			LogLevel:  getEnv("LOG_LEVEL", "info"),
			LogFormat: getEnv("LOG_FORMAT", defaultFormat),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks if all required configuration fields are set
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}

	if c.Fetch.CacheTTL <= 0 {
		return fmt.Errorf("fetch cache TTL must be positive")
	}
	if c.Fetch.RetryLimit < 0 {
		return fmt.Errorf("fetch retry limit must not be negative")
	}
	if c.Fetch.BaseDelay <= 0 {
		return fmt.Errorf("fetch base delay must be positive")
	}
	if c.Fetch.MaxDelay < c.Fetch.BaseDelay {
		return fmt.Errorf("fetch max delay must be at least the base delay")
	}
	if c.Fetch.HealthTTL < 0 {
		return fmt.Errorf("connector health TTL must not be negative")
	}
	if c.Platform.ViewRetryLimit < 0 {
		return fmt.Errorf("platform view retry limit must not be negative")
	}

	if c.Monitor.Capacity <= 0 {
		return fmt.Errorf("monitor capacity must be positive")
	}
	if c.Monitor.Threshold <= 0 {
		return fmt.Errorf("monitor threshold must be positive")
	}
	if c.Monitor.Window <= 0 {
		return fmt.Errorf("monitor window must be positive")
	}
	switch c.Monitor.Store {
	case StoreMemory:
	case StoreLevelDB:
		if c.Monitor.LevelDBPath == "" {
			return fmt.Errorf("leveldb path is required for the leveldb session store")
		}
	case StorePostgres:
		if c.Database.ConnectionString == "" && c.Database.Host == "" {
			return fmt.Errorf("database configuration required: set DATABASE_URL or DB_HOST")
		}
	default:
		return fmt.Errorf("unknown monitor store %q", c.Monitor.Store)
	}

	if c.Observability.LogLevel == "" {
		return fmt.Errorf("log level is required")
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev"
}

// Configured reports whether base URL, tenant and agent are all set.
func (p *PlatformConfig) Configured() bool {
	return p.BaseURL != "" && p.TenantID != "" && p.AgentID != ""
}

// DSN returns the PostgreSQL connection string.
// Uses ConnectionString (from DATABASE_URL) when set; otherwise builds from individual fields.
func (c *DatabaseConfig) DSN() string {
	if c.ConnectionString != "" {
		return c.ConnectionString
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// LogString returns a safe string for logging (no password). Parses ConnectionString when set.
func (c *DatabaseConfig) LogString() string {
	if c.ConnectionString != "" {
		u, err := url.Parse(c.ConnectionString)
		if err == nil {
			host := u.Hostname()
			port := u.Port()
			if port == "" {
				port = "5432"
			}
			db := strings.TrimPrefix(u.Path, "/")
			return fmt.Sprintf("host=%s port=%s database=%s", host, port, db)
		}
		return "host=<from DATABASE_URL>"
	}
	return fmt.Sprintf("host=%s port=%d database=%s", c.Host, c.Port, c.Database)
}

func loadDatabaseConfig() DatabaseConfig {
	dbURL := getEnv("DATABASE_URL", "")
	if dbURL != "" {
		return DatabaseConfig{
			ConnectionString: dbURL,
			MaxOpenConns:     getEnvAsInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:     getEnvAsInt("DB_MAX_IDLE_CONNS", 2),
			ConnMaxLifetime:  getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		}
	}
	return DatabaseConfig{
		Host:            getEnv("DB_HOST", ""),
		Port:            getEnvAsInt("DB_PORT", 5432),
		User:            getEnv("DB_USER", "revops"),
		Password:        getEnv("DB_PASSWORD", ""),
		Database:        getEnv("DB_NAME", "pipeline_monitor"),
		SSLMode:         getEnv("DB_SSLMODE", "disable"),
		MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 10),
		MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 2),
		ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
	}
}

// Address returns the HTTP server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Helper functions

// getPort returns the server port from PORT or SERVER_PORT env vars (default: 8000)
func getPort() int {
	if value := os.Getenv("PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	if value := os.Getenv("SERVER_PORT"); value != "" {
		if p, err := strconv.Atoi(value); err == nil {
			return p
		}
	}
	return 8000
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, v := range strings.Split(valueStr, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
