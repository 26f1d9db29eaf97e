/*
Package config provides configuration management for the status monitor backend.

This package separates configuration concerns from business logic and provides
a centralized way to manage application configuration including the polling
pipeline, event delivery, and other service dependencies.
*/
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/statuswatch/status-monitor-backend/bus"
	"github.com/statuswatch/status-monitor-backend/container"
	"github.com/statuswatch/status-monitor-backend/detector"
	"github.com/statuswatch/status-monitor-backend/eventlog"
	"github.com/statuswatch/status-monitor-backend/fetcher"
	"github.com/statuswatch/status-monitor-backend/gateway"
	"github.com/statuswatch/status-monitor-backend/handlers"
	"github.com/statuswatch/status-monitor-backend/middleware"
	"github.com/statuswatch/status-monitor-backend/monitor"
	"github.com/statuswatch/status-monitor-backend/normalize"
	"github.com/statuswatch/status-monitor-backend/poller"
	"github.com/statuswatch/status-monitor-backend/types"
)

// Config holds all application configuration
type Config struct {
	LogLevel   string
	ServerPort string
	// Rate limiting configuration
	RateLimitRequestsPerMinute float64
	RateLimitBurst             int
	RateLimitCleanupInterval   time.Duration
	// Enhanced CORS configuration
	CORSConfig CORSConfig
	// Cleanup intervals
	ClientCleanupInterval time.Duration
	// Polling pipeline settings
	MonitorConfig MonitorConfig
	// SourcesFile optionally overrides the built-in default sources
	SourcesFile string
	// AutoStart begins a monitoring run over the default sources at boot
	AutoStart bool
	// ShutdownGrace bounds graceful shutdown after SIGINT/SIGTERM
	ShutdownGrace time.Duration
	// JaegerEndpoint enables trace export when set
	JaegerEndpoint string
	// Alerting settings
	AlertingConfig AlertingConfig
}

// MonitorConfig holds the tuning knobs of the polling pipeline
type MonitorConfig struct {
	// Poll scheduling
	CheckInterval    time.Duration `json:"check_interval"`
	FailureThreshold int           `json:"failure_threshold"`
	BackoffFactor    float64       `json:"backoff_factor"`
	BackoffMax       time.Duration `json:"backoff_max"`
	BackoffJitter    float64       `json:"backoff_jitter"`
	// Outbound HTTP
	FetchTimeout    time.Duration `json:"fetch_timeout"`
	FetchRatePerSec float64       `json:"fetch_rate_per_sec"`
	FetchRateBurst  int           `json:"fetch_rate_burst"`
	MaxBodyBytes    int64         `json:"max_body_bytes"`
	UserAgent       string        `json:"user_agent"`
	// Change detection
	SeenWindow   int `json:"seen_window"`
	DetailMaxLen int `json:"detail_max_len"`
	// Event delivery
	QueueDepth        int `json:"queue_depth"`
	ReplayDepth       int `json:"replay_depth"`
	EventLogCapacity  int `json:"event_log_capacity"`
	StatusEventsLimit int `json:"status_events_limit"`
}

// AlertingConfig holds optional Mailgun alerting credentials. E-mail
// notifications are disabled while any field is empty; log notifications
// are always on.
type AlertingConfig struct {
	MailgunDomain  string
	MailgunAPIKey  string
	AlertSender    string
	AlertRecipient string
}

// CORSConfig holds CORS-related configuration
type CORSConfig struct {
	// Environment-specific settings
	Environment string
	// Allowed origins based on environment
	DevelopmentOrigins []string
	StagingOrigins     []string
	ProductionOrigins  []string
	// Additional CORS settings
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
	MaxAge           int
	// Dynamic origin validation
	AllowSubdomains bool
	AllowedDomains  []string
}

// Services holds all service dependencies
type Services struct {
	Container *container.Container
	Logger    *logrus.Logger
}

// AppConfig holds both configuration and services
type AppConfig struct {
	Config   *Config
	Services *Services
}

// NewConfig creates a new configuration instance
func NewConfig() *Config {
	environment := getEnv("ENVIRONMENT", "development")

	return &Config{
		LogLevel:   getEnv("LOG_LEVEL", "info"),
		ServerPort: getEnv("SERVER_PORT", "8080"),
		// Rate limiting defaults (60 requests per minute, burst of 10)
		RateLimitRequestsPerMinute: getEnvFloat("RATE_LIMIT_RPM", 60.0),
		RateLimitBurst:             getEnvInt("RATE_LIMIT_BURST", 10),
		RateLimitCleanupInterval:   getEnvDuration("RATE_LIMIT_CLEANUP_INTERVAL", 5*time.Minute),
		// Enhanced CORS configuration
		CORSConfig: CORSConfig{
			Environment: environment,
			DevelopmentOrigins: getEnvSlice("DEV_CORS_ORIGINS", []string{
				"http://localhost:3000",
				"http://localhost:3001",
				"http://127.0.0.1:3000",
				"http://127.0.0.1:3001",
				"http://localhost:8080",
			}),
			StagingOrigins: getEnvSlice("STAGING_CORS_ORIGINS", []string{
				"https://staging.yourdomain.com",
				"https://staging-api.yourdomain.com",
			}),
			ProductionOrigins: getEnvSlice("PROD_CORS_ORIGINS", []string{
				"https://yourdomain.com",
				"https://www.yourdomain.com",
				"https://api.yourdomain.com",
			}),
			AllowedMethods: getEnvSlice("CORS_ALLOWED_METHODS", []string{
				"GET", "POST", "PUT", "DELETE", "OPTIONS",
			}),
			AllowedHeaders: getEnvSlice("CORS_ALLOWED_HEADERS", []string{
				"Content-Type", "Authorization", "X-Requested-With",
				"X-Request-ID", "Accept", "Origin", "Cache-Control",
			}),
			ExposedHeaders: getEnvSlice("CORS_EXPOSED_HEADERS", []string{
				"X-Request-ID", "X-Total-Count",
			}),
			AllowCredentials: getEnvBool("CORS_ALLOW_CREDENTIALS", true),
			MaxAge:           getEnvInt("CORS_MAX_AGE", 86400), // 24 hours
			AllowSubdomains:  getEnvBool("CORS_ALLOW_SUBDOMAINS", false),
			AllowedDomains:   getEnvSlice("CORS_ALLOWED_DOMAINS", []string{}),
		},
		// Cleanup intervals
		ClientCleanupInterval: getEnvDuration("CLIENT_CLEANUP_INTERVAL", 1*time.Minute),
		// Polling pipeline settings
		MonitorConfig: MonitorConfig{
			// Poll scheduling
			CheckInterval:    getEnvDuration("MONITOR_CHECK_INTERVAL", 30*time.Second),
			FailureThreshold: getEnvInt("MONITOR_FAILURE_THRESHOLD", 5),
			BackoffFactor:    getEnvFloat("MONITOR_BACKOFF_FACTOR", 2.0),
			BackoffMax:       getEnvDuration("MONITOR_BACKOFF_MAX", 10*time.Minute),
			BackoffJitter:    getEnvFloat("MONITOR_BACKOFF_JITTER", 0.2),
			// Outbound HTTP (rate shared across all sources)
			FetchTimeout:    getEnvDuration("FETCH_TIMEOUT", 15*time.Second),
			FetchRatePerSec: getEnvFloat("FETCH_RATE_PER_SEC", 10.0),
			FetchRateBurst:  getEnvInt("FETCH_RATE_BURST", 20),
			MaxBodyBytes:    int64(getEnvInt("FETCH_MAX_BODY_BYTES", 2<<20)), // 2 MiB
			UserAgent:       getEnv("FETCH_USER_AGENT", "StatusWatch-Monitor/1.0"),
			// Change detection
			SeenWindow:   getEnvInt("MONITOR_SEEN_WINDOW", 500),
			DetailMaxLen: getEnvInt("MONITOR_DETAIL_MAX_LEN", 400),
			// Event delivery
			QueueDepth:        getEnvInt("BUS_QUEUE_DEPTH", 64),
			ReplayDepth:       getEnvInt("WS_REPLAY_DEPTH", 20),
			EventLogCapacity:  getEnvInt("EVENT_LOG_CAPACITY", 512),
			StatusEventsLimit: getEnvInt("STATUS_EVENTS_LIMIT", 50),
		},
		SourcesFile:    getEnv("SOURCES_FILE", "data/sources.json"),
		AutoStart:      getEnvBool("MONITOR_AUTO_START", false),
		ShutdownGrace:  getEnvDuration("SHUTDOWN_GRACE", 10*time.Second),
		JaegerEndpoint: getEnv("JAEGER_ENDPOINT", ""),
		AlertingConfig: AlertingConfig{
			MailgunDomain:  getEnv("MAILGUN_DOMAIN", ""),
			MailgunAPIKey:  getEnv("MAILGUN_API_KEY", ""),
			AlertSender:    getEnv("ALERT_SENDER", ""),
			AlertRecipient: getEnv("ALERT_RECIPIENT", ""),
		},
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	mc := c.MonitorConfig
	if mc.CheckInterval < time.Second {
		return fmt.Errorf("MONITOR_CHECK_INTERVAL must be at least 1s, got %s", mc.CheckInterval)
	}
	if mc.FailureThreshold < 1 {
		return fmt.Errorf("MONITOR_FAILURE_THRESHOLD must be at least 1, got %d", mc.FailureThreshold)
	}
	if mc.BackoffFactor < 1 {
		return fmt.Errorf("MONITOR_BACKOFF_FACTOR must be at least 1, got %g", mc.BackoffFactor)
	}
	if mc.BackoffJitter < 0 || mc.BackoffJitter >= 1 {
		return fmt.Errorf("MONITOR_BACKOFF_JITTER must be in [0, 1), got %g", mc.BackoffJitter)
	}
	if mc.QueueDepth < 1 {
		return fmt.Errorf("BUS_QUEUE_DEPTH must be at least 1, got %d", mc.QueueDepth)
	}
	if mc.EventLogCapacity < mc.ReplayDepth {
		return fmt.Errorf("EVENT_LOG_CAPACITY (%d) must not be smaller than WS_REPLAY_DEPTH (%d)",
			mc.EventLogCapacity, mc.ReplayDepth)
	}
	return nil
}

// AllowedOrigins returns the CORS origin allowlist for the configured
// environment. The same list guards WebSocket upgrades.
func (c *Config) AllowedOrigins() []string {
	switch strings.ToLower(c.CORSConfig.Environment) {
	case "production", "prod":
		return c.CORSConfig.ProductionOrigins
	case "staging", "stage":
		return c.CORSConfig.StagingOrigins
	case "development", "dev", "local":
		return c.CORSConfig.DevelopmentOrigins
	default:
		return c.CORSConfig.DevelopmentOrigins
	}
}

// DefaultSourceSpecs returns the sources a run starts with when the caller
// supplies none: the contents of SourcesFile when present, otherwise a
// built-in default watching the OpenAI status page.
func (c *Config) DefaultSourceSpecs() ([]monitor.SourceSpec, error) {
	specs, err := LoadSources(c.SourcesFile)
	if err != nil {
		return nil, err
	}
	if len(specs) > 0 {
		return specs, nil
	}
	return []monitor.SourceSpec{
		{Name: "OpenAI", URL: "https://status.openai.com/history.atom", Kind: "feed"},
	}, nil
}

// LoadSources reads source definitions from a JSON file. A missing file is
// not an error; it means the built-in defaults apply.
func LoadSources(path string) ([]monitor.SourceSpec, error) {
	if path == "" {
		return nil, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sources file %s: %v", path, err)
	}

	var specs []monitor.SourceSpec
	if err := json.Unmarshal(data, &specs); err != nil {
		return nil, fmt.Errorf("failed to parse sources file %s: %v", path, err)
	}
	return specs, nil
}

// NewServices creates and initializes all service dependencies using DI container
func NewServices(config *Config) (*Services, error) {
	logger := middleware.Logger
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.InfoLevel)
	}

	mc := config.MonitorConfig

	// Build the event pipeline: log, bus, and the shared poll machinery.
	eventLog := eventlog.New(mc.EventLogCapacity)
	eventBus := bus.New(bus.Options{QueueDepth: mc.QueueDepth}, eventLog, logger)

	fetch := fetcher.New(fetcher.Options{
		Timeout:       mc.FetchTimeout,
		UserAgent:     mc.UserAgent,
		MaxBodyBytes:  mc.MaxBodyBytes,
		RatePerSecond: mc.FetchRatePerSec,
		RateBurst:     mc.FetchRateBurst,
	}, logger)
	norm := normalize.New(normalize.Options{DetailMaxLen: mc.DetailMaxLen}, logger)
	det := detector.New(detector.Options{
		SeenWindow:       mc.SeenWindow,
		FailureThreshold: mc.FailureThreshold,
	}, logger)

	manager := monitor.NewManager(monitor.Options{
		Poller: poller.Options{
			BackoffFactor: mc.BackoffFactor,
			BackoffMax:    mc.BackoffMax,
			BackoffJitter: mc.BackoffJitter,
		},
		Defaults: monitor.Defaults{
			Interval: mc.CheckInterval,
			Kind:     types.KindFeed,
		},
	}, det, fetch, norm, eventBus, eventLog, logger)
	logger.WithFields(logrus.Fields{
		"check_interval":    mc.CheckInterval,
		"failure_threshold": mc.FailureThreshold,
	}).Info("Monitor pipeline initialized successfully")

	gw := gateway.New(gateway.Options{
		ReplayDepth:    mc.ReplayDepth,
		AllowedOrigins: config.AllowedOrigins(),
	}, eventBus, logger)

	defaultSpecs, err := config.DefaultSourceSpecs()
	if err != nil {
		return nil, fmt.Errorf("failed to load default sources: %v", err)
	}
	handlerOpts := handlers.Options{
		DefaultSpecs:      defaultSpecs,
		StatusEventsLimit: mc.StatusEventsLimit,
	}

	// Initialize dependency injection container
	diContainer := container.NewContainer()
	if err := diContainer.InitializeServices(manager, eventBus, eventLog, gw, handlerOpts, logger); err != nil {
		return nil, fmt.Errorf("failed to initialize dependency container: %v", err)
	}

	return &Services{
		Container: diContainer,
		Logger:    logger,
	}, nil
}

// NewAppConfig creates a new application configuration with all dependencies
func NewAppConfig() (*AppConfig, error) {
	config := NewConfig()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %v", err)
	}

	services, err := NewServices(config)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize services: %v", err)
	}

	return &AppConfig{
		Config:   config,
		Services: services,
	}, nil
}

// Close gracefully closes all service connections
func (s *Services) Close() error {
	if s.Container != nil {
		return s.Container.Close()
	}
	return nil
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvFloat gets an environment variable as float64 with a default value
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvInt gets an environment variable as int with a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvDuration gets an environment variable as time.Duration with a default value
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvBool gets an environment variable as bool with a default value
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvSlice gets an environment variable as a string slice with a default value
func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}
