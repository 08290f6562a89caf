/*
Package config provides configuration management for the feed refresh agent.

This package separates configuration concerns from business logic and provides
a centralized way to manage application configuration including the backend
connection, refresh coordination, caching, and other service dependencies.
*/
package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/glean-reader/feed-refresh-agent/cache"
	"github.com/glean-reader/feed-refresh-agent/client"
	"github.com/glean-reader/feed-refresh-agent/container"
	"github.com/glean-reader/feed-refresh-agent/middleware"
	"github.com/glean-reader/feed-refresh-agent/refresh"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Config holds all application configuration
type Config struct {
	BackendURL     string
	BackendToken   string
	BackendTimeout time.Duration
	LogLevel       string
	ServerPort     string
	// Refresh coordination configuration
	RefreshConfig RefreshConfig
	// Feed-list cache TTL
	FeedCacheTTL time.Duration
	// Rate limiting configuration for the agent's own HTTP surface
	RateLimitRequestsPerMinute float64
	RateLimitBurst             int
	// Enhanced CORS configuration
	CORSConfig CORSConfig
	// Cleanup intervals
	ClientCleanupInterval time.Duration
}

// RefreshConfig holds refresh-coordination configuration
type RefreshConfig struct {
	// PollInterval is the fixed delay between batched status polls.
	PollInterval time.Duration `json:"poll_interval"`
	// MaxPollDuration caps how long one job is polled; zero disables.
	MaxPollDuration time.Duration `json:"max_poll_duration"`
	// BatchOperations enables multi-select refresh submission.
	BatchOperations bool `json:"batch_operations"`
	// ErroredRefresh enables the errored-only refresh action.
	ErroredRefresh bool `json:"errored_refresh"`
	// Submission rate bounds for sequential multi-select submission.
	SubmitRatePerSecond float64 `json:"submit_rate_per_second"`
	SubmitBurst         int     `json:"submit_burst"`
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
		BackendURL:     getEnv("GLEAN_BACKEND_URL", "http://localhost:8000"),
		BackendToken:   getEnv("GLEAN_API_TOKEN", ""),
		BackendTimeout: getEnvDuration("BACKEND_TIMEOUT", 30*time.Second),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		ServerPort:     getEnv("SERVER_PORT", "8080"),
		RefreshConfig: RefreshConfig{
			PollInterval:        getEnvDuration("REFRESH_POLL_INTERVAL", 2*time.Second),
			MaxPollDuration:     getEnvDuration("REFRESH_MAX_POLL_DURATION", 10*time.Minute),
			BatchOperations:     getEnvBool("REFRESH_BATCH_OPERATIONS", true),
			ErroredRefresh:      getEnvBool("REFRESH_ERRORED_ENABLED", true),
			SubmitRatePerSecond: getEnvFloat("REFRESH_SUBMIT_RPS", 10.0),
			SubmitBurst:         getEnvInt("REFRESH_SUBMIT_BURST", 5),
		},
		FeedCacheTTL: getEnvDuration("FEED_CACHE_TTL", 1*time.Minute),
		// Rate limiting defaults (60 requests per minute, burst of 20)
		RateLimitRequestsPerMinute: getEnvFloat("RATE_LIMIT_RPM", 60.0),
		RateLimitBurst:             getEnvInt("RATE_LIMIT_BURST", 20),
		// Enhanced CORS configuration
		CORSConfig: CORSConfig{
			Environment: environment,
			DevelopmentOrigins: getEnvSlice("DEV_CORS_ORIGINS", []string{
				"http://localhost:3000",
				"http://localhost:5173",
				"http://127.0.0.1:3000",
				"http://127.0.0.1:5173",
				"http://localhost:8080",
			}),
			StagingOrigins: getEnvSlice("STAGING_CORS_ORIGINS", []string{
				"https://staging.gleanreader.app",
			}),
			ProductionOrigins: getEnvSlice("PROD_CORS_ORIGINS", []string{
				"https://gleanreader.app",
				"https://www.gleanreader.app",
			}),
			AllowedMethods: getEnvSlice("CORS_ALLOWED_METHODS", []string{
				"GET", "POST", "PATCH", "DELETE", "OPTIONS",
			}),
			AllowedHeaders: getEnvSlice("CORS_ALLOWED_HEADERS", []string{
				"Content-Type", "Authorization", "X-Requested-With",
				"X-Request-ID", "Accept", "Origin", "Cache-Control",
			}),
			ExposedHeaders: getEnvSlice("CORS_EXPOSED_HEADERS", []string{
				"X-Request-ID", "X-Total-Count", "X-Cache",
			}),
			AllowCredentials: getEnvBool("CORS_ALLOW_CREDENTIALS", true),
			MaxAge:           getEnvInt("CORS_MAX_AGE", 86400), // 24 hours
			AllowSubdomains:  getEnvBool("CORS_ALLOW_SUBDOMAINS", false),
			AllowedDomains:   getEnvSlice("CORS_ALLOWED_DOMAINS", []string{}),
		},
		// Cleanup intervals
		ClientCleanupInterval: getEnvDuration("CLIENT_CLEANUP_INTERVAL", 1*time.Minute),
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.BackendURL == "" {
		return fmt.Errorf("GLEAN_BACKEND_URL environment variable is required")
	}
	if c.RefreshConfig.PollInterval <= 0 {
		return fmt.Errorf("REFRESH_POLL_INTERVAL must be positive")
	}
	return nil
}

// NewServices creates and initializes all service dependencies using DI container
func NewServices(config *Config) (*Services, error) {
	logger := middleware.Logger
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.InfoLevel)
	}

	// Initialize feed-list cache and backend client
	feedCache := cache.NewFeedListCache(config.FeedCacheTTL, logger)
	backendClient := client.New(config.BackendURL, config.BackendToken, config.BackendTimeout, logger, feedCache)
	logger.WithField("backend_url", config.BackendURL).Info("Backend client initialized successfully")

	// Initialize the refresh coordinator. The refetch callback drops the
	// cached feed list and re-fetches the first page so persisted fields
	// catch up with the polled job state.
	coordinator := refresh.NewCoordinator(refresh.Config{
		Interval:        config.RefreshConfig.PollInterval,
		MaxPollDuration: config.RefreshConfig.MaxPollDuration,
		BatchOperations: config.RefreshConfig.BatchOperations,
		ErroredRefresh:  config.RefreshConfig.ErroredRefresh,
		SubmitRate:      rate.Limit(config.RefreshConfig.SubmitRatePerSecond),
		SubmitBurst:     config.RefreshConfig.SubmitBurst,
	}, backendClient, func(ctx context.Context) {
		backendClient.InvalidateFeedCache()
		if _, err := backendClient.ListFeeds(ctx, client.ListOptions{}); err != nil {
			logger.WithError(err).Warn("Feed list refetch after job completion failed")
		}
	}, logger)
	logger.Info("Refresh coordinator initialized successfully")

	// Initialize dependency injection container
	diContainer := container.NewContainer()
	if err := diContainer.InitializeServices(backendClient, feedCache, coordinator, logger); err != nil {
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
