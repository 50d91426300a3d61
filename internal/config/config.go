package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	envLogLevel         = "CF_LOG_LEVEL"
	envSchemaServiceURL = "CF_SCHEMA_SERVICE_URL"
	envMinConfidence    = "CF_MIN_CONFIDENCE"
	envMaxInFlight      = "CF_MAX_IN_FLIGHT"
	envSchemaTimeout    = "CF_SCHEMA_TIMEOUT"
	envHealthPort       = "CF_HEALTH_PORT"
	envMetricsPort      = "CF_METRICS_PORT"
	envWebhookURL       = "CF_WEBHOOK_URL"
	envSlackWebhookURL  = "CF_SLACK_WEBHOOK_URL"
	envStatePath        = "CF_STATE_PATH"
	envEnableDryRun     = "CF_ENABLE_DRY_RUN"
	envProjectConfig    = "CF_PROJECT_CONFIG"
)

const (
	defaultMinConfidence = 0.5
	defaultMaxInFlight   = 4
	defaultSchemaTimeout = 10 * time.Second
)

// Config describes runtime configuration loaded from the environment.
type Config struct {
	LogLevel         string
	SchemaServiceURL string
	MinConfidence    float64
	MaxInFlight      int
	SchemaTimeout    time.Duration
	HealthPort       int
	MetricsPort      int
	WebhookURL       string
	SlackWebhookURL  string
	StatePath        string
	EnableDryRun     bool
	ProjectConfig    string
}

// Load reads configuration from environment variables and a local .env file if present.
// Existing environment variables take precedence over values in .env.
func Load() (Config, error) {
	if err := loadDotEnvIfPresent(".env"); err != nil {
		return Config{}, err
	}

	cfg := Config{
		MinConfidence: defaultMinConfidence,
		MaxInFlight:   defaultMaxInFlight,
		SchemaTimeout: defaultSchemaTimeout,
	}

	if value, ok := lookupTrimmed(envLogLevel); ok {
		cfg.LogLevel = value
	}

	if value, ok := lookupTrimmed(envSchemaServiceURL); ok {
		cfg.SchemaServiceURL = value
	}

	if value, ok := lookupTrimmed(envMinConfidence); ok {
		threshold, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", envMinConfidence, err)
		}
		if threshold < 0 || threshold > 1 {
			return Config{}, fmt.Errorf("%s must be within [0,1]", envMinConfidence)
		}
		cfg.MinConfidence = threshold
	}

	if value, ok := lookupTrimmed(envMaxInFlight); ok {
		limit, err := strconv.Atoi(value)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", envMaxInFlight, err)
		}
		if limit <= 0 {
			return Config{}, fmt.Errorf("%s must be greater than zero", envMaxInFlight)
		}
		cfg.MaxInFlight = limit
	}

	if value, ok := lookupTrimmed(envSchemaTimeout); ok {
		timeout, err := time.ParseDuration(value)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", envSchemaTimeout, err)
		}
		if timeout <= 0 {
			return Config{}, fmt.Errorf("%s must be greater than zero", envSchemaTimeout)
		}
		cfg.SchemaTimeout = timeout
	}

	var err error
	if cfg.HealthPort, err = lookupPort(envHealthPort); err != nil {
		return Config{}, err
	}
	if cfg.MetricsPort, err = lookupPort(envMetricsPort); err != nil {
		return Config{}, err
	}

	if value, ok := lookupTrimmed(envWebhookURL); ok {
		cfg.WebhookURL = value
	}
	if value, ok := lookupTrimmed(envSlackWebhookURL); ok {
		cfg.SlackWebhookURL = value
	}
	if value, ok := lookupTrimmed(envStatePath); ok {
		cfg.StatePath = value
	}
	if value, ok := lookupTrimmed(envProjectConfig); ok {
		cfg.ProjectConfig = value
	}

	if value, ok := lookupTrimmed(envEnableDryRun); ok {
		enabled, err := strconv.ParseBool(value)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", envEnableDryRun, err)
		}
		cfg.EnableDryRun = enabled
	}

	if cfg.SchemaServiceURL == "" {
		return Config{}, errors.New("CF_SCHEMA_SERVICE_URL is required")
	}
	if err := validateURL(cfg.SchemaServiceURL, envSchemaServiceURL); err != nil {
		return Config{}, err
	}
	if cfg.WebhookURL != "" {
		if err := validateURL(cfg.WebhookURL, envWebhookURL); err != nil {
			return Config{}, err
		}
	}
	if cfg.SlackWebhookURL != "" {
		if err := validateURL(cfg.SlackWebhookURL, envSlackWebhookURL); err != nil {
			return Config{}, err
		}
	}

	return cfg, nil
}

func lookupTrimmed(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(value), true
}

func lookupPort(key string) (int, error) {
	value, ok := lookupTrimmed(key)
	if !ok || value == "" {
		return 0, nil
	}
	port, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if port < 0 || port > 65535 {
		return 0, fmt.Errorf("%s must be a valid port", key)
	}
	return port, nil
}

func loadDotEnvIfPresent(path string) error {
	err := godotenv.Load(path)
	if err == nil {
		return nil
	}

	var pathErr *os.PathError
	if errors.As(err, &pathErr) && errors.Is(pathErr.Err, os.ErrNotExist) {
		return nil
	}

	return err
}

func validateURL(value, name string) error {
	parsed, err := url.Parse(value)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("invalid %s: must include scheme and host", name)
	}
	return nil
}
