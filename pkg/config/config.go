package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration options for the Strava activity mirror
type Config struct {
	// Strava API credentials and endpoint
	Strava StravaConfig `yaml:"strava" json:"strava"`

	// Rate budget configuration
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`

	// Local storage settings
	Storage StorageConfig `yaml:"storage" json:"storage"`

	// Fetch loop settings
	Fetch FetchConfig `yaml:"fetch" json:"fetch"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// StravaConfig holds Strava-specific configuration
type StravaConfig struct {
	ClientID     string        `yaml:"client_id" json:"client_id"`
	ClientSecret string        `yaml:"client_secret" json:"client_secret"`
	RefreshToken string        `yaml:"refresh_token" json:"refresh_token"`
	AccessToken  string        `yaml:"access_token" json:"access_token"`
	BaseURL      string        `yaml:"base_url" json:"base_url"`
	Timeout      time.Duration `yaml:"timeout" json:"timeout"`
}

// RateLimitConfig holds the remote request budget configuration.
// The Strava API allows a fixed number of requests per rolling window;
// the tracker persists its position in the window across process restarts.
type RateLimitConfig struct {
	MaxRequests   int           `yaml:"max_requests" json:"max_requests"`
	Window        time.Duration `yaml:"window" json:"window"`
	WarningMargin int           `yaml:"warning_margin" json:"warning_margin"`
}

// StorageConfig holds local storage configuration
type StorageConfig struct {
	DataDirectory string `yaml:"data_directory" json:"data_directory"`
	NameMaxLength int    `yaml:"name_max_length" json:"name_max_length"`
}

// FetchConfig holds fetch loop configuration
type FetchConfig struct {
	PerPage     int           `yaml:"per_page" json:"per_page"`
	PageDelay   time.Duration `yaml:"page_delay" json:"page_delay"`
	FlushPages  int           `yaml:"flush_pages" json:"flush_pages"`
	MaxRetries  int           `yaml:"max_retries" json:"max_retries"`
	StreamTypes []string      `yaml:"stream_types" json:"stream_types"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Strava: StravaConfig{
			BaseURL: "https://www.strava.com/api/v3",
			Timeout: 30 * time.Second,
		},
		RateLimit: RateLimitConfig{
			MaxRequests:   100,
			Window:        15 * time.Minute,
			WarningMargin: 5,
		},
		Storage: StorageConfig{
			DataDirectory: "./data",
			NameMaxLength: 60,
		},
		Fetch: FetchConfig{
			PerPage:     30,
			PageDelay:   500 * time.Millisecond,
			FlushPages:  5,
			MaxRetries:  3,
			StreamTypes: []string{"time", "distance", "heartrate", "altitude"},
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	if clientID := os.Getenv("STRAVASYNC_CLIENT_ID"); clientID != "" {
		c.Strava.ClientID = clientID
	}
	if clientSecret := os.Getenv("STRAVASYNC_CLIENT_SECRET"); clientSecret != "" {
		c.Strava.ClientSecret = clientSecret
	}
	if refreshToken := os.Getenv("STRAVASYNC_REFRESH_TOKEN"); refreshToken != "" {
		c.Strava.RefreshToken = refreshToken
	}
	if accessToken := os.Getenv("STRAVASYNC_ACCESS_TOKEN"); accessToken != "" {
		c.Strava.AccessToken = accessToken
	}
	if baseURL := os.Getenv("STRAVASYNC_BASE_URL"); baseURL != "" {
		c.Strava.BaseURL = baseURL
	}

	if dataDir := os.Getenv("STRAVASYNC_DATA_DIR"); dataDir != "" {
		c.Storage.DataDirectory = dataDir
	}

	if maxReq := os.Getenv("STRAVASYNC_MAX_REQUESTS"); maxReq != "" {
		var val int
		fmt.Sscanf(maxReq, "%d", &val)
		if val > 0 {
			c.RateLimit.MaxRequests = val
		}
	}

	if perPage := os.Getenv("STRAVASYNC_PER_PAGE"); perPage != "" {
		var val int
		fmt.Sscanf(perPage, "%d", &val)
		if val > 0 {
			c.Fetch.PerPage = val
		}
	}

	if logLevel := os.Getenv("STRAVASYNC_LOG_LEVEL"); logLevel != "" {
		c.Logging.Level = logLevel
	}

	return nil
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	// If path is empty, try default locations
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil // No config file found, not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	locations := []string{
		".stravasync.yaml",
		".stravasync.yml",
		filepath.Join(os.Getenv("HOME"), ".config", "stravasync", "config.yaml"),
		filepath.Join(os.Getenv("HOME"), ".config", "stravasync", "config.yml"),
		filepath.Join(os.Getenv("HOME"), ".stravasync.yaml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid. Credentials are not
// validated here: read-only commands (list, stats) operate on the local
// store without touching the API.
func (c *Config) Validate() error {
	var errs []error

	if c.RateLimit.MaxRequests <= 0 {
		errs = append(errs, errors.New("max requests must be positive"))
	}
	if c.RateLimit.Window <= 0 {
		errs = append(errs, errors.New("rate limit window must be positive"))
	}
	if c.RateLimit.WarningMargin < 0 {
		errs = append(errs, errors.New("warning margin cannot be negative"))
	}
	if c.RateLimit.WarningMargin >= c.RateLimit.MaxRequests {
		errs = append(errs, errors.New("warning margin must be smaller than max requests"))
	}

	if c.Fetch.PerPage <= 0 {
		errs = append(errs, errors.New("per page must be positive"))
	}
	if c.Fetch.PerPage > 200 {
		errs = append(errs, errors.New("per page should not exceed 200"))
	}
	if c.Fetch.FlushPages <= 0 {
		errs = append(errs, errors.New("flush pages must be positive"))
	}
	if c.Fetch.PageDelay < 0 {
		errs = append(errs, errors.New("page delay cannot be negative"))
	}
	if c.Fetch.MaxRetries < 0 {
		errs = append(errs, errors.New("max retries cannot be negative"))
	}

	if c.Storage.DataDirectory == "" {
		errs = append(errs, errors.New("data directory is required"))
	}
	if c.Storage.NameMaxLength <= 0 {
		errs = append(errs, errors.New("name max length must be positive"))
	}

	if c.Strava.BaseURL == "" {
		errs = append(errs, errors.New("Strava base URL is required"))
	}
	if c.Strava.Timeout <= 0 {
		errs = append(errs, errors.New("request timeout must be positive"))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if dataDir, ok := flags["data-dir"].(string); ok && dataDir != "" {
		c.Storage.DataDirectory = dataDir
	}
	if maxRequests, ok := flags["max-requests"].(int); ok && maxRequests > 0 {
		c.RateLimit.MaxRequests = maxRequests
	}
	if perPage, ok := flags["per-page"].(int); ok && perPage > 0 {
		c.Fetch.PerPage = perPage
	}
	if pageDelay, ok := flags["page-delay"].(time.Duration); ok && pageDelay > 0 {
		c.Fetch.PageDelay = pageDelay
	}
	if streamTypes, ok := flags["stream-types"].([]string); ok && len(streamTypes) > 0 {
		c.Fetch.StreamTypes = streamTypes
	}
	if logLevel, ok := flags["log-level"].(string); ok && logLevel != "" {
		c.Logging.Level = logLevel
	}
}

// Load loads configuration from all sources with proper precedence.
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	// Try to load .env files (don't fail if they don't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".stravasync.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
