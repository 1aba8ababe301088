package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"vkdump/pkg/logger"
)

// Config holds all configuration options for the community dumper.
type Config struct {
	// VK API access
	API APIConfig `yaml:"api" json:"api"`

	// Rate limiting configuration
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`

	// Retry configuration
	Retry RetryConfig `yaml:"retry" json:"retry"`

	// Output settings
	Output OutputConfig `yaml:"output" json:"output"`

	// Dump behavior
	Dump DumpConfig `yaml:"dump" json:"dump"`

	// Logging configuration
	Logging logger.Config `yaml:"logging" json:"logging"`
}

// APIConfig holds VK API configuration. Thresholds and endpoints are vendor
// policy and may change, so none of them are hard-coded elsewhere.
type APIConfig struct {
	AccessToken string        `yaml:"access_token" json:"access_token"`
	Version     string        `yaml:"version" json:"version"`
	BaseURL     string        `yaml:"base_url" json:"base_url"`
	Timeout     time.Duration `yaml:"timeout" json:"timeout"`
}

// RateLimitConfig holds the global throttling configuration.
type RateLimitConfig struct {
	// MinInterval is the minimum gap between any two API calls,
	// process-wide. VK allows 3 requests per second per token.
	MinInterval time.Duration `yaml:"min_interval" json:"min_interval"`

	// Burst, when positive, switches the throttle to a token bucket:
	// up to Burst calls may go out back to back, with the bucket
	// refilled every BurstWindow. Zero keeps the fixed interval.
	Burst       int           `yaml:"burst" json:"burst"`
	BurstWindow time.Duration `yaml:"burst_window" json:"burst_window"`
}

// RetryConfig holds retry and backoff configuration.
type RetryConfig struct {
	MaxAttempts        int           `yaml:"max_attempts" json:"max_attempts"`
	BaseDelay          time.Duration `yaml:"base_delay" json:"base_delay"`
	MaxDelay           time.Duration `yaml:"max_delay" json:"max_delay"`
	RateLimitBaseDelay time.Duration `yaml:"rate_limit_base_delay" json:"rate_limit_base_delay"`
	RateLimitMaxDelay  time.Duration `yaml:"rate_limit_max_delay" json:"rate_limit_max_delay"`
}

// OutputConfig holds output directory configuration.
type OutputConfig struct {
	BaseDirectory string `yaml:"base_directory" json:"base_directory"`
}

// DumpConfig holds per-run dump behavior.
type DumpConfig struct {
	PageSize     int    `yaml:"page_size" json:"page_size"`
	IncludeStats bool   `yaml:"include_stats" json:"include_stats"`
	StatsFrom    string `yaml:"stats_from" json:"stats_from"` // DD/MM/YYYY
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			Version: "5.131",
			BaseURL: "https://api.vk.com/method",
			Timeout: 30 * time.Second,
		},
		RateLimit: RateLimitConfig{
			MinInterval: 350 * time.Millisecond,
			BurstWindow: time.Second,
		},
		Retry: RetryConfig{
			MaxAttempts:        3,
			BaseDelay:          1 * time.Second,
			MaxDelay:           30 * time.Second,
			RateLimitBaseDelay: 5 * time.Second,
			RateLimitMaxDelay:  2 * time.Minute,
		},
		Output: OutputConfig{
			BaseDirectory: ".",
		},
		Dump: DumpConfig{
			PageSize:     100,
			IncludeStats: false,
		},
		Logging: logger.Config{
			Level: "info",
		},
	}
}

// LoadFromEnv loads configuration from environment variables.
func (c *Config) LoadFromEnv() error {
	if token := os.Getenv("VKDUMP_ACCESS_TOKEN"); token != "" {
		c.API.AccessToken = token
	}
	if version := os.Getenv("VKDUMP_API_VERSION"); version != "" {
		c.API.Version = version
	}
	if baseURL := os.Getenv("VKDUMP_API_BASE_URL"); baseURL != "" {
		c.API.BaseURL = baseURL
	}
	if interval := os.Getenv("VKDUMP_MIN_INTERVAL_MS"); interval != "" {
		if val, err := strconv.Atoi(interval); err == nil && val > 0 {
			c.RateLimit.MinInterval = time.Duration(val) * time.Millisecond
		}
	}
	if burst := os.Getenv("VKDUMP_BURST"); burst != "" {
		if val, err := strconv.Atoi(burst); err == nil && val > 0 {
			c.RateLimit.Burst = val
		}
	}
	if attempts := os.Getenv("VKDUMP_MAX_ATTEMPTS"); attempts != "" {
		if val, err := strconv.Atoi(attempts); err == nil && val > 0 {
			c.Retry.MaxAttempts = val
		}
	}
	if outputDir := os.Getenv("VKDUMP_OUTPUT_DIR"); outputDir != "" {
		c.Output.BaseDirectory = outputDir
	}
	if pageSize := os.Getenv("VKDUMP_PAGE_SIZE"); pageSize != "" {
		if val, err := strconv.Atoi(pageSize); err == nil && val > 0 {
			c.Dump.PageSize = val
		}
	}
	if logLevel := os.Getenv("VKDUMP_LOG_LEVEL"); logLevel != "" {
		c.Logging.Level = logLevel
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file.
func (c *Config) LoadFromFile(path string) error {
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil // no config file, not an error
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

// findConfigFile searches for a config file in standard locations.
func (c *Config) findConfigFile() string {
	locations := []string{
		".vkdump.yaml",
		".vkdump.yml",
		filepath.Join(os.Getenv("HOME"), ".config", "vkdump", "config.yaml"),
		filepath.Join(os.Getenv("HOME"), ".vkdump.yaml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	var errs []error

	if c.API.Version == "" {
		errs = append(errs, errors.New("API version is required"))
	}
	if c.API.BaseURL == "" {
		errs = append(errs, errors.New("API base URL is required"))
	}
	if c.API.Timeout <= 0 {
		errs = append(errs, errors.New("API timeout must be positive"))
	}
	if c.RateLimit.MinInterval <= 0 {
		errs = append(errs, errors.New("minimum call interval must be positive"))
	}
	if c.RateLimit.Burst > 0 && c.RateLimit.BurstWindow <= 0 {
		errs = append(errs, errors.New("burst window must be positive when burst is set"))
	}
	if c.Retry.MaxAttempts <= 0 {
		errs = append(errs, errors.New("max retry attempts must be positive"))
	}
	if c.Output.BaseDirectory == "" {
		errs = append(errs, errors.New("output directory is required"))
	}
	if c.Dump.PageSize <= 0 {
		errs = append(errs, errors.New("page size must be positive"))
	}
	if c.Dump.PageSize > 1000 {
		errs = append(errs, errors.New("page size should not exceed 1000"))
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

// Save saves the configuration to a file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// 0600: the file may carry the access token.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration.
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if token, ok := flags["token"].(string); ok && token != "" {
		c.API.AccessToken = token
	}
	if outputDir, ok := flags["output"].(string); ok && outputDir != "" {
		c.Output.BaseDirectory = outputDir
	}
	if pageSize, ok := flags["page-size"].(int); ok && pageSize > 0 {
		c.Dump.PageSize = pageSize
	}
	if statsFrom, ok := flags["stats-from"].(string); ok && statsFrom != "" {
		c.Dump.StatsFrom = statsFrom
		c.Dump.IncludeStats = true
	}
	if maxAttempts, ok := flags["max-retries"].(int); ok && maxAttempts > 0 {
		c.Retry.MaxAttempts = maxAttempts
	}
	if logLevel, ok := flags["log-level"].(string); ok && logLevel != "" {
		c.Logging.Level = logLevel
	}
}

// Load loads configuration from all sources with proper precedence.
// Precedence order: flags > environment variables > .env file > config file > defaults.
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".vkdump.env"))

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

// StatsFromTimestamp parses the DD/MM/YYYY stats start date into a unix
// timestamp. Returns 0 when no date is configured.
func (c *Config) StatsFromTimestamp() (int64, error) {
	if c.Dump.StatsFrom == "" {
		return 0, nil
	}
	t, err := time.Parse("02/01/2006", c.Dump.StatsFrom)
	if err != nil {
		return 0, fmt.Errorf("failed to parse stats start date %q (use DD/MM/YYYY): %w", c.Dump.StatsFrom, err)
	}
	return t.Unix(), nil
}
