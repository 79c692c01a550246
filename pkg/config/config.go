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

// Config holds all configuration options for the timeline exporter
type Config struct {
	// X/Twitter credentials and identity
	Twitter TwitterConfig `yaml:"twitter" json:"twitter"`

	// Browser driver settings
	Browser BrowserConfig `yaml:"browser" json:"browser"`

	// Export session behaviour
	Session SessionConfig `yaml:"session" json:"session"`

	// Quota-driven pacing configuration
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`

	// Resume cache settings
	Resume ResumeConfig `yaml:"resume" json:"resume"`

	// Export artifact settings
	Output OutputConfig `yaml:"output" json:"output"`

	// Scheduled (unattended) export settings
	Schedule ScheduleConfig `yaml:"schedule" json:"schedule"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// TwitterConfig holds the cookie credentials the browser session is
// authenticated with. Values here are overridden by credentials resolved
// from the keychain at run time.
type TwitterConfig struct {
	AuthToken string `yaml:"auth_token" json:"auth_token"`
	CSRFToken string `yaml:"csrf_token" json:"csrf_token"`
	UserAgent string `yaml:"user_agent" json:"user_agent"`
}

// BrowserConfig holds Chrome driver configuration
type BrowserConfig struct {
	Headless          bool          `yaml:"headless" json:"headless"`
	ExecPath          string        `yaml:"exec_path" json:"exec_path"`
	NavigationTimeout time.Duration `yaml:"navigation_timeout" json:"navigation_timeout"`
	WindowWidth       int           `yaml:"window_width" json:"window_width"`
	WindowHeight      int           `yaml:"window_height" json:"window_height"`
	// Bound on concurrent response-body fetches from the devtools event stream.
	BodyFetchConcurrency int `yaml:"body_fetch_concurrency" json:"body_fetch_concurrency"`
}

// SessionConfig holds the scroll loop behaviour
type SessionConfig struct {
	MaxScrolls int `yaml:"max_scrolls" json:"max_scrolls"`
	// Consecutive polls with an unchanged page extent before the session
	// is considered naturally finished.
	StableExtentLimit int `yaml:"stable_extent_limit" json:"stable_extent_limit"`
	// Idle time before the "looks done" prompt may fire.
	IdleThreshold time.Duration `yaml:"idle_threshold" json:"idle_threshold"`
	// Pause after clicking the provider's retry card.
	ErrorRetryWait time.Duration `yaml:"error_retry_wait" json:"error_retry_wait"`
}

// RateLimitConfig holds quota pacing configuration. Defaults mirror the
// provider's observed behaviour; override with care.
type RateLimitConfig struct {
	BatchSize                  int           `yaml:"batch_size" json:"batch_size"`
	LowRemainingThreshold      int           `yaml:"low_remaining_threshold" json:"low_remaining_threshold"`
	ElevatedRemainingThreshold int           `yaml:"elevated_remaining_threshold" json:"elevated_remaining_threshold"`
	BaseDelay                  time.Duration `yaml:"base_delay" json:"base_delay"`
	ElevatedDelay              time.Duration `yaml:"elevated_delay" json:"elevated_delay"`
	MaxDelay                   time.Duration `yaml:"max_delay" json:"max_delay"`
	CooldownDuration           time.Duration `yaml:"cooldown_duration" json:"cooldown_duration"`
	ResetBuffer                time.Duration `yaml:"reset_buffer" json:"reset_buffer"`
}

// ResumeConfig holds resume cache configuration
type ResumeConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
	// Saved progress older than this is evicted on restore.
	MaxAge time.Duration `yaml:"max_age" json:"max_age"`
	// Directory for the sqlite store and the fallback key files.
	// Empty selects the per-OS data directory.
	StateDirectory string `yaml:"state_directory" json:"state_directory"`
}

// OutputConfig holds export artifact configuration
type OutputConfig struct {
	BaseDirectory   string `yaml:"base_directory" json:"base_directory"`
	FileNamePattern string `yaml:"file_name_pattern" json:"file_name_pattern"`
	Format          string `yaml:"format" json:"format"`
	WriteSummary    bool   `yaml:"write_summary" json:"write_summary"`
}

// ScheduleConfig holds unattended recurring export configuration
type ScheduleConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	Cron     string `yaml:"cron" json:"cron"`
	Timezone string `yaml:"timezone" json:"timezone"`
	// Hard ceiling per scheduled run.
	RunTimeout time.Duration `yaml:"run_timeout" json:"run_timeout"`
	// How the looks-done prompt is answered when nobody is watching:
	// "finish" or "continue".
	AutoConfirm string `yaml:"auto_confirm" json:"auto_confirm"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string `yaml:"level" json:"level"`
	File       string `yaml:"file" json:"file"`
	MaxSize    int    `yaml:"max_size" json:"max_size"`
	MaxBackups int    `yaml:"max_backups" json:"max_backups"`
	MaxAge     int    `yaml:"max_age" json:"max_age"`
	Compress   bool   `yaml:"compress" json:"compress"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Twitter: TwitterConfig{
			UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		},
		Browser: BrowserConfig{
			Headless:             true,
			NavigationTimeout:    45 * time.Second,
			WindowWidth:          1280,
			WindowHeight:         1600,
			BodyFetchConcurrency: 4,
		},
		Session: SessionConfig{
			MaxScrolls:        1000,
			StableExtentLimit: 8,
			IdleThreshold:     30 * time.Second,
			ErrorRetryWait:    5 * time.Second,
		},
		RateLimit: RateLimitConfig{
			BatchSize:                  20,
			LowRemainingThreshold:      10,
			ElevatedRemainingThreshold: 20,
			BaseDelay:                  3 * time.Second,
			ElevatedDelay:              5 * time.Second,
			MaxDelay:                   8 * time.Second,
			CooldownDuration:           3 * time.Minute,
			ResetBuffer:                10 * time.Second,
		},
		Resume: ResumeConfig{
			Enabled: true,
			MaxAge:  7 * 24 * time.Hour,
		},
		Output: OutputConfig{
			BaseDirectory:   "./exports",
			FileNamePattern: "{username}_tweets_{date}.{format}",
			Format:          "json",
			WriteSummary:    true,
		},
		Schedule: ScheduleConfig{
			Enabled:     false,
			Timezone:    "Local",
			RunTimeout:  30 * time.Minute,
			AutoConfirm: "finish",
		},
		Logging: LoggingConfig{
			Level:      "info",
			File:       "",
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     7,
			Compress:   false,
		},
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	if authToken := os.Getenv("XSCRAPER_AUTH_TOKEN"); authToken != "" {
		c.Twitter.AuthToken = authToken
	}
	if csrfToken := os.Getenv("XSCRAPER_CSRF_TOKEN"); csrfToken != "" {
		c.Twitter.CSRFToken = csrfToken
	}
	if userAgent := os.Getenv("XSCRAPER_USER_AGENT"); userAgent != "" {
		c.Twitter.UserAgent = userAgent
	}

	if headless := os.Getenv("XSCRAPER_HEADLESS"); headless != "" {
		c.Browser.Headless = strings.ToLower(headless) == "true"
	}
	if execPath := os.Getenv("XSCRAPER_CHROME_PATH"); execPath != "" {
		c.Browser.ExecPath = execPath
	}

	if maxScrolls := os.Getenv("XSCRAPER_MAX_SCROLLS"); maxScrolls != "" {
		var val int
		fmt.Sscanf(maxScrolls, "%d", &val)
		if val > 0 {
			c.Session.MaxScrolls = val
		}
	}

	if outputDir := os.Getenv("XSCRAPER_OUTPUT_DIR"); outputDir != "" {
		c.Output.BaseDirectory = outputDir
	}
	if format := os.Getenv("XSCRAPER_FORMAT"); format != "" {
		c.Output.Format = format
	}

	if stateDir := os.Getenv("XSCRAPER_STATE_DIR"); stateDir != "" {
		c.Resume.StateDirectory = stateDir
	}
	if resume := os.Getenv("XSCRAPER_RESUME"); resume != "" {
		c.Resume.Enabled = strings.ToLower(resume) == "true"
	}

	if logLevel := os.Getenv("XSCRAPER_LOG_LEVEL"); logLevel != "" {
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
	// Check in order of precedence
	locations := []string{
		".xscraper.yaml",
		".xscraper.yml",
		filepath.Join(os.Getenv("HOME"), ".config", "xscraper", "config.yaml"),
		filepath.Join(os.Getenv("HOME"), ".config", "xscraper", "config.yml"),
		filepath.Join(os.Getenv("HOME"), ".xscraper.yaml"),
		filepath.Join(os.Getenv("HOME"), ".xscraper.yml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid.
//
// Credentials are deliberately not validated here: they may be resolved
// from the keychain or prompted for after the config is loaded.
func (c *Config) Validate() error {
	var errs []error

	if c.Session.MaxScrolls <= 0 {
		errs = append(errs, errors.New("max scrolls must be positive"))
	}
	if c.Session.StableExtentLimit <= 0 {
		errs = append(errs, errors.New("stable extent limit must be positive"))
	}
	if c.Session.IdleThreshold <= 0 {
		errs = append(errs, errors.New("idle threshold must be positive"))
	}

	if c.RateLimit.BatchSize <= 0 {
		errs = append(errs, errors.New("rate limit batch size must be positive"))
	}
	if c.RateLimit.LowRemainingThreshold < 0 {
		errs = append(errs, errors.New("low remaining threshold cannot be negative"))
	}
	if c.RateLimit.ElevatedRemainingThreshold < c.RateLimit.LowRemainingThreshold {
		errs = append(errs, errors.New("elevated remaining threshold must not be below the low threshold"))
	}
	if c.RateLimit.BaseDelay <= 0 || c.RateLimit.ElevatedDelay <= 0 || c.RateLimit.MaxDelay <= 0 {
		errs = append(errs, errors.New("pacing delays must be positive"))
	}
	if c.RateLimit.CooldownDuration <= 0 {
		errs = append(errs, errors.New("cooldown duration must be positive"))
	}

	if c.Resume.MaxAge <= 0 {
		errs = append(errs, errors.New("resume max age must be positive"))
	}

	if c.Output.BaseDirectory == "" {
		errs = append(errs, errors.New("output directory is required"))
	}
	if c.Output.FileNamePattern == "" {
		errs = append(errs, errors.New("file name pattern is required"))
	}
	validFormats := map[string]bool{
		"json": true, "csv": true,
	}
	if !validFormats[strings.ToLower(c.Output.Format)] {
		errs = append(errs, errors.New("invalid output format"))
	}

	if c.Schedule.Enabled && c.Schedule.Cron == "" {
		errs = append(errs, errors.New("schedule cron expression is required when scheduling is enabled"))
	}
	validConfirm := map[string]bool{
		"finish": true, "continue": true,
	}
	if !validConfirm[strings.ToLower(c.Schedule.AutoConfirm)] {
		errs = append(errs, errors.New("invalid auto confirm mode"))
	}

	if c.Browser.NavigationTimeout <= 0 {
		errs = append(errs, errors.New("navigation timeout must be positive"))
	}
	if c.Browser.BodyFetchConcurrency <= 0 {
		errs = append(errs, errors.New("body fetch concurrency must be positive"))
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

	// Create directory if it doesn't exist
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
	if authToken, ok := flags["auth-token"].(string); ok && authToken != "" {
		c.Twitter.AuthToken = authToken
	}
	if csrfToken, ok := flags["csrf-token"].(string); ok && csrfToken != "" {
		c.Twitter.CSRFToken = csrfToken
	}
	if outputDir, ok := flags["output"].(string); ok && outputDir != "" {
		c.Output.BaseDirectory = outputDir
	}
	if format, ok := flags["format"].(string); ok && format != "" {
		c.Output.Format = format
	}
	if maxScrolls, ok := flags["max-scrolls"].(int); ok && maxScrolls > 0 {
		c.Session.MaxScrolls = maxScrolls
	}
	if headless, ok := flags["headless"].(bool); ok {
		c.Browser.Headless = headless
	}
	if resume, ok := flags["resume"].(bool); ok {
		c.Resume.Enabled = resume
	}
	if schedule, ok := flags["schedule"].(string); ok && schedule != "" {
		c.Schedule.Enabled = true
		c.Schedule.Cron = schedule
	}
	if logLevel, ok := flags["log-level"].(string); ok && logLevel != "" {
		c.Logging.Level = logLevel
	}
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	// Try to load .env files (don't fail if they don't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".env"))
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".xscraper.env"))

	// Start with defaults
	config := DefaultConfig()

	// Load from config file
	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	// Override with environment variables (includes values from .env)
	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	// Override with command line flags
	config.MergeCommandLineFlags(flags)

	// Validate final configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
