package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"xscraper/pkg/config"
	"xscraper/pkg/ui"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage xscraper configuration files.

Configuration can be loaded from:
  - Command line flags (highest priority)
  - Environment variables
  - Configuration file
  - Default values (lowest priority)`,
}

// initCmd represents the config init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create an example configuration file",
	Long: `Create an example configuration file with all available options.

The file will be created in the current directory as 'xscraper.yaml'
unless a different path is specified with the --config flag.`,
	Run: runConfigInit,
}

// showCmd represents the config show command
var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long: `Show the current configuration including values from all sources:
  - Command line flags
  - Environment variables
  - Configuration file
  - Default values

Sensitive values like session cookies will be masked for security.`,
	Run: runConfigShow,
}

// validateCmd represents the config validate command
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long: `Validate a configuration file for syntax errors and invalid values.

This command checks:
  - YAML syntax
  - Required fields
  - Value types and ranges
  - Path accessibility
  - Cron expression and timezone when scheduling is enabled`,
	Run: runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(initCmd)
	configCmd.AddCommand(showCmd)
	configCmd.AddCommand(validateCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) {
	// Determine config file path
	configPath := configFile
	if configPath == "" {
		configPath = "xscraper.yaml"
	}

	// Check if file already exists
	if _, err := os.Stat(configPath); err == nil {
		ui.PrintError("Configuration file already exists", configPath)
		fmt.Println("\nTo overwrite, first remove the existing file:")
		fmt.Printf("  rm %s\n", configPath)
		os.Exit(1)
	}

	// Create example configuration
	exampleConfig := `# xscraper Configuration File
#
# This file contains all available configuration options.
# You can also use environment variables prefixed with XSCRAPER_
# For example: XSCRAPER_AUTH_TOKEN, XSCRAPER_CSRF_TOKEN

# X session cookies
# Prefer 'xscraper auth login', which stores cookies in the system
# keychain instead of a plain text file. Uncomment these only for
# throwaway environments.
twitter:
  # auth_token cookie from x.com (40 hex characters)
  # auth_token: "YOUR_AUTH_TOKEN"

  # ct0 cookie from x.com
  # csrf_token: "YOUR_CT0_TOKEN"

  # User agent string (optional)
  # Leave empty to use default
  user_agent: ""

# Browser configuration
browser:
  # Run Chrome without a visible window
  headless: true

  # Path to the Chrome/Chromium binary
  # Leave empty to use the system default
  exec_path: ""

  # Page load timeout
  navigation_timeout: 45s

  # Browser window size
  window_width: 1280
  window_height: 1600

  # Concurrent response body fetches
  # Range: 1-16
  body_fetch_concurrency: 4

# Export session behaviour
session:
  # Maximum scroll steps per session
  max_scrolls: 1000

  # Polls with an unchanged page height before the timeline
  # is considered finished
  stable_extent_limit: 8

  # Idle time before the finish prompt may appear
  idle_threshold: 30s

  # Pause after clicking the timeline's retry card
  error_retry_wait: 5s

# Rate limiting configuration
rate_limit:
  # Responses captured between pacing checkpoints
  batch_size: 20

  # Remaining-quota thresholds for slowing down
  low_remaining_threshold: 10
  elevated_remaining_threshold: 20

  # Scroll pacing delays
  base_delay: 3s
  elevated_delay: 5s
  max_delay: 8s

  # Wait applied when quota runs out without a reset hint
  cooldown_duration: 3m

  # Safety margin added to the provider's reset time
  reset_buffer: 10s

# Resume configuration
resume:
  # Save progress between sessions
  enabled: true

  # Saved progress older than this is discarded
  max_age: 168h

  # Directory for resume state
  # Leave empty to use the per-user cache directory
  state_directory: ""

# Export artifact configuration
output:
  # Directory for export artifacts
  base_directory: "./exports"

  # Artifact file name pattern
  # Placeholders: {username}, {date}, {format}
  file_name_pattern: "{username}_tweets_{date}.{format}"

  # Artifact format: json, csv
  format: "json"

  # Write a run summary next to each artifact
  write_summary: true

# Scheduled export configuration
schedule:
  # Run exports unattended on a cron schedule
  enabled: false

  # Standard cron expression (minute hour dom month dow)
  cron: "0 3 * * *"

  # IANA timezone name, or "Local"
  timezone: "Local"

  # Hard ceiling per scheduled run
  run_timeout: 30m

  # Unattended answer to the finish prompt: finish, continue
  auto_confirm: "finish"

# Logging configuration
logging:
  # Log level: debug, info, warn, error
  level: "info"

  # Log file path (optional)
  # Leave empty to log to stderr only
  file: ""

  # Maximum log file size in MB
  max_size: 100

  # Maximum number of old log files to keep
  max_backups: 3

  # Maximum age of log files in days
  max_age: 7

  # Compress rotated log files
  compress: false
`

	// Write configuration file
	if err := os.WriteFile(configPath, []byte(exampleConfig), 0644); err != nil {
		ui.PrintError("Failed to create configuration file", err.Error())
		os.Exit(1)
	}

	ui.PrintSuccess("Configuration file created: " + configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("1. Store your session cookies with 'xscraper auth login'")
	fmt.Println("2. Run 'xscraper config validate' to check the configuration")
	fmt.Println("3. Start exporting with 'xscraper export <username>'")
}

func runConfigShow(cmd *cobra.Command, args []string) {
	// Load configuration
	cfg, err := config.Load(configFile, nil)
	if err != nil {
		ui.PrintError("Failed to load configuration", err.Error())
		os.Exit(1)
	}

	// Create a sanitized version for display
	displayCfg := *cfg

	// Mask sensitive values
	if displayCfg.Twitter.AuthToken != "" {
		if len(displayCfg.Twitter.AuthToken) > 8 {
			displayCfg.Twitter.AuthToken = displayCfg.Twitter.AuthToken[:4] + "..." + displayCfg.Twitter.AuthToken[len(displayCfg.Twitter.AuthToken)-4:]
		} else {
			displayCfg.Twitter.AuthToken = "***"
		}
	}

	if displayCfg.Twitter.CSRFToken != "" {
		if len(displayCfg.Twitter.CSRFToken) > 8 {
			displayCfg.Twitter.CSRFToken = displayCfg.Twitter.CSRFToken[:4] + "..." + displayCfg.Twitter.CSRFToken[len(displayCfg.Twitter.CSRFToken)-4:]
		} else {
			displayCfg.Twitter.CSRFToken = "***"
		}
	}

	// Convert to YAML for display
	data, err := yaml.Marshal(&displayCfg)
	if err != nil {
		ui.PrintError("Failed to format configuration", err.Error())
		os.Exit(1)
	}

	ui.PrintHighlight("Current Configuration")
	fmt.Println()
	fmt.Print(string(data))

	// Show configuration sources
	fmt.Println("\nConfiguration sources (in order of priority):")
	fmt.Println("1. Command line flags")
	fmt.Println("2. Environment variables (XSCRAPER_*)")
	if configFile != "" {
		fmt.Printf("3. Configuration file: %s\n", configFile)
	} else {
		fmt.Println("3. Configuration file: (not specified)")
	}
	fmt.Println("4. Default values")
}

func runConfigValidate(cmd *cobra.Command, args []string) {
	// Check if config file is specified
	if configFile == "" {
		// Try to find config file in common locations
		possiblePaths := []string{
			"xscraper.yaml",
			"xscraper.yml",
			".xscraper.yaml",
			".xscraper.yml",
			filepath.Join(os.Getenv("HOME"), ".xscraper.yaml"),
			filepath.Join(os.Getenv("HOME"), ".config", "xscraper", "config.yaml"),
		}

		for _, path := range possiblePaths {
			if _, err := os.Stat(path); err == nil {
				configFile = path
				break
			}
		}

		if configFile == "" {
			ui.PrintError("No configuration file found", "Specify a file with --config flag")
			os.Exit(1)
		}
	}

	ui.PrintInfo("Validating configuration", configFile)

	// Try to load and validate configuration
	cfg, err := config.Load(configFile, nil)
	if err != nil {
		ui.PrintError("Configuration validation failed", err.Error())
		os.Exit(1)
	}

	// Perform additional validation checks
	warnings := []string{}
	errors := []string{}

	// Check credentials
	if cfg.Twitter.AuthToken == "" || cfg.Twitter.AuthToken == "YOUR_AUTH_TOKEN" {
		warnings = append(warnings, "auth_token not configured (stored accounts are used instead)")
	}
	if cfg.Twitter.CSRFToken == "" || cfg.Twitter.CSRFToken == "YOUR_CT0_TOKEN" {
		warnings = append(warnings, "ct0 token not configured (stored accounts are used instead)")
	}

	// Check paths
	if cfg.Output.BaseDirectory != "" {
		if err := os.MkdirAll(cfg.Output.BaseDirectory, 0755); err != nil {
			errors = append(errors, fmt.Sprintf("Cannot create output directory: %v", err))
		}
	}

	// Check logging file path
	if cfg.Logging.File != "" {
		dir := filepath.Dir(cfg.Logging.File)
		if err := os.MkdirAll(dir, 0755); err != nil {
			errors = append(errors, fmt.Sprintf("Cannot create log directory: %v", err))
		}
	}

	// Check resume state path
	if cfg.Resume.Enabled && cfg.Resume.StateDirectory != "" {
		if err := os.MkdirAll(cfg.Resume.StateDirectory, 0755); err != nil {
			errors = append(errors, fmt.Sprintf("Cannot create resume state directory: %v", err))
		}
	}

	// Check value ranges
	if cfg.Session.MaxScrolls < 1 || cfg.Session.MaxScrolls > 10000 {
		errors = append(errors, "max_scrolls must be between 1 and 10000")
	}
	if cfg.RateLimit.BatchSize < 1 || cfg.RateLimit.BatchSize > 100 {
		errors = append(errors, "batch_size must be between 1 and 100")
	}
	if cfg.Browser.BodyFetchConcurrency < 1 || cfg.Browser.BodyFetchConcurrency > 16 {
		errors = append(errors, "body_fetch_concurrency must be between 1 and 16")
	}

	// Check schedule settings
	if cfg.Schedule.Enabled {
		if _, err := cron.ParseStandard(cfg.Schedule.Cron); err != nil {
			errors = append(errors, fmt.Sprintf("Invalid cron expression: %v", err))
		}
		if cfg.Schedule.Timezone != "" {
			if _, err := time.LoadLocation(cfg.Schedule.Timezone); err != nil {
				errors = append(errors, fmt.Sprintf("Unknown timezone: %v", err))
			}
		}
	}

	// Display results
	if len(errors) > 0 {
		ui.PrintError("Configuration has errors:", "")
		for _, err := range errors {
			fmt.Printf("  - %s\n", err)
		}
		os.Exit(1)
	}

	if len(warnings) > 0 {
		ui.PrintWarning("Configuration warnings:")
		for _, warn := range warnings {
			fmt.Printf("  - %s\n", warn)
		}
		fmt.Println()
	}

	ui.PrintSuccess("Configuration is valid")

	// Show summary
	fmt.Println("\nConfiguration summary:")
	fmt.Printf("  Output directory: %s\n", cfg.Output.BaseDirectory)
	fmt.Printf("  Artifact format: %s\n", cfg.Output.Format)
	fmt.Printf("  Max scrolls: %d\n", cfg.Session.MaxScrolls)
	fmt.Printf("  Resume: %t\n", cfg.Resume.Enabled)
	fmt.Printf("  Log level: %s\n", cfg.Logging.Level)
}
