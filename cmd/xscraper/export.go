package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"xscraper/internal/browser"
	"xscraper/internal/scheduler"
	"xscraper/internal/store"
	"xscraper/pkg/auth"
	"xscraper/pkg/capture"
	"xscraper/pkg/checkpoint"
	"xscraper/pkg/config"
	"xscraper/pkg/exporter"
	"xscraper/pkg/logger"
	"xscraper/pkg/storage"
	"xscraper/pkg/timeline"
	"xscraper/pkg/ui"
)

var (
	// Export command flags
	outputDir    string
	format       string
	maxScrolls   int
	accountName  string
	noResume     bool
	freshRun     bool
	headless     bool
	autoConfirm  string
	scheduleSpec string
	searchQuery  string
	withReplies  bool
)

// exportCmd represents the export command
var exportCmd = &cobra.Command{
	Use:   "export <username>",
	Short: "Export a user's timeline to JSON or CSV",
	Long: `Export all tweets from an X/Twitter user's timeline.

The exporter drives a real Chrome session: it opens the profile, scrolls,
and captures the timeline responses the page itself requests. Valid session
cookies are required, configured through:
  - Stored credentials (use 'xscraper auth login' to store)
  - Environment variables (XSCRAPER_AUTH_TOKEN and XSCRAPER_CSRF_TOKEN)
  - Configuration file

Progress is saved between sessions. A run stopped by a rate limit or an
interrupt resumes where it left off the next time the same username is
exported.`,
	Example: `  # Export a timeline using default settings
  xscraper export jack

  # Export to a specific directory as CSV
  xscraper export jack --output ./archives --format csv

  # Use a specific stored account
  xscraper export jack --account myaccount

  # Include replies, or export a search timeline instead
  xscraper export jack --with-replies
  xscraper export jack --search "from:jack filter:links"

  # Start over, discarding saved progress
  xscraper export jack --fresh

  # Watch the browser work
  xscraper export jack --headless=false

  # Unattended recurring export, completing when the timeline looks done
  xscraper export jack --schedule "0 3 * * *" --auto-confirm finish`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		runExport(cmd, args)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)

	// Local flags for export command
	exportCmd.Flags().StringVarP(&outputDir, "output", "o", "", "output directory for export artifacts (default from config)")
	exportCmd.Flags().StringVar(&format, "format", "", "artifact format: json or csv (default from config)")
	exportCmd.Flags().IntVar(&maxScrolls, "max-scrolls", 0, "maximum scroll steps for the session (0 = from config)")
	exportCmd.Flags().StringVarP(&accountName, "account", "a", "", "use specific stored account")
	exportCmd.Flags().BoolVar(&noResume, "no-resume", false, "do not restore or save progress for this run")
	exportCmd.Flags().BoolVar(&freshRun, "fresh", false, "discard saved progress before starting")
	exportCmd.Flags().BoolVar(&headless, "headless", true, "run the browser headless")
	exportCmd.Flags().StringVar(&autoConfirm, "auto-confirm", "", `answer the looks-done prompt unattended: "finish" or "continue"`)
	exportCmd.Flags().StringVar(&scheduleSpec, "schedule", "", "cron expression for unattended recurring exports")
	exportCmd.Flags().StringVar(&searchQuery, "search", "", "export the live search timeline for a query instead of the profile")
	exportCmd.Flags().BoolVar(&withReplies, "with-replies", false, "export the tweets-and-replies timeline")

	// Also add these flags to root command for backward compatibility
	rootCmd.Flags().StringVarP(&outputDir, "output", "o", "", "output directory for export artifacts (default from config)")
	rootCmd.Flags().StringVar(&format, "format", "", "artifact format: json or csv (default from config)")
	rootCmd.Flags().IntVar(&maxScrolls, "max-scrolls", 0, "maximum scroll steps for the session (0 = from config)")
	rootCmd.Flags().StringVarP(&accountName, "account", "a", "", "use specific stored account")
	rootCmd.Flags().BoolVar(&noResume, "no-resume", false, "do not restore or save progress for this run")
	rootCmd.Flags().BoolVar(&freshRun, "fresh", false, "discard saved progress before starting")
	rootCmd.Flags().BoolVar(&withReplies, "with-replies", false, "export the tweets-and-replies timeline")
}

func runExport(cmd *cobra.Command, args []string) {
	username := strings.TrimSpace(args[0])
	if !timeline.IsValidUsername(username) {
		ui.PrintError("Invalid username", username)
		os.Exit(1)
	}

	// Set quiet mode if log level is error
	if logLevel == "error" {
		ui.SetQuietMode(true)
	}
	ui.PrintInfo("Target account", "@"+timeline.NormalizeUsername(username))

	// Build flags map from command line
	flags := make(map[string]interface{})
	if outputDir != "" {
		flags["output"] = outputDir
	}
	if format != "" {
		flags["format"] = format
	}
	if maxScrolls > 0 {
		flags["max-scrolls"] = maxScrolls
	}
	if noResume {
		flags["resume"] = false
	}
	if !headless {
		flags["headless"] = false
	}
	if scheduleSpec != "" {
		flags["schedule"] = scheduleSpec
	}
	// Pass log level to config
	if logLevel != "info" {
		flags["log-level"] = logLevel
	}

	// Load configuration
	cfg, err := config.Load(configFile, flags)
	if err != nil {
		ui.PrintError("Failed to load configuration", err.Error())
		os.Exit(1)
	}

	if autoConfirm != "" {
		mode := strings.ToLower(autoConfirm)
		if mode != "finish" && mode != "continue" {
			ui.PrintError("Invalid --auto-confirm value", autoConfirm)
			os.Exit(1)
		}
		cfg.Schedule.AutoConfirm = mode
	}

	// Initialize logger
	if err := logger.Initialize(&cfg.Logging); err != nil {
		ui.PrintWarning("Logger setup failed, continuing with defaults", err.Error())
	}
	logger.WithField("version", version).Info("xscraper starting")

	account := resolveAccount(cfg)

	if cfg.Schedule.Enabled {
		runScheduled(cfg, account, username)
		return
	}

	// One-shot sessions prompt interactively unless --auto-confirm was
	// given on the command line.
	auto := strings.ToLower(autoConfirm)
	summary, err := runSession(context.Background(), cfg, account, username, auto)
	if err != nil {
		logger.WithError(err).WithField("username", username).Error("Export failed")
		ui.PrintError("EXPORT FAILED", err.Error())
		os.Exit(1)
	}

	logger.WithField("username", username).Info("Export finished")
	switch summary.Status {
	case "completed":
		ui.PrintSuccess("[EXPORT COMPLETED SUCCESSFULLY]")
	case "cancelled":
		ui.PrintWarning("[EXPORT STOPPED]", "saved progress resumes the next run")
	}
}

// resolveAccount finds session cookies from the account flag, the loaded
// configuration, or the default stored account, in that order. It exits
// the process when nothing usable is found.
func resolveAccount(cfg *config.Config) *auth.Account {
	credManager, err := auth.NewManager()
	if err != nil {
		ui.PrintError("Failed to initialize credential manager", err.Error())
		os.Exit(1)
	}

	var account *auth.Account

	if accountName != "" {
		// Use specific account
		account, err = credManager.Retrieve(accountName)
		if err != nil {
			ui.PrintError("Account not found", accountName)
			ui.PrintInfo("Available accounts", "Use 'xscraper auth list' to see stored accounts")
			os.Exit(1)
		}
	} else if cfg.Twitter.AuthToken != "" && cfg.Twitter.CSRFToken != "" &&
		cfg.Twitter.AuthToken != "YOUR_AUTH_TOKEN" && cfg.Twitter.CSRFToken != "YOUR_CT0_TOKEN" {
		// Use credentials from config/env (backward compatibility)
		logger.Info("Using credentials from configuration")
		account = &auth.Account{
			AuthToken: cfg.Twitter.AuthToken,
			CSRFToken: cfg.Twitter.CSRFToken,
			UserAgent: cfg.Twitter.UserAgent,
		}
	} else {
		// Try to get default account from credential manager
		account, err = credManager.RetrieveDefault()
		if err != nil {
			// No credentials found anywhere
			logger.Error("No credentials found")
			ui.PrintError("No X session credentials found", "")
			fmt.Println("\nTo store credentials securely, run:")
			fmt.Println("  xscraper auth login")
			fmt.Println("\nFor backward compatibility, you can also set environment variables:")
			fmt.Println("  export XSCRAPER_AUTH_TOKEN=your_auth_token")
			fmt.Println("  export XSCRAPER_CSRF_TOKEN=your_ct0_token")
			os.Exit(1)
		}
	}

	if account.UserAgent == "" {
		account.UserAgent = cfg.Twitter.UserAgent
	}
	if account.Username != "" {
		logger.WithField("account", account.Username).Info("Using stored credentials")
		ui.PrintInfo("Using account", account.Username)
	}

	// Final credential validation
	if account.AuthToken == "" || account.AuthToken == "YOUR_AUTH_TOKEN" {
		logger.Error("Missing auth_token cookie")
		ui.PrintError("Missing auth_token cookie", "Run 'xscraper auth login' to store credentials")
		os.Exit(1)
	}
	if account.CSRFToken == "" || account.CSRFToken == "YOUR_CT0_TOKEN" {
		logger.Error("Missing ct0 cookie")
		ui.PrintError("Missing ct0 cookie", "Run 'xscraper auth login' to store credentials")
		os.Exit(1)
	}

	return account
}

// runSession drives one full export: browser up, timeline open, engine
// loop, artifact out. auto selects the unattended answer for session
// prompts; empty means ask on stdin.
func runSession(ctx context.Context, cfg *config.Config, account *auth.Account, username, auto string) (*exporter.Summary, error) {
	ui.PrintHighlight("[INITIATING EXPORT SEQUENCE]")

	feed := capture.NewBuffer()
	drv := browser.NewDriver(cfg.Browser, feed)
	if err := drv.Start(ctx); err != nil {
		return nil, err
	}
	defer drv.Close()

	if err := drv.Authenticate(ctx, account); err != nil {
		return nil, err
	}

	pageURL := timeline.ProfileURL(username)
	if withReplies {
		pageURL = timeline.WithRepliesURL(username)
	}
	if searchQuery != "" {
		pageURL = timeline.SearchURL(searchQuery)
	}
	if err := drv.OpenPage(ctx, pageURL); err != nil {
		return nil, err
	}

	cache, closeCache := openResumeCache(cfg)
	defer closeCache()
	if freshRun && cache != nil {
		cache.Clear(ctx)
		ui.PrintInfo("Resume state", "cleared")
	}

	sink, err := storage.NewManager(cfg.Output.BaseDirectory)
	if err != nil {
		return nil, err
	}

	var notifier *ui.Notifier
	if notifications {
		notifier = ui.NewNotifier()
	}
	console := ui.NewConsole(ui.ConsoleOptions{
		AutoConfirm: auto,
		Notifier:    notifier,
		MaxScrolls:  cfg.Session.MaxScrolls,
	})

	eng, err := exporter.New(cfg, username, exporter.Deps{
		Driver:      drv,
		Feed:        feed,
		Presenter:   console,
		Sink:        sink,
		Cache:       cache,
		ExpectedURL: pageURL,
	})
	if err != nil {
		return nil, err
	}
	console.Bind(eng)

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	if auto == "" {
		go console.RunInteraction(runCtx)
	}

	// First interrupt stops the session cooperatively, the second one
	// abandons it.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-runCtx.Done():
			return
		case <-sigCh:
		}
		ui.PrintWarning("Interrupt received, stopping the session (progress is saved)")
		eng.Cancel()
		select {
		case <-runCtx.Done():
		case <-sigCh:
			ui.PrintError("Forced exit")
			os.Exit(130)
		}
	}()

	summary, runErr := eng.Run(runCtx)

	if summary != nil && summary.Rows > 0 {
		path, exportErr := eng.ExportNow()
		if exportErr != nil {
			logger.WithError(exportErr).Error("Failed to write export artifact")
			ui.PrintError("Failed to write export artifact", exportErr.Error())
		} else {
			ui.PrintInfo("Artifact", path)
			if cfg.Output.WriteSummary {
				if _, err := sink.WriteSummary(filepath.Base(path), summary); err != nil {
					logger.WithError(err).Warn("Failed to write run summary")
				}
			}
		}
	} else if summary != nil {
		ui.PrintWarning("No tweets collected, nothing to export")
	}

	return summary, runErr
}

// openResumeCache builds the two-tier resume cache under the state
// directory. Either tier may be unavailable; resume degrades rather than
// failing the run.
func openResumeCache(cfg *config.Config) (*checkpoint.Cache, func()) {
	noop := func() {}
	if !cfg.Resume.Enabled {
		return nil, noop
	}

	stateDir := cfg.Resume.StateDirectory
	if stateDir == "" {
		stateDir = defaultStateDir()
	}
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		logger.WithError(err).Warn("Resume state directory unavailable, resume disabled")
		return nil, noop
	}

	closeFn := noop
	var primary checkpoint.BlockStore
	if blocks, err := store.OpenBlocks(filepath.Join(stateDir, "resume.db")); err != nil {
		logger.WithError(err).Warn("Resume database unavailable, falling back to key files")
	} else {
		primary = blocks
		closeFn = func() { _ = blocks.Close() }
	}

	var fallback checkpoint.KVStore
	if kv, err := store.NewFileKV(stateDir); err != nil {
		logger.WithError(err).Warn("Resume key files unavailable")
	} else {
		fallback = kv
	}

	if primary == nil && fallback == nil {
		return nil, closeFn
	}
	return checkpoint.New(primary, fallback), closeFn
}

// defaultStateDir places resume state under the user cache directory.
func defaultStateDir() string {
	base, err := os.UserCacheDir()
	if err != nil {
		base = "."
	}
	return filepath.Join(base, "xscraper", "state")
}

// runScheduled keeps the process alive and exports on the configured cron
// schedule until interrupted.
func runScheduled(cfg *config.Config, account *auth.Account, username string) {
	sched, err := scheduler.New(cfg.Schedule)
	if err != nil {
		ui.PrintError("Failed to build schedule", err.Error())
		os.Exit(1)
	}

	auto := strings.ToLower(cfg.Schedule.AutoConfirm)
	err = sched.Schedule(cfg.Schedule.Cron, func(ctx context.Context) error {
		_, runErr := runSession(ctx, cfg, account, username, auto)
		return runErr
	})
	if err != nil {
		ui.PrintError("Invalid schedule", err.Error())
		os.Exit(1)
	}

	sched.Start()
	ui.PrintHighlight("[SCHEDULED MODE]")
	ui.PrintInfo("Cron", cfg.Schedule.Cron)
	ui.PrintInfo("Next run", sched.NextRun().Format("2006-01-02 15:04:05"))
	ui.PrintInfo("Stop", "press Ctrl-C")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	ui.PrintWarning("Stopping the scheduler, cancelling the active run (progress is saved)")
	<-sched.Stop().Done()
	ui.PrintSuccess("Scheduler stopped")
}

// Make export the default command when no subcommand is specified
func init() {
	// Add a hidden alias to make exporting work without the "export" subcommand
	origRunE := rootCmd.RunE
	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		if origRunE != nil {
			return origRunE(cmd, args)
		}
		if len(args) > 0 && !isKnownCommand(args[0]) {
			// If the first argument is not a known command, treat it as a username
			// No need to transfer flags since we're using the same variables
			return exportCmd.RunE(exportCmd, args)
		}
		// Otherwise show help
		return cmd.Help()
	}

	// Set Args to allow arbitrary arguments
	rootCmd.Args = cobra.ArbitraryArgs
}

func isKnownCommand(arg string) bool {
	for _, cmd := range rootCmd.Commands() {
		if cmd.Name() == arg || cmd.HasAlias(arg) {
			return true
		}
	}
	return false
}
