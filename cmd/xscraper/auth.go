package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"xscraper/internal/browser"
	"xscraper/pkg/auth"
	"xscraper/pkg/capture"
	"xscraper/pkg/config"
	"xscraper/pkg/timeline"
	"xscraper/pkg/ui"
)

var verifyLogin bool

// authCmd represents the auth command
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage X session credentials",
	Long: `Manage stored X session cookies securely.

Credentials are stored using:
  - System keychain (when available)
  - Encrypted file with PBKDF2 key derivation
  - Environment variables (backward compatibility)

Never share your cookies or config files!`,
}

// loginCmd represents the auth login command
var loginCmd = &cobra.Command{
	Use:   "login [username]",
	Short: "Store X session cookies securely",
	Long: `Store X session cookies securely in the system keychain or encrypted file.

You will be prompted for:
  - X username (if not provided)
  - auth_token (from the auth_token cookie)
  - CSRF token (from the ct0 cookie)
  - User Agent (optional, press Enter for default)

To get these values:
1. Log into x.com in your browser
2. Open Developer Tools (F12)
3. Go to Application/Storage > Cookies > https://x.com
4. Find and copy the auth_token and ct0 values`,
	Example: `  # Interactive login
  xscraper auth login

  # Login with username
  xscraper auth login myusername`,
	Args: cobra.MaximumNArgs(1),
	Run:  runLogin,
}

// logoutCmd represents the auth logout command
var logoutCmd = &cobra.Command{
	Use:   "logout [username]",
	Short: "Remove stored credentials",
	Long: `Remove stored X session cookies.

If no username is provided, you will be shown a list of stored accounts
to choose from. You can also remove all accounts at once.`,
	Example: `  # Interactive logout
  xscraper auth logout

  # Logout specific account
  xscraper auth logout myusername`,
	Args: cobra.MaximumNArgs(1),
	Run:  runLogout,
}

// listCmd represents the auth list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all stored accounts",
	Long:  `List all stored X accounts with sanitized credential information.`,
	Run:   runList,
}

// statusCmd represents the auth status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the account an export would use",
	Long: `Show which stored account an export would pick by default.

With --verify, a browser session is opened with the stored cookies to
check they are still accepted. Session cookies expire when you log out
in the browser or when X invalidates the session.`,
	Example: `  # Show the default account
  xscraper auth status

  # Also check the session still works
  xscraper auth status --verify`,
	Run: runStatus,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(loginCmd)
	authCmd.AddCommand(logoutCmd)
	authCmd.AddCommand(listCmd)
	authCmd.AddCommand(statusCmd)

	statusCmd.Flags().BoolVar(&verifyLogin, "verify", false, "open a browser and check the session is still logged in")
}

func runLogin(cmd *cobra.Command, args []string) {
	manager, err := auth.NewManager()
	if err != nil {
		ui.PrintError("Failed to initialize credential manager", err.Error())
		os.Exit(1)
	}

	var username string
	if len(args) > 0 {
		username = args[0]
	}

	// Interactive prompts
	reader := bufio.NewReader(os.Stdin)

	// Show extraction guide first
	auth.ShowCookieExtractionGuide()

	// Ask if ready to continue
	fmt.Print("Ready to enter your cookies? (Y/n): ")
	ready, _ := reader.ReadString('\n')
	if strings.ToLower(strings.TrimSpace(ready)) == "n" {
		fmt.Println("\nRun 'xscraper auth login' when you're ready.")
		return
	}

	fmt.Println() // Add spacing

	if username == "" {
		fmt.Print("📱 X username: ")
		input, err := reader.ReadString('\n')
		if err != nil {
			ui.PrintError("Failed to read username", err.Error())
			os.Exit(1)
		}
		username = strings.TrimSpace(input)
	}

	username = timeline.NormalizeUsername(username)
	if username == "" {
		ui.PrintError("Username is required", "")
		os.Exit(1)
	}
	if !timeline.IsValidUsername(username) {
		ui.PrintError("Invalid username", username)
		os.Exit(1)
	}

	// Check if account already exists
	if existing, _ := manager.Retrieve(username); existing != nil {
		fmt.Printf("\n⚠️  Account '%s' already exists. Update credentials? (y/N): ", username)
		input, _ := reader.ReadString('\n')
		if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(input)), "y") {
			return
		}
	}

	fmt.Println("\n🔐 Enter your cookie values (they will be hidden as you type):")
	fmt.Println()

	// Get auth token with validation
	var authToken string
	for {
		fmt.Printf("auth_token cookie value: ")
		authToken, err = readPassword()
		if err != nil {
			ui.PrintError("Failed to read auth token", err.Error())
			os.Exit(1)
		}

		// Basic validation
		if len(authToken) != 40 || !isHexString(authToken) {
			fmt.Println("\n❌ That doesn't look like a valid auth_token.")
			fmt.Println("   It should be exactly 40 hex characters.")
			fmt.Println("   Example: 1f2acc93e78f104a37ab2ad5a34bcfe6f3a81a9e")
			fmt.Print("\nTry again? (Y/n): ")
			retry, _ := reader.ReadString('\n')
			if strings.ToLower(strings.TrimSpace(retry)) == "n" {
				os.Exit(1)
			}
			continue
		}
		break
	}

	// Get CSRF token with validation
	var csrfToken string
	for {
		fmt.Printf("\nct0 cookie value: ")
		csrfToken, err = readPassword()
		if err != nil {
			ui.PrintError("Failed to read CSRF token", err.Error())
			os.Exit(1)
		}

		// Basic validation
		if len(csrfToken) < 32 || !isHexString(csrfToken) {
			fmt.Println("\n❌ That doesn't look like a valid ct0 token.")
			fmt.Println("   It should be a hex string of at least 32 characters.")
			fmt.Println("   Newer sessions use 160 characters.")
			fmt.Print("\nTry again? (Y/n): ")
			retry, _ := reader.ReadString('\n')
			if strings.ToLower(strings.TrimSpace(retry)) == "n" {
				os.Exit(1)
			}
			continue
		}
		break
	}

	// Optional: Get user agent
	fmt.Print("\n\n🌐 User Agent (press Enter to use default): ")
	userAgent, _ := reader.ReadString('\n')
	userAgent = strings.TrimSpace(userAgent)

	// Show what we're about to do
	fmt.Println("\n📋 Summary:")
	fmt.Printf("   Username: %s\n", username)
	fmt.Printf("   auth_token: %s...%s (hidden)\n", authToken[:8], authToken[len(authToken)-4:])
	fmt.Printf("   ct0: %s...%s (hidden)\n", csrfToken[:4], csrfToken[len(csrfToken)-4:])
	if userAgent != "" {
		fmt.Printf("   User Agent: %s\n", userAgent)
	}

	// Create account
	account := &auth.Account{
		Username:     username,
		AuthToken:    authToken,
		CSRFToken:    csrfToken,
		UserAgent:    userAgent,
		LastModified: time.Now(),
	}

	// Store credentials
	fmt.Println("\n💾 Storing credentials securely...")
	if err := manager.Store(account); err != nil {
		ui.PrintError("Failed to store credentials", err.Error())
		os.Exit(1)
	}

	// Set as default if it's the first account
	accounts, _ := manager.List()
	if len(accounts) == 1 {
		// First account becomes default automatically
		fmt.Printf("✅ Set '%s' as default account\n", username)
	}

	fmt.Println("\n🎉 Credentials stored successfully!")
	ui.PrintSuccess(fmt.Sprintf("Account saved: %s", username))

	// Show where credentials are stored
	fmt.Println("\n🔒 Security Information:")
	fmt.Println("   Your credentials are encrypted and stored in:")
	if auth.IsKeyringAvailable() {
		fmt.Println("   • System keychain (primary)")
	}
	fmt.Println("   • Encrypted file (backup)")

	// Show how to use
	fmt.Println("\n📖 Quick Start Guide:")
	fmt.Println("   Export any timeline you can see:")
	fmt.Printf("   $ xscraper export <x_username>\n")
	fmt.Println("\n   Example:")
	fmt.Printf("   $ xscraper export jack\n")
	fmt.Println("\n   Use specific account:")
	fmt.Printf("   $ xscraper export <x_username> --account %s\n", username)
	fmt.Println("\n   Show more options:")
	fmt.Printf("   $ xscraper export --help\n")
	fmt.Println("\n⚠️  Never share your cookies or config files!")
}

func runLogout(cmd *cobra.Command, args []string) {
	manager, err := auth.NewManager()
	if err != nil {
		ui.PrintError("Failed to initialize credential manager", err.Error())
		os.Exit(1)
	}

	if len(args) == 0 {
		// List accounts and ask which to remove
		accounts, err := manager.List()
		if err != nil || len(accounts) == 0 {
			ui.PrintError("No stored accounts found", "")
			return
		}

		if len(accounts) == 1 {
			// Only one account, confirm deletion
			account := accounts[0]
			reader := bufio.NewReader(os.Stdin)
			fmt.Printf("Remove account '%s'? (y/N): ", account.Username)
			input, _ := reader.ReadString('\n')
			if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(input)), "y") {
				return
			}

			if err := manager.Delete(account.Username); err != nil {
				ui.PrintError("Failed to remove account", err.Error())
				os.Exit(1)
			}
			ui.PrintSuccess("Account removed: " + account.Username)
			return
		}

		// Multiple accounts, show menu
		fmt.Println("Select account to remove:")
		for i, account := range accounts {
			fmt.Printf("  %d. %s\n", i+1, account.Username)
		}
		fmt.Printf("  %d. Remove all accounts\n", len(accounts)+1)
		fmt.Printf("  0. Cancel\n\n")

		reader := bufio.NewReader(os.Stdin)
		fmt.Print("Choice: ")
		input, _ := reader.ReadString('\n')

		var choice int
		fmt.Sscanf(strings.TrimSpace(input), "%d", &choice)

		if choice == 0 {
			return
		} else if choice == len(accounts)+1 {
			// Remove all
			fmt.Print("Remove ALL accounts? This cannot be undone! (yes/N): ")
			confirm, _ := reader.ReadString('\n')
			if strings.TrimSpace(confirm) != "yes" {
				return
			}

			if err := manager.DeleteAll(); err != nil {
				ui.PrintError("Failed to remove all accounts", err.Error())
				os.Exit(1)
			}
			ui.PrintSuccess("All accounts removed")
			return
		} else if choice > 0 && choice <= len(accounts) {
			account := accounts[choice-1]
			if err := manager.Delete(account.Username); err != nil {
				ui.PrintError("Failed to remove account", err.Error())
				os.Exit(1)
			}
			ui.PrintSuccess("Account removed: " + account.Username)
			return
		} else {
			ui.PrintError("Invalid choice", "")
			os.Exit(1)
		}
	}

	// Username provided as argument
	username := timeline.NormalizeUsername(args[0])
	if err := manager.Delete(username); err != nil {
		ui.PrintError("Failed to remove account", err.Error())
		os.Exit(1)
	}
	ui.PrintSuccess("Account removed: " + username)
}

func runList(cmd *cobra.Command, args []string) {
	manager, err := auth.NewManager()
	if err != nil {
		ui.PrintError("Failed to initialize credential manager", err.Error())
		os.Exit(1)
	}

	accounts, err := manager.List()
	if err != nil {
		ui.PrintError("Failed to list accounts", err.Error())
		os.Exit(1)
	}

	if len(accounts) == 0 {
		ui.PrintInfo("No stored accounts", "Use 'xscraper auth login' to add an account")
		return
	}

	ui.PrintHighlight("Stored Accounts")
	fmt.Println()

	for i, account := range accounts {
		sanitized := auth.SanitizeAccount(account)
		fmt.Printf("%d. Username: %s\n", i+1, sanitized.Username)
		fmt.Printf("   auth_token: %s\n", sanitized.AuthToken)
		fmt.Printf("   ct0: %s\n", sanitized.CSRFToken)
		if sanitized.UserAgent != "" {
			fmt.Printf("   User Agent: %s\n", sanitized.UserAgent)
		}
		fmt.Printf("   Last Modified: %s\n", sanitized.LastModified.Format("2006-01-02 15:04:05"))
		fmt.Println()
	}
}

func runStatus(cmd *cobra.Command, args []string) {
	manager, err := auth.NewManager()
	if err != nil {
		ui.PrintError("Failed to initialize credential manager", err.Error())
		os.Exit(1)
	}

	account, err := manager.RetrieveDefault()
	if err != nil {
		ui.PrintError("No stored accounts found", "")
		fmt.Println("\nStore session cookies with:")
		fmt.Println("  xscraper auth login")
		os.Exit(1)
	}

	sanitized := auth.SanitizeAccount(account)
	ui.PrintHighlight("Default Account")
	fmt.Println()
	fmt.Printf("   Username: %s\n", sanitized.Username)
	fmt.Printf("   auth_token: %s\n", sanitized.AuthToken)
	fmt.Printf("   ct0: %s\n", sanitized.CSRFToken)
	if sanitized.UserAgent != "" {
		fmt.Printf("   User Agent: %s\n", sanitized.UserAgent)
	}
	fmt.Printf("   Last Modified: %s\n", sanitized.LastModified.Format("2006-01-02 15:04:05"))

	if !verifyLogin {
		return
	}

	fmt.Println()
	ui.PrintInfo("Verifying session", "opening a browser")

	cfg, err := config.Load(configFile, nil)
	if err != nil {
		ui.PrintError("Failed to load configuration", err.Error())
		os.Exit(1)
	}
	if account.UserAgent == "" {
		account.UserAgent = cfg.Twitter.UserAgent
	}

	ctx := context.Background()
	drv := browser.NewDriver(cfg.Browser, capture.NewBuffer())
	if err := drv.Start(ctx); err != nil {
		ui.PrintError("Failed to start browser", err.Error())
		os.Exit(1)
	}
	defer drv.Close()

	if err := drv.Authenticate(ctx, account); err != nil {
		ui.PrintError("Failed to apply cookies", err.Error())
		os.Exit(1)
	}

	ok, err := drv.LoggedIn(ctx)
	if err != nil {
		ui.PrintError("Could not verify the session", err.Error())
		os.Exit(1)
	}
	if !ok {
		ui.PrintError("Session rejected", "the stored cookies are no longer valid")
		fmt.Println("\nLog into x.com again and refresh the stored cookies with:")
		fmt.Println("  xscraper auth login " + account.Username)
		os.Exit(1)
	}
	ui.PrintSuccess("Session verified, cookies are valid")
}

// readPassword reads a cookie value from stdin without echoing
func readPassword() (string, error) {
	// Try to read without echo
	if term.IsTerminal(int(syscall.Stdin)) {
		password, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println() // New line after password
		if err == nil {
			return strings.TrimSpace(string(password)), nil
		}
	}

	// Fallback to regular input
	reader := bufio.NewReader(os.Stdin)
	input, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(input), nil
}

func isHexString(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		case r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}
