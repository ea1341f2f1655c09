package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"igleads/pkg/accounts"
	"igleads/pkg/auth"
	"igleads/pkg/config"
	"igleads/pkg/logger"
	"igleads/pkg/storage"
	"igleads/pkg/ui"
)

var forgetCookies bool

// accountsCmd represents the accounts command
var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "Inspect the account pool and manage stored passwords",
	Long: `Inspect the configured account pool and manage login passwords.

Accounts themselves are declared in the config file or through
IGLEADS_ACCOUNT_<n>_* variables. Passwords can live there too, but are better
kept in:
  - System keychain (when available)
  - Encrypted file with PBKDF2 key derivation

Never share your credentials or config files!`,
}

// accountsListCmd represents the accounts list command
var accountsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured accounts with their password and cookie status",
	Run:   runAccountsList,
}

// setPasswordCmd represents the accounts set-password command
var setPasswordCmd = &cobra.Command{
	Use:   "set-password <username>",
	Short: "Store an account password securely",
	Long: `Store the login password of an account in the system keychain or the
encrypted credential file. The password is read without echo.`,
	Example: `  igleads accounts set-password loja_ana`,
	Args:    cobra.ExactArgs(1),
	Run:     runSetPassword,
}

// forgetCmd represents the accounts forget command
var forgetCmd = &cobra.Command{
	Use:   "forget <username>",
	Short: "Remove a stored password and optionally the saved session cookies",
	Example: `  # Forget the password only
  igleads accounts forget loja_ana

  # Also drop the saved session so the next run logs in again
  igleads accounts forget loja_ana --cookies`,
	Args: cobra.ExactArgs(1),
	Run:  runForget,
}

func init() {
	rootCmd.AddCommand(accountsCmd)
	accountsCmd.AddCommand(accountsListCmd)
	accountsCmd.AddCommand(setPasswordCmd)
	accountsCmd.AddCommand(forgetCmd)

	forgetCmd.Flags().BoolVar(&forgetCookies, "cookies", false, "also delete the saved session cookies")
}

func runAccountsList(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig(nil)
	if err != nil {
		ui.PrintError("Failed to load configuration", err.Error())
		os.Exit(1)
	}

	cookies, err := storage.NewCookieStore(cfg.Storage.CookieDir)
	if err != nil {
		ui.PrintError("Failed to open cookie directory", err.Error())
		os.Exit(1)
	}
	pool, err := accounts.NewPool(cfg.Accounts, cookies, cfg.Resilience, logger.GetLogger())
	if err != nil {
		ui.PrintError("Failed to build account pool", err.Error())
		os.Exit(1)
	}

	ui.PrintHighlight("Account Pool")
	fmt.Println()
	ui.PrintBlock(ui.AccountTable(pool.Snapshot(), pool.Current().ID, pool.IPCooldownRemaining(), time.Now()))
	fmt.Println()

	for _, acc := range cfg.Accounts {
		password := "missing"
		if acc.Password != "" {
			password = "stored"
		}
		session := "none"
		if path := cookies.PathFor(acc.Username, acc.CookieFile); cookies.Exists(path) {
			session = "saved (" + path + ")"
		}
		ui.PrintInfo(acc.Username, fmt.Sprintf("password %s, session %s", password, session))
	}
}

func runSetPassword(cmd *cobra.Command, args []string) {
	username := strings.TrimSpace(args[0])

	if cfg, err := config.Load(configFile, nil); err == nil && !hasAccount(cfg, username) {
		ui.PrintWarning("Account is not in the configuration", username)
	}

	manager, err := auth.NewManager()
	if err != nil {
		ui.PrintError("Failed to initialize credential manager", err.Error())
		os.Exit(1)
	}

	if existing, _ := manager.Retrieve(username); existing != nil {
		fmt.Printf("A password for '%s' is already stored. Replace it? (y/N): ", username)
		input, _ := bufio.NewReader(os.Stdin).ReadString('\n')
		if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(input)), "y") {
			return
		}
	}

	fmt.Printf("Password for %s: ", username)
	password, err := readPassword()
	if err != nil {
		ui.PrintError("Failed to read password", err.Error())
		os.Exit(1)
	}
	fmt.Print("Repeat password: ")
	confirm, err := readPassword()
	if err != nil {
		ui.PrintError("Failed to read password", err.Error())
		os.Exit(1)
	}
	if password != confirm {
		ui.PrintError("Passwords do not match")
		os.Exit(1)
	}

	if err := manager.Store(&auth.Secret{Username: username, Password: password}); err != nil {
		ui.PrintError("Failed to store password", err.Error())
		os.Exit(1)
	}

	ui.PrintSuccess("Password stored for " + username)
	if auth.IsKeyringAvailable() {
		ui.PrintInfo("Location", "system keychain")
	} else {
		ui.PrintInfo("Location", "encrypted credential file")
	}
}

func runForget(cmd *cobra.Command, args []string) {
	username := strings.TrimSpace(args[0])

	manager, err := auth.NewManager()
	if err != nil {
		ui.PrintError("Failed to initialize credential manager", err.Error())
		os.Exit(1)
	}

	if err := manager.Delete(username); err != nil {
		ui.PrintWarning("No stored password", username)
	} else {
		ui.PrintSuccess("Password removed for " + username)
	}

	if !forgetCookies {
		return
	}
	cfg, err := config.Load(configFile, nil)
	if err != nil {
		ui.PrintError("Failed to load configuration", err.Error())
		os.Exit(1)
	}
	cookies, err := storage.NewCookieStore(cfg.Storage.CookieDir)
	if err != nil {
		ui.PrintError("Failed to open cookie directory", err.Error())
		os.Exit(1)
	}
	explicit := ""
	for _, acc := range cfg.Accounts {
		if acc.Username == username {
			explicit = acc.CookieFile
		}
	}
	if err := cookies.Delete(cookies.PathFor(username, explicit)); err != nil {
		ui.PrintError("Failed to delete session cookies", err.Error())
		os.Exit(1)
	}
	ui.PrintSuccess("Session cookies removed for " + username)
}

func hasAccount(cfg *config.Config, username string) bool {
	for _, acc := range cfg.Accounts {
		if acc.Username == username {
			return true
		}
	}
	return false
}

// readPassword reads a password from stdin without echoing
func readPassword() (string, error) {
	if term.IsTerminal(int(syscall.Stdin)) {
		password, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Println()
		if err == nil {
			return string(password), nil
		}
	}

	reader := bufio.NewReader(os.Stdin)
	input, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(input), nil
}
