package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"igleads/pkg/auth"
	"igleads/pkg/config"
	"igleads/pkg/ui"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage igleads configuration files.

Configuration can be loaded from:
  - Command line flags (highest priority)
  - Environment variables (IGLEADS_*)
  - .env file
  - Configuration file
  - Default values (lowest priority)`,
}

// configInitCmd represents the config init command
var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a configuration file with every option at its default",
	Long: `Create a configuration file with every option at its default and a
placeholder account.

The file is created as '.igleads.yaml' in the current directory unless a
different path is given with --config.`,
	Run: runConfigInit,
}

// configShowCmd represents the config show command
var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long: `Show the configuration after merging every source. Passwords and the
store connection string are masked.`,
	Run: runConfigShow,
}

// configValidateCmd represents the config validate command
var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration",
	Long: `Validate the configuration and check the environment it needs:
  - YAML syntax and value ranges
  - Accounts and their passwords or saved sessions
  - Writable cookie, data and log locations`,
	Run: runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) {
	configPath := configFile
	if configPath == "" {
		configPath = ".igleads.yaml"
	}

	if _, err := os.Stat(configPath); err == nil {
		ui.PrintError("Configuration file already exists", configPath)
		fmt.Println("\nTo overwrite, first remove the existing file:")
		fmt.Printf("  rm %s\n", configPath)
		os.Exit(1)
	}

	cfg := config.DefaultConfig()
	cfg.Accounts = []config.AccountConfig{{
		Username: "your_username",
		Handle:   "Your Display Name",
	}}
	cfg.Storage.DataDir = "data"

	if err := cfg.Save(configPath); err != nil {
		ui.PrintError("Failed to create configuration file", err.Error())
		os.Exit(1)
	}

	ui.PrintSuccess("Configuration file created: " + configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("1. Replace the placeholder account with your own accounts")
	fmt.Println("2. Store each password with 'igleads accounts set-password <username>'")
	fmt.Println("3. Run 'igleads config validate' to check the configuration")
	fmt.Println("4. Start with 'igleads scrape hashtag <term> --dry-run'")
}

func runConfigShow(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(configFile, nil)
	if err != nil {
		ui.PrintError("Failed to load configuration", err.Error())
		os.Exit(1)
	}

	display := *cfg
	display.Accounts = append([]config.AccountConfig(nil), cfg.Accounts...)
	for i := range display.Accounts {
		if display.Accounts[i].Password != "" {
			display.Accounts[i].Password = auth.MaskSecret(display.Accounts[i].Password)
		}
	}
	display.Proxies = append([]config.ProxyConfig(nil), cfg.Proxies...)
	for i := range display.Proxies {
		if display.Proxies[i].Password != "" {
			display.Proxies[i].Password = auth.MaskSecret(display.Proxies[i].Password)
		}
	}
	if display.Store.DSN != "" && display.Store.Driver == "postgres" {
		display.Store.DSN = auth.MaskSecret(display.Store.DSN)
	}

	data, err := yaml.Marshal(&display)
	if err != nil {
		ui.PrintError("Failed to format configuration", err.Error())
		os.Exit(1)
	}

	ui.PrintHighlight("Current Configuration")
	fmt.Println()
	fmt.Print(string(data))

	fmt.Println("\nConfiguration sources (in order of priority):")
	fmt.Println("1. Command line flags")
	fmt.Println("2. Environment variables (IGLEADS_*)")
	fmt.Println("3. .env file")
	if configFile != "" {
		fmt.Printf("4. Configuration file: %s\n", configFile)
	} else {
		fmt.Println("4. Configuration file: (searched in default locations)")
	}
	fmt.Println("5. Default values")
}

func runConfigValidate(cmd *cobra.Command, args []string) {
	if configFile != "" {
		ui.PrintInfo("Validating configuration", configFile)
	}

	cfg, err := config.Load(configFile, nil)
	if err != nil {
		ui.PrintError("Configuration validation failed", err.Error())
		os.Exit(1)
	}

	var warnings, problems []string

	resolvePasswords(cfg)
	for _, acc := range cfg.Accounts {
		if acc.Password == "" {
			warnings = append(warnings, fmt.Sprintf("account %s has no password, only saved cookies can log it in", acc.Username))
		}
		if acc.Handle == "" {
			warnings = append(warnings, fmt.Sprintf("account %s has no handle, identity checks fall back to the user id", acc.Username))
		}
	}

	for _, dir := range []string{cfg.Storage.CookieDir, cfg.Storage.DataDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			problems = append(problems, fmt.Sprintf("cannot create %s: %v", dir, err))
		}
	}
	if cfg.Logging.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Logging.File), 0755); err != nil {
			problems = append(problems, fmt.Sprintf("cannot create log directory: %v", err))
		}
	}
	if !cfg.Browser.Headless && os.Getenv("DISPLAY") == "" && os.Getenv("WAYLAND_DISPLAY") == "" {
		warnings = append(warnings, "headful browser requested but no display is set")
	}
	if cfg.Metrics.Enabled && cfg.Metrics.Address == "" {
		problems = append(problems, "metrics enabled without an address")
	}

	if len(problems) > 0 {
		ui.PrintError("Configuration has errors")
		for _, p := range problems {
			fmt.Printf("  - %s\n", p)
		}
		os.Exit(1)
	}

	if len(warnings) > 0 {
		ui.PrintWarning("Configuration warnings")
		for _, w := range warnings {
			fmt.Printf("  - %s\n", w)
		}
		fmt.Println()
	}

	ui.PrintSuccess("Configuration is valid")

	fmt.Println("\nConfiguration summary:")
	fmt.Printf("  Accounts: %d\n", len(cfg.Accounts))
	fmt.Printf("  Proxies: %d\n", len(cfg.Proxies))
	fmt.Printf("  Lead store: %s\n", cfg.Store.Driver)
	fmt.Printf("  Target language: %s\n", cfg.Validation.TargetLanguage)
	fmt.Printf("  Discovery: %t (max %d variations)\n", cfg.Discovery.Enabled, cfg.Discovery.MaxVariations)
	fmt.Printf("  Navigation budget: %d per minute\n", cfg.Navigation.MaxPerMinute)
	fmt.Printf("  Log level: %s\n", cfg.Logging.Level)
}
