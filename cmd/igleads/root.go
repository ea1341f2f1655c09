package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"igleads/pkg/ui"
)

var (
	// Version information
	version   = "0.4.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile string
	logLevel   string
	quiet      bool
	noLogo     bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "igleads",
	Short: "Collect business leads from Instagram hashtags",
	Long: `igleads drives a real browser through Instagram hashtag grids and the
explore feed, visits post authors and keeps the profiles that pass the
language and activity gates as leads.

Features:
  - Account pool with cooldowns, cookie reuse and automatic rotation
  - Hashtag discovery through top search
  - Human-like pacing with an adaptive slowdown on errors
  - Circuit breaker and per-run session ceilings
  - Resumable runs through per-target checkpoints
  - SQLite or PostgreSQL lead store, or dry runs in memory`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if quiet || logLevel == "error" {
			ui.SetQuietMode(true)
		}
		if !noLogo && (cmd.Name() == "hashtag" || cmd.Name() == "explore" || cmd.Name() == "schedule") {
			ui.PrintLogo()
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is .igleads.yaml or ~/.config/igleads/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress all output except errors")
	rootCmd.PersistentFlags().BoolVar(&noLogo, "no-logo", false, "do not print the logo")

	rootCmd.SetVersionTemplate(`igleads {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}
