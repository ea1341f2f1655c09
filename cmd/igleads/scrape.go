package main

import (
	"context"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"igleads/internal/queue"
	"igleads/pkg/logger"
	"igleads/pkg/scraper"
	"igleads/pkg/ui"
)

var (
	// Scrape command flags
	maxProfiles int
	accountName string
	resumeRun   bool
	dryRun      bool
	noDiscovery bool
	headful     bool
	showLeads   bool
	outputDir   string
	storeDSN    string
	storeDriver string
	language    string
)

// scrapeCmd groups the scrape operations
var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Collect leads from hashtags or the explore feed",
	Long: `Collect leads by walking hashtag grids or the explore feed.

Runs are executed one at a time. Every run prints a summary and writes a JSON
report under <data_dir>/runs unless --output is given. Interrupting with
Ctrl+C stops the current run and keeps what was collected.`,
}

// hashtagCmd represents the scrape hashtag command
var hashtagCmd = &cobra.Command{
	Use:   "hashtag <term> [term...]",
	Short: "Collect leads from one or more hashtags",
	Long: `Collect leads from hashtags. Each term is expanded into related hashtags
through top search unless --no-discovery is set, and the collected profiles
are deduplicated across all hashtags of the same run.`,
	Example: `  # 30 leads from #confeitaria and its variations
  igleads scrape hashtag confeitaria

  # Several terms in sequence with a specific account
  igleads scrape hashtag confeitaria "doces gourmet" --max 50 --account loja_ana

  # Continue an interrupted run
  igleads scrape hashtag confeitaria --resume

  # Try the configuration without writing leads
  igleads scrape hashtag confeitaria --dry-run --show-leads`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		tasks := make([]queue.Task, 0, len(args))
		for _, term := range args {
			term = strings.TrimSpace(term)
			if term == "" {
				continue
			}
			tasks = append(tasks, queue.Task{
				Kind:        queue.KindHashtag,
				Term:        term,
				MaxProfiles: maxProfiles,
				Account:     accountName,
			})
		}
		runScrape(tasks)
	},
}

// exploreCmd represents the scrape explore command
var exploreCmd = &cobra.Command{
	Use:   "explore",
	Short: "Collect leads from the explore feed",
	Example: `  igleads scrape explore --max 20`,
	Args:    cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		runScrape([]queue.Task{{
			Kind:        queue.KindExplore,
			MaxProfiles: maxProfiles,
			Account:     accountName,
		}})
	},
}

func init() {
	rootCmd.AddCommand(scrapeCmd)
	scrapeCmd.AddCommand(hashtagCmd)
	scrapeCmd.AddCommand(exploreCmd)

	flags := scrapeCmd.PersistentFlags()
	flags.IntVarP(&maxProfiles, "max", "m", 30, "maximum number of leads per run")
	flags.StringVarP(&accountName, "account", "a", "", "start with this account instead of the pool's current one")
	flags.BoolVar(&resumeRun, "resume", false, "continue from saved checkpoints")
	flags.BoolVar(&dryRun, "dry-run", false, "keep leads in memory instead of the lead store")
	flags.BoolVar(&noDiscovery, "no-discovery", false, "scrape only the given hashtags")
	flags.BoolVar(&headful, "headful", false, "show the browser window")
	flags.BoolVar(&showLeads, "show-leads", false, "print the collected leads")
	flags.StringVarP(&outputDir, "output", "o", "", "directory for run reports")
	flags.StringVar(&storeDriver, "store-driver", "", "lead store driver (sqlite3, postgres)")
	flags.StringVar(&storeDSN, "store-dsn", "", "lead store connection string")
	flags.StringVar(&language, "language", "", "ISO 639-3 language leads must write in")
}

// scrapeFlags collects the flags that override configuration
func scrapeFlags() map[string]interface{} {
	flags := make(map[string]interface{})
	if dryRun {
		flags["dry-run"] = true
	}
	if noDiscovery {
		flags["discover"] = false
	}
	if headful {
		flags["headless"] = false
	}
	if storeDriver != "" {
		flags["store-driver"] = storeDriver
	}
	if storeDSN != "" {
		flags["store-dsn"] = storeDSN
	}
	if language != "" {
		flags["language"] = language
	}
	return flags
}

func runScrape(tasks []queue.Task) {
	if len(tasks) == 0 {
		ui.PrintError("Nothing to scrape")
		os.Exit(1)
	}
	if maxProfiles <= 0 {
		ui.PrintError("--max must be positive")
		os.Exit(1)
	}

	cfg, err := loadConfig(scrapeFlags())
	if err != nil {
		ui.PrintError("Failed to load configuration", err.Error())
		os.Exit(1)
	}
	logger.WithField("version", version).Info("igleads starting")

	ctx, stop := signalContext()
	defer stop()

	s, err := scraper.New(ctx, cfg, scraper.Options{Resume: resumeRun})
	if err != nil {
		ui.PrintError("Failed to initialize scraper", err.Error())
		os.Exit(1)
	}

	for _, t := range tasks {
		if t.Kind == queue.KindHashtag {
			ui.PrintInfo("Hashtag", "#"+t.Term)
		} else {
			ui.PrintInfo("Target", "explore feed")
		}
	}
	if cfg.Store.DryRun {
		ui.PrintWarning("Dry run, leads are not stored")
	}
	ui.PrintHighlight("[STARTING EXTRACTION]")

	failed := runQueue(ctx, s, cfg, tasks)

	if err := s.Close(context.Background()); err != nil {
		logger.WithError(err).Warn("Failed to close scraper cleanly")
	}
	if failed > 0 {
		os.Exit(1)
	}
}
