package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"igleads/internal/queue"
	"igleads/pkg/auth"
	"igleads/pkg/config"
	"igleads/pkg/logger"
	"igleads/pkg/report"
	"igleads/pkg/scraper"
	"igleads/pkg/ui"
)

// loadConfig loads configuration with command flags merged, initializes the
// global logger and fills missing passwords from the credential stores
func loadConfig(flags map[string]interface{}) (*config.Config, error) {
	if flags == nil {
		flags = make(map[string]interface{})
	}
	if logLevel != "" {
		flags["log-level"] = logLevel
	}

	cfg, err := config.Load(configFile, flags)
	if err != nil {
		return nil, err
	}
	if err := logger.Initialize(&cfg.Logging); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	resolvePasswords(cfg)
	return cfg, nil
}

func resolvePasswords(cfg *config.Config) {
	manager, err := auth.NewManager()
	if err != nil {
		logger.WithError(err).Warn("Credential stores unavailable")
		return
	}
	for _, username := range manager.ResolvePasswords(cfg.Accounts) {
		logger.WithField("account", username).Warn("No stored password, login relies on saved cookies")
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func reportDir(cfg *config.Config) string {
	if outputDir != "" {
		return outputDir
	}
	return filepath.Join(cfg.Storage.DataDir, "runs")
}

// runQueue feeds tasks through a sequential queue and prints every result.
// An interrupt cancels the running task and drops the rest. It returns the
// number of failed tasks.
func runQueue(ctx context.Context, s *scraper.Scraper, cfg *config.Config, tasks []queue.Task) int {
	q := queue.New(s, len(tasks), logger.GetLogger())
	q.Start()

	done := make(chan int, 1)
	go func() {
		failed := 0
		for r := range q.Results() {
			if !printTaskResult(cfg, r) {
				failed++
			}
		}
		done <- failed
	}()

	rejected := 0
	for _, task := range tasks {
		if _, err := q.Submit(task); err != nil {
			ui.PrintError("Failed to queue "+taskLabel(task), err)
			rejected++
		}
	}

	stopped := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			q.Cancel()
		case <-stopped:
		}
	}()
	q.Stop()
	close(stopped)

	return rejected + <-done
}

// printTaskResult prints the summary of a finished task and saves its
// report. It returns false when the task failed.
func printTaskResult(cfg *config.Config, r queue.TaskResult) bool {
	label := taskLabel(r.Task)

	if r.Result != nil {
		ui.PrintBlock(ui.RunSummary(r.Result))
		if showLeads {
			ui.PrintBlock(ui.LeadTable(r.Result))
		}
		if path, err := report.FromResult(r.Result, r.Err).Save(reportDir(cfg)); err != nil {
			logger.WithError(err).Warn("Failed to save run report")
		} else {
			ui.PrintInfo("Report", path)
		}
	}

	switch {
	case r.Err != nil:
		ui.PrintError("Run failed for "+label, r.Err)
		return false
	case r.Result.IsPartial:
		ui.PrintWarning(fmt.Sprintf("Partial result for %s", label), r.Result.AbortReason)
	default:
		ui.PrintSuccess(fmt.Sprintf("Collected %d leads for %s", r.Result.Collected, label))
	}
	return true
}

func taskLabel(t queue.Task) string {
	if t.Kind == queue.KindExplore {
		return "explore feed"
	}
	return "#" + t.Term
}
