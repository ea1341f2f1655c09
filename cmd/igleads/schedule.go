package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"igleads/internal/queue"
	"igleads/pkg/config"
	"igleads/pkg/logger"
	"igleads/pkg/scraper"
	"igleads/pkg/ui"
)

var (
	// Schedule command flags
	cronSpec      string
	scheduleTags  []string
	scheduleFeed  bool
	runNow        bool
	metricsAddr   string
	scheduleMax   int
	scheduleAcct  string
	scheduleDry   bool
	scheduleNoDsc bool
)

// scheduleCmd represents the schedule command
var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run scrapes on a cron schedule and expose Prometheus metrics",
	Long: `Run scrapes on a cron schedule until interrupted.

Every trigger queues one run per hashtag (and one for the explore feed with
--explore). Runs execute one at a time over a single browser session. A trigger
that fires while earlier runs are still pending is skipped.

Metrics are served at /metrics when metrics are enabled in the configuration
or --metrics-addr is given.`,
	Example: `  # Two hashtags every six hours, starting right away
  igleads schedule --cron "@every 6h" --hashtag confeitaria --hashtag bolos --now

  # Explore feed at 09:30 on weekdays with metrics on :9464
  igleads schedule --cron "30 9 * * 1-5" --explore --metrics-addr :9464`,
	Args: cobra.NoArgs,
	Run:  runSchedule,
}

func init() {
	rootCmd.AddCommand(scheduleCmd)

	scheduleCmd.Flags().StringVar(&cronSpec, "cron", "@every 6h", "cron expression or descriptor")
	scheduleCmd.Flags().StringSliceVar(&scheduleTags, "hashtag", nil, "hashtag to scrape on every trigger (repeatable)")
	scheduleCmd.Flags().BoolVar(&scheduleFeed, "explore", false, "also scrape the explore feed on every trigger")
	scheduleCmd.Flags().BoolVar(&runNow, "now", false, "trigger once immediately")
	scheduleCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	scheduleCmd.Flags().IntVarP(&scheduleMax, "max", "m", 30, "maximum number of leads per run")
	scheduleCmd.Flags().StringVarP(&scheduleAcct, "account", "a", "", "start with this account")
	scheduleCmd.Flags().BoolVar(&scheduleDry, "dry-run", false, "keep leads in memory instead of the lead store")
	scheduleCmd.Flags().BoolVar(&scheduleNoDsc, "no-discovery", false, "scrape only the given hashtags")
}

// scheduleTasks builds the tasks queued by every trigger
func scheduleTasks() []queue.Task {
	var tasks []queue.Task
	for _, tag := range scheduleTags {
		if tag = strings.TrimSpace(tag); tag != "" {
			tasks = append(tasks, queue.Task{Kind: queue.KindHashtag, Term: tag, MaxProfiles: scheduleMax, Account: scheduleAcct})
		}
	}
	if scheduleFeed {
		tasks = append(tasks, queue.Task{Kind: queue.KindExplore, MaxProfiles: scheduleMax, Account: scheduleAcct})
	}
	return tasks
}

func runSchedule(cmd *cobra.Command, args []string) {
	tasks := scheduleTasks()
	if len(tasks) == 0 {
		ui.PrintError("Nothing to schedule", "use --hashtag or --explore")
		os.Exit(1)
	}
	if scheduleMax <= 0 {
		ui.PrintError("--max must be positive")
		os.Exit(1)
	}

	flags := make(map[string]interface{})
	if scheduleDry {
		flags["dry-run"] = true
	}
	if scheduleNoDsc {
		flags["discover"] = false
	}
	cfg, err := loadConfig(flags)
	if err != nil {
		ui.PrintError("Failed to load configuration", err.Error())
		os.Exit(1)
	}
	log := logger.GetLogger().WithField("component", "schedule")

	ctx, stop := signalContext()
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	s, err := scraper.New(ctx, cfg, scraper.Options{Registerer: reg, Resume: true})
	if err != nil {
		ui.PrintError("Failed to initialize scraper", err.Error())
		os.Exit(1)
	}

	q := queue.New(s, len(tasks)*2, logger.GetLogger())
	runs := registerQueueMetrics(reg, q)
	q.Start()

	server := startMetricsServer(cfg, reg, log)

	consumed := make(chan struct{})
	go func() {
		defer close(consumed)
		for r := range q.Results() {
			outcome := "success"
			switch {
			case r.Err != nil:
				outcome = "failed"
			case r.Result.IsPartial:
				outcome = "partial"
			}
			runs.WithLabelValues(string(r.Task.Kind), outcome).Inc()

			printTaskResult(cfg, r)
			if pool := s.Pool(); pool != nil {
				ui.PrintBlock(ui.AccountTable(pool.Snapshot(), pool.Current().ID, pool.IPCooldownRemaining(), time.Now()))
			}
		}
	}()

	trigger := func() {
		if pending := q.Pending(); pending > 0 {
			log.WithField("pending", pending).Warn("Previous runs still pending, skipping trigger")
			return
		}
		for _, task := range tasks {
			if _, err := q.Submit(task); err != nil {
				log.WithError(err).Error("Failed to queue scheduled task")
				return
			}
		}
	}

	c := cron.New(cron.WithLogger(cronLogger{log}))
	if _, err := c.AddFunc(cronSpec, trigger); err != nil {
		ui.PrintError("Invalid cron expression", err.Error())
		os.Exit(1)
	}
	c.Start()

	ui.PrintInfo("Schedule", cronSpec)
	ui.PrintInfo("Runs per trigger", fmt.Sprintf("%d", len(tasks)))
	if server != nil {
		ui.PrintInfo("Metrics", "http://"+server.Addr+"/metrics")
	}
	if next := c.Entries(); len(next) > 0 {
		ui.PrintInfo("Next trigger", next[0].Next.Format(time.RFC1123))
	}
	if runNow {
		trigger()
	}

	<-ctx.Done()
	ui.PrintWarning("Shutting down")

	<-c.Stop().Done()
	q.Cancel()
	q.Stop()
	<-consumed

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if server != nil {
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("Failed to stop metrics server")
		}
	}
	if err := s.Close(shutdownCtx); err != nil {
		log.WithError(err).Warn("Failed to close scraper cleanly")
	}
}

// registerQueueMetrics exports the queue depth and a run outcome counter
func registerQueueMetrics(reg prometheus.Registerer, q *queue.Queue) *prometheus.CounterVec {
	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "igleads_queue_pending",
		Help: "Scrape tasks submitted but not finished",
	}, func() float64 { return float64(q.Pending()) }))

	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "igleads_runs_total",
		Help: "Finished scrape runs by kind and outcome",
	}, []string{"kind", "outcome"})
	reg.MustRegister(runs)
	return runs
}

func startMetricsServer(cfg *config.Config, reg *prometheus.Registry, log logger.Logger) *http.Server {
	addr := metricsAddr
	if addr == "" && cfg.Metrics.Enabled {
		addr = cfg.Metrics.Address
	}
	if addr == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("Metrics server stopped")
		}
	}()
	return server
}

// cronLogger routes cron's own messages through the application logger
type cronLogger struct {
	log logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.DebugWithFields("cron: "+msg, pairs(keysAndValues))
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.WithError(err).ErrorWithFields("cron: "+msg, pairs(keysAndValues))
}

func pairs(kv []interface{}) map[string]interface{} {
	fields := make(map[string]interface{}, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		fields[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return fields
}
