package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	apiPkg "github.com/dupcancel-io/dupcancel/internal/api"
	"github.com/dupcancel-io/dupcancel/internal/config"
	"github.com/dupcancel-io/dupcancel/internal/engine"
	"github.com/dupcancel-io/dupcancel/internal/history"
	"github.com/dupcancel-io/dupcancel/internal/logbuf"
	"github.com/dupcancel-io/dupcancel/internal/monitor"
	"github.com/dupcancel-io/dupcancel/internal/normalize"
	"github.com/dupcancel-io/dupcancel/internal/notify"
	"github.com/dupcancel-io/dupcancel/internal/report"
	"github.com/dupcancel-io/dupcancel/internal/runner"
	"github.com/dupcancel-io/dupcancel/internal/scheduler"
	"github.com/dupcancel-io/dupcancel/internal/tracker"
)

func main() {
	configPath := flag.String("config", "", "Path to config JSON file")
	platformURL := flag.String("platform-url", os.Getenv("DUPCANCEL_PLATFORM_URL"), "Ops dashboard URL for remote config")
	instanceID := flag.String("instance-id", os.Getenv("DUPCANCEL_INSTANCE_ID"), "Instance ID for remote config")
	platformKey := flag.String("platform-key", os.Getenv("DUPCANCEL_PLATFORM_KEY"), "API key for remote config auth")
	verbose := flag.Bool("v", false, "Verbose logging")
	flag.Parse()

	// Set up logging
	logLevel := slog.LevelInfo
	if *verbose {
		logLevel = slog.LevelDebug
	}
	logBuf := logbuf.New(2000)
	jsonHandler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	logger := slog.New(logbuf.NewHandler(jsonHandler, logBuf))

	// Load config (3 modes: file, platform, env)
	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.Load(*configPath)
	} else if *platformURL != "" {
		logger.Info("loading config from platform", "url", *platformURL, "instance_id", *instanceID)
		cfg, err = config.LoadFromPlatform(config.PlatformOptions{
			PlatformURL: *platformURL,
			InstanceID:  *instanceID,
			APIKey:      *platformKey,
		})
	} else {
		cfg, err = config.LoadFromEnv()
		if err == nil {
			err = cfg.Validate()
		}
	}
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("dupcanceld starting",
		"projects", cfg.Tracker.Projects,
		"threshold", cfg.Detection.ConfidenceThreshold,
		"dry_run", cfg.Service.DryRun,
	)

	// 1. History store
	os.MkdirAll(cfg.Service.DataDir, 0o755)
	store := history.OpenOrFallback(cfg.Service.DataDir+"/history.db", logger)
	defer store.Close()

	// 2. Tracker client
	jira := tracker.NewJiraClient(
		cfg.Tracker.BaseURL,
		cfg.Tracker.Email,
		cfg.Tracker.APIToken,
		logger.With("component", "jira"),
	)

	// 3. Notification channels
	var channels []notify.Notifier
	if cfg.Notify.Slack != nil {
		sl, err := notify.NewSlack(notify.SlackConfig{
			BotToken: cfg.Notify.Slack.BotToken,
			Channel:  cfg.Notify.Slack.Channel,
		}, logger.With("channel", "slack"))
		if err != nil {
			logger.Error("failed to init slack notifier", "error", err)
			os.Exit(1)
		}
		channels = append(channels, sl)
	}
	if cfg.Notify.Telegram != nil {
		tg, err := notify.NewTelegram(notify.TelegramConfig{
			Token:  cfg.Notify.Telegram.Token,
			ChatID: cfg.Notify.Telegram.ChatID,
		}, logger.With("channel", "telegram"))
		if err != nil {
			logger.Error("failed to init telegram notifier", "error", err)
			os.Exit(1)
		}
		channels = append(channels, tg)
	}
	var notifier notify.Notifier
	if len(channels) > 0 {
		notifier = notify.NewMulti(logger, channels...)
	}

	// 4. Detection engine and runner
	eng := engine.New(engine.Config{
		ConfidenceThreshold: cfg.Detection.ConfidenceThreshold,
		Keywords:            cfg.Detection.Keywords,
	}, normalize.New(normalize.DefaultCatalogue()))

	run := runner.New(runner.Config{
		Projects: cfg.Tracker.Projects,
		Lookback: time.Duration(cfg.Tracker.LookbackDays) * 24 * time.Hour,
		DryRun:   cfg.Service.DryRun,
	}, jira, jira, store, eng, notifier, logger.With("component", "runner"))

	// 5. Health monitor and daily report
	mon := monitor.New(monitor.Config{
		Projects:         cfg.Tracker.Projects,
		Staleness:        time.Duration(cfg.Monitor.StalenessMinutes) * time.Minute,
		FailureThreshold: cfg.Monitor.FailureThreshold,
		DuplicateAge:     time.Duration(cfg.Monitor.DuplicateAgeMinutes) * time.Minute,
		TrackerURL:       cfg.Tracker.BaseURL,
	}, store, jira, notifier, logBuf, logger.With("component", "monitor"))

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 6. Scheduled jobs
	sched := scheduler.New(logger.With("component", "scheduler"))
	err = sched.AddJob("duplicate-check", cfg.Service.CheckSchedule, func() {
		if _, err := run.Run(ctx); err != nil {
			logger.Error("duplicate check failed", "error", err)
		}
	})
	if err != nil {
		logger.Error("failed to register check job", "error", err)
		os.Exit(1)
	}
	err = sched.AddJob("health-monitor", cfg.Service.MonitorSchedule, func() {
		mon.Check(ctx)
	})
	if err != nil {
		logger.Error("failed to register monitor job", "error", err)
		os.Exit(1)
	}
	if cfg.Report.To != "" {
		rep := report.New(report.Config{
			SMTPHost: cfg.Report.SMTPHost,
			SMTPPort: cfg.Report.SMTPPort,
			From:     cfg.Report.From,
			Password: cfg.Report.Password,
			To:       cfg.Report.To,
		}, store, logger.With("component", "report"))
		err = sched.AddJob("daily-report", cfg.Service.ReportSchedule, func() {
			if err := rep.Send(time.Now()); err != nil {
				logger.Error("daily report failed", "error", err)
			}
		})
		if err != nil {
			logger.Error("failed to register report job", "error", err)
			os.Exit(1)
		}
	}
	go safeGo(logger, "scheduler", func() { sched.Start(ctx) })

	// 7. API server
	apiSrv := apiPkg.NewServer(run, store, apiPkg.Config{
		Host: cfg.API.Host,
		Port: cfg.API.Port,
		Key:  cfg.API.Key,
	}, logger.With("component", "api"), logBuf)

	go safeGo(logger, "api-server", func() { apiSrv.Start(ctx) })
	logger.Info("api server started", "port", cfg.API.Port)

	// 8. Run one check immediately so a fresh deployment doesn't wait
	// for the first cron tick.
	go safeGo(logger, "initial-check", func() {
		if _, err := run.Run(ctx); err != nil {
			logger.Error("initial duplicate check failed", "error", err)
		}
	})

	// 9. Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("received signal, shutting down", "signal", sig)
	cancel()
	logger.Info("dupcanceld stopped")
}

// safeGo runs fn with panic recovery.
func safeGo(logger *slog.Logger, name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("goroutine panicked", "name", name, "panic", fmt.Sprintf("%v", r))
		}
	}()
	fn()
}
