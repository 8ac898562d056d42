package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/dupcancel-io/dupcancel/internal/config"
	"github.com/dupcancel-io/dupcancel/internal/engine"
	"github.com/dupcancel-io/dupcancel/internal/history"
	"github.com/dupcancel-io/dupcancel/internal/normalize"
	"github.com/dupcancel-io/dupcancel/internal/report"
	"github.com/dupcancel-io/dupcancel/internal/runner"
	"github.com/dupcancel-io/dupcancel/internal/tracker"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(0)
	}

	switch os.Args[1] {
	case "check":
		cmdCheck(os.Args[2:])
	case "health":
		cmdHealth()
	case "status":
		cmdStatus()
	case "history":
		if len(os.Args) < 3 || os.Args[2] != "list" {
			fmt.Fprintln(os.Stderr, "usage: dupcancelctl history list [--limit N]")
			os.Exit(1)
		}
		cmdHistoryList(os.Args[3:])
	case "report":
		if len(os.Args) < 3 || os.Args[2] != "send" {
			fmt.Fprintln(os.Stderr, "usage: dupcancelctl report send --config <path>")
			os.Exit(1)
		}
		cmdReportSend(os.Args[3:])
	case "config":
		if len(os.Args) < 4 || os.Args[2] != "validate" {
			fmt.Fprintln(os.Stderr, "usage: dupcancelctl config validate <path>")
			os.Exit(1)
		}
		cmdConfigValidate(os.Args[3])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// --- check command: one local batch run ---

func cmdCheck(args []string) {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	configPath := fs.String("config", envOr("DUPCANCEL_CONFIG", ""), "Path to config JSON file")
	projects := fs.String("projects", "", "Comma-separated project keys (overrides config)")
	dryRun := fs.Bool("dry-run", false, "Classify and report without cancelling")
	verbose := fs.Bool("v", false, "Verbose logging")
	fs.Parse(args)

	logLevel := slog.LevelWarn
	if *verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	cfg := loadConfig(*configPath)
	if *projects != "" {
		cfg.Tracker.Projects = strings.Split(*projects, ",")
	}

	os.MkdirAll(cfg.Service.DataDir, 0o755)
	store := history.OpenOrFallback(cfg.Service.DataDir+"/history.db", logger)
	defer store.Close()

	jira := tracker.NewJiraClient(cfg.Tracker.BaseURL, cfg.Tracker.Email, cfg.Tracker.APIToken, logger)
	eng := engine.New(engine.Config{
		ConfidenceThreshold: cfg.Detection.ConfidenceThreshold,
		Keywords:            cfg.Detection.Keywords,
	}, normalize.New(normalize.DefaultCatalogue()))

	run := runner.New(runner.Config{
		Projects: cfg.Tracker.Projects,
		Lookback: time.Duration(cfg.Tracker.LookbackDays) * 24 * time.Hour,
		DryRun:   *dryRun || cfg.Service.DryRun,
	}, jira, jira, store, eng, nil, logger)

	stats, err := run.Run(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	mode := ""
	if stats.DryRun {
		mode = " (dry run)"
	}
	fmt.Printf("Run %s%s\n", stats.ID, mode)
	fmt.Printf("  scanned:     %d\n", stats.Scanned)
	fmt.Printf("  pairs found: %d\n", stats.PairsFound)
	fmt.Printf("  cancelled:   %d\n", stats.Cancelled)
	if stats.PairsFound > 0 {
		fmt.Printf("  avg conf.:   %.0f%%\n", stats.AvgConfidence)
	}
}

// --- report command: build and send today's summary ---

func cmdReportSend(args []string) {
	fs := flag.NewFlagSet("report send", flag.ExitOnError)
	configPath := fs.String("config", envOr("DUPCANCEL_CONFIG", ""), "Path to config JSON file")
	fs.Parse(args)

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	cfg := loadConfig(*configPath)
	if cfg.Report.To == "" {
		fmt.Fprintln(os.Stderr, "error: report.to is not configured")
		os.Exit(1)
	}

	store := history.OpenOrFallback(cfg.Service.DataDir+"/history.db", logger)
	defer store.Close()

	rep := report.New(report.Config{
		SMTPHost: cfg.Report.SMTPHost,
		SMTPPort: cfg.Report.SMTPPort,
		From:     cfg.Report.From,
		Password: cfg.Report.Password,
		To:       cfg.Report.To,
	}, store, logger)

	if err := rep.Send(time.Now()); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("report sent to %s\n", cfg.Report.To)
}

// --- API client commands ---

func cmdHealth() {
	body, err := apiGet("/api/health")
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(body))
}

func cmdStatus() {
	body, err := apiGet("/api/status")
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(prettyJSON(body))
}

func cmdHistoryList(args []string) {
	fs := flag.NewFlagSet("history list", flag.ExitOnError)
	limit := fs.Int("limit", 50, "Max results")
	fs.Parse(args)

	body, err := apiGet(fmt.Sprintf("/api/history?limit=%d", *limit))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	var pairs []map[string]any
	json.Unmarshal(body, &pairs)
	for _, p := range pairs {
		pair, _ := p["pair"].(map[string]any)
		cancelled := "cancelled"
		if ok, _ := p["cancelled"].(bool); !ok {
			cancelled = "failed"
		}
		fmt.Printf("%-12v %-12v %-10s %v\n", pair["first"], pair["second"], cancelled, p["recorded_at"])
	}
}

func cmdConfigValidate(path string) {
	_, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("config is valid")
}

// --- Helpers ---

func loadConfig(path string) *config.Config {
	var cfg *config.Config
	var err error
	if path != "" {
		cfg, err = config.Load(path)
	} else {
		cfg, err = config.LoadFromEnv()
		if err == nil {
			err = cfg.Validate()
		}
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func apiGet(path string) ([]byte, error) {
	base := envOr("DUPCANCEL_API_URL", "http://localhost:8080")
	url := base + path

	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return nil, err
	}
	if key := os.Getenv("DUPCANCEL_API_KEY"); key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

func prettyJSON(data []byte) string {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return string(data)
	}
	out, _ := json.MarshalIndent(v, "", "  ")
	return string(out)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func printUsage() {
	fmt.Println("dupcancelctl — duplicate canceller management CLI")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  check                One local duplicate check (--dry-run, --projects, --config)")
	fmt.Println("  health               Check daemon health")
	fmt.Println("  status               Show last run stats")
	fmt.Println("  history list         List processed pairs (--limit)")
	fmt.Println("  report send          Build and email today's report (--config)")
	fmt.Println("  config validate <p>  Validate config file")
	fmt.Println()
	fmt.Println("Environment:")
	fmt.Println("  DUPCANCEL_API_URL    Daemon URL (default: http://localhost:8080)")
	fmt.Println("  DUPCANCEL_API_KEY    API key for authentication")
	fmt.Println("  DUPCANCEL_CONFIG     Default config file path")
}
