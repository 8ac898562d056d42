package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config is the top-level duplicate-canceller configuration.
type Config struct {
	Service   ServiceConfig   `json:"service"`
	Tracker   TrackerConfig   `json:"tracker"`
	Detection DetectionConfig `json:"detection"`
	Notify    NotifyConfig    `json:"notify"`
	Report    ReportConfig    `json:"report,omitempty"`
	Monitor   MonitorConfig   `json:"monitor"`
	API       APIConfig       `json:"api"`
}

// ServiceConfig holds service-level settings.
type ServiceConfig struct {
	DataDir         string `json:"data_dir"`
	CheckSchedule   string `json:"check_schedule,omitempty"`   // default @every 10m
	MonitorSchedule string `json:"monitor_schedule,omitempty"` // default @every 15m
	ReportSchedule  string `json:"report_schedule,omitempty"`  // default 0 7 * * *
	DryRun          bool   `json:"dry_run,omitempty"`
}

// TrackerConfig holds issue tracker credentials and scan scope.
type TrackerConfig struct {
	BaseURL      string   `json:"base_url"`
	Email        string   `json:"email"`
	APIToken     string   `json:"api_token"`
	Projects     []string `json:"projects"`
	LookbackDays int      `json:"lookback_days,omitempty"` // default 7
}

// DetectionConfig holds the confidence engine tunables.
type DetectionConfig struct {
	ConfidenceThreshold int      `json:"confidence_threshold,omitempty"` // default 75
	Keywords            []string `json:"keywords,omitempty"`
}

// NotifyConfig holds settings for outbound alert channels.
type NotifyConfig struct {
	Slack    *SlackConfig    `json:"slack,omitempty"`
	Telegram *TelegramConfig `json:"telegram,omitempty"`
}

// SlackConfig holds Slack alert channel settings.
type SlackConfig struct {
	BotToken string `json:"bot_token"`
	Channel  string `json:"channel"`
}

// TelegramConfig holds Telegram alert channel settings.
type TelegramConfig struct {
	Token  string `json:"token"`
	ChatID int64  `json:"chat_id"`
}

// ReportConfig holds daily email report settings. The report job only
// runs when a recipient is configured.
type ReportConfig struct {
	SMTPHost string `json:"smtp_host"`
	SMTPPort int    `json:"smtp_port,omitempty"` // default 587
	From     string `json:"from"`
	Password string `json:"password"`
	To       string `json:"to"`
}

// MonitorConfig holds health monitor thresholds.
type MonitorConfig struct {
	StalenessMinutes    int `json:"staleness_minutes,omitempty"`    // default 15
	FailureThreshold    int `json:"failure_threshold,omitempty"`    // default 2
	DuplicateAgeMinutes int `json:"duplicate_age_minutes,omitempty"` // default 20
}

// APIConfig holds REST API server settings.
type APIConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
	Key  string `json:"api_key"`
}

// Load reads configuration from a JSON file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFromEnv builds a config from environment variables with the
// DUPCANCEL_ prefix.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		Service: ServiceConfig{
			DataDir: getenv("DUPCANCEL_DATA_DIR", "/data"),
			DryRun:  os.Getenv("DUPCANCEL_DRY_RUN") == "true",
		},
		Tracker: TrackerConfig{
			BaseURL:      os.Getenv("DUPCANCEL_JIRA_URL"),
			Email:        os.Getenv("DUPCANCEL_JIRA_EMAIL"),
			APIToken:     os.Getenv("DUPCANCEL_JIRA_TOKEN"),
			LookbackDays: getenvInt("DUPCANCEL_LOOKBACK_DAYS", 7),
		},
		Detection: DetectionConfig{
			ConfidenceThreshold: getenvInt("DUPCANCEL_CONFIDENCE_THRESHOLD", 75),
		},
		API: APIConfig{
			Host: getenv("DUPCANCEL_API_HOST", "0.0.0.0"),
			Port: getenvInt("DUPCANCEL_API_PORT", 8080),
			Key:  os.Getenv("DUPCANCEL_API_KEY"),
		},
	}

	if projects := os.Getenv("DUPCANCEL_PROJECTS"); projects != "" {
		cfg.Tracker.Projects = splitList(projects)
	}
	if keywords := os.Getenv("DUPCANCEL_KEYWORDS"); keywords != "" {
		cfg.Detection.Keywords = splitList(keywords)
	}

	if token := os.Getenv("DUPCANCEL_SLACK_TOKEN"); token != "" {
		cfg.Notify.Slack = &SlackConfig{
			BotToken: token,
			Channel:  os.Getenv("DUPCANCEL_SLACK_CHANNEL"),
		}
	}
	if token := os.Getenv("DUPCANCEL_TELEGRAM_TOKEN"); token != "" {
		chatID, err := strconv.ParseInt(os.Getenv("DUPCANCEL_TELEGRAM_CHAT_ID"), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("config: DUPCANCEL_TELEGRAM_CHAT_ID: %w", err)
		}
		cfg.Notify.Telegram = &TelegramConfig{Token: token, ChatID: chatID}
	}

	if to := os.Getenv("DUPCANCEL_REPORT_TO"); to != "" {
		cfg.Report = ReportConfig{
			SMTPHost: getenv("DUPCANCEL_SMTP_HOST", "smtp.gmail.com"),
			SMTPPort: getenvInt("DUPCANCEL_SMTP_PORT", 587),
			From:     os.Getenv("DUPCANCEL_REPORT_FROM"),
			Password: os.Getenv("DUPCANCEL_REPORT_PASSWORD"),
			To:       to,
		}
	}

	cfg.applyDefaults()
	return cfg, nil
}

// applyDefaults fills in the documented defaults for optional fields.
func (c *Config) applyDefaults() {
	if c.Service.CheckSchedule == "" {
		c.Service.CheckSchedule = "@every 10m"
	}
	if c.Service.MonitorSchedule == "" {
		c.Service.MonitorSchedule = "@every 15m"
	}
	if c.Service.ReportSchedule == "" {
		c.Service.ReportSchedule = "0 7 * * *"
	}
	if c.Tracker.LookbackDays == 0 {
		c.Tracker.LookbackDays = 7
	}
	if c.Detection.ConfidenceThreshold == 0 {
		c.Detection.ConfidenceThreshold = 75
	}
	if c.Report.To != "" && c.Report.SMTPPort == 0 {
		c.Report.SMTPPort = 587
	}
	if c.Monitor.StalenessMinutes == 0 {
		c.Monitor.StalenessMinutes = 15
	}
	if c.Monitor.FailureThreshold == 0 {
		c.Monitor.FailureThreshold = 2
	}
	if c.Monitor.DuplicateAgeMinutes == 0 {
		c.Monitor.DuplicateAgeMinutes = 20
	}
}

// Validate checks for required fields. Credentials are a startup
// precondition: a misconfigured process must abort before any ticket
// is touched.
func (c *Config) Validate() error {
	var errs []string

	if c.Service.DataDir == "" {
		errs = append(errs, "service.data_dir is required")
	}
	if c.Tracker.BaseURL == "" {
		errs = append(errs, "tracker.base_url is required")
	}
	if c.Tracker.Email == "" {
		errs = append(errs, "tracker.email is required")
	}
	if c.Tracker.APIToken == "" {
		errs = append(errs, "tracker.api_token is required")
	}
	if len(c.Tracker.Projects) == 0 {
		errs = append(errs, "tracker.projects must name at least one project")
	}

	if c.Notify.Slack != nil {
		if c.Notify.Slack.BotToken == "" {
			errs = append(errs, "notify.slack.bot_token is required")
		}
		if c.Notify.Slack.Channel == "" {
			errs = append(errs, "notify.slack.channel is required")
		}
	}
	if c.Notify.Telegram != nil {
		if c.Notify.Telegram.Token == "" {
			errs = append(errs, "notify.telegram.token is required")
		}
		if c.Notify.Telegram.ChatID == 0 {
			errs = append(errs, "notify.telegram.chat_id is required")
		}
	}

	if c.Report.To != "" {
		if c.Report.SMTPHost == "" {
			errs = append(errs, "report.smtp_host is required")
		}
		if c.Report.From == "" {
			errs = append(errs, "report.from is required")
		}
		if c.Report.Password == "" {
			errs = append(errs, "report.password is required")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		result = append(result, p)
	}
	return result
}
