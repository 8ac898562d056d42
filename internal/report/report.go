// Package report renders the daily duplicate-detection summary as an
// HTML email and delivers it over SMTP.
package report

import (
	"bytes"
	"fmt"
	"html/template"
	"log/slog"
	"net/smtp"
	"time"

	"github.com/dupcancel-io/dupcancel/internal/history"
)

// Config holds SMTP delivery settings.
type Config struct {
	SMTPHost string
	SMTPPort int
	From     string
	Password string
	To       string
}

// Summary aggregates one day of runs for the report.
type Summary struct {
	Date          time.Time
	Checks        int
	Scanned       int
	PairsFound    int
	Cancelled     int
	AvgConfidence float64
	Pairs         []history.PairRecord
}

// Reporter builds and sends the daily report.
type Reporter struct {
	cfg    Config
	store  history.Store
	logger *slog.Logger

	// send is swapped out in tests.
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// New creates a Reporter.
func New(cfg Config, store history.Store, logger *slog.Logger) *Reporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reporter{cfg: cfg, store: store, logger: logger, send: smtp.SendMail}
}

// Send builds the summary for the day containing now and emails it.
func (r *Reporter) Send(now time.Time) error {
	sum, err := r.Build(now)
	if err != nil {
		return err
	}

	html, err := Render(sum)
	if err != nil {
		return err
	}

	subject := fmt.Sprintf("Jira Duplicate Report - %s", sum.Date.Format("January 2, 2006"))
	if sum.PairsFound > 0 {
		subject = fmt.Sprintf("Jira Duplicate Report - %d Found - %s", sum.PairsFound, sum.Date.Format("January 2, 2006"))
	}

	msg := r.message(subject, html)
	addr := fmt.Sprintf("%s:%d", r.cfg.SMTPHost, r.cfg.SMTPPort)
	auth := smtp.PlainAuth("", r.cfg.From, r.cfg.Password, r.cfg.SMTPHost)

	if err := r.send(addr, auth, r.cfg.From, []string{r.cfg.To}, msg); err != nil {
		return fmt.Errorf("report: send via %s: %w", addr, err)
	}
	r.logger.Info("daily report sent",
		"to", r.cfg.To,
		"checks", sum.Checks,
		"pairs_found", sum.PairsFound,
	)
	return nil
}

// Build aggregates the runs that started on the same UTC day as now.
func (r *Reporter) Build(now time.Time) (*Summary, error) {
	day := now.UTC().Truncate(24 * time.Hour)
	runs, err := r.store.RunsSince(day)
	if err != nil {
		return nil, fmt.Errorf("report: aggregate runs: %w", err)
	}

	sum := &Summary{Date: day}
	confidenceTotal := 0.0
	weighted := 0
	for _, run := range runs {
		sum.Checks++
		sum.Scanned += run.Scanned
		sum.PairsFound += run.PairsFound
		sum.Cancelled += run.Cancelled
		confidenceTotal += run.AvgConfidence * float64(run.PairsFound)
		weighted += run.PairsFound
	}
	if weighted > 0 {
		sum.AvgConfidence = confidenceTotal / float64(weighted)
	}

	if sum.PairsFound > 0 {
		pairs, err := r.store.RecentPairs(sum.PairsFound)
		if err != nil {
			return nil, fmt.Errorf("report: recent pairs: %w", err)
		}
		for _, p := range pairs {
			if !p.RecordedAt.Before(day) {
				sum.Pairs = append(sum.Pairs, p)
			}
		}
	}
	return sum, nil
}

// message assembles a single-part HTML MIME message.
func (r *Reporter) message(subject, html string) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", r.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", r.cfg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(html)
	return b.Bytes()
}

var reportTmpl = template.Must(template.New("report").Parse(`<html>
<head>
<style>
  body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
  .container { max-width: 800px; margin: 0 auto; }
  .header { background: #667eea; color: white; padding: 30px; text-align: center; }
  .stats { display: grid; grid-template-columns: repeat(2, 1fr); gap: 20px; margin: 20px 0; }
  .stat-box { background: #f8f9fa; padding: 20px; border-left: 4px solid #667eea; }
  .stat-box h3 { margin: 0 0 10px 0; color: #667eea; font-size: 14px; text-transform: uppercase; }
  .stat-box .value { font-size: 36px; font-weight: bold; }
  .duplicates { background: #fff3cd; border: 1px solid #ffc107; padding: 20px; margin: 20px 0; }
  .clean { background: #d4edda; border: 1px solid #28a745; padding: 20px; margin: 20px 0; }
  .pair { background: white; padding: 15px; margin: 10px 0; border-left: 3px solid #ffc107; }
  .footer { background: #f8f9fa; padding: 20px; text-align: center; color: #666; font-size: 12px; }
</style>
</head>
<body>
<div class="container">
  <div class="header">
    <h1>Jira Duplicate Detection Report</h1>
    <p>Daily Summary for {{.Date.Format "January 2, 2006"}}</p>
  </div>

  <h2>Daily Statistics</h2>
  <div class="stats">
    <div class="stat-box"><h3>Total Checks</h3><div class="value">{{.Checks}}</div></div>
    <div class="stat-box"><h3>Tickets Scanned</h3><div class="value">{{.Scanned}}</div></div>
    <div class="stat-box"><h3>Duplicates Found</h3><div class="value">{{.PairsFound}}</div></div>
    <div class="stat-box"><h3>Tickets Cancelled</h3><div class="value">{{.Cancelled}}</div></div>
  </div>

{{if .Pairs}}
  <div class="duplicates">
    <h3>Duplicates Detected Today</h3>
    {{range .Pairs}}
    <div class="pair">
      <span>{{.Pair.First}}</span> &harr; <span>{{.Pair.Second}}</span>
      {{if not .Cancelled}}<strong>(cancellation failed, follow up manually)</strong>{{end}}
    </div>
    {{end}}
  </div>
{{else}}
  <div class="clean">
    <h3>No Duplicates Found Today</h3>
    <p>The tracker is clean. No duplicate tickets were detected.</p>
  </div>
{{end}}

  <h2>Performance</h2>
  <ul>
    <li><strong>Average Confidence:</strong> {{printf "%.1f" .AvgConfidence}}%</li>
    <li><strong>Checks Today:</strong> {{.Checks}}</li>
  </ul>

  <div class="footer">
    <p><strong>Duplicate Canceller</strong></p>
    <p>This is an automated report.</p>
  </div>
</div>
</body>
</html>
`))

// Render produces the HTML body for a summary.
func Render(sum *Summary) (string, error) {
	var b bytes.Buffer
	if err := reportTmpl.Execute(&b, sum); err != nil {
		return "", fmt.Errorf("report: render: %w", err)
	}
	return b.String(), nil
}
