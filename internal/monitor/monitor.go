// Package monitor watches the canceller itself: it alerts when runs go
// stale, when duplicates linger uncancelled in the tracker, and when
// errors accumulate in the logs.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dupcancel-io/dupcancel/internal/history"
	"github.com/dupcancel-io/dupcancel/internal/logbuf"
	"github.com/dupcancel-io/dupcancel/internal/notify"
	"github.com/dupcancel-io/dupcancel/internal/tracker"
	"github.com/dupcancel-io/dupcancel/pkg/protocol"
)

// Config holds the monitor thresholds.
type Config struct {
	// Projects to scan for lingering duplicates.
	Projects []string
	// Staleness is how long the last successful run may lie in the
	// past before the service counts as down. Default 15m.
	Staleness time.Duration
	// FailureThreshold is how many consecutive stale checks are
	// tolerated before the staleness alert fires. Default 2.
	FailureThreshold int
	// DuplicateAge is how old an uncancelled same-summary ticket may
	// be before it proves the canceller is not working. Default 20m.
	DuplicateAge time.Duration
	// TrackerURL is used to render ticket links in alerts.
	TrackerURL string
}

// Monitor runs the periodic health checks.
type Monitor struct {
	cfg      Config
	store    history.Store
	source   tracker.Source
	notifier notify.Notifier
	logs     *logbuf.Buffer
	logger   *slog.Logger

	consecutiveStale int
	lastErrorScan    time.Time
}

// New creates a Monitor. logs may be nil to disable the error scan.
func New(cfg Config, store history.Store, source tracker.Source, notifier notify.Notifier, logs *logbuf.Buffer, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Staleness == 0 {
		cfg.Staleness = 15 * time.Minute
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 2
	}
	if cfg.DuplicateAge == 0 {
		cfg.DuplicateAge = 20 * time.Minute
	}
	return &Monitor{
		cfg:           cfg,
		store:         store,
		source:        source,
		notifier:      notifier,
		logs:          logs,
		logger:        logger,
		lastErrorScan: time.Now().UTC(),
	}
}

// Check runs all health checks once. It returns true when the system
// looks healthy. Check failures alert; they never propagate as errors.
func (m *Monitor) Check(ctx context.Context) bool {
	healthy := m.checkStaleness(ctx)
	if !m.checkLingeringDuplicates(ctx) {
		healthy = false
	}
	m.scanErrors(ctx)
	if healthy {
		m.logger.Info("health check passed")
	}
	return healthy
}

// checkStaleness alerts when the last successful run is too old. One
// stale reading may be a slow batch; the alert fires only after the
// configured number of consecutive failures.
func (m *Monitor) checkStaleness(ctx context.Context) bool {
	last, err := m.store.LastRun()
	if err != nil {
		m.logger.Error("could not read last run", "error", err)
		return false
	}

	if last == nil {
		m.consecutiveStale++
		m.logger.Warn("no completed runs recorded", "consecutive", m.consecutiveStale)
		if m.consecutiveStale >= m.cfg.FailureThreshold {
			m.alert(ctx, notify.Alert{
				Title:    "Duplicate Canceller - No Recent Activity",
				Severity: notify.SeverityHigh,
				Message: "Cannot find any completed duplicate check.\n\n" +
					"This may indicate the service is not running.\nAction required: check the deployment.",
			})
		}
		return false
	}

	age := time.Since(last.FinishedAt)
	if age > m.cfg.Staleness {
		m.consecutiveStale++
		m.logger.Warn("last run is stale",
			"finished_at", last.FinishedAt,
			"age_minutes", int(age.Minutes()),
			"consecutive", m.consecutiveStale,
		)
		if m.consecutiveStale >= m.cfg.FailureThreshold {
			m.alert(ctx, notify.Alert{
				Title:    "Duplicate Canceller - System Down",
				Severity: notify.SeverityCritical,
				Message: fmt.Sprintf(
					"The duplicate canceller has not run in %d minutes!\n\n• Last successful check: %s\n• Allowed staleness: %d minutes\n\nAction required: check the deployment.",
					int(age.Minutes()),
					last.FinishedAt.Format("2006-01-02 15:04:05 UTC"),
					int(m.cfg.Staleness.Minutes()),
				),
			})
		}
		return false
	}

	m.consecutiveStale = 0
	return true
}

// checkLingeringDuplicates queries the tracker directly: tickets with
// the same summary and reporter created in the last day that are older
// than the duplicate-age threshold and still unsettled mean the
// canceller is not doing its job, whatever its own logs claim.
func (m *Monitor) checkLingeringDuplicates(ctx context.Context) bool {
	var lingering []*protocol.Ticket
	now := time.Now().UTC()

	for _, project := range m.cfg.Projects {
		tickets, err := m.source.Search(ctx, project, 24*time.Hour)
		if err != nil {
			m.logger.Error("direct duplicate check failed", "project", project, "error", err)
			m.alert(ctx, notify.Alert{
				Title:    "Duplicate Monitor - Tracker API Error",
				Severity: notify.SeverityHigh,
				Message:  fmt.Sprintf("Cannot query the tracker for project %s:\n```%v```", project, err),
			})
			return false
		}

		groups := make(map[string][]*protocol.Ticket)
		for _, t := range tickets {
			reporter := "Unknown"
			if t.Reporter != nil {
				reporter = t.Reporter.DisplayName
			}
			key := t.Summary + "|" + reporter
			groups[key] = append(groups[key], t)
		}

		for _, group := range groups {
			if len(group) < 2 {
				continue
			}
			for _, t := range group {
				if t.Created.IsZero() || settled(t.Status) {
					continue
				}
				if now.Sub(t.Created) > m.cfg.DuplicateAge {
					lingering = append(lingering, t)
				}
			}
		}
	}

	if len(lingering) == 0 {
		return true
	}

	m.logger.Warn("uncancelled duplicates found in tracker", "count", len(lingering))

	var lines []string
	for i, t := range lingering {
		if i == 5 {
			break
		}
		age := int(now.Sub(t.Created).Minutes())
		if m.cfg.TrackerURL != "" {
			lines = append(lines, fmt.Sprintf("• <%s/browse/%s|%s> - %d min old", m.cfg.TrackerURL, t.Key, t.Key, age))
		} else {
			lines = append(lines, fmt.Sprintf("• %s - %d min old", t.Key, age))
		}
	}

	m.alert(ctx, notify.Alert{
		Title:    "Duplicate Canceller - System May Be Down",
		Severity: notify.SeverityCritical,
		Message: fmt.Sprintf(
			"Found %d uncancelled duplicates older than %d minutes!\n\n%s\n\nThe duplicate canceller may not be running correctly.",
			len(lingering), int(m.cfg.DuplicateAge.Minutes()), strings.Join(lines, "\n"),
		),
	})
	return false
}

// scanErrors reports ERROR log entries accumulated since the previous
// scan. The scan window always advances, so an error is reported once.
func (m *Monitor) scanErrors(ctx context.Context) {
	if m.logs == nil {
		return
	}
	since := m.lastErrorScan
	m.lastErrorScan = time.Now().UTC()

	errors := m.logs.ErrorsSince(since)
	if len(errors) == 0 {
		return
	}

	var lines []string
	for i, e := range errors {
		if i == 5 {
			break
		}
		lines = append(lines, "• "+truncate(e.Message, 100))
	}

	m.logger.Warn("errors found in recent logs", "count", len(errors))
	m.alert(ctx, notify.Alert{
		Title:    "Duplicate Canceller - Errors Detected",
		Severity: notify.SeverityMedium,
		Message: fmt.Sprintf(
			"Found %d error(s) in recent logs:\n\n```\n%s\n```",
			len(errors), strings.Join(lines, "\n"),
		),
	})
}

func (m *Monitor) alert(ctx context.Context, a notify.Alert) {
	if m.notifier == nil {
		return
	}
	if err := m.notifier.Send(ctx, a); err != nil {
		m.logger.Error("health alert delivery failed", "title", a.Title, "error", err)
	}
}

// settled mirrors the engine's status guard for the direct check.
func settled(status string) bool {
	s := strings.ToLower(status)
	for _, word := range []string{"cancelled", "done", "closed", "resolved", "duplicate"} {
		if strings.Contains(s, word) {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
