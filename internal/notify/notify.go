// Package notify delivers operational alerts to chat channels. Delivery
// is best-effort: a failed notification is logged and never fails the
// run that produced it.
package notify

import (
	"context"
	"log/slog"
)

// Severity ranks an alert for channel formatting.
type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityLow      Severity = "LOW"
)

// Emoji returns the marker prefixed to alert titles.
func (s Severity) Emoji() string {
	switch s {
	case SeverityCritical:
		return "🚨"
	case SeverityHigh:
		return "⚠️"
	case SeverityMedium:
		return "⚡"
	case SeverityLow:
		return "ℹ️"
	default:
		return "⚠️"
	}
}

// Alert is one outbound notification.
type Alert struct {
	Title    string
	Message  string
	Severity Severity
}

// Notifier delivers alerts to one channel.
type Notifier interface {
	Name() string
	Send(ctx context.Context, a Alert) error
}

// Multi fans an alert out to several channels, logging failures and
// always attempting every channel.
type Multi struct {
	notifiers []Notifier
	logger    *slog.Logger
}

// NewMulti bundles notifiers behind a single Send.
func NewMulti(logger *slog.Logger, notifiers ...Notifier) *Multi {
	if logger == nil {
		logger = slog.Default()
	}
	return &Multi{notifiers: notifiers, logger: logger}
}

func (m *Multi) Name() string { return "multi" }

// Send delivers the alert to all channels. It never returns an error;
// per-channel failures are logged.
func (m *Multi) Send(ctx context.Context, a Alert) error {
	for _, n := range m.notifiers {
		if err := n.Send(ctx, a); err != nil {
			m.logger.Error("notification failed",
				"channel", n.Name(),
				"title", a.Title,
				"error", err,
			)
		}
	}
	return nil
}
