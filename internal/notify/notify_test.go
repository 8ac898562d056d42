package notify

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/slack-go/slack"
)

func TestSeverityEmoji(t *testing.T) {
	tests := []struct {
		sev  Severity
		want string
	}{
		{SeverityCritical, "🚨"},
		{SeverityHigh, "⚠️"},
		{SeverityMedium, "⚡"},
		{SeverityLow, "ℹ️"},
		{Severity("bogus"), "⚠️"},
	}
	for _, tt := range tests {
		if got := tt.sev.Emoji(); got != tt.want {
			t.Errorf("Emoji(%s) = %q, want %q", tt.sev, got, tt.want)
		}
	}
}

func TestAlertBlocksLayout(t *testing.T) {
	now := time.Date(2025, 10, 16, 18, 15, 0, 0, time.UTC)
	blocks := alertBlocks(Alert{
		Title:    "System Down",
		Message:  "No successful run in 22 minutes.",
		Severity: SeverityCritical,
	}, now)

	if len(blocks) != 3 {
		t.Fatalf("expected 3 blocks, got %d", len(blocks))
	}

	header, ok := blocks[0].(*slack.HeaderBlock)
	if !ok {
		t.Fatalf("first block is %T, want header", blocks[0])
	}
	if !strings.HasPrefix(header.Text.Text, "🚨") {
		t.Errorf("header missing severity emoji: %q", header.Text.Text)
	}

	section, ok := blocks[1].(*slack.SectionBlock)
	if !ok {
		t.Fatalf("second block is %T, want section", blocks[1])
	}
	if section.Text.Text != "No successful run in 22 minutes." {
		t.Errorf("unexpected body %q", section.Text.Text)
	}

	footer, ok := blocks[2].(*slack.ContextBlock)
	if !ok {
		t.Fatalf("third block is %T, want context", blocks[2])
	}
	elem := footer.ContextElements.Elements[0].(*slack.TextBlockObject)
	if !strings.Contains(elem.Text, "2025-10-16 18:15:00 UTC") {
		t.Errorf("footer missing timestamp: %q", elem.Text)
	}
}

type recordingNotifier struct {
	name  string
	sent  []Alert
	fail  bool
}

func (r *recordingNotifier) Name() string { return r.name }

func (r *recordingNotifier) Send(_ context.Context, a Alert) error {
	if r.fail {
		return errors.New("boom")
	}
	r.sent = append(r.sent, a)
	return nil
}

func TestMultiDeliversToAllChannels(t *testing.T) {
	ok1 := &recordingNotifier{name: "one"}
	bad := &recordingNotifier{name: "bad", fail: true}
	ok2 := &recordingNotifier{name: "two"}

	m := NewMulti(nil, ok1, bad, ok2)
	a := Alert{Title: "t", Message: "m", Severity: SeverityLow}
	if err := m.Send(context.Background(), a); err != nil {
		t.Fatalf("multi send must swallow channel errors, got %v", err)
	}

	if len(ok1.sent) != 1 || len(ok2.sent) != 1 {
		t.Error("a failing channel must not block the others")
	}
}
