package report

import (
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/dupcancel-io/dupcancel/internal/history"
	"github.com/dupcancel-io/dupcancel/pkg/protocol"
)

func testConfig() Config {
	return Config{
		SMTPHost: "smtp.example.com",
		SMTPPort: 587,
		From:     "automations@fund.example.com",
		Password: "app-password",
		To:       "ops@fund.example.com",
	}
}

func seedDay(t *testing.T, store history.Store, now time.Time) {
	t.Helper()
	runs := []protocol.RunStats{
		{ID: "r1", StartedAt: now.Add(-3 * time.Hour), FinishedAt: now.Add(-3 * time.Hour), Scanned: 40, PairsFound: 2, Cancelled: 2, AvgConfidence: 85},
		{ID: "r2", StartedAt: now.Add(-1 * time.Hour), FinishedAt: now.Add(-1 * time.Hour), Scanned: 38, PairsFound: 1, Cancelled: 0, AvgConfidence: 95},
		// Yesterday's run must not count.
		{ID: "r0", StartedAt: now.Add(-30 * time.Hour), FinishedAt: now.Add(-30 * time.Hour), Scanned: 100, PairsFound: 9, Cancelled: 9, AvgConfidence: 80},
	}
	for _, run := range runs {
		if err := store.RecordRun(run); err != nil {
			t.Fatalf("RecordRun: %v", err)
		}
	}
	store.RecordPair(history.PairRecord{Pair: protocol.NewPairKey("NVSTRS-1", "NVSTRS-2"), RecordedAt: now.Add(-3 * time.Hour), RunID: "r1", Cancelled: true})
	store.RecordPair(history.PairRecord{Pair: protocol.NewPairKey("NVSTRS-3", "NVSTRS-4"), RecordedAt: now.Add(-3 * time.Hour), RunID: "r1", Cancelled: true})
	store.RecordPair(history.PairRecord{Pair: protocol.NewPairKey("NVSTRS-5", "NVSTRS-6"), RecordedAt: now.Add(-1 * time.Hour), RunID: "r2", Cancelled: false})
}

func TestBuild(t *testing.T) {
	// Noon, so the whole test day lies on one UTC date.
	now := time.Date(2025, 10, 16, 12, 0, 0, 0, time.UTC)
	store := history.NewMemoryStore()
	seedDay(t, store, now)

	r := New(testConfig(), store, nil)
	sum, err := r.Build(now)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if sum.Checks != 2 {
		t.Errorf("Checks = %d", sum.Checks)
	}
	if sum.Scanned != 78 {
		t.Errorf("Scanned = %d", sum.Scanned)
	}
	if sum.PairsFound != 3 {
		t.Errorf("PairsFound = %d", sum.PairsFound)
	}
	if sum.Cancelled != 2 {
		t.Errorf("Cancelled = %d", sum.Cancelled)
	}
	// (85*2 + 95*1) / 3
	if sum.AvgConfidence < 88.2 || sum.AvgConfidence > 88.4 {
		t.Errorf("AvgConfidence = %.2f", sum.AvgConfidence)
	}
	if len(sum.Pairs) != 3 {
		t.Errorf("Pairs = %d", len(sum.Pairs))
	}
}

func TestRender(t *testing.T) {
	now := time.Date(2025, 10, 16, 12, 0, 0, 0, time.UTC)
	store := history.NewMemoryStore()
	seedDay(t, store, now)

	r := New(testConfig(), store, nil)
	sum, err := r.Build(now)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	html, err := Render(sum)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	for _, want := range []string{
		"October 16, 2025",
		"NVSTRS-1",
		"NVSTRS-2",
		"cancellation failed",
		"88.3",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("report should contain %q", want)
		}
	}
}

func TestRenderCleanDay(t *testing.T) {
	html, err := Render(&Summary{Date: time.Date(2025, 10, 16, 0, 0, 0, 0, time.UTC), Checks: 144})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(html, "No Duplicates Found Today") {
		t.Error("clean day should render the all-clear section")
	}
}

func TestSendSubjectAndHeaders(t *testing.T) {
	now := time.Date(2025, 10, 16, 12, 0, 0, 0, time.UTC)
	store := history.NewMemoryStore()
	seedDay(t, store, now)

	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte

	r := New(testConfig(), store, nil)
	r.send = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
		return nil
	}

	if err := r.Send(now); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if gotAddr != "smtp.example.com:587" {
		t.Errorf("addr = %q", gotAddr)
	}
	if gotFrom != "automations@fund.example.com" {
		t.Errorf("from = %q", gotFrom)
	}
	if len(gotTo) != 1 || gotTo[0] != "ops@fund.example.com" {
		t.Errorf("to = %v", gotTo)
	}
	msg := string(gotMsg)
	if !strings.Contains(msg, "Subject: Jira Duplicate Report - 3 Found - October 16, 2025") {
		t.Errorf("subject missing duplicate count:\n%s", msg[:200])
	}
	if !strings.Contains(msg, "Content-Type: text/html") {
		t.Error("message should declare an HTML body")
	}
}

func TestSendSubjectCleanDay(t *testing.T) {
	now := time.Date(2025, 10, 16, 12, 0, 0, 0, time.UTC)
	store := history.NewMemoryStore()

	var gotMsg []byte
	r := New(testConfig(), store, nil)
	r.send = func(_ string, _ smtp.Auth, _ string, _ []string, msg []byte) error {
		gotMsg = msg
		return nil
	}

	if err := r.Send(now); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !strings.Contains(string(gotMsg), "Subject: Jira Duplicate Report - October 16, 2025") {
		t.Error("clean-day subject must not carry a count prefix")
	}
}
