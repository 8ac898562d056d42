// Package runner executes one duplicate-detection batch: fetch ticket
// snapshots, resolve duplicate pairs, cancel the newer tickets, and
// record everything for idempotence and reporting.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dupcancel-io/dupcancel/internal/engine"
	"github.com/dupcancel-io/dupcancel/internal/history"
	"github.com/dupcancel-io/dupcancel/internal/notify"
	"github.com/dupcancel-io/dupcancel/internal/tracker"
	"github.com/dupcancel-io/dupcancel/pkg/protocol"
)

// Config holds per-run settings.
type Config struct {
	Projects []string
	Lookback time.Duration
	DryRun   bool
}

// Runner wires the engine to its collaborators. A mutex serializes
// runs so a manual trigger cannot race a scheduled one on the ledger.
type Runner struct {
	mu       sync.Mutex
	cfg      Config
	source   tracker.Source
	sink     tracker.Sink
	store    history.Store
	engine   *engine.Engine
	notifier notify.Notifier
	logger   *slog.Logger
}

// New creates a Runner. notifier may be nil.
func New(cfg Config, source tracker.Source, sink tracker.Sink, store history.Store, eng *engine.Engine, notifier notify.Notifier, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Lookback == 0 {
		cfg.Lookback = 7 * 24 * time.Hour
	}
	return &Runner{
		cfg:      cfg,
		source:   source,
		sink:     sink,
		store:    store,
		engine:   eng,
		notifier: notifier,
		logger:   logger,
	}
}

// Run processes one snapshot of every configured project to completion.
// Collaborator failures are logged and skipped; only a total inability
// to make progress is returned as an error.
func (r *Runner) Run(ctx context.Context) (*protocol.RunStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := &protocol.RunStats{
		ID:        uuid.NewString(),
		StartedAt: time.Now().UTC(),
		Projects:  r.cfg.Projects,
		DryRun:    r.cfg.DryRun,
	}

	r.logger.Info("duplicate check starting",
		"run_id", stats.ID,
		"projects", strings.Join(r.cfg.Projects, ","),
		"dry_run", r.cfg.DryRun,
		"threshold", r.engine.Threshold(),
	)

	prior, err := r.store.Load()
	if err != nil {
		// Availability over strict idempotence: run against an empty
		// ledger rather than not at all.
		r.logger.Warn("could not load history, proceeding with empty ledger", "error", err)
		prior = history.NewPairSet()
	}

	var decisions []protocol.DuplicateDecision
	for _, project := range r.cfg.Projects {
		tickets, err := r.source.Search(ctx, project, r.cfg.Lookback)
		if err != nil {
			r.logger.Error("ticket fetch failed, skipping project", "project", project, "error", err)
			continue
		}
		stats.Scanned += len(tickets)
		r.logger.Info("tickets fetched", "project", project, "count", len(tickets))

		found := r.engine.FindDuplicates(tickets, prior)
		for _, d := range found {
			r.logger.Info("duplicate detected",
				"keep", d.Keep.Key,
				"cancel", d.Cancel.Key,
				"confidence", d.Result.Confidence,
				"reasons", strings.Join(d.Result.Reasons, ", "),
			)
		}
		decisions = append(decisions, found...)
	}
	stats.PairsFound = len(decisions)

	confidenceTotal := 0
	actioned := make(map[string]bool)
	for _, d := range decisions {
		confidenceTotal += d.Result.Confidence

		if actioned[d.Cancel.Key] {
			// Already cancelled earlier in this run against another
			// original; still record the pair so it stays judged.
			r.logger.Info("skipping already-actioned ticket", "cancel", d.Cancel.Key, "keep", d.Keep.Key)
			r.recordPair(d, stats.ID, true)
			prior.Add(d.Result.Pair)
			continue
		}

		cancelled := r.execute(ctx, d)
		if cancelled {
			stats.Cancelled++
			actioned[d.Cancel.Key] = true
		}
		// The pair is recorded regardless of the action outcome: a
		// failed cancellation is surfaced, not retried forever.
		r.recordPair(d, stats.ID, cancelled)
		prior.Add(d.Result.Pair)
	}
	if stats.PairsFound > 0 {
		stats.AvgConfidence = float64(confidenceTotal) / float64(stats.PairsFound)
	}

	stats.FinishedAt = time.Now().UTC()
	if err := r.store.RecordRun(*stats); err != nil {
		r.logger.Error("could not record run stats", "run_id", stats.ID, "error", err)
	}

	r.logger.Info("duplicate check completed successfully",
		"run_id", stats.ID,
		"scanned", stats.Scanned,
		"pairs_found", stats.PairsFound,
		"cancelled", stats.Cancelled,
	)

	r.announce(ctx, stats)
	return stats, nil
}

// execute performs the cancellation for one decision. Returns whether
// the ticket was (or would have been, in dry-run mode) cancelled.
func (r *Runner) execute(ctx context.Context, d protocol.DuplicateDecision) bool {
	comment := CancelComment(d, r.engine.Threshold(), time.Now().UTC())

	if r.cfg.DryRun {
		r.logger.Info("[dry run] would cancel ticket", "cancel", d.Cancel.Key, "keep", d.Keep.Key)
		return true
	}

	if err := r.sink.Cancel(ctx, d.Cancel.Key, d.Keep.Key, comment); err != nil {
		r.logger.Error("cancellation failed",
			"cancel", d.Cancel.Key,
			"keep", d.Keep.Key,
			"error", err,
		)
		return false
	}
	return true
}

func (r *Runner) recordPair(d protocol.DuplicateDecision, runID string, cancelled bool) {
	rec := history.PairRecord{
		Pair:       d.Result.Pair,
		RecordedAt: time.Now().UTC(),
		RunID:      runID,
		Cancelled:  cancelled,
	}
	if err := r.store.RecordPair(rec); err != nil {
		// Persist failure must not abort processing already done.
		r.logger.Error("could not record processed pair", "pair", rec.Pair, "error", err)
	}
}

// announce sends a run summary when duplicates were handled.
func (r *Runner) announce(ctx context.Context, stats *protocol.RunStats) {
	if r.notifier == nil || stats.PairsFound == 0 {
		return
	}
	mode := ""
	if stats.DryRun {
		mode = " (dry run)"
	}
	alert := notify.Alert{
		Title:    fmt.Sprintf("Duplicate Canceller - %d Duplicates Handled%s", stats.PairsFound, mode),
		Severity: notify.SeverityLow,
		Message: fmt.Sprintf(
			"Scanned %d tickets across %s.\n• Duplicate pairs: %d\n• Tickets cancelled: %d\n• Average confidence: %.0f%%",
			stats.Scanned, strings.Join(stats.Projects, ", "), stats.PairsFound, stats.Cancelled, stats.AvgConfidence,
		),
	}
	if err := r.notifier.Send(ctx, alert); err != nil {
		r.logger.Error("run summary notification failed", "error", err)
	}
}

// CancelComment renders the audit comment left on a cancelled ticket.
func CancelComment(d protocol.DuplicateDecision, threshold int, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Automated duplicate detection\n\n")
	fmt.Fprintf(&b, "This ticket has been identified as a duplicate of %s.\n\n", d.Keep.Key)
	fmt.Fprintf(&b, "Detection criteria (confidence %d, threshold %d):\n", d.Result.Confidence, threshold)
	for _, reason := range d.Result.Reasons {
		fmt.Fprintf(&b, "• %s\n", reason)
	}
	fmt.Fprintf(&b, "\nOriginal ticket: %s - %s\n\n", d.Keep.Key, d.Keep.Summary)
	fmt.Fprintf(&b, "If this was marked incorrectly, please reopen with an explanation.\n\n")
	fmt.Fprintf(&b, "Automated by Duplicate Canceller at %s", now.Format("2006-01-02 15:04:05"))
	return b.String()
}
