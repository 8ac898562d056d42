package protocol

import "time"

// ComparisonResult is the outcome of classifying one ticket pair.
// Confidence is an additive, criterion-capped score; it can go negative
// when penalties outweigh awards. Reasons holds one human-readable line
// per contributing criterion, in evaluation order, and is mandatory
// audit output for every decision.
type ComparisonResult struct {
	Pair        PairKey  `json:"pair"`
	Confidence  int      `json:"confidence"`
	Reasons     []string `json:"reasons"`
	IsDuplicate bool     `json:"is_duplicate"`
}

// DuplicateDecision names which ticket of a duplicate pair survives.
// Invariant: Keep.Created <= Cancel.Created.
type DuplicateDecision struct {
	Keep   *Ticket          `json:"keep"`
	Cancel *Ticket          `json:"cancel"`
	Result ComparisonResult `json:"result"`
}

// RunStats summarizes one batch run for reporting and health checks.
type RunStats struct {
	ID            string    `json:"id"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
	Projects      []string  `json:"projects"`
	Scanned       int       `json:"scanned"`
	PairsFound    int       `json:"pairs_found"`
	Cancelled     int       `json:"cancelled"`
	AvgConfidence float64   `json:"avg_confidence"`
	DryRun        bool      `json:"dry_run"`
}
