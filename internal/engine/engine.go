// Package engine decides whether two tickets are duplicates. Scoring is
// additive with a cap per criterion, so no single weak signal can push a
// pair over the threshold on its own.
package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/dupcancel-io/dupcancel/internal/normalize"
	"github.com/dupcancel-io/dupcancel/internal/similarity"
	"github.com/dupcancel-io/dupcancel/pkg/protocol"
)

// PairSet is the ledger lookup the engine consults before scoring.
type PairSet interface {
	Contains(protocol.PairKey) bool
}

// Config holds the tunable thresholds and catalogues. Passing it
// explicitly keeps the engine free of process-wide state.
type Config struct {
	// ConfidenceThreshold is the minimum confidence to classify a pair
	// as duplicate. Default 75.
	ConfidenceThreshold int
	// Keywords is the domain vocabulary counted when present in both
	// tickets' combined subject+description text.
	Keywords []string
	// SettledStatuses short-circuit classification when found as a
	// case-insensitive substring of either ticket's status.
	SettledStatuses []string
	// DescriptionMinLen is the minimum raw description length for the
	// description criterion to apply. Default 20.
	DescriptionMinLen int
	// DescriptionPrefixLen caps how much of each description is
	// compared. Default 500.
	DescriptionPrefixLen int
}

// DefaultConfig returns the reference thresholds and keyword list.
func DefaultConfig() Config {
	return Config{
		ConfidenceThreshold: 75,
		Keywords: []string{
			"capital call", "reporting package", "action required",
			"payment", "invoice", "statement", "fund", "investor",
			"quarterly report", "monthly report", "distribution",
			"subscription", "redemption", "transfer", "notice",
		},
		SettledStatuses:      []string{"cancelled", "done", "closed", "resolved", "duplicate"},
		DescriptionMinLen:    20,
		DescriptionPrefixLen: 500,
	}
}

// Engine scores ticket pairs against a Config.
type Engine struct {
	cfg  Config
	norm *normalize.Normalizer
}

// New creates an Engine. Zero-valued config fields fall back to the
// built-in defaults.
func New(cfg Config, norm *normalize.Normalizer) *Engine {
	def := DefaultConfig()
	if cfg.ConfidenceThreshold == 0 {
		cfg.ConfidenceThreshold = def.ConfidenceThreshold
	}
	if cfg.Keywords == nil {
		cfg.Keywords = def.Keywords
	}
	if cfg.SettledStatuses == nil {
		cfg.SettledStatuses = def.SettledStatuses
	}
	if cfg.DescriptionMinLen == 0 {
		cfg.DescriptionMinLen = def.DescriptionMinLen
	}
	if cfg.DescriptionPrefixLen == 0 {
		cfg.DescriptionPrefixLen = def.DescriptionPrefixLen
	}
	if norm == nil {
		norm = normalize.New(normalize.DefaultCatalogue())
	}
	return &Engine{cfg: cfg, norm: norm}
}

// Classify compares two tickets and returns the scored result. It is
// stateless: the outcome depends only on the two tickets and the prior
// pair lookup. Confidence and the duplicate verdict are symmetric in
// the argument order.
func (e *Engine) Classify(a, b *protocol.Ticket, prior PairSet) protocol.ComparisonResult {
	res := protocol.ComparisonResult{Pair: protocol.NewPairKey(a.Key, b.Key)}

	// Pre-filter: pairs already judged in an earlier run stay judged,
	// no matter how the tickets have changed since.
	if prior != nil && prior.Contains(res.Pair) {
		res.Reasons = append(res.Reasons, "Pair already processed in an earlier run")
		return res
	}
	if e.settled(a.Status) || e.settled(b.Status) {
		res.Reasons = append(res.Reasons, "One of the tickets is already settled")
		return res
	}
	// Malformed snapshots are never duplicates; skip rather than guess.
	if a.Created.IsZero() || b.Created.IsZero() {
		res.Reasons = append(res.Reasons, "Missing creation timestamp")
		return res
	}

	normA := e.norm.Normalize(a.Summary)
	normB := e.norm.Normalize(b.Summary)
	coreA := e.norm.CoreSubject(normA)
	coreB := e.norm.CoreSubject(normB)

	score := 0

	// Criterion 1: subject (max 45). Tiers are mutually exclusive,
	// strongest first.
	normSim := similarity.Ratio(normA, normB)
	coreSim := similarity.Ratio(coreA, coreB)
	switch {
	case normA == normB && len(normA) > 5:
		score += 45
		res.Reasons = append(res.Reasons, "Exact subject match")
	case normSim >= 0.95:
		score += 40
		res.Reasons = append(res.Reasons, fmt.Sprintf("Very high subject similarity (%.1f%%)", normSim*100))
	case normSim >= 0.85:
		score += 35
		res.Reasons = append(res.Reasons, fmt.Sprintf("High subject similarity (%.1f%%)", normSim*100))
	case coreA == coreB && len(coreA) > 10:
		score += 30
		res.Reasons = append(res.Reasons, "Core subject match")
	case normSim >= 0.75:
		score += 25
		res.Reasons = append(res.Reasons, fmt.Sprintf("Good subject similarity (%.1f%%)", normSim*100))
	case coreSim >= 0.80 && len(coreA) > 10 && len(coreB) > 10:
		score += 20
		res.Reasons = append(res.Reasons, fmt.Sprintf("Core similarity (%.1f%%)", coreSim*100))
	}

	// Criterion 2: time proximity (max 25).
	diff := a.Created.Sub(b.Created)
	if diff < 0 {
		diff = -diff
	}
	switch {
	case diff <= time.Minute:
		score += 25
		res.Reasons = append(res.Reasons, "Created within 1 minute (likely automation duplicate)")
	case diff <= 5*time.Minute:
		score += 20
		res.Reasons = append(res.Reasons, fmt.Sprintf("Created within %d minutes", int(diff.Minutes())))
	case diff <= 15*time.Minute:
		score += 15
		res.Reasons = append(res.Reasons, fmt.Sprintf("Created within %d minutes", int(diff.Minutes())))
	case diff <= 30*time.Minute:
		score += 10
		res.Reasons = append(res.Reasons, fmt.Sprintf("Created within %d minutes", int(diff.Minutes())))
	case diff <= time.Hour:
		score += 5
		res.Reasons = append(res.Reasons, "Created within 1 hour")
	}

	// Criterion 3: reporter (max 20). Automation reporters weigh more:
	// bots filing twice is the classic duplicate source.
	if a.Reporter != nil && b.Reporter != nil {
		sameAccount := a.Reporter.AccountID != "" && a.Reporter.AccountID == b.Reporter.AccountID
		sameIdentity := a.Reporter.Email != "" && a.Reporter.Email == b.Reporter.Email &&
			a.Reporter.DisplayName == b.Reporter.DisplayName
		if sameAccount || sameIdentity {
			name := a.Reporter.DisplayName
			lower := strings.ToLower(name)
			if strings.Contains(lower, "automation") || strings.Contains(lower, "bot") {
				score += 20
				res.Reasons = append(res.Reasons, "Same automation reporter: "+name)
			} else {
				score += 15
				res.Reasons = append(res.Reasons, "Same reporter: "+name)
			}
		}
	}

	// Criterion 4: description (max 15). Only when both carry substance.
	descA := ""
	descB := ""
	if len(a.Description) > e.cfg.DescriptionMinLen && len(b.Description) > e.cfg.DescriptionMinLen {
		descA = e.norm.Normalize(prefix(a.Description, e.cfg.DescriptionPrefixLen))
		descB = e.norm.Normalize(prefix(b.Description, e.cfg.DescriptionPrefixLen))
		descSim := similarity.Ratio(descA, descB)
		switch {
		case descSim >= 0.90:
			score += 15
			res.Reasons = append(res.Reasons, fmt.Sprintf("Very similar descriptions (%.1f%%)", descSim*100))
		case descSim >= 0.75:
			score += 10
			res.Reasons = append(res.Reasons, fmt.Sprintf("Similar descriptions (%.1f%%)", descSim*100))
		case descSim >= 0.60:
			score += 5
			res.Reasons = append(res.Reasons, "Somewhat similar descriptions")
		}
	}

	// Criterion 5: domain keyword overlap (max 10).
	combinedA := normA + " " + descA
	combinedB := normB + " " + descB
	shared := 0
	for _, kw := range e.cfg.Keywords {
		if strings.Contains(combinedA, kw) && strings.Contains(combinedB, kw) {
			shared++
		}
	}
	switch {
	case shared >= 3:
		score += 10
		res.Reasons = append(res.Reasons, fmt.Sprintf("Multiple domain keywords matched (%d)", shared))
	case shared >= 2:
		score += 7
		res.Reasons = append(res.Reasons, fmt.Sprintf("Domain keywords matched (%d)", shared))
	case shared >= 1:
		score += 4
		res.Reasons = append(res.Reasons, "Domain keyword detected")
	}

	// Criterion 6: differing status categories hint at intentionally
	// separate tickets.
	if a.Status != b.Status && a.StatusCategory != b.StatusCategory {
		score -= 5
		res.Reasons = append(res.Reasons, "(Different status categories)")
	}

	res.Confidence = score
	res.IsDuplicate = score >= e.cfg.ConfidenceThreshold
	return res
}

// Threshold exposes the configured confidence threshold.
func (e *Engine) Threshold() int {
	return e.cfg.ConfidenceThreshold
}

func (e *Engine) settled(status string) bool {
	s := strings.ToLower(status)
	for _, settled := range e.cfg.SettledStatuses {
		if strings.Contains(s, settled) {
			return true
		}
	}
	return false
}

// prefix cuts s to at most n runes, never splitting a multi-byte rune.
func prefix(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
