package engine

import (
	"sort"

	"github.com/dupcancel-io/dupcancel/pkg/protocol"
)

// FindDuplicates enumerates all unordered ticket pairs in creation order
// and returns a decision for each pair the engine classifies as
// duplicate. The kept ticket is always the one created not-later; exact
// ties keep the first ticket in the (stable) sorted input order.
//
// Pairs are independent: one ticket can appear in several decisions.
// The runner is responsible for not cancelling the same ticket twice
// within a run.
func (e *Engine) FindDuplicates(tickets []*protocol.Ticket, prior PairSet) []protocol.DuplicateDecision {
	sorted := make([]*protocol.Ticket, len(tickets))
	copy(sorted, tickets)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Created.Before(sorted[j].Created)
	})

	var decisions []protocol.DuplicateDecision
	for i := 0; i < len(sorted); i++ {
		for j := i + 1; j < len(sorted); j++ {
			res := e.Classify(sorted[i], sorted[j], prior)
			if !res.IsDuplicate {
				continue
			}
			// After the stable sort, sorted[i].Created <= sorted[j].Created,
			// so the earlier (or tie-break-first) ticket is always kept.
			decisions = append(decisions, protocol.DuplicateDecision{
				Keep:   sorted[i],
				Cancel: sorted[j],
				Result: res,
			})
		}
	}
	return decisions
}
