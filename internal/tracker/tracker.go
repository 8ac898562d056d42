// Package tracker talks to the external issue tracker. The core treats
// it as an opaque collaborator: a source of ticket snapshots and a sink
// for cancellation actions.
package tracker

import (
	"context"
	"time"

	"github.com/dupcancel-io/dupcancel/pkg/protocol"
)

// Source fetches ticket snapshots for a project and lookback window.
type Source interface {
	Search(ctx context.Context, project string, lookback time.Duration) ([]*protocol.Ticket, error)
}

// Sink executes a cancellation against the tracker: transition the
// ticket to a settled state and leave an audit comment pointing at the
// kept original.
type Sink interface {
	Cancel(ctx context.Context, ticketKey, originalKey, comment string) error
}
