package protocol

import "time"

// StatusCategory is the coarse lifecycle class a tracker assigns to a status.
type StatusCategory string

const (
	CategoryOpen       StatusCategory = "new"
	CategoryInProgress StatusCategory = "indeterminate"
	CategoryDone       StatusCategory = "done"
)

// Reporter identifies who created a ticket in the external tracker.
type Reporter struct {
	AccountID   string `json:"account_id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email,omitempty"`
}

// Ticket is an immutable snapshot of an issue fetched from the tracker.
// The core never mutates it; state changes happen only through the
// tracker's transition API.
type Ticket struct {
	Key            string         `json:"key"`
	Summary        string         `json:"summary"`
	Description    string         `json:"description,omitempty"`
	Status         string         `json:"status"`
	StatusCategory StatusCategory `json:"status_category,omitempty"`
	Reporter       *Reporter      `json:"reporter,omitempty"`
	Created        time.Time      `json:"created"`
}

// PairKey is an order-normalized pair of ticket keys: (A,B) and (B,A)
// produce the same key, so the history ledger treats them as one entry.
type PairKey struct {
	First  string `json:"first"`
	Second string `json:"second"`
}

// NewPairKey builds a normalized PairKey from two ticket keys.
func NewPairKey(a, b string) PairKey {
	if b < a {
		a, b = b, a
	}
	return PairKey{First: a, Second: b}
}

// String renders the pair in its canonical "A|B" form.
func (p PairKey) String() string {
	return p.First + "|" + p.Second
}
