package normalize

import "testing"

func TestNormalize(t *testing.T) {
	n := New(DefaultCatalogue())

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"lowercases", "Capital Call Notice", "capital call notice"},
		{"reply prefix", "RE: Capital Call Notice", "capital call notice"},
		{"numbered reply prefix", "Re[4]: Capital Call Notice", "capital call notice"},
		{"forward prefix", "FWD: Wire instructions", "wire instructions"},
		{"german reply", "AW: Rechnung offen", "rechnung offen"},
		{"stacked prefixes", "RE: FW: Statement ready", "statement ready"},
		{"trailing marker", "Statement ready (fwd)", "statement ready"},
		{"external tag", "[EXTERNAL] Payment received", "payment received"},
		{"urgent tag inline", "Payment [URGENT] received", "payment received"},
		{"thread counters", "Payment received (2) [3] #4", "payment received"},
		{"ticket id", "Follow up on NVSTRS-1234 today", "follow up on today"},
		{"ticket id underscore", "see abc_4567 for details", "see for details"},
		{"url", "see https://example.com/x?y=1 for details", "see for details"},
		{"email", "contact ops@fund.example.com please", "contact please"},
		{"separator runs", "quarterly report -- fund III", "quarterly report fund iii"},
		{"dash collapses", "Capital Call Notice - Q3", "capital call notice q3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := n.Normalize(tt.in); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeScenarioPair(t *testing.T) {
	// Reply-prefixed and plain renditions of the same subject must be
	// identical after normalization.
	n := New(DefaultCatalogue())
	a := n.Normalize("Capital Call Notice - Q3 2025")
	b := n.Normalize("RE: Capital Call Notice - Q3 2025")
	if a != b {
		t.Errorf("expected identical normalized subjects, got %q vs %q", a, b)
	}
	if a == "" {
		t.Error("normalized subject should not be empty")
	}
}

func TestCoreSubject(t *testing.T) {
	n := New(DefaultCatalogue())

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"slash date", "statement for 12/31/2025 ready", "statement for ready"},
		{"iso date", "statement for 2025-12-31 ready", "statement for ready"},
		{"time of day", "backup at 3:45 pm done", "backup at done"},
		{"time with seconds", "backup at 03:45:12 done", "backup at done"},
		{"counter", "invoice #992 overdue", "invoice overdue"},
		{"email", "escalate to ops@fund.example.com now", "escalate to now"},
		{"no variable parts", "quarterly report fund iii", "quarterly report fund iii"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := n.CoreSubject(tt.in); got != tt.want {
				t.Errorf("CoreSubject(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestCustomCatalogue(t *testing.T) {
	cat := Catalogue{
		ReplyPrefixes: []string{`^odp:\s*`},
		Tags:          []string{"internal"},
	}
	n := New(cat)

	if got := n.Normalize("ODP: [internal] hello"); got != "hello" {
		t.Errorf("custom catalogue not applied, got %q", got)
	}
	// The default English prefixes are not part of this catalogue.
	if got := n.Normalize("re: hello"); got != "re: hello" {
		t.Errorf("expected default prefixes absent, got %q", got)
	}
}
