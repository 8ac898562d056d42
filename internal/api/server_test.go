package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dupcancel-io/dupcancel/internal/history"
	"github.com/dupcancel-io/dupcancel/pkg/protocol"
)

// mockChecker implements Checker for testing.
type mockChecker struct {
	stats *protocol.RunStats
	err   error
	runs  int
}

func (m *mockChecker) Run(_ context.Context) (*protocol.RunStats, error) {
	m.runs++
	return m.stats, m.err
}

func newTestServer(checker Checker, store history.Store, key string) *Server {
	return NewServer(checker, store, Config{Host: "127.0.0.1", Port: 0, Key: key}, nil, nil)
}

func TestHealth(t *testing.T) {
	srv := newTestServer(&mockChecker{}, history.NewMemoryStore(), "")
	req := httptest.NewRequest("GET", "/api/health", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d", w.Code)
	}
	var body map[string]string
	json.NewDecoder(w.Body).Decode(&body)
	if body["status"] != "ok" {
		t.Errorf("body = %v", body)
	}
}

func TestStatus(t *testing.T) {
	store := history.NewMemoryStore()
	store.RecordRun(protocol.RunStats{
		ID:         "run-1",
		StartedAt:  time.Now().UTC().Add(-time.Minute),
		FinishedAt: time.Now().UTC(),
		Scanned:    42,
		PairsFound: 2,
		Cancelled:  2,
	})

	srv := newTestServer(&mockChecker{}, store, "")
	req := httptest.NewRequest("GET", "/api/status", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var stats protocol.RunStats
	json.NewDecoder(w.Body).Decode(&stats)
	if stats.ID != "run-1" || stats.Scanned != 42 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestStatusNoRuns(t *testing.T) {
	srv := newTestServer(&mockChecker{}, history.NewMemoryStore(), "")
	req := httptest.NewRequest("GET", "/api/status", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 before first run", w.Code)
	}
}

func TestHistory(t *testing.T) {
	store := history.NewMemoryStore()
	for i := 0; i < 3; i++ {
		store.RecordPair(history.PairRecord{
			Pair:       protocol.NewPairKey(fmt.Sprintf("NVSTRS-%d", i), fmt.Sprintf("NVSTRS-%d", i+100)),
			RecordedAt: time.Now().UTC().Add(time.Duration(i) * time.Second),
			RunID:      "run-1",
			Cancelled:  true,
		})
	}

	srv := newTestServer(&mockChecker{}, store, "")
	req := httptest.NewRequest("GET", "/api/history?limit=2", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var pairs []history.PairRecord
	json.NewDecoder(w.Body).Decode(&pairs)
	if len(pairs) != 2 {
		t.Errorf("pairs = %d, want limit 2", len(pairs))
	}
}

func TestHistoryEmpty(t *testing.T) {
	srv := newTestServer(&mockChecker{}, history.NewMemoryStore(), "")
	req := httptest.NewRequest("GET", "/api/history", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if body := w.Body.String(); body == "null\n" {
		t.Error("empty history should serialize as [], not null")
	}
}

func TestCheckTrigger(t *testing.T) {
	checker := &mockChecker{stats: &protocol.RunStats{ID: "manual-1", PairsFound: 1}}
	srv := newTestServer(checker, history.NewMemoryStore(), "")
	req := httptest.NewRequest("POST", "/api/check", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if checker.runs != 1 {
		t.Errorf("checker runs = %d", checker.runs)
	}
	var stats protocol.RunStats
	json.NewDecoder(w.Body).Decode(&stats)
	if stats.ID != "manual-1" {
		t.Errorf("stats = %+v", stats)
	}
}

func TestCheckFailure(t *testing.T) {
	checker := &mockChecker{err: fmt.Errorf("tracker unreachable")}
	srv := newTestServer(checker, history.NewMemoryStore(), "")
	req := httptest.NewRequest("POST", "/api/check", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d", w.Code)
	}
}

func TestAuthRequired(t *testing.T) {
	srv := newTestServer(&mockChecker{}, history.NewMemoryStore(), "secret")

	// Health stays open.
	req := httptest.NewRequest("GET", "/api/health", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("health status = %d", w.Code)
	}

	for _, path := range []string{"/api/status", "/api/history", "/api/logs"} {
		req = httptest.NewRequest("GET", path, nil)
		w = httptest.NewRecorder()
		srv.Handler().ServeHTTP(w, req)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("%s without token: status = %d", path, w.Code)
		}

		req = httptest.NewRequest("GET", path, nil)
		req.Header.Set("Authorization", "Bearer wrong")
		w = httptest.NewRecorder()
		srv.Handler().ServeHTTP(w, req)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("%s with wrong token: status = %d", path, w.Code)
		}
	}

	req = httptest.NewRequest("POST", "/api/check", nil)
	req.Header.Set("Authorization", "Bearer secret")
	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("check with token: status = %d", w.Code)
	}
}

func TestLogsWithoutBuffer(t *testing.T) {
	srv := newTestServer(&mockChecker{}, history.NewMemoryStore(), "")
	req := httptest.NewRequest("GET", "/api/logs", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if body := w.Body.String(); body == "null\n" {
		t.Error("logs without buffer should serialize as []")
	}
}
