package config

import (
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
)

const platformConfigJSON = `{
  "service": {
    "data_dir": "/ignored"
  },
  "tracker": {
    "base_url": "https://example.atlassian.net",
    "email": "automations@fund.example.com",
    "api_token": "jira-token",
    "projects": ["NVSTRS"]
  },
  "api": {
    "host": "0.0.0.0",
    "port": 8080
  }
}`

func TestLoadFromPlatform(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/instances/config" {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if r.Header.Get("X-Instance-ID") != "canceller-123" {
			http.Error(w, "missing instance id", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(platformConfigJSON))
	}))
	defer srv.Close()

	dataDir := t.TempDir()
	cfg, err := LoadFromPlatform(PlatformOptions{
		PlatformURL: srv.URL,
		InstanceID:  "canceller-123",
		APIKey:      "test-key",
		DataDir:     dataDir,
	})
	if err != nil {
		t.Fatalf("LoadFromPlatform: %v", err)
	}

	if cfg.Tracker.BaseURL != "https://example.atlassian.net" {
		t.Errorf("tracker.base_url = %q", cfg.Tracker.BaseURL)
	}
	if cfg.Service.DataDir != dataDir {
		t.Errorf("data_dir should be overridden to %q, got %q", dataDir, cfg.Service.DataDir)
	}
	if _, err := os.Stat(dataDir); err != nil {
		t.Errorf("data dir not created: %v", err)
	}
	// Defaults are applied to the fetched config too.
	if cfg.Service.CheckSchedule != "@every 10m" {
		t.Errorf("default check_schedule = %q", cfg.Service.CheckSchedule)
	}
}

func TestLoadFromPlatform_Unauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := LoadFromPlatform(PlatformOptions{
		PlatformURL: srv.URL,
		InstanceID:  "x",
		APIKey:      "wrong",
		DataDir:     t.TempDir(),
	})
	if err == nil {
		t.Fatal("expected error for unauthorized")
	}
}

func TestLoadFromPlatform_InvalidJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	}))
	defer srv.Close()

	_, err := LoadFromPlatform(PlatformOptions{
		PlatformURL: srv.URL,
		InstanceID:  "x",
		APIKey:      "k",
		DataDir:     t.TempDir(),
	})
	if err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestLoadFromPlatform_IncompleteConfig(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"service": {"data_dir": "/ignored"}}`))
	}))
	defer srv.Close()

	_, err := LoadFromPlatform(PlatformOptions{
		PlatformURL: srv.URL,
		InstanceID:  "x",
		APIKey:      "k",
		DataDir:     t.TempDir(),
	})
	if err == nil {
		t.Fatal("expected validation error for config without tracker credentials")
	}
}
