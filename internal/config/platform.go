package config

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// PlatformOptions holds parameters for fetching config from a central
// ops dashboard instead of a local file.
type PlatformOptions struct {
	PlatformURL string // e.g. https://ops.example.com
	InstanceID  string
	APIKey      string
	DataDir     string // local data directory, default /data
}

// LoadFromPlatform fetches the canceller configuration from the ops
// dashboard API, ensures the local data directory exists, and returns
// the parsed Config.
func LoadFromPlatform(opts PlatformOptions) (*Config, error) {
	if opts.DataDir == "" {
		opts.DataDir = "/data"
	}

	url := fmt.Sprintf("%s/api/instances/config", opts.PlatformURL)
	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("platform: create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+opts.APIKey)
	req.Header.Set("X-Instance-ID", opts.InstanceID)

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("platform: fetch config: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("platform: read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("platform: HTTP %d: %s", resp.StatusCode, string(body))
	}

	var cfg Config
	if err := json.Unmarshal(body, &cfg); err != nil {
		return nil, fmt.Errorf("platform: parse config: %w", err)
	}

	// The dashboard doesn't know this host's filesystem layout.
	cfg.Service.DataDir = opts.DataDir
	if err := os.MkdirAll(opts.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("platform: create data dir %q: %w", opts.DataDir, err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("platform: %w", err)
	}
	return &cfg, nil
}
