package call

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Config is the per-call configuration fetched from the backend for an
// agent. The telephony token is the credential the session adapter
// dials with; a call cannot be placed without it.
type Config struct {
	AgentName      string `json:"agentName"`
	TelephonyToken string `json:"telephonyToken"`
	Greeting       string `json:"greeting"`
	Language       string `json:"language"`
	Instructions   string `json:"instructions"`
}

// FetchConfig retrieves the call configuration for an agent. A missing
// credential or a response without a telephony token is a fatal setup
// error; no degraded connect is attempted.
func FetchConfig(ctx context.Context, backendURL, credential, agentID string) (*Config, error) {
	if backendURL == "" {
		return nil, fmt.Errorf("backend URL is required")
	}
	if credential == "" {
		return nil, fmt.Errorf("backend credential is required")
	}
	if agentID == "" {
		return nil, fmt.Errorf("agent id is required")
	}

	endpoint := fmt.Sprintf("%s/agents/%s/call-config", backendURL, url.PathEscape(agentID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build config request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+credential)

	client := &http.Client{Timeout: 15 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("config fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("config fetch failed: status %d: %s", resp.StatusCode, data)
	}

	var cfg Config
	if err := json.NewDecoder(resp.Body).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.TelephonyToken == "" {
		return nil, fmt.Errorf("config has no telephony token")
	}
	return &cfg, nil
}
