package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/scriptreel/api/internal/config"
	"github.com/scriptreel/api/internal/model"
)

// Typed fetch failures; the service maps these to its caller-visible codes.
// All of them leave the job in PENDING so start can be retried.
var (
	ErrScriptNotFound     = errors.New("script render spec not found")
	ErrScriptUnauthorized = errors.New("script authority rejected credentials")
	ErrScriptServer       = errors.New("script authority server error")
)

// SnapshotFetcher retrieves the approved render specification for a script.
type SnapshotFetcher interface {
	GetRenderSpec(ctx context.Context, scriptID string) (*model.RenderSpec, error)
	IsApproved(ctx context.Context, scriptID string) (bool, error)
}

// ScriptClient implements SnapshotFetcher against the script authority.
type ScriptClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// NewScriptClient creates a new script authority client
func NewScriptClient(cfg *config.ScriptConfig) *ScriptClient {
	return &ScriptClient{
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.Timeout) * time.Second,
		},
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
	}
}

// GetRenderSpec fetches the approved render spec for a script. 404 maps to
// ErrScriptNotFound, 401/403 to ErrScriptUnauthorized, 5xx to
// ErrScriptServer.
func (c *ScriptClient) GetRenderSpec(ctx context.Context, scriptID string) (*model.RenderSpec, error) {
	endpoint := fmt.Sprintf("/v1/scripts/%s/render-spec", scriptID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	log.Printf("[Script API] → GET %s", req.URL.String())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Printf("[Script API] ✗ GET %s — request failed: %v", req.URL.String(), err)
		return nil, fmt.Errorf("%w: %v", ErrScriptServer, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %v", ErrScriptServer, err)
	}

	log.Printf("[Script API] ← %d GET %s", resp.StatusCode, req.URL.String())

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, ErrScriptNotFound
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, ErrScriptUnauthorized
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: status %d: %s", ErrScriptServer, resp.StatusCode, string(body))
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, fmt.Errorf("script authority error (status %d): %s", resp.StatusCode, string(body))
	}

	var spec model.RenderSpec
	if err := json.Unmarshal(body, &spec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal render spec: %w", err)
	}
	if spec.ScriptID == "" {
		spec.ScriptID = scriptID
	}

	return &spec, nil
}

// IsApproved reports whether an approved render spec source exists for the
// script. Used at job creation so a job is never created for an unapproved
// script.
func (c *ScriptClient) IsApproved(ctx context.Context, scriptID string) (bool, error) {
	endpoint := fmt.Sprintf("/v1/scripts/%s/approval", scriptID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return false, fmt.Errorf("failed to create request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrScriptServer, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode == http.StatusOK:
		return true, nil
	case resp.StatusCode == http.StatusNotFound:
		return false, nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return false, ErrScriptUnauthorized
	default:
		return false, fmt.Errorf("%w: status %d", ErrScriptServer, resp.StatusCode)
	}
}

// IsConfigured returns true if the client has valid configuration
func (c *ScriptClient) IsConfigured() bool {
	return c.baseURL != ""
}
