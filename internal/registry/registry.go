// Package registry implements the external mod registry client the Fix
// Planner uses to validate suggested fixes before promoting them to
// operations (§4.L.5, §7 "mod registry 5xx retried up to 3x with
// backoff"). Grounded on snek-modrinth-mod-updater/modrinth/client.go's
// makeRequest helper (stdlib net/http, query-param building, status-code
// checking), adapted with the same exponential-backoff-with-jitter retry
// internal/llmgateway uses for its own external calls, since the pack
// carries no third-party HTTP client library to reach for instead.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"time"

	"github.com/modforge/assembler/internal/crash"
)

const (
	defaultTimeout    = 10 * time.Second
	maxAttempts       = 3
	defaultBaseBackoff = 200 * time.Millisecond
)

// Client is the HTTP-backed mod registry lookup, satisfying
// crash.Registry.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New constructs a Client against the given registry base URL.
func New(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
}

var _ crash.Registry = (*Client)(nil)

type projectResponse struct {
	ID   string `json:"id"`
	Slug string `json:"slug"`
}

type versionResponse struct {
	ID string `json:"id"`
}

// FindMod resolves a name or slug to a registry source_id. A registry
// that's unreachable or returns 404 yields ok=false, which the Fix
// Planner treats as "demote to warning", never a fatal pipeline error.
func (c *Client) FindMod(ctx context.Context, nameOrSlug string) (string, bool) {
	var project projectResponse
	if err := c.get(ctx, fmt.Sprintf("/project/%s", url.PathEscape(nameOrSlug)), nil, &project); err != nil {
		return "", false
	}
	if project.ID == "" {
		return "", false
	}
	return project.ID, true
}

// HasCompatibleVersion reports whether sourceID has a published version
// compatible with the given loader and game version.
func (c *Client) HasCompatibleVersion(ctx context.Context, sourceID, loader, gameVersion string) bool {
	params := url.Values{}
	params.Set("loaders", fmt.Sprintf("[%q]", loader))
	params.Set("game_versions", fmt.Sprintf("[%q]", gameVersion))

	var versions []versionResponse
	if err := c.get(ctx, fmt.Sprintf("/project/%s/version", url.PathEscape(sourceID)), params, &versions); err != nil {
		return false
	}
	return len(versions) > 0
}

// get issues a GET request and decodes a JSON body into target, retrying
// transient failures and 5xx responses up to maxAttempts with
// exponential backoff and jitter. A 4xx response is never retried.
func (c *Client) get(ctx context.Context, path string, params url.Values, target any) error {
	fullURL := c.baseURL + path

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			backoff := defaultBaseBackoff * time.Duration(1<<(attempt-2))
			backoff += time.Duration(rand.Int63n(int64(backoff)/2 + 1))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		err := c.doGet(ctx, fullURL, params, target)
		if err == nil {
			return nil
		}
		lastErr = err
		if !isRetryable(err) {
			return err
		}
	}
	return lastErr
}

type statusError struct{ status int }

func (e *statusError) Error() string { return fmt.Sprintf("registry request failed: status %d", e.status) }

func isRetryable(err error) bool {
	se, ok := err.(*statusError)
	if !ok {
		return true // network-level errors are always worth a retry
	}
	return se.status >= 500
}

func (c *Client) doGet(ctx context.Context, fullURL string, params url.Values, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return fmt.Errorf("building registry request: %w", err)
	}
	if params != nil {
		req.URL.RawQuery = params.Encode()
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("calling mod registry: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return &statusError{status: resp.StatusCode}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &statusError{status: resp.StatusCode}
	}
	if target == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("decoding registry response: %w", err)
	}
	return nil
}
