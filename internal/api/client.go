// internal/api/client.go
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/nacalab/editcore/pkg/object"
)

// Client handles communication with the NACA community service.
type Client struct {
	baseURL     string
	communityID string
	httpClient  *http.Client
}

// CommunityHeader scopes every mutating request to a community.
const CommunityHeader = "X-Community-ID"

// New creates a new API client.
func New(baseURL, communityID string) *Client {
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		communityID: communityID,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
	}
}

// StatusError is returned for non-2xx responses so callers can branch on the
// class of failure (retryable 5xx, rate-limit 429, terminal 4xx).
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("request returned status %d", e.StatusCode)
}

// Healthcheck checks if the NACA service is reachable.
func (c *Client) Healthcheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthcheck", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("healthcheck request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &StatusError{StatusCode: resp.StatusCode}
	}
	return nil
}

// DraftURL builds the draft-scoped update endpoint.
func (c *Client) DraftURL(draftID string) string {
	return fmt.Sprintf("%s/api/communities/%s/drafts/%s", c.baseURL, c.communityID, draftID)
}

// DraftHeaders returns the headers a draft update carries, including the
// community-scoping header. Exposed so the offline queue can replay an
// identical request later.
func (c *Client) DraftHeaders() map[string]string {
	return map[string]string{
		"Content-Type":  "application/json",
		CommunityHeader: c.communityID,
	}
}

// UpdateDraft PATCHes a partial field map onto a remotely persisted draft.
// Success is any 2xx; everything else is a StatusError.
func (c *Client) UpdateDraft(ctx context.Context, draftID string, fields object.Fields) error {
	body, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("failed to marshal draft fields: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, c.DraftURL(draftID), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range c.DraftHeaders() {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("draft update request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{StatusCode: resp.StatusCode, Body: string(raw)}
	}
	return nil
}
