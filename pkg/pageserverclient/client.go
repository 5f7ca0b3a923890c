package pageserverclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/attachctl/attachctl/pkg/types"
)

// Client issues the page server HTTP/JSON calls the reconciler needs:
// writing a location config and reading back timeline LSNs for live-migration
// catch-up polling.
type Client struct {
	http *http.Client
}

// New returns a Client whose every request is bounded by timeout; an earlier
// deadline on the caller's context still applies.
func New(timeout time.Duration) *Client {
	return &Client{http: &http.Client{Timeout: timeout}}
}

// StatusError is returned when a page server responds with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("page server returned %d: %s", e.StatusCode, e.Body)
}

// LocationConfig issues PUT /tenant/{shard}/location_config against baseURL.
// It returns nil only on a 2xx response.
func (c *Client) LocationConfig(ctx context.Context, baseURL string, shard types.TenantShardId, config types.LocationConfig) error {
	body, err := json.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshal location config: %w", err)
	}

	url := fmt.Sprintf("%s/tenant/%s/location_config", baseURL, shard.String())
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build location config request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("location config request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &StatusError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	return nil
}

// CreateTimelineRequest is the body forwarded to a page server when a tenant
// branches a new timeline.
type CreateTimelineRequest struct {
	NewTimelineID types.TimelineId  `json:"new_timeline_id"`
	AncestorID    *types.TimelineId `json:"ancestor_timeline_id,omitempty"`
}

// CreateTimeline issues POST /tenant/{shard}/timeline against baseURL.
func (c *Client) CreateTimeline(ctx context.Context, baseURL string, shard types.TenantShardId, req CreateTimelineRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal create-timeline request: %w", err)
	}

	url := fmt.Sprintf("%s/tenant/%s/timeline", baseURL, shard.String())
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build create-timeline request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return fmt.Errorf("create-timeline request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &StatusError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	return nil
}

// TimelineLSN is one timeline's last-written LSN as reported by a page server.
type TimelineLSN struct {
	TimelineID    types.TimelineId `json:"timeline_id"`
	LastRecordLSN uint64           `json:"last_record_lsn"`
}

// Timelines issues GET /tenant/{shard}/timeline against baseURL, used to poll
// a live-migration destination for catch-up.
func (c *Client) Timelines(ctx context.Context, baseURL string, shard types.TenantShardId) ([]TimelineLSN, error) {
	url := fmt.Sprintf("%s/tenant/%s/timeline", baseURL, shard.String())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build timeline list request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("timeline list request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(b)}
	}

	var out []TimelineLSN
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode timeline list: %w", err)
	}
	return out, nil
}
