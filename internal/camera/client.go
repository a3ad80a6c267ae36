package camera

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultTimeout = 10 * time.Second
	retryAttempts  = 3
)

// EventRecord is the wire shape the camera firmware returns for one
// capture. triggeredAt stays a string here; parsing (and skipping bad
// formats) is the sync engine's job.
type EventRecord struct {
	FileName     string `json:"fileName"`
	EventName    string `json:"eventName"`
	TriggeredAt  string `json:"triggeredAt"`
	Age          int    `json:"age"`
	Dir          string `json:"dir"`
	PlaybackTime int    `json:"playbackTime"`
	VidExt       string `json:"vidExt"`
	ThmbExt      string `json:"thmbExt"`
}

// Client talks to one camera's REST API. All methods retry transient
// failures with exponential backoff before surfacing a final error, so
// callers see only definitive success or failure per call.
type Client struct {
	baseURL  string
	username string
	password string
	client   *http.Client
}

func NewClient(baseURL, username, password string) *Client {
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		username: username,
		password: password,
		client:   &http.Client{Timeout: DefaultTimeout},
	}
}

// apiURL normalizes the base URL to avoid a double /api segment when the
// configured address already includes it.
func (c *Client) apiURL(endpoint string) string {
	if strings.HasSuffix(c.baseURL, "/api") {
		return c.baseURL + endpoint
	}
	return c.baseURL + "/api" + endpoint
}

func (c *Client) doRequest(ctx context.Context, method, endpoint string) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt < retryAttempts; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * time.Second
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		req, err := http.NewRequestWithContext(ctx, method, c.apiURL(endpoint), nil)
		if err != nil {
			return nil, err
		}
		if c.username != "" {
			req.SetBasicAuth(c.username, c.password)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode >= 500 {
			resp.Body.Close()
			lastErr = fmt.Errorf("camera: status %d", resp.StatusCode)
			continue
		}
		if resp.StatusCode >= 400 {
			resp.Body.Close()
			return nil, fmt.Errorf("camera: status %d", resp.StatusCode)
		}
		return resp, nil
	}
	return nil, fmt.Errorf("camera: request failed after %d attempts: %w", retryAttempts, lastErr)
}

func (c *Client) getEventList(ctx context.Context, endpoint string) ([]EventRecord, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, endpoint)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var events []EventRecord
	if err := json.NewDecoder(resp.Body).Decode(&events); err != nil {
		return nil, fmt.Errorf("camera: decode %s: %w", endpoint, err)
	}
	return events, nil
}

// ListEvents returns every capture the camera currently knows about.
func (c *Client) ListEvents(ctx context.Context) ([]EventRecord, error) {
	return c.getEventList(ctx, "/events")
}

// ListActiveEvents returns captures still recording.
func (c *Client) ListActiveEvents(ctx context.Context) ([]EventRecord, error) {
	return c.getEventList(ctx, "/events/active")
}

// DeleteEvent removes a capture from the camera's own storage.
func (c *Client) DeleteEvent(ctx context.Context, filename string) error {
	resp, err := c.doRequest(ctx, http.MethodDelete, "/events/"+filename)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// StopAllActiveEvents aborts every in-progress recording.
func (c *Client) StopAllActiveEvents(ctx context.Context) error {
	resp, err := c.doRequest(ctx, http.MethodDelete, "/events/active")
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// TestConnection probes the camera with a single un-retried request. The
// health monitor calls this on its own interval; retrying here would
// just stretch the probe.
func (c *Client) TestConnection(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL("/system"), nil)
	if err != nil {
		return err
	}
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("camera: status %d", resp.StatusCode)
	}
	return nil
}
