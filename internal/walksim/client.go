package walksim

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
)

// submission outcomes, keyed off the HTTP status the service returned.
const (
	outcomeAccepted  = "accepted"
	outcomeDuplicate = "duplicate"
	outcomeRejected  = "rejected"
	outcomeFailed    = "failed"
)

// HTTPClient wraps http.Client with a timeout and JSON helpers.
type HTTPClient struct {
	client *http.Client
}

func newHTTPClient(timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		client: &http.Client{Timeout: timeout},
	}
}

// Get performs a GET request.
func (c *HTTPClient) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	return c.client.Do(req)
}

// Post performs a POST request with an optional JSON body.
func (c *HTTPClient) Post(ctx context.Context, url string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.client.Do(req)
}

// getJSON performs a GET and decodes the response body into out.
func (c *HTTPClient) getJSON(ctx context.Context, url string, out any) error {
	resp, err := c.Get(ctx, url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d for %s", resp.StatusCode, url)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// submitFix posts one fix and classifies the verdict.
func submitFix(ctx context.Context, client *HTTPClient, baseURL string, sessionID string, f fix) string {
	url := baseURL + "/v1/sessions/" + sessionID + "/locations"

	resp, err := client.Post(ctx, url, f)
	if err != nil {
		return outcomeFailed
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch resp.StatusCode {
	case http.StatusAccepted:
		return outcomeAccepted
	case http.StatusConflict:
		return outcomeDuplicate
	case http.StatusUnprocessableEntity, http.StatusBadRequest:
		return outcomeRejected
	default:
		return outcomeFailed
	}
}

// postLifecycle drives a session lifecycle endpoint (start/complete/cancel).
func postLifecycle(ctx context.Context, client *HTTPClient, baseURL, sessionID, action string, want int) error {
	url := baseURL + "/v1/sessions/" + sessionID + "/" + action

	resp, err := client.Post(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("%s %s: %w", action, sessionID, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != want {
		return fmt.Errorf("%s %s: unexpected status %d", action, sessionID, resp.StatusCode)
	}
	return nil
}
