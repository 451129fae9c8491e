// Package validate provides the client for the remote Based code validation
// service.
package validate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Validation statuses returned by the service.
const (
	StatusSuccess = "success"
	StatusFail    = "fail"
)

// Result is the validation service's verdict on a candidate.
type Result struct {
	Status        string `json:"status"`
	Error         string `json:"error,omitempty"`
	ConvertedCode string `json:"converted_code,omitempty"`
}

// OK reports whether the candidate passed validation.
func (r *Result) OK() bool {
	return r.Status == StatusSuccess
}

// Validator is the contract the agent engines consume. A non-nil error means
// the service could not be reached or answered garbage; a Result with
// Status "fail" is an ordinary validation failure.
type Validator interface {
	Validate(ctx context.Context, code string) (*Result, error)
}

// Client validates Based code against the remote validation service.
type Client struct {
	url        string
	httpClient *http.Client
}

// Ensure Client implements the Validator interface.
var _ Validator = (*Client)(nil)

// NewClient creates a new validation client.
func NewClient(url string, timeout time.Duration) *Client {
	return &Client{
		url: strings.TrimSuffix(url, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Validate submits the candidate code and returns the service's verdict.
func (c *Client) Validate(ctx context.Context, code string) (*Result, error) {
	body, err := json.Marshal(map[string]string{"code": code})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("validation request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("validation service error [%d]: %s", resp.StatusCode, string(respBody))
	}

	var result Result
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return &result, nil
}
