package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// RequestError is a non-2xx answer from the generator.
type RequestError struct {
	StatusCode int
	Body       string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("generate request failed: HTTP %d: %s", e.StatusCode, e.Body)
}

// IsRetryable returns true for server errors and rate limiting. Other client
// errors are permanent.
func (e *RequestError) IsRetryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

type HTTPClient struct {
	baseURL    string
	token      string
	deviceID   string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewHTTPClient(baseURL, token string, logger *slog.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			// Video generation is slow.
			Timeout: 5 * time.Minute,
		},
		logger: logger,
	}
}

func (c *HTTPClient) SetDeviceID(id string) {
	c.deviceID = id
}

func (c *HTTPClient) Generate(ctx context.Context, r Request) (Output, error) {
	if err := r.Validate(); err != nil {
		return Output{}, err
	}

	body, err := json.Marshal(r)
	if err != nil {
		return Output{}, fmt.Errorf("marshal generate request: %w", err)
	}

	url := fmt.Sprintf("%s/api/generate/%s", c.baseURL, r.Kind)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Output{}, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("X-Reelcut-Request-Id", uuid.NewString())
	if c.deviceID != "" {
		req.Header.Set("X-Reelcut-Device-Id", c.deviceID)
	}

	c.logger.Info("requesting generation", "url", url, "kind", string(r.Kind), "scene", r.Scene)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Output{}, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Output{}, &RequestError{StatusCode: resp.StatusCode, Body: truncate(string(respBody), 512)}
	}

	var out Output
	if err := json.Unmarshal(respBody, &out); err != nil {
		return Output{}, fmt.Errorf("decode generate response: %w", err)
	}
	if out.URL == "" {
		return Output{}, fmt.Errorf("generate response has no url")
	}

	c.logger.Info("generation succeeded", "kind", string(r.Kind), "url", out.URL, "duration", out.Duration)
	return out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
