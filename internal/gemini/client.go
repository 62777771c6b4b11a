// Package gemini is a thin REST client for the generateContent and
// streamGenerateContent endpoints of the Gemini API.
package gemini

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// maxEventSize bounds a single SSE data line.
const maxEventSize = 4 << 20

type Client struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

// WithRateLimit paces outgoing requests. rps ≤ 0 disables pacing.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

func New(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 120 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Generate performs a blocking generateContent call.
func (c *Client) Generate(ctx context.Context, apiKey, model string, req *Request) (*Response, error) {
	resp, err := c.do(ctx, apiKey, fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, model), req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &out, nil
}

// Stream performs a streamGenerateContent call and invokes onEvent for every
// server-sent event in arrival order. An error returned by onEvent stops the
// stream and is returned unchanged.
func (c *Client) Stream(ctx context.Context, apiKey, model string, req *Request, onEvent func(*Response) error) error {
	resp, err := c.do(ctx, apiKey, fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse", c.baseURL, model), req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventSize)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "" || data == "[DONE]" {
			continue
		}

		if apiErr := parseError(resp.StatusCode, []byte(data)); apiErr != nil {
			return apiErr
		}

		var event Response
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			return fmt.Errorf("failed to decode stream event: %w", err)
		}
		if err := onEvent(&event); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("stream read failed: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, apiKey, endpoint string, req *Request) (*http.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", apiKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if apiErr := parseError(resp.StatusCode, raw); apiErr != nil {
			return nil, apiErr
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Message: truncate(string(raw), 300)}
	}
	return resp, nil
}

// parseError decodes the {error:{code,message,status,details}} envelope.
// It returns nil when raw carries no error object.
func parseError(statusCode int, raw []byte) *APIError {
	var env errorEnvelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Error == nil {
		return nil
	}
	apiErr := &APIError{
		StatusCode: statusCode,
		Code:       env.Error.Code,
		Message:    env.Error.Message,
		Status:     env.Error.Status,
	}
	if apiErr.StatusCode == http.StatusOK && apiErr.Code != 0 {
		apiErr.StatusCode = apiErr.Code
	}
	for _, d := range env.Error.Details {
		if strings.Contains(d.Type, "RetryInfo") && d.RetryDelay != "" {
			if delay, err := time.ParseDuration(d.RetryDelay); err == nil {
				apiErr.RetryDelay = delay
			}
		}
	}
	return apiErr
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
