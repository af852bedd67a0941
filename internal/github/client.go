package github

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/fclairamb/ghsync/internal/apperrors"
)

const (
	// BaseURL is the GitHub REST API base URL.
	BaseURL = "https://api.github.com"
	// APIVersion is the GitHub API version to use.
	APIVersion = "2022-11-28"

	// HTTP client configuration.
	httpTimeout = 30 * time.Second // Timeout for HTTP requests

	// Rate limiting configuration (~10 requests/second).
	rateLimitInterval = 100 * time.Millisecond

	// HTTP status codes.
	httpStatusBadRequest = 400 // First status code indicating an error
)

// Client is a GitHub REST API client with rate limiting.
type Client struct {
	httpClient  *http.Client
	token       string
	rateLimiter *rate.Limiter
	baseURL     string
	apiVersion  string
	logger      *slog.Logger
}

// ClientOption configures the client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(client *Client) {
		client.httpClient = c
	}
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) ClientOption {
	return func(client *Client) {
		client.logger = l
	}
}

// WithBaseURL sets a custom base URL (useful for testing and GitHub Enterprise).
func WithBaseURL(url string) ClientOption {
	return func(client *Client) {
		client.baseURL = url
	}
}

// WithRateLimit sets the minimum interval between requests.
func WithRateLimit(interval time.Duration) ClientOption {
	return func(client *Client) {
		if interval > 0 {
			client.rateLimiter = rate.NewLimiter(rate.Every(interval), 1)
		}
	}
}

// NewClient creates a new GitHub API client.
func NewClient(token string, opts ...ClientOption) *Client {
	client := &Client{
		httpClient:  &http.Client{Timeout: httpTimeout},
		token:       token,
		rateLimiter: rate.NewLimiter(rate.Every(rateLimitInterval), 1),
		baseURL:     BaseURL,
		apiVersion:  APIVersion,
		logger:      slog.Default(),
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// do performs an HTTP request with rate limiting and retries.
//
//nolint:funlen // HTTP client with retry logic and error handling
func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	// Wait for rate limiter
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", c.apiVersion)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.DebugContext(ctx, "API request", "method", method, "path", path)
	startTime := time.Now()

	// Retry with exponential backoff on rate limit
	maxRetries := 5
	backoff := time.Second

	for attempt := range maxRetries {
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("do request: %w", err)
		}

		respBody, err := io.ReadAll(resp.Body)
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.WarnContext(ctx, "failed to close response body", "error", closeErr)
		}
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			c.logger.WarnContext(ctx, "rate limited, backing off", "attempt", attempt+1, "backoff", backoff)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
				backoff *= 2
				continue
			}
		}

		if resp.StatusCode == http.StatusNotFound {
			return fmt.Errorf("%s %s: %w", method, path, apperrors.ErrNotFound)
		}

		if resp.StatusCode >= httpStatusBadRequest {
			var errResp APIError
			if err := json.Unmarshal(respBody, &errResp); err != nil {
				return apperrors.NewHTTPError(resp.StatusCode, string(respBody))
			}
			errResp.StatusCode = resp.StatusCode
			return &errResp
		}

		if result != nil {
			if err := json.Unmarshal(respBody, result); err != nil {
				return fmt.Errorf("unmarshal response: %w", err)
			}
		}

		c.logger.DebugContext(ctx, "API response",
			"method", method,
			"path", path,
			"status", resp.StatusCode,
			"duration", time.Since(startTime))

		return nil
	}

	return apperrors.ErrMaxRetriesExceeded
}
