package fissure

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// API paths relative to the client's base URL.
const (
	immediatePath = "/fissures/immediate"
	pollPath      = "/fissures"
)

const (
	defaultUserAgent = "fissurewatch/0.1"
	// maxResponseBytes bounds a single response body.
	maxResponseBytes = 16 << 20
	// maxErrorBodyBytes bounds the body echoed into APIError.Message.
	maxErrorBodyBytes = 4 << 10
)

// Client is an HTTP client for the fissure API. Each call is a single
// attempt: retry and backoff belong to the caller, which owns the session
// the request runs under.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	userAgent  string
}

// NewClient creates a fissure API client. baseURL is the server root, e.g.
// "http://localhost:5050". The http.Client should not carry a short overall
// Timeout: long-poll requests are held open by the server.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger, userAgent string) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
		userAgent:  userAgent,
	}
}

// Immediate fetches the current matches for the criteria without any
// known-id exclusion. The server answers right away.
func (c *Client) Immediate(ctx context.Context, criteria Criteria) (*Snapshot, error) {
	return c.get(ctx, immediatePath, criteria.Values(nil))
}

// Poll issues a long-poll request carrying the criteria and the ids the
// caller already knows. The server may hold the request until its data
// changes or its own timeout elapses.
func (c *Client) Poll(ctx context.Context, criteria Criteria, known []string) (*Snapshot, error) {
	return c.get(ctx, pollPath, criteria.Values(known))
}

// get performs one GET and parses the body into a Snapshot.
func (c *Client) get(ctx context.Context, path string, query url.Values) (*Snapshot, error) {
	target := c.baseURL + path
	if encoded := query.Encode(); encoded != "" {
		target += "?" + encoded
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("fissure: creating request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Context cancellation is reported as such, never as a transport failure.
		if ctx.Err() != nil {
			return nil, fmt.Errorf("fissure: request canceled: %w", ctx.Err())
		}

		return nil, fmt.Errorf("%w: GET %s: %w", ErrTransport, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		errBody, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		if readErr != nil {
			errBody = []byte("(failed to read response body)")
		}

		c.logger.Debug("request failed",
			slog.String("path", path),
			slog.Int("status", resp.StatusCode),
		)

		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(errBody)),
			Err:        classifyStatus(resp.StatusCode),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("fissure: request canceled: %w", ctx.Err())
		}

		return nil, fmt.Errorf("%w: reading %s response: %w", ErrTransport, path, err)
	}

	snap, err := ParseSnapshot(body)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("request succeeded",
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
		slog.Int("fissures", len(snap.Fissures)),
	)

	return snap, nil
}
