// Package gateway fetches market snapshots from the upstream HTTP API.
package gateway

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"cryptoMonitor/internal/model"
)

// Placeholder is replaced by the comma-joined asset list in the URL template.
const Placeholder = "<COINS>"

const maxBodyBytes = 16 << 20

// Client issues snapshot requests and classifies the responses.
type Client struct {
	urlTemplate string
	shape       model.Shape
	httpClient  *http.Client
	logger      *zap.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient creates a gateway client for a URL template containing Placeholder.
func NewClient(urlTemplate string, shape model.Shape, opts ...ClientOption) *Client {
	c := &Client{
		urlTemplate: urlTemplate,
		shape:       shape,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BuildURL substitutes the asset list into the URL template.
func (c *Client) BuildURL(assets []string) string {
	escaped := make([]string, 0, len(assets))
	for _, asset := range assets {
		escaped = append(escaped, url.QueryEscape(asset))
	}
	return strings.ReplaceAll(c.urlTemplate, Placeholder, strings.Join(escaped, ","))
}

// Fetch issues one GET for the asset list. It never returns an error: every
// failure is reported through the Outcome kind.
func (c *Client) Fetch(ctx context.Context, assets []string) Outcome {
	started := time.Now()
	out := c.fetch(ctx, assets)

	switch out.Kind {
	case KindSuccess:
		c.logger.Info("request succeeded",
			zap.Int("records", len(out.Records)),
			zap.Int("assets", len(assets)),
			zap.Duration("duration", time.Since(started)),
		)
	case KindTransientFailure:
		c.logger.Warn("request failed",
			zap.String("outcome", out.Kind.String()),
			zap.Int("status", out.StatusCode),
			zap.Error(out.Err),
		)
	default:
		c.logger.Warn("upstream rejected request",
			zap.String("outcome", out.Kind.String()),
			zap.Int("status", out.StatusCode),
			zap.String("detail", out.Message),
		)
	}
	return out
}

func (c *Client) fetch(ctx context.Context, assets []string) Outcome {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BuildURL(assets), nil)
	if err != nil {
		return transientFailure(0, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return transientFailure(0, fmt.Errorf("do request: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return transientFailure(resp.StatusCode, fmt.Errorf("read response: %w", err))
	}

	return Classify(resp.StatusCode, body, c.shape, assets)
}
