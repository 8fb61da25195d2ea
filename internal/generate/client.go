// Package generate produces platform drafts for high-scoring articles and
// assembles the daily digest.
package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"newswatch/internal/retry"
	"newswatch/internal/services"
)

const defaultClientTimeout = 60 * time.Second

// Config captures the settings required to talk to the draft-writing service.
type Config struct {
	BaseURL        string
	APIKey         string
	TimeoutSeconds int
	Platforms      []string
}

// Draft is one platform-specific rendering of an article.
type Draft struct {
	Platform string `json:"platform"`
	Content  string `json:"content"`
}

// Request asks the service to draft one article for the configured platforms.
type Request struct {
	Title     string
	Lede      string
	URL       string
	Angle     string
	Platforms []string
}

// Client wraps the content-generation HTTP API.
type Client struct {
	cfg        Config
	httpClient *http.Client
	policy     retry.Policy
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithRetryPolicy overrides the transient-error retry policy.
func WithRetryPolicy(policy retry.Policy) Option {
	return func(c *Client) { c.policy = policy }
}

// NewClient constructs a draft-writing client.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := defaultClientTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	client := &Client{
		cfg: Config{
			BaseURL:        strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
			APIKey:         strings.TrimSpace(cfg.APIKey),
			TimeoutSeconds: cfg.TimeoutSeconds,
			Platforms:      cfg.Platforms,
		},
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

type draftRequestPayload struct {
	Title     string   `json:"title"`
	Lede      string   `json:"lede"`
	URL       string   `json:"url"`
	Angle     string   `json:"angle,omitempty"`
	Platforms []string `json:"platforms"`
}

type draftResponsePayload struct {
	Drafts []Draft `json:"drafts"`
}

// Drafts requests one draft per platform for an article.
func (c *Client) Drafts(ctx context.Context, req Request) ([]Draft, error) {
	if c.cfg.BaseURL == "" {
		return nil, services.Wrap(services.ErrConfiguration, "generate", "drafts", "base url not configured", nil)
	}
	platforms := req.Platforms
	if len(platforms) == 0 {
		platforms = c.cfg.Platforms
	}

	payload := draftRequestPayload{
		Title:     req.Title,
		Lede:      req.Lede,
		URL:       req.URL,
		Angle:     req.Angle,
		Platforms: platforms,
	}

	var response draftResponsePayload
	err := retry.Do(ctx, c.policy, func(ctx context.Context) error {
		return c.draftsOnce(ctx, payload, &response)
	})
	if err != nil {
		return nil, err
	}
	return response.Drafts, nil
}

func (c *Client) draftsOnce(ctx context.Context, payload draftRequestPayload, response *draftResponsePayload) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return services.Wrap(services.ErrValidation, "generate", "drafts", "encode request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/drafts", bytes.NewReader(encoded))
	if err != nil {
		return services.Wrap(services.ErrValidation, "generate", "drafts", "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return services.Wrap(services.ErrTransient, "generate", "drafts", "request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return services.Wrap(services.ErrTransient, "generate", "drafts", "read response", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return services.Wrap(services.ErrTransient, "generate", "drafts",
			fmt.Sprintf("status %d", resp.StatusCode), nil)
	default:
		return services.Wrap(services.ErrValidation, "generate", "drafts",
			fmt.Sprintf("status %d", resp.StatusCode), nil)
	}

	if err := json.Unmarshal(body, response); err != nil {
		return services.Wrap(services.ErrValidation, "generate", "drafts", "decode response", err)
	}
	return nil
}
