// Package classify scores stored articles against topics using an external
// relevance service and persists the per-topic verdicts.
package classify

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
	"newswatch/internal/store"
)

const (
	defaultClientTimeout = 30 * time.Second
	// placeholderReasoning fills per-topic results the service failed to
	// return.
	placeholderReasoning = "no result returned"
)

// Config captures the settings required to talk to the relevance service.
type Config struct {
	BaseURL        string
	APIKey         string
	TimeoutSeconds int
}

// TopicScore is one topic's verdict for an article.
type TopicScore struct {
	Score     float64
	Reasoning string
	Angle     string
}

// Request asks the service to judge one article against a set of topics.
type Request struct {
	Title  string
	Lede   string
	Topics []*store.Topic
}

// Client wraps the relevance-scoring HTTP API.
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

// NewClient constructs a relevance client.
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
		},
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

type scoreRequestPayload struct {
	Title  string              `json:"title"`
	Lede   string              `json:"lede"`
	Topics []scoreRequestTopic `json:"topics"`
}

type scoreRequestTopic struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Prompt string `json:"prompt"`
}

type scoreResponsePayload struct {
	Results []scoreResponseResult `json:"results"`
}

type scoreResponseResult struct {
	TopicID   int64    `json:"topic_id"`
	Score     *float64 `json:"score"`
	Reasoning string   `json:"reasoning"`
	Angle     string   `json:"angle"`
}

// Score judges an article against every requested topic. The result always
// carries an entry per topic: entries the service omitted or mangled come
// back as score zero with placeholder reasoning, never as a call failure.
func (c *Client) Score(ctx context.Context, req Request) (map[int64]TopicScore, error) {
	if c.cfg.BaseURL == "" {
		return nil, services.Wrap(services.ErrConfiguration, "classify", "score", "base url not configured", nil)
	}

	payload := scoreRequestPayload{Title: req.Title, Lede: req.Lede}
	for _, topic := range req.Topics {
		payload.Topics = append(payload.Topics, scoreRequestTopic{
			ID:     topic.ID,
			Name:   topic.Name,
			Prompt: topic.Prompt,
		})
	}

	var response scoreResponsePayload
	err := retry.Do(ctx, c.policy, func(ctx context.Context) error {
		return c.scoreOnce(ctx, payload, &response)
	})
	if err != nil {
		return nil, err
	}

	byTopic := make(map[int64]scoreResponseResult, len(response.Results))
	for _, result := range response.Results {
		byTopic[result.TopicID] = result
	}

	scores := make(map[int64]TopicScore, len(req.Topics))
	for _, topic := range req.Topics {
		result, ok := byTopic[topic.ID]
		if !ok || result.Score == nil {
			scores[topic.ID] = TopicScore{Score: 0, Reasoning: placeholderReasoning}
			continue
		}
		scores[topic.ID] = TopicScore{
			Score:     clampScore(*result.Score),
			Reasoning: result.Reasoning,
			Angle:     result.Angle,
		}
	}
	return scores, nil
}

func (c *Client) scoreOnce(ctx context.Context, payload scoreRequestPayload, response *scoreResponsePayload) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return services.Wrap(services.ErrValidation, "classify", "score", "encode request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/score", bytes.NewReader(encoded))
	if err != nil {
		return services.Wrap(services.ErrValidation, "classify", "score", "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return services.Wrap(services.ErrTransient, "classify", "score", "request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return services.Wrap(services.ErrTransient, "classify", "score", "read response", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return services.Wrap(services.ErrTransient, "classify", "score",
			fmt.Sprintf("status %d", resp.StatusCode), nil)
	default:
		return services.Wrap(services.ErrValidation, "classify", "score",
			fmt.Sprintf("status %d: %s", resp.StatusCode, summarizeBody(body)), nil)
	}

	if err := json.Unmarshal(body, response); err != nil {
		return services.Wrap(services.ErrValidation, "classify", "score", "decode response", err)
	}
	return nil
}

func clampScore(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

func summarizeBody(body []byte) string {
	const max = 200
	s := strings.TrimSpace(string(body))
	if len(s) > max {
		s = s[:max] + "..."
	}
	return s
}
