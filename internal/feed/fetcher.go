package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"newswatch/internal/ratelimit"
	"newswatch/internal/retry"
	"newswatch/internal/services"
)

const (
	defaultFetchTimeout = 30 * time.Second
	maxFeedBodyBytes    = 10 << 20
)

// FailureKind classifies why a fetch produced no feed.
type FailureKind string

const (
	// FailureTransient covers network errors, timeouts, and 5xx responses.
	FailureTransient FailureKind = "transient"
	// FailureMalformed covers unparseable documents and rejecting 4xx
	// responses. Retrying does not help.
	FailureMalformed FailureKind = "malformed"
	// FailureUnavailable reports a source skipped because its circuit is
	// open.
	FailureUnavailable FailureKind = "unavailable"
)

// Failure carries the classified fetch error.
type Failure struct {
	Kind FailureKind
	Err  error
}

// FetchResult holds either a parsed feed or a classified failure, never both.
type FetchResult struct {
	Feed    *gofeed.Feed
	Failure *Failure
}

// OK reports whether the fetch produced a feed.
func (r FetchResult) OK() bool {
	return r.Feed != nil
}

// Fetcher retrieves feeds with per-source pacing, circuit breaking, and
// transient-error retries.
type Fetcher struct {
	httpClient *http.Client
	limiter    *ratelimit.Limiter
	breaker    *retry.Breaker
	policy     retry.Policy
	userAgent  string
}

// FetcherOption customizes a Fetcher.
type FetcherOption func(*Fetcher)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) FetcherOption {
	return func(f *Fetcher) {
		if client != nil {
			f.httpClient = client
		}
	}
}

// WithLimiter sets the per-source request limiter.
func WithLimiter(limiter *ratelimit.Limiter) FetcherOption {
	return func(f *Fetcher) { f.limiter = limiter }
}

// WithBreaker sets the per-source circuit breaker.
func WithBreaker(breaker *retry.Breaker) FetcherOption {
	return func(f *Fetcher) { f.breaker = breaker }
}

// WithRetryPolicy overrides the transient-error retry policy.
func WithRetryPolicy(policy retry.Policy) FetcherOption {
	return func(f *Fetcher) { f.policy = policy }
}

// WithUserAgent overrides the request User-Agent header.
func WithUserAgent(agent string) FetcherOption {
	return func(f *Fetcher) {
		if strings.TrimSpace(agent) != "" {
			f.userAgent = agent
		}
	}
}

// NewFetcher constructs a Fetcher.
func NewFetcher(opts ...FetcherOption) *Fetcher {
	fetcher := &Fetcher{
		httpClient: &http.Client{Timeout: defaultFetchTimeout},
		policy:     retry.Policy{},
		userAgent:  "newswatch/1.0",
	}
	for _, opt := range opts {
		opt(fetcher)
	}
	return fetcher
}

// Fetch retrieves and parses the feed at url. sourceKey scopes the rate
// limiter and circuit breaker, normally the source's feed host. Ordinary
// failures come back classified inside the result; only context errors are
// returned directly.
func (f *Fetcher) Fetch(ctx context.Context, url, sourceKey string) (FetchResult, error) {
	if f.limiter != nil {
		if err := f.limiter.Acquire(ctx, sourceKey); err != nil {
			return FetchResult{}, err
		}
	}
	if f.breaker != nil {
		if err := f.breaker.Allow(sourceKey); err != nil {
			return FetchResult{Failure: &Failure{Kind: FailureUnavailable, Err: err}}, nil
		}
	}

	var parsed *gofeed.Feed
	err := retry.Do(ctx, f.policy, func(ctx context.Context) error {
		feed, err := f.fetchOnce(ctx, url)
		if err != nil {
			return err
		}
		parsed = feed
		return nil
	})
	if f.breaker != nil {
		f.breaker.Record(sourceKey, err)
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
			return FetchResult{}, err
		}
		return FetchResult{Failure: classifyFetchError(err)}, nil
	}
	return FetchResult{Feed: parsed}, nil
}

func (f *Fetcher) fetchOnce(ctx context.Context, url string) (*gofeed.Feed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "feed", "fetch", "build request", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "feed", "fetch", "request failed", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, services.Wrap(services.ErrTransient, "feed", "fetch",
			fmt.Sprintf("status %d", resp.StatusCode), nil)
	default:
		return nil, services.Wrap(services.ErrMalformedFeed, "feed", "fetch",
			fmt.Sprintf("status %d", resp.StatusCode), nil)
	}

	body := io.LimitReader(resp.Body, maxFeedBodyBytes)
	parsed, err := gofeed.NewParser().Parse(body)
	if err != nil {
		return nil, services.Wrap(services.ErrMalformedFeed, "feed", "parse", "unparseable document", err)
	}
	return parsed, nil
}

func classifyFetchError(err error) *Failure {
	if errors.Is(err, services.ErrMalformedFeed) || errors.Is(err, services.ErrValidation) {
		return &Failure{Kind: FailureMalformed, Err: err}
	}
	return &Failure{Kind: FailureTransient, Err: err}
}
