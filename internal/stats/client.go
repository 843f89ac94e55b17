// Package stats talks to the external view statistics service: it reads
// unique view counts for event pages and records public hits.
package stats

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/Togather-Foundation/gatherings/internal/domain/events"
	"github.com/Togather-Foundation/gatherings/internal/domain/ids"
	"github.com/Togather-Foundation/gatherings/internal/metrics"
)

const (
	DefaultTimeout     = 2 * time.Second
	DefaultRateLimit   = rate.Limit(50)
	DefaultMaxAttempts = 3
	// MaxURIsPerRequest bounds the query string of a single /stats call.
	MaxURIsPerRequest = 100
	// maxConcurrentChunks bounds parallel /stats calls for one ViewsFor.
	maxConcurrentChunks = 4
)

// statsEpoch is the lower bound of every stats query; all views count.
var statsEpoch = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

// ViewStat is one row of the /stats response.
type ViewStat struct {
	App  string `json:"app"`
	URI  string `json:"uri"`
	Hits int64  `json:"hits"`
}

// EndpointHit is the /hit request body.
type EndpointHit struct {
	App       string `json:"app"`
	URI       string `json:"uri"`
	IP        string `json:"ip"`
	Timestamp string `json:"timestamp"`
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("stats service returned %d: %s", e.StatusCode, e.Body)
}

// Client is an HTTP client for the statistics service.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	app         string
	limiter     *rate.Limiter
	maxAttempts uint
	logger      zerolog.Logger
	now         func() time.Time
}

// Option configures a Client.
type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithRateLimit sets the request budget in requests per second.
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), int(max(rps, 1)))
	}
}

func WithMaxAttempts(attempts uint) Option {
	return func(c *Client) {
		if attempts > 0 {
			c.maxAttempts = attempts
		}
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger.With().Str("component", "stats").Logger()
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

// NewClient creates a client for the service at baseURL, reporting hits as app.
func NewClient(baseURL, app string, opts ...Option) *Client {
	c := &Client{
		httpClient:  &http.Client{Timeout: DefaultTimeout},
		baseURL:     strings.TrimRight(baseURL, "/"),
		app:         app,
		limiter:     rate.NewLimiter(DefaultRateLimit, int(DefaultRateLimit)),
		maxAttempts: DefaultMaxAttempts,
		logger:      zerolog.Nop(),
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ViewsFor returns unique views per event id. Ids with no recorded views map to 0.
func (c *Client) ViewsFor(ctx context.Context, eventIDs []string) (map[string]int64, error) {
	views := make(map[string]int64, len(eventIDs))
	if len(eventIDs) == 0 {
		return views, nil
	}

	byURI := make(map[string]string, len(eventIDs))
	uris := make([]string, 0, len(eventIDs))
	for _, id := range eventIDs {
		views[id] = 0
		uri := ids.EventPath(id)
		if _, ok := byURI[uri]; ok {
			continue
		}
		byURI[uri] = id
		uris = append(uris, uri)
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentChunks)
	for start := 0; start < len(uris); start += MaxURIsPerRequest {
		chunk := uris[start:min(start+MaxURIsPerRequest, len(uris))]
		g.Go(func() error {
			stats, err := c.fetchStats(gctx, chunk)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			for _, stat := range stats {
				if id, ok := byURI[stat.URI]; ok {
					views[id] += stat.Hits
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("fetch views: %w", err)
	}
	return views, nil
}

// RecordHit posts a single hit synchronously.
func (c *Client) RecordHit(ctx context.Context, hit events.Hit) error {
	ts := hit.Timestamp
	if ts.IsZero() {
		ts = c.now()
	}
	body, err := json.Marshal(EndpointHit{
		App:       c.app,
		URI:       hit.URI,
		IP:        hit.IP,
		Timestamp: ts.UTC().Format(events.DateTimeLayout),
	})
	if err != nil {
		return fmt.Errorf("encode hit: %w", err)
	}

	err = c.do(ctx, "record_hit", func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/hit", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}, nil)
	if err != nil {
		return fmt.Errorf("record hit: %w", err)
	}
	return nil
}

func (c *Client) fetchStats(ctx context.Context, uris []string) ([]ViewStat, error) {
	params := url.Values{}
	params.Set("start", statsEpoch.Format(events.DateTimeLayout))
	params.Set("end", c.now().Format(events.DateTimeLayout))
	for _, uri := range uris {
		params.Add("uris", uri)
	}
	params.Set("unique", "true")
	requestURL := c.baseURL + "/stats?" + params.Encode()

	var stats []ViewStat
	err := c.do(ctx, "views", func() (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	}, &stats)
	return stats, err
}

// do runs one logical call with rate limiting and retries on transport
// errors, 429 and 5xx. Other 4xx responses fail immediately.
func (c *Client) do(ctx context.Context, operation string, build func() (*http.Request, error), out any) error {
	start := time.Now()
	defer func() {
		metrics.StatsRequestDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}()

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 100 * time.Millisecond
	policy.MaxInterval = time.Second

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, c.attempt(ctx, build, out)
	}, backoff.WithBackOff(policy), backoff.WithMaxTries(c.maxAttempts))

	result := "ok"
	if err != nil {
		result = "error"
		c.logger.Debug().Err(err).Str("operation", operation).Msg("stats request failed")
	}
	metrics.StatsRequestsTotal.WithLabelValues(operation, result).Inc()
	return err
}

func (c *Client) attempt(ctx context.Context, build func() (*http.Request, error), out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return backoff.Permanent(fmt.Errorf("rate limiter: %w", err))
	}
	req, err := build()
	if err != nil {
		return backoff.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		return fmt.Errorf("http request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		statusErr := &StatusError{StatusCode: resp.StatusCode, Body: truncate(string(payload), 200)}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return statusErr
		}
		return backoff.Permanent(statusErr)
	}

	if out == nil || len(bytes.TrimSpace(payload)) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return backoff.Permanent(fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// IsStatus reports whether err carries an HTTP status from the service.
func IsStatus(err error, code int) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.StatusCode == code
}

// IsRejected reports whether the service refused the request outright.
// Rate limiting is not a rejection.
func IsRejected(err error) bool {
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		return false
	}
	return statusErr.StatusCode >= 400 && statusErr.StatusCode < 500 && statusErr.StatusCode != http.StatusTooManyRequests
}
