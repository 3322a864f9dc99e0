package steamapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"
)

// DefaultBaseURL is the public Web API host.
const DefaultBaseURL = "https://api.steampowered.com"

// Default gateway settings.
const (
	DefaultRequestInterval  = 1200 * time.Millisecond
	DefaultMaxRetries       = 3
	DefaultRetryDelay       = 2 * time.Second
	DefaultTimeout          = 15 * time.Second
	DefaultRateLimitRetries = 5
	DefaultBackoffInitial   = time.Second
	DefaultBackoffMax       = 60 * time.Second
	DefaultMaxBodySize      = 8 << 20
	DefaultUserAgent        = "friendcrawl"
)

// Endpoint is the path of a Web API method relative to the base URL.
type Endpoint string

// Endpoints used by the crawler.
const (
	EndpointPlayerSummaries Endpoint = "ISteamUser/GetPlayerSummaries/v2"
	EndpointOwnedGames      Endpoint = "IPlayerService/GetOwnedGames/v1"
	EndpointFriendList      Endpoint = "ISteamUser/GetFriendList/v1"
)

// Name returns the method name, e.g. "GetFriendList".
func (e Endpoint) Name() string {
	parts := strings.Split(string(e), "/")
	if len(parts) >= 2 {
		return parts[len(parts)-2]
	}
	return string(e)
}

// Observer receives one observation per HTTP attempt.
type Observer interface {
	ObserveRequest(endpoint, outcome string, elapsed time.Duration)
}

// Gateway issues rate-limited, retried Web API calls and classifies the result.
// A single Gateway must be shared by every caller so the request budget is
// global; it is safe for concurrent use.
type Gateway struct {
	client           *http.Client
	baseURL          string
	apiKey           string
	userAgent        string
	limiter          *rate.Limiter
	maxRetries       int
	retryDelay       time.Duration
	timeout          time.Duration
	rateLimitRetries int
	backoffInitial   time.Duration
	backoffMax       time.Duration
	maxBodySize      int64
	observer         Observer
	logger           *slog.Logger
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithHTTPClient sets the HTTP client. Use it to route requests through a proxy.
func WithHTTPClient(c *http.Client) Option {
	return func(g *Gateway) {
		g.client = c
	}
}

// WithBaseURL overrides the API host.
func WithBaseURL(u string) Option {
	return func(g *Gateway) {
		g.baseURL = strings.TrimRight(u, "/")
	}
}

// WithRequestInterval sets the minimum spacing between request starts.
// Zero or negative disables spacing.
func WithRequestInterval(d time.Duration) Option {
	return func(g *Gateway) {
		if d <= 0 {
			g.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		g.limiter = rate.NewLimiter(rate.Every(d), 1)
	}
}

// WithRetry sets the attempt budget and fixed delay for transient failures.
func WithRetry(maxRetries int, delay time.Duration) Option {
	return func(g *Gateway) {
		g.maxRetries = maxRetries
		g.retryDelay = delay
	}
}

// WithTimeout sets the per-attempt timeout.
func WithTimeout(d time.Duration) Option {
	return func(g *Gateway) {
		g.timeout = d
	}
}

// WithRateLimitBackoff sets how 429 responses are retried: up to retries
// extra attempts, waiting from initial doubling up to max.
func WithRateLimitBackoff(retries int, initial, maxWait time.Duration) Option {
	return func(g *Gateway) {
		g.rateLimitRetries = retries
		g.backoffInitial = initial
		g.backoffMax = maxWait
	}
}

// WithObserver sets the per-attempt observer, typically a metrics collector.
func WithObserver(o Observer) Option {
	return func(g *Gateway) {
		g.observer = o
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) {
		g.logger = logger
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(g *Gateway) {
		g.userAgent = ua
	}
}

// New returns a Gateway authenticating with apiKey.
func New(apiKey string, opts ...Option) *Gateway {
	g := &Gateway{
		client:           &http.Client{},
		baseURL:          DefaultBaseURL,
		apiKey:           apiKey,
		userAgent:        DefaultUserAgent,
		limiter:          rate.NewLimiter(rate.Every(DefaultRequestInterval), 1),
		maxRetries:       DefaultMaxRetries,
		retryDelay:       DefaultRetryDelay,
		timeout:          DefaultTimeout,
		rateLimitRetries: DefaultRateLimitRetries,
		backoffInitial:   DefaultBackoffInitial,
		backoffMax:       DefaultBackoffMax,
		maxBodySize:      DefaultMaxBodySize,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.maxRetries < 1 {
		g.maxRetries = 1
	}
	if g.logger == nil {
		g.logger = slog.Default()
	}
	return g
}

// Fetch calls endpoint with params and returns the response body of the
// first 2xx answer.
//
// Every attempt first waits on the shared limiter. Transport errors and
// unexpected statuses are retried after a fixed delay until the attempt
// budget is spent. 429 responses are retried with capped exponential backoff
// and do not consume that budget. 401, 403 and 404 are returned immediately.
// Cancelling ctx aborts any wait promptly.
func (g *Gateway) Fetch(ctx context.Context, endpoint Endpoint, params url.Values) ([]byte, error) {
	reqURL := g.buildURL(endpoint, params)

	bo := g.newBackOff()
	attempts, transient, limited := 0, 0, 0
	for {
		if err := g.limiter.Wait(ctx); err != nil {
			return nil, g.abort(endpoint, attempts, err)
		}

		attempts++
		res := g.attempt(ctx, endpoint, reqURL)
		if res.outcome == OutcomeOK {
			return res.body, nil
		}
		if ctx.Err() != nil {
			return nil, g.abort(endpoint, attempts, ctx.Err())
		}

		fail := &Error{
			Endpoint:   endpoint,
			StatusCode: res.status,
			Outcome:    res.outcome,
			Attempts:   attempts,
			Cause:      res.err,
		}

		var wait time.Duration
		switch res.outcome {
		case OutcomeNotFound, OutcomeUnauthorized:
			return nil, fail
		case OutcomeRateLimited:
			limited++
			if limited > g.rateLimitRetries {
				return nil, fail
			}
			wait = bo.NextBackOff()
			if res.retryAfter > wait {
				wait = res.retryAfter
			}
			if g.backoffMax > 0 && wait > g.backoffMax {
				wait = g.backoffMax
			}
			g.logger.Warn("rate limited, backing off",
				"endpoint", endpoint.Name(),
				"wait", wait,
				"retry", limited,
			)
		default:
			transient++
			if transient >= g.maxRetries {
				return nil, fail
			}
			wait = g.retryDelay
			g.logger.Debug("transient failure, retrying",
				"endpoint", endpoint.Name(),
				"status", res.status,
				"attempt", attempts,
				"error", res.err,
			)
		}

		if err := sleep(ctx, wait); err != nil {
			return nil, g.abort(endpoint, attempts, err)
		}
	}
}

// abort builds the error returned when ctx ends mid-call.
func (g *Gateway) abort(endpoint Endpoint, attempts int, cause error) error {
	return &Error{
		Endpoint: endpoint,
		Outcome:  OutcomeTransient,
		Attempts: attempts,
		Cause:    cause,
	}
}

func (g *Gateway) newBackOff() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = g.backoffInitial
	bo.MaxInterval = g.backoffMax
	bo.MaxElapsedTime = 0
	bo.Reset()
	return bo
}

func (g *Gateway) buildURL(endpoint Endpoint, params url.Values) string {
	q := url.Values{}
	for k, v := range params {
		q[k] = v
	}
	q.Set("key", g.apiKey)
	q.Set("format", "json")
	return g.baseURL + "/" + string(endpoint) + "/?" + q.Encode()
}

// attemptResult is the classified result of one HTTP attempt.
type attemptResult struct {
	outcome    Outcome
	status     int
	body       []byte
	retryAfter time.Duration
	err        error
}

func (g *Gateway) attempt(ctx context.Context, endpoint Endpoint, reqURL string) attemptResult {
	start := time.Now()
	res := g.do(ctx, reqURL)
	if g.observer != nil {
		g.observer.ObserveRequest(endpoint.Name(), res.outcome.String(), time.Since(start))
	}
	return res
}

func (g *Gateway) do(ctx context.Context, reqURL string) attemptResult {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return attemptResult{outcome: OutcomeTransient, err: err}
	}
	req.Header.Set("User-Agent", g.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		// url.Error embeds the request URL, which carries the key.
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			err = urlErr.Err
		}
		return attemptResult{outcome: OutcomeTransient, err: err}
	}
	defer resp.Body.Close()

	res := attemptResult{
		outcome: outcomeForStatus(resp.StatusCode),
		status:  resp.StatusCode,
	}
	if res.outcome == OutcomeRateLimited {
		res.retryAfter = parseRetryAfter(resp.Header.Get("Retry-After"), time.Now())
	}
	if res.outcome != OutcomeOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, g.maxBodySize))
		return res
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, g.maxBodySize))
	if err != nil {
		return attemptResult{outcome: OutcomeTransient, status: resp.StatusCode, err: fmt.Errorf("read body: %w", err)}
	}
	res.body = body
	return res
}

// parseRetryAfter accepts both delta-seconds and HTTP-date forms.
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
