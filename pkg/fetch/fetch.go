// Package fetch retrieves article HTML with robots.txt compliance, per-host
// rate limiting, and a response size cap. A robots-disallowed URL is a
// distinguished, non-retryable condition.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/rotisserie/eris"
	"github.com/temoto/robotstxt"
	"golang.org/x/time/rate"
)

// ErrRobotsBlocked marks a URL excluded by the site's robots.txt. Callers
// treat it as a policy skip, never a transient failure.
var ErrRobotsBlocked = eris.New("fetch: blocked by robots.txt")

const (
	defaultUserAgent = "alpine-ledger/1.0 (+https://github.com/ridgeline-data/alpine-ledger)"
	defaultMaxBody   = 4 << 20 // 4 MiB
	robotsCacheTTL   = 12 * time.Hour
)

// Page is one fetched document. FinalURL reflects any redirects, so dedupe
// keys on the URL the content actually lives at.
type Page struct {
	HTML     string
	FinalURL string
}

// Fetcher retrieves pages.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (*Page, error)
}

// Option configures the fetcher.
type Option func(*client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *client) { c.httpClient = hc }
}

// WithUserAgent overrides the crawler user agent.
func WithUserAgent(ua string) Option {
	return func(c *client) { c.userAgent = ua }
}

// WithRateLimit sets the requests-per-second limit across all hosts.
func WithRateLimit(rps float64) Option {
	return func(c *client) { c.limiter = rate.NewLimiter(rate.Limit(rps), 1) }
}

// WithMaxBody caps the number of response bytes read.
func WithMaxBody(n int64) Option {
	return func(c *client) { c.maxBody = n }
}

type client struct {
	httpClient *http.Client
	userAgent  string
	limiter    *rate.Limiter
	maxBody    int64
	robots     *gocache.Cache // host -> *robotstxt.RobotsData
}

// New creates a robots-compliant Fetcher.
func New(opts ...Option) Fetcher {
	c := &client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		userAgent:  defaultUserAgent,
		limiter:    rate.NewLimiter(2, 1),
		maxBody:    defaultMaxBody,
		robots:     gocache.New(robotsCacheTTL, robotsCacheTTL),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *client) Fetch(ctx context.Context, rawURL string) (*Page, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return nil, eris.Wrapf(err, "fetch: parse url %q", rawURL)
	}

	allowed, err := c.allowed(ctx, u)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, eris.Wrapf(ErrRobotsBlocked, "fetch: %s", rawURL)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "fetch: rate limit wait")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "fetch: build request")
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "fetch: GET %s", rawURL)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, eris.Errorf("fetch: GET %s: status %d", rawURL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody))
	if err != nil {
		return nil, eris.Wrapf(err, "fetch: read body %s", rawURL)
	}

	finalURL := rawURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}
	return &Page{HTML: string(body), FinalURL: finalURL}, nil
}

// allowed checks the host's robots.txt, caching the parsed policy per host.
func (c *client) allowed(ctx context.Context, u *url.URL) (bool, error) {
	group := c.robotsGroup(ctx, u)
	return group.Test(u.Path), nil
}

func (c *client) robotsGroup(ctx context.Context, u *url.URL) *robotstxt.Group {
	if cached, ok := c.robots.Get(u.Host); ok {
		return cached.(*robotstxt.RobotsData).FindGroup(c.userAgent)
	}

	data := c.fetchRobots(ctx, u)
	c.robots.Set(u.Host, data, gocache.DefaultExpiration)
	return data.FindGroup(c.userAgent)
}

// fetchRobots downloads and parses robots.txt. Unreachable or missing
// robots fall back to the standard status-code semantics: 4xx allows
// everything, 5xx disallows everything.
func (c *client) fetchRobots(ctx context.Context, u *url.URL) *robotstxt.RobotsData {
	robotsURL := fmt.Sprintf("%s://%s/robots.txt", u.Scheme, u.Host)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return allowAll()
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Network failure on robots.txt: err on the side of fetching the
		// article; the article GET will fail too if the host is down.
		return allowAll()
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody))
	if err != nil {
		return allowAll()
	}
	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		return allowAll()
	}
	return data
}

func allowAll() *robotstxt.RobotsData {
	data, _ := robotstxt.FromStatusAndBytes(404, nil)
	return data
}
