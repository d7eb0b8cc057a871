package netclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"
)

const (
	defaultUserAgent   = "torrentstream-aggregator/1.0"
	defaultTimeout     = 15 * time.Second
	defaultMaxBodySize = 8 * 1024 * 1024
	errorBodySnippet   = 2048
)

// StatusError is returned for any non-2xx response.
type StatusError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("provider HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("provider HTTP %d: %s", e.StatusCode, e.Body)
}

type Config struct {
	Timeout     time.Duration
	UserAgent   string
	MaxBodySize int64
	// HostRPS limits requests per second sent to a single host. Zero disables limiting.
	HostRPS   float64
	HostBurst int
	Transport http.RoundTripper
}

// Client is the network capability shared by all providers of a search.
type Client struct {
	http        *http.Client
	userAgent   string
	maxBodySize int64
	hostRPS     rate.Limit
	hostBurst   int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	userAgent := strings.TrimSpace(cfg.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	maxBody := cfg.MaxBodySize
	if maxBody <= 0 {
		maxBody = defaultMaxBodySize
	}
	base := cfg.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	burst := cfg.HostBurst
	if burst <= 0 {
		burst = 1
	}
	return &Client{
		http:        &http.Client{Timeout: timeout, Transport: otelhttp.NewTransport(base)},
		userAgent:   userAgent,
		maxBodySize: maxBody,
		hostRPS:     rate.Limit(cfg.HostRPS),
		hostBurst:   burst,
		limiters:    make(map[string]*rate.Limiter),
	}
}

// Get fetches rawURL and returns the response body. Headers in header override
// the client defaults.
func (c *Client) Get(ctx context.Context, rawURL string, header http.Header) ([]byte, error) {
	uri, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	if err := c.wait(ctx, uri.Host); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	for key, values := range header {
		req.Header.Del(key)
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodySnippet))
		return nil, &StatusError{URL: uri.Redacted(), StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return io.ReadAll(io.LimitReader(resp.Body, c.maxBodySize))
}

func (c *Client) wait(ctx context.Context, host string) error {
	if c.hostRPS <= 0 {
		return nil
	}
	key := strings.ToLower(host)
	c.mu.Lock()
	limiter, ok := c.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(c.hostRPS, c.hostBurst)
		c.limiters[key] = limiter
	}
	c.mu.Unlock()
	return limiter.Wait(ctx)
}
