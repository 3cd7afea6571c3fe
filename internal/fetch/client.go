package fetch

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"urlguard/internal/features"
)

const (
	DefaultUserAgent    = "Mozilla/5.0 (X11; Linux x86_64) urlguard/1.0"
	DefaultMaxBodyBytes = 2 << 20
	DefaultMaxRedirects = 10
)

// Config holds settings for the HTTP client.
type Config struct {
	Timeout      time.Duration
	UserAgent    string
	MaxBodyBytes int64
	MaxRedirects int
	Insecure     bool
	Headers      http.Header
}

// headerRoundTripper wraps a base RoundTripper to inject the configured
// headers into every request, redirects included.
type headerRoundTripper struct {
	base      http.RoundTripper
	headers   http.Header
	userAgent string
}

func (h *headerRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	for k, vs := range h.headers {
		r.Header.Del(k)
		for _, v := range vs {
			r.Header.Add(k, v)
		}
	}
	if h.userAgent != "" && r.Header.Get("User-Agent") == "" {
		r.Header.Set("User-Agent", h.userAgent)
	}
	return h.base.RoundTrip(r)
}

// Client downloads pages for the feature pipeline and the reputation probes.
type Client struct {
	http *http.Client
	cfg  Config
}

// New returns a client with the zero fields of cfg filled in.
func New(cfg Config) *Client {
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if cfg.MaxRedirects <= 0 {
		cfg.MaxRedirects = DefaultMaxRedirects
	}

	transport := &http.Transport{
		Proxy:           http.ProxyFromEnvironment,
		TLSClientConfig: &tls.Config{InsecureSkipVerify: cfg.Insecure},
		DialContext: (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:   true,
		MaxIdleConnsPerHost: 4,
	}

	return &Client{
		http: &http.Client{
			Transport: &headerRoundTripper{
				base:      transport,
				headers:   cfg.Headers,
				userAgent: cfg.UserAgent,
			},
			Timeout: cfg.Timeout,
		},
		cfg: cfg,
	}
}

// Fetch issues one GET, following at most MaxRedirects redirects, and
// reports how many it followed. The body is kept only for a 200 response.
func (c *Client) Fetch(ctx context.Context, rawURL string) (*features.Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	// Copy so the redirect counter is local to this call.
	hops := 0
	client := *c.http
	client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) > c.cfg.MaxRedirects {
			return http.ErrUseLastResponse
		}
		hops = len(via)
		return nil
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	page := &features.Page{
		StatusCode:    resp.StatusCode,
		RedirectCount: hops,
		FinalURL:      resp.Request.URL.String(),
	}
	if resp.StatusCode != http.StatusOK {
		return page, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.cfg.MaxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body of %s: %w", rawURL, err)
	}
	page.Body = string(body)
	return page, nil
}

// Probe issues a GET and returns the final status code without reading the
// body.
func (c *Client) Probe(ctx context.Context, rawURL string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("GET %s: %w", rawURL, err)
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}
