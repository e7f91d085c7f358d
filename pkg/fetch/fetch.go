// Package fetch provides the HTTP transport used to read repository documents.
//
// A [Client] performs GET requests with bounded retry, a per-host circuit
// breaker, a DNS cache, de-duplication of identical in-flight requests and an
// optional response [cache.Cache]. Responses are classified into sentinel
// errors so callers can tell a missing document ([ErrNotFound]) from a broken
// repository ([IsConnectionError]).
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/charmbracelet/log"
	"github.com/rs/dnscache"
	"golang.org/x/sync/singleflight"

	"github.com/matzehuels/lamacheck/pkg/buildinfo"
	"github.com/matzehuels/lamacheck/pkg/cache"
	"github.com/matzehuels/lamacheck/pkg/observability"
)

// Defaults applied by [Options.WithDefaults].
const (
	DefaultTimeout          = 30 * time.Second
	DefaultAttempts         = 3
	DefaultBaseDelay        = 500 * time.Millisecond
	DefaultBreakerThreshold = 5
	DefaultMaxBodySize      = 16 << 20
)

// Options configures a Client.
type Options struct {
	Timeout          time.Duration // per request
	Attempts         int           // total attempts for retryable failures
	BaseDelay        time.Duration // first retry delay, doubled per attempt
	BreakerThreshold int64         // consecutive failures before a host trips
	MaxBodySize      int64
	UserAgent        string

	Cache    cache.Cache   // nil disables response caching
	CacheTTL time.Duration // zero disables response caching

	// HTTPClient replaces the DNS-caching client, mainly for tests.
	HTTPClient *http.Client
	Logger     *log.Logger
}

// WithDefaults returns a copy of o with zero or negative fields replaced by defaults.
func (o Options) WithDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Attempts <= 0 {
		o.Attempts = DefaultAttempts
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = DefaultBaseDelay
	}
	if o.BreakerThreshold <= 0 {
		o.BreakerThreshold = DefaultBreakerThreshold
	}
	if o.MaxBodySize <= 0 {
		o.MaxBodySize = DefaultMaxBodySize
	}
	if o.UserAgent == "" {
		o.UserAgent = "lamacheck/" + buildinfo.Version
	}
	if o.Cache == nil {
		o.Cache = cache.NewNoop()
	}
	if o.Logger == nil {
		o.Logger = log.New(io.Discard)
	}
	return o
}

// sharedBudget bounds one de-duplicated fetch: every attempt timing out plus
// the retry delays between them, jitter included.
func (o Options) sharedBudget() time.Duration {
	budget := time.Duration(o.Attempts) * o.Timeout
	delay := o.BaseDelay
	for i := 1; i < o.Attempts; i++ {
		budget += delay + delay/10
		delay *= 2
	}
	return budget
}

// Client fetches repository documents. It is safe for concurrent use.
type Client struct {
	opts     Options
	http     *http.Client
	breakers *breakers
	group    singleflight.Group
	stop     chan struct{}
}

// New creates a Client. Call Close to stop the DNS refresh goroutine.
func New(opts Options) *Client {
	opts = opts.WithDefaults()
	c := &Client{
		opts:     opts,
		http:     opts.HTTPClient,
		breakers: newBreakers(opts.BreakerThreshold),
		stop:     make(chan struct{}),
	}
	if c.http == nil {
		c.http = c.newHTTPClient()
	}
	return c
}

// newHTTPClient builds a client whose dialer resolves through a DNS cache
// refreshed every 5 minutes.
func (c *Client) newHTTPClient() *http.Client {
	resolver := &dnscache.Resolver{}
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				resolver.Refresh(true)
			case <-c.stop:
				return
			}
		}
	}()

	dialer := &net.Dialer{
		Timeout:   10 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	return &http.Client{
		Timeout: c.opts.Timeout,
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
				host, port, err := net.SplitHostPort(addr)
				if err != nil {
					return nil, err
				}
				ips, err := resolver.LookupHost(ctx, host)
				if err != nil {
					return nil, err
				}
				var lastErr error
				for _, ip := range ips {
					conn, err := dialer.DialContext(ctx, network, net.JoinHostPort(ip, port))
					if err == nil {
						return conn, nil
					}
					lastErr = err
				}
				return nil, fmt.Errorf("dial %s: %w", host, lastErr)
			},
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
}

// Close stops background work. The client must not be used afterwards.
func (c *Client) Close() error {
	select {
	case <-c.stop:
	default:
		close(c.stop)
	}
	return nil
}

// Get returns the body of a successful GET of rawURL.
//
// Errors wrap [ErrNotFound] for 404, [ErrRateLimited] for 429,
// [ErrUpstreamDown] for 5xx, [ErrCircuitOpen] when the host is tripped and
// [ErrNetwork] for transport failures. Only connection-class failures count
// against the host's circuit breaker.
func (c *Client) Get(ctx context.Context, rawURL string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key := cache.DocumentKey(rawURL)
	if data, ok, err := c.opts.Cache.Get(ctx, key); err == nil && ok {
		observability.Cache().OnCacheHit(ctx, "document")
		return data, nil
	}
	observability.Cache().OnCacheMiss(ctx, "document")

	// The request is shared by every caller asking for rawURL meanwhile, so
	// it runs detached from ctx and each caller only stops waiting for it.
	ch := c.group.DoChan(rawURL, func() (any, error) {
		shared, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.sharedBudget())
		defer cancel()
		data, err := c.fetch(shared, rawURL)
		if err != nil {
			return nil, err
		}
		if c.opts.CacheTTL > 0 {
			if err := c.opts.Cache.Set(shared, key, data, c.opts.CacheTTL); err != nil {
				c.opts.Logger.Debug("cache write failed", "url", rawURL, "err", err)
			} else {
				observability.Cache().OnCacheSet(shared, "document", len(data))
			}
		}
		return data, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// BreakerStates reports "open" or "closed" for every host contacted so far.
func (c *Client) BreakerStates() map[string]string {
	return c.breakers.states()
}

func (c *Client) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	host := hostOf(rawURL)
	breaker := c.breakers.get(host)
	if !breaker.Ready() {
		return nil, fmt.Errorf("%w for %s", ErrCircuitOpen, host)
	}

	var data []byte
	var soft error
	err := breaker.Call(func() error {
		err := Retry(ctx, c.opts.Attempts, c.opts.BaseDelay, func() error {
			var err error
			data, err = c.do(ctx, rawURL)
			return err
		})
		if err != nil && !IsConnectionError(err) {
			soft = err
			return nil
		}
		return err
	}, 0)
	if soft != nil {
		return nil, soft
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (c *Client) do(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.opts.UserAgent)
	req.Header.Set("Accept", "application/xml, text/xml, */*")

	host, path := req.URL.Host, req.URL.Path
	observability.HTTP().OnRequest(ctx, http.MethodGet, host, path)
	start := time.Now()

	resp, err := c.http.Do(req)
	if err != nil {
		observability.HTTP().OnError(ctx, http.MethodGet, host, path, err)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		var urlErr *url.Error
		if errors.As(err, &urlErr) && urlErr.Timeout() {
			return nil, Retryable(fmt.Errorf("%w: %w", ErrNetwork, context.DeadlineExceeded))
		}
		return nil, Retryable(fmt.Errorf("%w: %v", ErrNetwork, err))
	}
	defer resp.Body.Close()
	observability.HTTP().OnResponse(ctx, http.MethodGet, host, path, resp.StatusCode, time.Since(start))

	if err := checkStatus(resp.StatusCode); err != nil {
		return nil, err
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.opts.MaxBodySize))
	if err != nil {
		return nil, Retryable(fmt.Errorf("%w: read body: %v", ErrNetwork, err))
	}
	return data, nil
}

func checkStatus(code int) error {
	switch {
	case code == http.StatusOK:
		return nil
	case code == http.StatusNotFound, code == http.StatusGone:
		return ErrNotFound
	case code == http.StatusTooManyRequests:
		return Retryable(ErrRateLimited)
	case code >= 500:
		return Retryable(fmt.Errorf("%w: status %d", ErrUpstreamDown, code))
	default:
		return fmt.Errorf("unexpected status %d", code)
	}
}
