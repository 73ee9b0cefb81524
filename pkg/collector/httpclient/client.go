// Package httpclient provides the single-process rate-limited,
// retrying HTTP client shared by adapters that don't bring their own
// SDK-level rate limiting (spec.md §4.4). It is optional: the
// orchestrator never requires an adapter to use it.
package httpclient

import (
	"context"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/valyala/fasthttp"
	"golang.org/x/time/rate"

	"github.com/blackcoderx/corpusctl/pkg/collector/cerrors"
)

// defaultTimeout is the per-request timeout applied when Config
// doesn't specify one.
const defaultTimeout = 30 * time.Second

var retryableStatus = map[int]bool{
	fasthttp.StatusTooManyRequests:     true,
	fasthttp.StatusInternalServerError: true,
	fasthttp.StatusBadGateway:          true,
	fasthttp.StatusServiceUnavailable:  true,
	fasthttp.StatusGatewayTimeout:      true,
}

// Config controls client construction.
type Config struct {
	// RequestsPerSecond is converted into strictly monotonic spacing:
	// each request blocks until now - lastRequest >= 1/RequestsPerSecond.
	// Zero means unlimited.
	RequestsPerSecond float64
	MaxRetries        int
	Timeout           time.Duration
}

// Client is a rate-limited, retrying HTTP client built on fasthttp.
type Client struct {
	hc         *fasthttp.Client
	limiter    *rate.Limiter
	maxRetries int
	timeout    time.Duration
}

// New builds a Client from cfg, defaulting Timeout to 30s.
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return &Client{
		hc:         &fasthttp.Client{ReadTimeout: cfg.Timeout, WriteTimeout: cfg.Timeout},
		limiter:    limiter,
		maxRetries: cfg.MaxRetries,
		timeout:    cfg.Timeout,
	}
}

// Do issues method/url with headers and body, applying the rate
// limiter before every attempt and exponential backoff with jitter
// between retries on {429,500,502,503,504} and transport errors. A
// numeric "Retry-After" response header overrides the backoff
// library's own interval for the next attempt. RateLimitError is
// returned only once retries are exhausted on any of those retryable
// statuses (5xx included, not only 429); NetworkError is returned once
// retries are exhausted on a transport failure.
func (c *Client) Do(ctx context.Context, method, url string, headers map[string]string, body []byte) (status int, respBody []byte, err error) {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 0 // attempts are bounded by maxRetries, not wall time

	var retryAfter string
	for attempts := 1; ; attempts++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return 0, nil, cerrors.Network("rate limiter wait interrupted", err)
			}
		}

		var reqErr error
		status, respBody, retryAfter, reqErr = c.doOnce(method, url, headers, body)

		if reqErr == nil && !retryableStatus[status] {
			return status, respBody, nil
		}
		if attempts > c.maxRetries {
			if reqErr != nil {
				return 0, nil, cerrors.Network("request failed after retries exhausted", reqErr).
					WithContext("attempts", attempts, "url", url)
			}
			return 0, nil, cerrors.RateLimit("server throttled request after retries exhausted",
				parseRetryAfter(retryAfter), nil).WithContext("status", status, "attempts", attempts, "url", url)
		}

		wait := bo.NextBackOff()
		if secs := parseRetryAfter(retryAfter); secs > 0 {
			wait = time.Duration(secs) * time.Second
		}
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return 0, nil, cerrors.Network("request cancelled", ctx.Err())
		}
	}
}

func (c *Client) doOnce(method, url string, headers map[string]string, body []byte) (status int, respBody []byte, retryAfter string, err error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(url)
	req.Header.SetMethod(method)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if len(body) > 0 {
		req.SetBody(body)
	}

	if err := c.hc.DoTimeout(req, resp, c.timeout); err != nil {
		return 0, nil, "", err
	}
	return resp.StatusCode(), append([]byte(nil), resp.Body()...), string(resp.Header.Peek("Retry-After")), nil
}

func parseRetryAfter(v string) int {
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
