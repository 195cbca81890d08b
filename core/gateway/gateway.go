package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Doer sends a single HTTP request. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Gateway is the quota-aware, retrying executor for one external system.
type Gateway struct {
	cfg     Config
	client  Doer
	clock   Clock
	limiter *limiter
	logger  *zap.Logger
	tracer  trace.Tracer
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithHTTPClient replaces the default *http.Client.
func WithHTTPClient(client Doer) Option {
	return func(g *Gateway) { g.client = client }
}

// WithClock replaces the wall clock, mainly for tests.
func WithClock(clock Clock) Option {
	return func(g *Gateway) { g.clock = clock }
}

// WithLogger sets the logger used for retry warnings.
func WithLogger(l *zap.Logger) Option {
	return func(g *Gateway) { g.logger = l }
}

// New builds a Gateway for one external system.
func New(cfg Config, opts ...Option) *Gateway {
	cfg = cfg.withDefaults()
	g := &Gateway{
		cfg:    cfg,
		clock:  realClock{},
		logger: zap.NewNop(),
		tracer: otel.Tracer("site-sync/gateway"),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.client == nil {
		g.client = &http.Client{Timeout: cfg.Timeout}
	}
	g.logger = g.logger.With(zap.String("system", cfg.Name))
	g.limiter = newLimiter(cfg, g.clock)
	return g
}

// Name returns the configured system name.
func (g *Gateway) Name() string { return g.cfg.Name }

// Stats reports current quota usage.
func (g *Gateway) Stats() Stats { return g.limiter.stats() }

// Do executes req under the quota and retry policy. On success the caller
// owns the response body.
func (g *Gateway) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	body, err := readBody(req)
	if err != nil {
		return nil, fmt.Errorf("failed to buffer request body: %w", err)
	}

	ctx, span := g.tracer.Start(ctx, "gateway.Do", trace.WithAttributes(
		attribute.String("gateway.system", g.cfg.Name),
		attribute.String("http.method", req.Method),
		attribute.String("http.url", req.URL.String()),
	))
	defer span.End()

	var (
		lastErr     error
		rateLimited bool
	)
	for attempt := 0; attempt < g.cfg.MaxAttempts; attempt++ {
		if err := g.limiter.acquire(ctx); err != nil {
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("%s: %w", g.cfg.Name, err)
		}

		resp, err := g.client.Do(cloneRequest(ctx, req, body))
		last := attempt == g.cfg.MaxAttempts-1

		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr, rateLimited = err, false
			if last {
				break
			}
			wait := g.backoff(attempt)
			g.logger.Warn("Request failed, retrying",
				zap.String("method", req.Method),
				zap.String("url", req.URL.String()),
				zap.Int("attempt", attempt+1),
				zap.Duration("backoff", wait),
				zap.Error(err),
			)
			if err := g.clock.Sleep(ctx, wait); err != nil {
				return nil, err
			}
			continue
		}

		span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			wait := g.retryAfter(resp)
			drain(resp)
			lastErr, rateLimited = &RateLimitExceeded{System: g.cfg.Name, Attempts: attempt + 1}, true
			if last {
				break
			}
			g.logger.Warn("Rate limited, retrying",
				zap.String("method", req.Method),
				zap.String("url", req.URL.String()),
				zap.Int("attempt", attempt+1),
				zap.Duration("retry_after", wait),
			)
			if err := g.clock.Sleep(ctx, wait); err != nil {
				return nil, err
			}

		case resp.StatusCode >= http.StatusInternalServerError:
			httpErr := newHTTPError(g.cfg.Name, req, body, resp)
			lastErr, rateLimited = httpErr, false
			if last {
				break
			}
			wait := g.backoff(attempt)
			g.logger.Warn("Server error, retrying",
				zap.String("method", req.Method),
				zap.String("url", req.URL.String()),
				zap.Int("status", httpErr.StatusCode),
				zap.Int("attempt", attempt+1),
				zap.Duration("backoff", wait),
			)
			if err := g.clock.Sleep(ctx, wait); err != nil {
				return nil, err
			}

		case resp.StatusCode >= http.StatusBadRequest:
			httpErr := newHTTPError(g.cfg.Name, req, body, resp)
			span.SetStatus(codes.Error, httpErr.Error())
			return nil, httpErr

		default:
			return resp, nil
		}
	}

	if rateLimited {
		g.logger.Error("Rate limit retries exhausted", zap.String("url", req.URL.String()))
	}
	err = &TransientNetworkError{
		System:   g.cfg.Name,
		Method:   req.Method,
		URL:      req.URL.String(),
		Attempts: g.cfg.MaxAttempts,
		Err:      lastErr,
	}
	span.SetStatus(codes.Error, err.Error())
	return nil, err
}

// NewRequest builds a request against BaseURL with the configured headers.
// A non-nil body is encoded as JSON.
func (g *Gateway) NewRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	url := path
	if !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://") {
		url = strings.TrimRight(g.cfg.BaseURL, "/") + "/" + strings.TrimLeft(path, "/")
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range g.cfg.Headers {
		req.Header.Set(k, v)
	}
	return req, nil
}

// DoJSON sends in as JSON and decodes the response into out when out is non-nil.
func (g *Gateway) DoJSON(ctx context.Context, method, path string, in, out any) error {
	req, err := g.NewRequest(ctx, method, path, in)
	if err != nil {
		return err
	}
	resp, err := g.Do(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%s %s %s: failed to decode response: %w", g.cfg.Name, method, req.URL.String(), err)
	}
	return nil
}

func (g *Gateway) backoff(attempt int) time.Duration {
	return g.cfg.BackoffBase * time.Duration(1<<attempt)
}

// retryAfter reads Retry-After as seconds or an HTTP date, falling back to
// X-RateLimit-Reset (epoch seconds) and then to the configured fallback.
func (g *Gateway) retryAfter(resp *http.Response) time.Duration {
	wait := g.cfg.RetryAfterFallback
	if ra := strings.TrimSpace(resp.Header.Get("Retry-After")); ra != "" {
		if secs, err := strconv.Atoi(ra); err == nil && secs >= 0 {
			wait = time.Duration(secs) * time.Second
		} else if at, err := http.ParseTime(ra); err == nil {
			wait = at.Sub(g.clock.Now())
		}
	} else if reset := strings.TrimSpace(resp.Header.Get("X-RateLimit-Reset")); reset != "" {
		if epoch, err := strconv.ParseInt(reset, 10, 64); err == nil {
			wait = time.Unix(epoch, 0).Sub(g.clock.Now())
		}
	}
	if wait < 0 {
		wait = 0
	}
	if wait > g.cfg.RetryAfterMax {
		wait = g.cfg.RetryAfterMax
	}
	return wait
}

func readBody(req *http.Request) ([]byte, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	defer req.Body.Close()
	return io.ReadAll(req.Body)
}

func cloneRequest(ctx context.Context, req *http.Request, body []byte) *http.Request {
	r := req.Clone(ctx)
	if body != nil {
		r.Body = io.NopCloser(bytes.NewReader(body))
		r.ContentLength = int64(len(body))
		r.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(body)), nil
		}
	}
	return r
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}

const maxErrorBody = 2048

func newHTTPError(system string, req *http.Request, reqBody []byte, resp *http.Response) *HTTPError {
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &HTTPError{
		System:       system,
		Method:       req.Method,
		URL:          req.URL.String(),
		StatusCode:   resp.StatusCode,
		RequestBody:  truncate(string(reqBody), maxErrorBody),
		ResponseBody: strings.TrimSpace(string(respBody)),
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
