package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	gwerrors "github.com/tendant/idm-gateway/pkg/errors"
	"github.com/tendant/idm-gateway/pkg/metrics"
	"github.com/tendant/idm-gateway/pkg/telemetry"
)

// maxBodySize caps how much of a provider response is read.
const maxBodySize = 1 << 20

// Response is a raw provider response. Bodies are never interpreted here.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// IsSuccess reports a 2xx status.
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Location returns the Location header.
func (r *Response) Location() string {
	return r.Header.Get("Location")
}

// Client performs HTTP requests against the identity provider.
// It is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	endpoints  Endpoints
	metrics    *metrics.Metrics
	tracer     trace.Tracer
}

// Option is a function that configures a Client
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for provider calls
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithMetrics records request latency on m
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithTracer overrides the tracer, mostly for tests
func WithTracer(t trace.Tracer) Option {
	return func(c *Client) {
		c.tracer = t
	}
}

// NewClient creates a provider client with functional options
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	c := &Client{
		httpClient: &http.Client{Timeout: timeout},
		endpoints:  NewEndpoints(cfg),
		tracer:     telemetry.Tracer(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Endpoints returns the URLs derived from the client configuration.
func (c *Client) Endpoints() Endpoints {
	return c.endpoints
}

// HTTPClient exposes the underlying client so other HTTP libraries share its transport.
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

// PostForm sends a form-encoded POST.
func (c *Client) PostForm(ctx context.Context, ep Endpoint, form url.Values) (*Response, error) {
	return c.do(ctx, http.MethodPost, ep, "", strings.NewReader(form.Encode()), "application/x-www-form-urlencoded")
}

// PostJSON sends body as JSON with a bearer token.
func (c *Client) PostJSON(ctx context.Context, ep Endpoint, bearer string, body interface{}) (*Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, gwerrors.Wrapf(err, gwerrors.ErrCodeInternal, "encode %s request", ep.Name)
	}
	return c.do(ctx, http.MethodPost, ep, bearer, bytes.NewReader(data), "application/json")
}

// Get sends a GET with a bearer token.
func (c *Client) Get(ctx context.Context, ep Endpoint, bearer string) (*Response, error) {
	return c.do(ctx, http.MethodGet, ep, bearer, nil, "")
}

// Delete sends a DELETE with a bearer token.
func (c *Client) Delete(ctx context.Context, ep Endpoint, bearer string) (*Response, error) {
	return c.do(ctx, http.MethodDelete, ep, bearer, nil, "")
}

func (c *Client) do(ctx context.Context, method string, ep Endpoint, bearer string, body io.Reader, contentType string) (*Response, error) {
	ctx, span := c.tracer.Start(ctx, "provider "+method+" "+ep.Name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("provider.endpoint", ep.Name),
		),
	)
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, method, ep.URL, body)
	if err != nil {
		return nil, gwerrors.Wrapf(err, gwerrors.ErrCodeInternal, "build %s request", ep.Name)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.ObserveProviderRequest(ep.Name, 0, time.Since(start))
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport failure")
		slog.Warn("Provider request failed", "endpoint", ep.Name, "method", method, "error", err)
		return nil, gwerrors.ProviderUnavailable(err, ep.Name)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	c.metrics.ObserveProviderRequest(ep.Name, resp.StatusCode, time.Since(start))
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "read body")
		return nil, gwerrors.ProviderUnavailable(fmt.Errorf("read %s response: %w", ep.Name, err), ep.Name)
	}
	if resp.StatusCode >= 400 {
		span.SetStatus(codes.Error, http.StatusText(resp.StatusCode))
	}

	slog.Debug("Provider request completed", "endpoint", ep.Name, "method", method, "status", resp.StatusCode)
	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
	}, nil
}

// UserIDFromLocation returns the last path segment of a Location header, or
// "" when there is none.
func UserIDFromLocation(location string) string {
	if location == "" {
		return ""
	}
	p := location
	if u, err := url.Parse(location); err == nil {
		p = u.Path
	}
	p = strings.TrimRight(p, "/")
	if p == "" {
		return ""
	}
	id := path.Base(p)
	if id == "." || id == "/" {
		return ""
	}
	return id
}
