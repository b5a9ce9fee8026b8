package semaphore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/alamotechllc/semsync/pkg/telemetry"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/net/publicsuffix"
)

// DefaultTimeout bounds every HTTP call made by a Client.
const DefaultTimeout = 30 * time.Second

// Client is a typed REST client for a Semaphore server. It owns its Session
// and cookie jar; build one Client per server and credential set.
type Client struct {
	apiRoot   string
	session   *Session
	http      *http.Client
	timeout   time.Duration
	userAgent string

	logger  zerolog.Logger
	metrics *telemetry.Metrics
	tracer  *telemetry.Tracer
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client. A cookie jar is added
// when the given client has none.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			copied := *hc
			c.http = &copied
		}
	}
}

// WithLogger sets the logger used for request diagnostics.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger.With().Str("component", "semaphore-client").Logger()
	}
}

// WithMetrics records request counts and latencies.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithTracer opens a span per request.
func WithTracer(t *telemetry.Tracer) Option {
	return func(c *Client) { c.tracer = t }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// New creates a Client for the server at baseURL ("https://semaphore.example.com",
// with or without a trailing "/api").
func New(baseURL string, session *Session, opts ...Option) (*Client, error) {
	if session == nil {
		return nil, fmt.Errorf("semaphore: session is required")
	}
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("semaphore: invalid base url %q: %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("semaphore: base url %q must be http or https", baseURL)
	}

	root := strings.TrimRight(u.String(), "/")
	if !strings.HasSuffix(root, "/api") {
		root += "/api"
	}

	c := &Client{
		apiRoot:   root,
		session:   session,
		http:      &http.Client{},
		timeout:   DefaultTimeout,
		userAgent: "semsync",
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.http.Jar == nil {
		jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		if err != nil {
			return nil, fmt.Errorf("semaphore: cookie jar: %w", err)
		}
		c.http.Jar = jar
	}

	if err := session.bind(c); err != nil {
		return nil, err
	}
	return c, nil
}

// Session returns the session owned by the client.
func (c *Client) Session() *Session {
	return c.session
}

// Response is a normalized successful response.
type Response struct {
	StatusCode int
	Body       json.RawMessage

	method string
	path   string
}

// NoContent reports whether the server answered without a body (204 or an
// empty 2xx). Such a response is a success marker only and carries no fields.
func (r *Response) NoContent() bool {
	return r.StatusCode == http.StatusNoContent || len(bytes.TrimSpace(r.Body)) == 0
}

// Decode unmarshals the body into v.
func (r *Response) Decode(v any) error {
	if r.NoContent() {
		return &APIError{
			Kind:       KindUnexpected,
			StatusCode: r.StatusCode,
			Method:     r.method,
			Path:       r.path,
			Message:    "response has no content",
		}
	}
	if err := json.Unmarshal(r.Body, v); err != nil {
		return &APIError{
			Kind:       KindUnexpected,
			StatusCode: r.StatusCode,
			Method:     r.method,
			Path:       r.path,
			Message:    "malformed response body",
			Err:        err,
		}
	}
	return nil
}

// Request performs an authenticated API call. path is relative to the API
// root ("/project/1/keys"). body, when non-nil, is JSON encoded.
func (c *Client) Request(ctx context.Context, method, path string, body any, query url.Values) (*Response, error) {
	if err := c.session.ensure(ctx, c); err != nil {
		return nil, err
	}

	status, data, apiErr := c.send(ctx, method, path, body, query, true)
	if apiErr != nil {
		return nil, apiErr
	}

	if status == http.StatusUnauthorized {
		c.session.invalidate()
		return nil, &AuthError{
			Reason:     AuthExpired,
			StatusCode: status,
			Message:    serverMessage(data, status),
		}
	}
	if status < 200 || status >= 300 {
		return nil, statusError(method, path, status, data)
	}

	return &Response{
		StatusCode: status,
		Body:       data,
		method:     method,
		path:       path,
	}, nil
}

// send issues one HTTP request. It never retries.
func (c *Client) send(ctx context.Context, method, path string, body any, query url.Values, authorize bool) (int, []byte, *APIError) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	route := routeOf(path)
	if c.tracer == nil {
		return c.roundTrip(ctx, method, path, route, body, query, authorize)
	}

	ctx, span := c.tracer.StartSpan(ctx, "semaphore.request",
		telemetry.AttrHTTPMethod.String(method),
		telemetry.AttrHTTPRoute.String(route),
	)
	defer span.End()

	status, data, apiErr := c.roundTrip(ctx, method, path, route, body, query, authorize)
	span.SetAttributes(attribute.Int("http.status_code", status))
	switch {
	case apiErr != nil:
		telemetry.RecordError(span, apiErr)
	case status >= 400:
		telemetry.RecordError(span, fmt.Errorf("status %d", status))
	default:
		telemetry.RecordSuccess(span)
	}
	return status, data, apiErr
}

func (c *Client) roundTrip(ctx context.Context, method, path, route string, body any, query url.Values, authorize bool) (int, []byte, *APIError) {
	timer := telemetry.NewTimer()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return 0, nil, &APIError{
				Kind:    KindUnexpected,
				Method:  method,
				Path:    path,
				Message: "encode request body",
				Err:     err,
			}
		}
		reader = bytes.NewReader(payload)
	}

	target := c.apiRoot + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return 0, nil, &APIError{
			Kind:    KindUnexpected,
			Method:  method,
			Path:    path,
			Message: "build request",
			Err:     err,
		}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	if authorize {
		c.session.authorize(req)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		apiErr := transportError(method, path, err)
		c.observe(method, route, string(apiErr.Kind), timer)
		c.logger.Debug().Err(err).Str("method", method).Str("path", path).Msg("Request failed")
		return 0, nil, apiErr
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		apiErr := transportError(method, path, err)
		c.observe(method, route, string(apiErr.Kind), timer)
		return 0, nil, apiErr
	}

	c.observe(method, route, strconv.Itoa(resp.StatusCode), timer)
	c.logger.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("duration", timer.Duration()).
		Msg("Request completed")

	return resp.StatusCode, data, nil
}

func (c *Client) observe(method, route, status string, timer *telemetry.Timer) {
	if c.metrics == nil {
		return
	}
	c.metrics.RecordAPIRequest(method, route, status, timer.Duration())
}

// routeOf replaces numeric path segments so metric labels stay bounded:
// "/project/3/templates/9/run" becomes "/project/{id}/templates/{id}/run".
func routeOf(path string) string {
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		if _, err := strconv.Atoi(seg); err == nil && seg != "" {
			segments[i] = "{id}"
		}
	}
	return strings.Join(segments, "/")
}

func listOf[T any](ctx context.Context, c *Client, path string, query url.Values) ([]T, error) {
	resp, err := c.Request(ctx, http.MethodGet, path, nil, query)
	if err != nil {
		return nil, err
	}
	items := []T{}
	if resp.NoContent() || string(bytes.TrimSpace(resp.Body)) == "null" {
		return items, nil
	}
	if err := resp.Decode(&items); err != nil {
		return nil, err
	}
	if items == nil {
		items = []T{}
	}
	return items, nil
}

func getOne[T any](ctx context.Context, c *Client, path string) (*T, error) {
	resp, err := c.Request(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, err
	}
	var out T
	if err := resp.Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

func createOne[T any](ctx context.Context, c *Client, path string, body any) (*T, error) {
	resp, err := c.Request(ctx, http.MethodPost, path, body, nil)
	if err != nil {
		return nil, err
	}
	var out T
	if err := resp.Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

// put sends a sparse update. Semaphore answers 204 on success.
func (c *Client) put(ctx context.Context, path string, body any) (*Response, error) {
	return c.Request(ctx, http.MethodPut, path, body, nil)
}

// remove deletes a record and reports success from the status code alone.
func (c *Client) remove(ctx context.Context, path string) (bool, error) {
	resp, err := c.Request(ctx, http.MethodDelete, path, nil, nil)
	if err != nil {
		return false, err
	}
	return resp.StatusCode >= 200 && resp.StatusCode < 300, nil
}

func projectPath(projectID int, parts ...any) string {
	var b strings.Builder
	fmt.Fprintf(&b, "/project/%d", projectID)
	for _, p := range parts {
		fmt.Fprintf(&b, "/%v", p)
	}
	return b.String()
}
