package coursebackend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/rendus-api/internal/observability"
)

// ErrNotConfigured is returned when the client has no base URL.
var ErrNotConfigured = errors.New("course backend url is required")

// Error is a non-2xx answer of the course backend.
type Error struct {
	Operation string
	Status    int
	Body      string
}

func (e *Error) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("course backend %s: status %d", e.Operation, e.Status)
	}
	return fmt.Sprintf("course backend %s: status %d: %s", e.Operation, e.Status, body)
}

// IsNotFound reports whether err is a backend 404.
func IsNotFound(err error) bool {
	var backendErr *Error
	return errors.As(err, &backendErr) && backendErr.Status == http.StatusNotFound
}

// Config defines how to reach the course backend.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	Retries    int
	RetryDelay time.Duration
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

// Client talks to the course backend REST API.
type Client struct {
	baseURL    string
	http       *http.Client
	retries    int
	retryDelay time.Duration
	tracer     trace.Tracer
	logger     zerolog.Logger
}

// New builds a client. One retry is performed by default.
func New(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, ErrNotConfigured
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	retries := cfg.Retries
	if retries < 0 {
		retries = 0
	} else if retries == 0 {
		retries = 1
	}

	return &Client{
		baseURL:    base,
		http:       httpClient,
		retries:    retries,
		retryDelay: cfg.RetryDelay,
		tracer:     otel.Tracer("github.com/noah-isme/rendus-api/pkg/coursebackend"),
		logger:     cfg.Logger.With().Str("component", "course_backend").Logger(),
	}, nil
}

type tokenKey struct{}

// WithToken attaches the caller's bearer token to ctx; it is forwarded on every call.
func WithToken(ctx context.Context, token string) context.Context {
	token = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(token), "Bearer "))
	if token == "" {
		return ctx
	}
	return context.WithValue(ctx, tokenKey{}, token)
}

// TokenFromContext returns the forwarded bearer token, if any.
func TokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(tokenKey{}).(string)
	return token
}

type correlationKey struct{}

// WithCorrelationID attaches the request correlation id; it is sent as X-Correlation-ID.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	id = strings.TrimSpace(id)
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, correlationKey{}, id)
}

// CorrelationIDFromContext returns the correlation id carried by ctx, if any.
func CorrelationIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}

type request struct {
	operation   string
	method      string
	path        string
	query       map[string]string
	body        []byte
	contentType string
}

func jsonRequest(operation, method, path string, payload interface{}) (request, error) {
	req := request{operation: operation, method: method, path: path}
	if payload == nil {
		return req, nil
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return req, fmt.Errorf("encode %s payload: %w", operation, err)
	}
	req.body = body
	req.contentType = "application/json"
	return req, nil
}

// send executes the request with retries and returns the successful response. The
// caller owns the body.
func (c *Client) send(ctx context.Context, req request) (*http.Response, error) {
	ctx, span := c.tracer.Start(ctx, "coursebackend."+req.operation, trace.WithAttributes(
		attribute.String("http.method", req.method),
		attribute.String("backend.path", req.path),
	))
	defer span.End()

	start := time.Now()
	defer func() {
		observability.BackendRequestDuration().WithLabelValues(req.operation).Observe(time.Since(start).Seconds())
	}()

	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			c.logger.Warn().Err(lastErr).Str("operation", req.operation).Int("attempt", attempt+1).Msg("retrying course backend request")
			if c.retryDelay > 0 {
				select {
				case <-ctx.Done():
					return nil, c.fail(span, req.operation, ctx.Err())
				case <-time.After(c.retryDelay):
				}
			}
		}

		resp, err := c.attempt(ctx, req)
		if err == nil {
			span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
			return resp, nil
		}
		lastErr = err
		if !retryable(err) || ctx.Err() != nil {
			break
		}
	}

	return nil, c.fail(span, req.operation, lastErr)
}

func (c *Client) fail(span trace.Span, operation string, err error) error {
	observability.BackendRequestFailures().WithLabelValues(operation).Inc()
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func (c *Client) attempt(ctx context.Context, req request) (*http.Response, error) {
	var body io.Reader
	if req.body != nil {
		body = bytes.NewReader(req.body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, c.baseURL+req.path, body)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", req.operation, err)
	}
	if len(req.query) > 0 {
		q := httpReq.URL.Query()
		for key, value := range req.query {
			q.Set(key, value)
		}
		httpReq.URL.RawQuery = q.Encode()
	}
	if req.contentType != "" {
		httpReq.Header.Set("Content-Type", req.contentType)
	}
	httpReq.Header.Set("Accept", "application/json")
	if token := TokenFromContext(ctx); token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}
	if correlation := CorrelationIDFromContext(ctx); correlation != "" {
		httpReq.Header.Set("X-Correlation-ID", correlation)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("course backend %s: %w", req.operation, err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}

	defer resp.Body.Close()
	payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return nil, &Error{Operation: req.operation, Status: resp.StatusCode, Body: string(payload)}
}

// retryable keeps client errors final; transport failures and 5xx get another try.
func retryable(err error) bool {
	var backendErr *Error
	if errors.As(err, &backendErr) {
		return backendErr.Status >= 500 || backendErr.Status == http.StatusTooManyRequests
	}
	return true
}

func (c *Client) do(ctx context.Context, req request, out interface{}) error {
	resp, err := c.send(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s response: %w", req.operation, err)
	}
	if len(bytes.TrimSpace(payload)) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode %s response: %w", req.operation, err)
	}
	return nil
}

// degrade swallows collection read failures so listings render empty instead of failing.
func (c *Client) degrade(operation string, err error) {
	c.logger.Warn().Err(err).Str("operation", operation).Msg("course backend collection unavailable, returning empty list")
}
