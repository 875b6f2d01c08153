package client

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/adamwoolhether/httpauth/client/throttle"
)

// Call carries the per-call state threaded through the interceptor chain.
type Call struct {
	ID     uint64
	Logger *slog.Logger

	// ParseMIME is the Content-Type parser the client was built with.
	ParseMIME MIMEParser
}

// MIME parses a Content-Type value with the parser of the call, falling
// back to [ParseMIME].
func (c *Call) MIME(raw string) (MIMEType, error) {
	if c == nil || c.ParseMIME == nil {
		return ParseMIME(raw)
	}
	return c.ParseMIME(raw)
}

// Exchange sends one logical request and returns the raw response of its
// final hop. The caller owns the response body.
type Exchange func(ctx context.Context, call *Call, props RequestProperties) (*http.Response, error)

// Interceptor wraps an Exchange. Interceptors passed to [WithInterceptors]
// run outermost first; the innermost one wraps the redirect-following
// hop loop.
type Interceptor func(next Exchange) Exchange

// Executor runs a request through the pipeline and classifies the result.
type Executor interface {
	Execute(ctx context.Context, props RequestProperties) ResponseStatus
}

// Client executes requests through the interceptor pipeline on top of a
// single-hop [http.Client]. It is safe for concurrent use.
type Client struct {
	c          *http.Client
	logger     *slog.Logger
	tracer     trace.Tracer
	classifier Classifier
	redirects  RedirectPolicy
	exchange   Exchange
}

// Build creates a Client from the given options.
func Build(optFns ...Option) (*Client, error) {
	var opts options
	for _, opt := range optFns {
		if err := opt(&opts); err != nil {
			return nil, fmt.Errorf("applying client option: %w", err)
		}
	}

	client := &Client{
		logger: slog.Default(),
		tracer: noop.NewTracerProvider().Tracer("no-op tracer"),
	}

	hc := &http.Client{}
	if opts.client != nil {
		cpy := *opts.client
		hc = &cpy
	}
	if opts.timeout != nil {
		hc.Timeout = *opts.timeout
	}

	// Redirects are followed hop by hop in follow, never by net/http.
	hc.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	if opts.logger != nil {
		client.logger = opts.logger
	}
	if opts.tracer != nil {
		client.tracer = opts.tracer
	}
	if opts.noFollowRedirects {
		client.redirects = DisallowRedirects
	}

	var transport http.RoundTripper
	switch {
	case opts.rt != nil:
		transport = opts.rt
	case opts.client != nil && opts.client.Transport != nil:
		transport = opts.client.Transport
	default:
		transport = http.DefaultTransport
	}
	if opts.userAgent != "" {
		transport = userAgent{value: opts.userAgent, base: transport}
	}
	if opts.throttle != nil {
		rt, err := throttle.NewRoundTripper(*opts.throttle, func() *slog.Logger { return client.logger }, transport)
		if err != nil {
			return nil, fmt.Errorf("configuring throttle: %w", err)
		}
		transport = rt
	}
	hc.Transport = transport
	client.c = hc

	client.classifier = Classifier{
		ParseMIME: opts.mimeParser,
		Problems:  opts.problems,
	}

	exchange := client.follow
	for i := len(opts.interceptors) - 1; i >= 0; i-- {
		exchange = opts.interceptors[i](exchange)
	}
	client.exchange = exchange

	return client, nil
}

// Execute runs props through the pipeline and classifies the final hop.
// Transport failures, including cancellation, are reported as *Failed.
func (c *Client) Execute(ctx context.Context, props RequestProperties) ResponseStatus {
	call := c.newCall()

	if props.Target == nil {
		return &Failed{Err: ErrNoTarget}
	}

	ctx, span := c.tracer.Start(ctx, "httpauth.execute",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.Int64("httpauth.call_id", int64(call.ID)),
			attribute.String("http.request.method", methodName(props.Method)),
			attribute.String("url.full", props.Target.Redacted()),
		),
	)
	defer span.End()

	call.Logger.Debug("executing request", "method", methodName(props.Method), "url", props.Target.Redacted(), "redirects", props.Redirects)

	if err := ctx.Err(); err != nil {
		span.SetStatus(codes.Error, "cancelled")
		return &Failed{Err: err}
	}

	resp, err := c.exchange(ctx, call, props.Clone())
	if err != nil {
		call.Logger.Error("request failed", "url", props.Target.Redacted(), "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport failure")
		return &Failed{Err: err}
	}

	classifier := c.classifier
	classifier.Logger = call.Logger
	status := classifier.Classify(resp)

	switch s := status.(type) {
	case *OK:
		c.logResponded(call, resp, &s.Responded)
		span.SetAttributes(attribute.Int("http.response.status_code", s.Status))
	case *Error:
		c.logResponded(call, resp, &s.Responded)
		span.SetAttributes(attribute.Int("http.response.status_code", s.Status))
		span.SetStatus(codes.Error, s.Message)
	}

	return status
}

// NewProperties returns GET properties for target using the client's
// default redirect policy.
func (c *Client) NewProperties(target *url.URL, opts ...PropertyOption) (RequestProperties, error) {
	props := NewProperties(target)
	props.Redirects = c.redirects
	return applyProperties(props, opts...)
}

// URL creates a url.URL for use in NewProperties.
// It's just a convenience method that wraps the public URL func.
func (c *Client) URL(scheme, host, path string, opts ...URLOption) *url.URL {
	return URL(scheme, host, path, opts...)
}

func (c *Client) logResponded(call *Call, resp *http.Response, r *Responded) {
	var hop string
	if resp.Request != nil {
		hop = resp.Request.URL.Redacted()
	}
	call.Logger.Debug("response",
		"url", hop,
		"status", r.Status,
		"original_status", r.OriginalStatus,
		"message", r.Message,
		"content_length", r.ContentLength,
		"content_type", r.ContentType.FullType(),
	)
}

func methodName(m Method) string {
	if m.Name == "" {
		return http.MethodGet
	}
	return m.Name
}
