package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

// maxHops bounds the redirects followed by a single exchange.
const maxHops = 20

// IsRedirect reports whether code is a redirect that carries a Location.
func IsRedirect(code int) bool {
	switch code {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	default:
		return false
	}
}

// SameOrigin reports whether a and b share scheme, host and port, i.e.
// whether a connection to one could be reused for the other.
func SameOrigin(a, b *url.URL) bool {
	if a == nil || b == nil {
		return false
	}
	return strings.EqualFold(a.Scheme, b.Scheme) &&
		strings.EqualFold(a.Hostname(), b.Hostname()) &&
		effectivePort(a) == effectivePort(b)
}

func effectivePort(u *url.URL) string {
	if p := u.Port(); p != "" {
		return p
	}
	switch strings.ToLower(u.Scheme) {
	case "https":
		return "443"
	case "http":
		return "80"
	default:
		return ""
	}
}

// isDowngrade reports whether moving from prev to next drops TLS.
func isDowngrade(prev, next *url.URL) bool {
	return strings.EqualFold(prev.Scheme, "https") && strings.EqualFold(next.Scheme, "http")
}

// follow is the innermost exchange. It sends props and follows redirects
// hop by hop, applying the redirect policy to every hop.
func (c *Client) follow(ctx context.Context, call *Call, props RequestProperties) (*http.Response, error) {
	var prev *url.URL

	for hop := 0; ; hop++ {
		if hop > maxHops {
			return nil, fmt.Errorf("%w: %d", ErrTooManyRedirects, maxHops)
		}

		adjusted, err := adjust(call.Logger, prev, props)
		if err != nil {
			return nil, err
		}

		resp, err := c.roundTrip(ctx, call, adjusted)
		if err != nil {
			return nil, err
		}

		if adjusted.Observer != nil {
			adjusted.Observer(resp)
		}

		if adjusted.Redirects == DisallowRedirects || !IsRedirect(resp.StatusCode) {
			return resp, nil
		}

		location := resp.Header.Get("Location")
		if location == "" {
			return resp, nil
		}

		next, err := resp.Request.URL.Parse(location)
		if err != nil {
			call.Logger.Warn("ignoring unparseable redirect location", "location", location, "error", err)
			return resp, nil
		}

		if isDowngrade(resp.Request.URL, next) && adjusted.Redirects != AllowUnsafeDowngrade {
			call.Logger.Debug("refusing to follow downgrade redirect", "from", resp.Request.URL.Redacted(), "to", next.Redacted())
			return resp, nil
		}

		Discard(call.Logger, resp)

		prev = resp.Request.URL
		props = redirected(adjusted, resp.StatusCode).WithTarget(next)
	}
}

// adjust applies the redirect policy to the properties of a hop. prev is
// the URL of the previous hop, nil on the first.
func adjust(logger *slog.Logger, prev *url.URL, props RequestProperties) (RequestProperties, error) {
	next := props.Clone()

	if props.Modifier != nil {
		modified, err := props.Modifier(next)
		if err != nil {
			return RequestProperties{}, fmt.Errorf("%w: %w", ErrModifier, err)
		}
		next = modified.Clone()
		if next.Target == nil {
			next.Target = props.Clone().Target
		}
		next.Modifier = props.Modifier
		next.Observer = props.Observer
	}

	if prev != nil && !strings.EqualFold(prev.Hostname(), next.Target.Hostname()) {
		stripCredentials(logger, prev, next.Target, &next)
	}

	return next, nil
}

// stripCredentials drops every credential bearing field from props.
func stripCredentials(logger *slog.Logger, from, to *url.URL, props *RequestProperties) {
	if len(props.Cookies) > 0 || props.Headers.Get("Cookie") != "" {
		logger.Warn("dropping cookies on cross-host redirect", "from", from.Host, "to", to.Host)
		clear(props.Cookies)
		props.Headers.Del("Cookie")
	}

	if props.Authorization != nil {
		logger.Warn("dropping authorization on cross-host redirect", "from", from.Host, "to", to.Host)
		props.Authorization = nil
	}

	if props.Headers.Get("Authorization") != "" {
		logger.Warn("dropping authorization header on cross-host redirect", "from", from.Host, "to", to.Host)
		props.Headers.Del("Authorization")
	}
}

// redirected rewrites the method of props as browsers do for code.
func redirected(props RequestProperties, code int) RequestProperties {
	switch code {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther:
		name := methodName(props.Method)
		if name == http.MethodHead || (name == http.MethodGet && len(props.Method.Body) == 0) {
			return props
		}
		cpy := props.Clone()
		cpy.Method = Get()
		cpy.Headers.Del("Content-Type")
		cpy.Headers.Del("Content-Length")
		return cpy
	default:
		return props
	}
}

// roundTrip sends exactly one hop.
func (c *Client) roundTrip(ctx context.Context, call *Call, props RequestProperties) (*http.Response, error) {
	ctx = c.hopTiming(ctx, call, props.Target)

	req, err := props.newRequest(ctx)
	if err != nil {
		return nil, err
	}

	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.c.Do(req)
	if err != nil {
		return nil, fmt.Errorf("exec http do: %w", err)
	}
	if resp.Request == nil {
		resp.Request = req
	}
	return resp, nil
}

// newRequest builds the wire request for props.
func (p RequestProperties) newRequest(ctx context.Context) (*http.Request, error) {
	var body io.Reader
	if len(p.Method.Body) > 0 {
		body = bytes.NewReader(p.Method.Body)
	}

	req, err := http.NewRequestWithContext(ctx, methodName(p.Method), p.Target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("instantiating request: %w", err)
	}

	for k, v := range p.Headers {
		for _, element := range v {
			req.Header.Add(k, element)
		}
	}

	if p.Method.ContentType != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", p.Method.ContentType)
	}
	if p.Authorization != nil {
		req.Header.Set("Authorization", p.Authorization.HeaderValue())
	}
	if cookies := p.CookieHeader(); cookies != "" {
		req.Header.Set("Cookie", cookies)
	}

	return req, nil
}

// Discard drains a little of an unused body so the connection can be
// reused, then closes it.
func Discard(logger *slog.Logger, resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	if _, err := io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10)); err != nil {
		logger.Debug("failed to discard unused body", "error", err)
	}
	if err := resp.Body.Close(); err != nil {
		logger.Error("failed to close response body", "error", err)
	}
}
