package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
)

// PropertyOption is a functional option for [Client.NewProperties].
type PropertyOption func(*RequestProperties) error

func applyProperties(props RequestProperties, opts ...PropertyOption) (RequestProperties, error) {
	for _, opt := range opts {
		if err := opt(&props); err != nil {
			return RequestProperties{}, err
		}
	}
	return props, nil
}

// WithMethod sets the method and body of the request.
func WithMethod(m Method) PropertyOption {
	return func(p *RequestProperties) error {
		p.Method = m
		return nil
	}
}

// WithPayload JSON-encodes body into the request. The method must already
// be one that carries a body.
func WithPayload(body any) PropertyOption {
	return func(p *RequestProperties) error {
		switch methodName(p.Method) {
		case http.MethodGet, http.MethodHead:
			return fmt.Errorf("method %s cannot carry a payload", methodName(p.Method))
		}

		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request payload: %w", err)
		}

		p.Method.Body = b
		p.Method.ContentType = "application/json"
		return nil
	}
}

// WithHeaders adds custom headers to the outgoing request.
func WithHeaders(headers map[string][]string) PropertyOption {
	return func(p *RequestProperties) error {
		for k, v := range headers {
			for _, element := range v {
				p.Headers.Add(k, element)
			}
		}
		return nil
	}
}

// WithCookies attaches the given cookies to the outgoing request.
func WithCookies(cookies map[string]string) PropertyOption {
	return func(p *RequestProperties) error {
		for name, value := range cookies {
			if name == "" {
				return errors.New("cookie name must not be empty")
			}
			p.Cookies[name] = value
		}
		return nil
	}
}

// WithAuthorization sets the Authorization of the request.
func WithAuthorization(auth Authorization) PropertyOption {
	return func(p *RequestProperties) error {
		p.Authorization = auth
		return nil
	}
}

// WithRedirects overrides the redirect policy of the request.
func WithRedirects(policy RedirectPolicy) PropertyOption {
	return func(p *RequestProperties) error {
		switch policy {
		case AllowRedirects, DisallowRedirects, AllowUnsafeDowngrade:
			p.Redirects = policy
			return nil
		default:
			return fmt.Errorf("unknown redirect policy %d", int(policy))
		}
	}
}

// WithExtension sets an extension property.
func WithExtension(key, value string) PropertyOption {
	return func(p *RequestProperties) error {
		if key == "" {
			return errors.New("extension key must not be empty")
		}
		p.Extensions[key] = value
		return nil
	}
}

// WithModifier sets the per-hop request modifier.
func WithModifier(fn func(RequestProperties) (RequestProperties, error)) PropertyOption {
	return func(p *RequestProperties) error {
		p.Modifier = fn
		return nil
	}
}

// WithObserver sets the per-hop response observer.
func WithObserver(fn func(*http.Response)) PropertyOption {
	return func(p *RequestProperties) error {
		p.Observer = fn
		return nil
	}
}

// URLOption is a functional option for [URL].
type URLOption func(options *urlOpts)

type urlOpts struct {
	queryStrings map[string]string
	port         *int
}

// WithQueryStrings appends query parameters to the URL.
func WithQueryStrings(queryKV map[string]string) URLOption {
	return func(opts *urlOpts) {
		opts.queryStrings = queryKV
	}
}

// WithPort sets the port number on the URL's host.
func WithPort(port int) URLOption {
	return func(opts *urlOpts) {
		opts.port = &port
	}
}

// URL creates a url.URL for use in [Client.NewProperties].
func URL(scheme, host, path string, opts ...URLOption) *url.URL {
	var settings urlOpts
	for _, opt := range opts {
		opt(&settings)
	}

	if settings.port != nil {
		host = fmt.Sprintf("%s:%d", host, *settings.port)
	}

	endpoint := url.URL{
		Scheme: scheme,
		Host:   host,
		Path:   path,
	}

	if settings.queryStrings != nil {
		queryParams := url.Values{}
		for k, v := range settings.queryStrings {
			queryParams.Add(k, v)
		}

		endpoint.RawQuery = queryParams.Encode()
	}

	return &endpoint
}
