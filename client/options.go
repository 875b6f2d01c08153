package client

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/adamwoolhether/httpauth/client/throttle"
)

// Option is a functional option for configuring a [Client] via [Build].
type Option func(*options) error
type options struct {
	client            *http.Client
	rt                http.RoundTripper
	timeout           *time.Duration
	userAgent         string
	throttle          *throttle.Config
	noFollowRedirects bool
	logger            *slog.Logger
	tracer            trace.Tracer
	interceptors      []Interceptor
	mimeParser        MIMEParser
	problems          ProblemReportParser
}

// WithClient replaces the default [http.Client] used for each hop. The
// client is copied; its CheckRedirect is replaced since redirects are
// followed by the [Client] itself.
func WithClient(hc *http.Client) Option {
	return func(c *options) error {
		if hc == nil {
			return errors.New("client must not be nil")
		}
		c.client = hc
		return nil
	}
}

// WithTransport sets a custom [http.RoundTripper] as the base transport.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *options) error {
		if rt == nil {
			return errors.New("transport must not be nil")
		}
		c.rt = rt
		return nil
	}
}

// WithTimeout sets the per-hop timeout on the underlying [http.Client].
func WithTimeout(d time.Duration) Option {
	return func(c *options) error {
		if d < 0 {
			return errors.New("timeout must not be negative")
		}
		c.timeout = &d
		return nil
	}
}

// WithUserAgent adds a persistent User-Agent header to all outgoing requests.
func WithUserAgent(header string) Option {
	return func(c *options) error {
		c.userAgent = header
		return nil
	}
}

// WithThrottle enables token-bucket rate limiting with the given requests per second and burst capacity.
func WithThrottle(rps, burst int) Option {
	return func(c *options) error {
		cfg := throttle.Config{RPS: rps, Burst: burst}
		if err := cfg.Validate(); err != nil {
			return err
		}
		c.throttle = &cfg
		return nil
	}
}

// WithNoFollowRedirects makes [DisallowRedirects] the default policy of
// properties created by [Client.NewProperties].
func WithNoFollowRedirects() Option {
	return func(c *options) error {
		c.noFollowRedirects = true
		return nil
	}
}

// WithLogger injects a custom [slog.Logger] into the [Client].
func WithLogger(logger *slog.Logger) Option {
	return func(c *options) error {
		c.logger = logger
		return nil
	}
}

// WithTracer sets the tracer used to span each call.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *options) error {
		if tracer == nil {
			return errors.New("tracer must not be nil")
		}
		c.tracer = tracer
		return nil
	}
}

// WithInterceptors appends interceptors to the pipeline. The first
// interceptor given is the outermost.
func WithInterceptors(ics ...Interceptor) Option {
	return func(c *options) error {
		for i, ic := range ics {
			if ic == nil {
				return fmt.Errorf("interceptor[%d] must not be nil", i)
			}
		}
		c.interceptors = append(c.interceptors, ics...)
		return nil
	}
}

// WithMIMEParser replaces the Content-Type parser.
func WithMIMEParser(parse MIMEParser) Option {
	return func(c *options) error {
		if parse == nil {
			return errors.New("mime parser must not be nil")
		}
		c.mimeParser = parse
		return nil
	}
}

// WithProblemReportParser replaces the problem report parser.
func WithProblemReportParser(p ProblemReportParser) Option {
	return func(c *options) error {
		if p == nil {
			return errors.New("problem report parser must not be nil")
		}
		c.problems = p
		return nil
	}
}

// userAgent is an http.RoundTripper, enabling the persistent User-Agent header.
type userAgent struct {
	value string
	base  http.RoundTripper
}

func (ua userAgent) RoundTrip(r *http.Request) (*http.Response, error) {
	cpy := r.Clone(r.Context())
	cpy.Header.Set("User-Agent", ua.value)
	return ua.base.RoundTrip(cpy)
}
