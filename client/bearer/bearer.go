// Package bearer handles bearer token documents. A server may answer a
// request with a small JSON document naming an access token and the
// location of the real resource; the interceptor follows that hand-off
// with the token attached.
package bearer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/adamwoolhether/httpauth/client"
	"github.com/adamwoolhether/httpauth/client/document"
	"github.com/adamwoolhether/httpauth/client/refresh"
)

// ContentType identifies a bearer token document.
const ContentType = "application/vnd.librarysimplified.bearer-token+json"

// StatusInterceptorFailure is the pseudo status of responses synthesized
// when a bearer token document cannot be used. It is never sent by a
// server.
const StatusInterceptorFailure = 499

// Token is a bearer token document.
type Token struct {
	AccessToken string `json:"access_token" validate:"required"`
	ExpiresIn   int    `json:"expires_in"`
	Location    string `json:"location" validate:"required,url"`
}

// ParseToken decodes a bearer token document.
func ParseToken(r io.Reader) (Token, error) {
	var token Token
	if err := document.Decode(r, &token); err != nil {
		return Token{}, err
	}
	return token, nil
}

// LocationURL returns the parsed location of t.
func (t Token) LocationURL() (*url.URL, error) {
	return url.Parse(t.Location)
}

func isTokenDocument(call *client.Call, resp *http.Response) bool {
	raw := resp.Header.Get("Content-Type")
	if raw == "" {
		return false
	}
	m, err := call.MIME(raw)
	if err != nil {
		return false
	}
	return strings.EqualFold(m.FullType(), ContentType)
}

// Interceptor is a [client.Interceptor] that exchanges bearer token
// documents for the resource they point at.
func Interceptor(next client.Exchange) client.Exchange {
	return func(ctx context.Context, call *client.Call, props client.RequestProperties) (*http.Response, error) {
		resp, err := next(ctx, call, props)
		if err != nil || !isTokenDocument(call, resp) {
			return resp, err
		}

		call.Logger.Debug("encountered a bearer token", "url", props.Target.Redacted())

		token, err := ParseToken(resp.Body)
		client.Discard(call.Logger, resp)
		if err != nil {
			return interceptorFailure(call, resp, err), nil
		}

		location, err := token.LocationURL()
		if err != nil {
			return interceptorFailure(call, resp, err), nil
		}

		authorized := props.WithTarget(location).WithAuthorization(client.Bearer{Token: token.AccessToken})
		call.Logger.Debug("sending a new request", "url", location.Redacted())

		inner, err := next(ctx, call, authorized)
		if err != nil {
			return nil, err
		}

		redirected := !client.SameOrigin(hopURL(resp, props.Target), location)

		switch {
		case client.IsRedirect(inner.StatusCode):
			// The follow loop refuses HTTPS to HTTP hops and hands the
			// redirect back. Reissue it without the token.
			target := retryTarget(inner, location)
			call.Logger.Warn("handling downgrade redirect explicitly", "url", target.Redacted())
			client.Discard(call.Logger, inner)
			return next(ctx, call, authorized.WithTarget(target).WithAuthorization(nil))

		case inner.StatusCode >= 400 && redirected:
			target := retryTarget(inner, location)
			call.Logger.Warn("retrying unsuccessful redirection without authorization", "url", target.Redacted(), "status", inner.StatusCode)
			client.Discard(call.Logger, inner)
			return next(ctx, call, authorized.WithTarget(target).WithAuthorization(nil))

		default:
			return inner, nil
		}
	}
}

// retryTarget is the Location of resp, or the URL of its hop.
func retryTarget(resp *http.Response, fallback *url.URL) *url.URL {
	hop := hopURL(resp, fallback)
	if loc := resp.Header.Get("Location"); loc != "" {
		if u, err := hop.Parse(loc); err == nil {
			return u
		}
	}
	return hop
}

func hopURL(resp *http.Response, fallback *url.URL) *url.URL {
	if resp.Request != nil && resp.Request.URL != nil {
		return resp.Request.URL
	}
	return fallback
}

// interceptorFailure replaces resp with a terminal 499 response.
func interceptorFailure(call *client.Call, resp *http.Response, cause error) *http.Response {
	message := "bearer token interceptor parser failed: " + cause.Error()
	if errors.Is(cause, document.ErrEmpty) {
		message = "bearer token interceptor received an empty body from the server"
		call.Logger.Warn("received empty bearer token body")
	} else {
		call.Logger.Error("could not parse bearer token", "error", cause)
	}

	failed := *resp
	failed.StatusCode = StatusInterceptorFailure
	failed.Status = strconv.Itoa(StatusInterceptorFailure) + " " + message
	failed.Header = resp.Header.Clone()
	failed.Body = http.NoBody
	failed.ContentLength = 0
	return &failed
}

// Result is the outcome of [Negotiate]: *Succeeded or *Failed.
type Result interface {
	negotiation()
}

// Succeeded carries the negotiated token. RefreshToken is set when a
// refresh happened during negotiation.
type Succeeded struct {
	Token        Token
	RefreshToken string
}

// Failed describes why negotiation failed. Response is set only for
// server errors and is already closed.
type Failed struct {
	ProblemReport *client.ProblemReport
	Err           error
	Message       string
	Response      *client.Error
}

func (f *Failed) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s: %v", f.Message, f.Err)
	}
	return f.Message
}

func (f *Failed) Unwrap() error {
	return f.Err
}

func (*Succeeded) negotiation() {}
func (*Failed) negotiation()    {}

// Negotiate performs one request against target and reads a bearer token
// from the response. creds and auth may be nil.
func Negotiate(ctx context.Context, exec client.Executor, target *url.URL, creds *refresh.Properties, auth client.Authorization) Result {
	props := client.NewProperties(target)
	props.Authorization = auth
	if creds != nil {
		creds.AddTo(&props)
	}

	status := exec.Execute(ctx, props)
	defer status.Close()

	switch s := status.(type) {
	case *client.OK:
		return negotiated(s)
	case *client.Error:
		return &Failed{
			ProblemReport: s.ProblemReport,
			Message:       "Server returned an error status code.",
			Response:      s,
		}
	case *client.Failed:
		return &Failed{
			Err:     s.Err,
			Message: "Failed to connect to the bearer token endpoint.",
		}
	default:
		panic(fmt.Sprintf("unexpected response status %T", status))
	}
}

func negotiated(s *client.OK) Result {
	body := s.Body
	if body == nil {
		body = http.NoBody
	}

	token, err := ParseToken(body)
	if err != nil {
		return &Failed{
			ProblemReport: s.ProblemReport,
			Err:           err,
			Message:       "Received an error whilst trying to parse a bearer token.",
		}
	}

	refreshed, _ := refresh.AccessTokenOf(s)
	return &Succeeded{Token: token, RefreshToken: refreshed}
}
