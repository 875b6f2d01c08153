// Package refresh transparently renews an expired access token. When a
// response carries 401 and the request holds refresh credentials in its
// extension properties, the interceptor authenticates against the refresh
// endpoint with Basic auth and replays the request with the new bearer
// token.
package refresh

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/adamwoolhether/httpauth/client"
	"github.com/adamwoolhether/httpauth/client/document"
)

// Properties are the credentials needed to refresh an access token.
type Properties struct {
	Username   string
	Password   string
	RefreshURL *url.URL
}

// AddTo stores p in the extension properties of props.
func (p Properties) AddTo(props *client.RequestProperties) {
	if props.Extensions == nil {
		props.Extensions = map[string]string{}
	}
	props.Extensions[client.PropertyUsername] = p.Username
	props.Extensions[client.PropertyPassword] = p.Password
	if p.RefreshURL != nil {
		props.Extensions[client.PropertyAuthenticationURL] = p.RefreshURL.String()
	}
}

// WithCredentials is a [client.PropertyOption] storing p on the request.
func WithCredentials(p Properties) client.PropertyOption {
	return func(props *client.RequestProperties) error {
		p.AddTo(props)
		return nil
	}
}

// AccessTokenOf returns the access token obtained by a refresh during the
// call that produced status, if any.
func AccessTokenOf(status client.ResponseStatus) (string, bool) {
	var ext map[string]string
	switch s := status.(type) {
	case *client.OK:
		ext = s.Extensions
	case *client.Error:
		ext = s.Extensions
	case *client.Failed:
		return "", false
	}

	token, ok := ext[client.PropertyAccessToken]
	return token, ok && token != ""
}

// Token is the refresh endpoint's response document.
type Token struct {
	AccessToken string `json:"accessToken" validate:"required"`
	ExpiresIn   *int   `json:"expiresIn,omitempty"`
	TokenType   string `json:"tokenType,omitempty"`
}

// ParseToken decodes a refresh token document.
func ParseToken(r io.Reader) (Token, error) {
	var token Token
	if err := document.Decode(r, &token); err != nil {
		return Token{}, err
	}
	return token, nil
}

// credentials extracts the refresh credentials from props; ok is false
// unless all three are present and non-blank.
func credentials(props client.RequestProperties) (user, pass, authURL string, ok bool) {
	user = props.Extension(client.PropertyUsername)
	pass = props.Extension(client.PropertyPassword)
	authURL = props.Extension(client.PropertyAuthenticationURL)

	ok = strings.TrimSpace(user) != "" &&
		strings.TrimSpace(pass) != "" &&
		strings.TrimSpace(authURL) != ""
	return user, pass, authURL, ok
}

// Interceptor is a [client.Interceptor] that renews the access token on 401.
func Interceptor(next client.Exchange) client.Exchange {
	return func(ctx context.Context, call *client.Call, props client.RequestProperties) (*http.Response, error) {
		resp, err := next(ctx, call, props)
		if err != nil || resp.StatusCode != http.StatusUnauthorized {
			return resp, err
		}

		user, pass, authURL, ok := credentials(props)
		if !ok {
			return resp, nil
		}

		target, err := url.Parse(authURL)
		if err != nil {
			call.Logger.Warn("ignoring unparseable authentication url", "error", err)
			return resp, nil
		}

		call.Logger.Debug("refreshing access token", "url", target.Redacted())
		client.Discard(call.Logger, resp)

		authProps := props.WithTarget(target).WithAuthorization(client.Basic{Username: user, Password: pass})
		authProps.Method = client.Get()
		authProps.Headers.Del("Content-Type")

		authResp, err := next(ctx, call, authProps)
		if err != nil {
			return nil, err
		}
		if authResp.StatusCode < 200 || authResp.StatusCode > 299 {
			call.Logger.Warn("reauthentication failed", "status", authResp.StatusCode)
			return authResp, nil
		}

		token, err := ParseToken(authResp.Body)
		client.Discard(call.Logger, authResp)
		if err != nil {
			call.Logger.Error("could not parse refreshed token", "error", err)
			return next(ctx, call, props)
		}

		retried, err := next(ctx, call, props.WithAuthorization(client.Bearer{Token: token.AccessToken}))
		if err != nil {
			return nil, err
		}
		if retried.Header == nil {
			retried.Header = http.Header{}
		}
		retried.Header[client.PropertyAccessToken] = []string{token.AccessToken}

		return retried, nil
	}
}
