package client

import (
	"encoding/base64"
	"fmt"
	"maps"
	"net/http"
	"net/url"
	"slices"
	"strings"
)

// Extension property keys used to pass refresh-token parameters through
// the interceptor chain.
const (
	PropertyAccessToken       = "access_token"
	PropertyAuthenticationURL = "authentication_url"
	PropertyPassword          = "password"
	PropertyUsername          = "username"
)

// RedirectPolicy governs how redirects are followed for a request.
type RedirectPolicy int

const (
	// AllowRedirects follows redirects, refusing HTTPS to HTTP downgrades.
	AllowRedirects RedirectPolicy = iota
	// DisallowRedirects returns the first response as-is.
	DisallowRedirects
	// AllowUnsafeDowngrade follows redirects including HTTPS to HTTP.
	AllowUnsafeDowngrade
)

func (p RedirectPolicy) String() string {
	switch p {
	case AllowRedirects:
		return "allow"
	case DisallowRedirects:
		return "disallow"
	case AllowUnsafeDowngrade:
		return "allow-unsafe-downgrade"
	default:
		return fmt.Sprintf("RedirectPolicy(%d)", int(p))
	}
}

// Method is the HTTP method of a request together with its body, if any.
// Bodies are held in memory so every hop can replay them.
type Method struct {
	Name        string
	Body        []byte
	ContentType string
}

// Get returns a GET method.
func Get() Method { return Method{Name: http.MethodGet} }

// Head returns a HEAD method.
func Head() Method { return Method{Name: http.MethodHead} }

// Put returns a PUT method carrying body with the given content type.
func Put(body []byte, contentType string) Method {
	return Method{Name: http.MethodPut, Body: body, ContentType: contentType}
}

// Post returns a POST method carrying body with the given content type.
func Post(body []byte, contentType string) Method {
	return Method{Name: http.MethodPost, Body: body, ContentType: contentType}
}

// Delete returns a DELETE method. body and contentType may be empty.
func Delete(body []byte, contentType string) Method {
	return Method{Name: http.MethodDelete, Body: body, ContentType: contentType}
}

// Authorization produces the value of an Authorization header.
type Authorization interface {
	HeaderValue() string
}

// Basic is HTTP Basic authorization.
type Basic struct {
	Username string
	Password string
}

func (b Basic) HeaderValue() string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(b.Username+":"+b.Password))
}

// Bearer is bearer token authorization.
type Bearer struct {
	Token string
}

func (b Bearer) HeaderValue() string {
	return "Bearer " + b.Token
}

// RequestProperties describes one logical request. Values are copied, never
// mutated, by each stage producing a new request; use Clone before changing
// any of the maps.
type RequestProperties struct {
	Target        *url.URL
	Method        Method
	Headers       http.Header
	Cookies       map[string]string
	Authorization Authorization
	Redirects     RedirectPolicy
	Extensions    map[string]string

	// Modifier, if set, is applied to the properties of every hop.
	// An error aborts the call.
	Modifier func(RequestProperties) (RequestProperties, error)

	// Observer, if set, receives every hop's response in order. The body
	// belongs to the pipeline and must not be retained.
	Observer func(*http.Response)
}

// NewProperties returns GET properties for target.
func NewProperties(target *url.URL) RequestProperties {
	return RequestProperties{
		Target:     target,
		Method:     Get(),
		Headers:    http.Header{},
		Cookies:    map[string]string{},
		Extensions: map[string]string{},
	}
}

// Clone returns a deep copy of p.
func (p RequestProperties) Clone() RequestProperties {
	cpy := p
	if p.Target != nil {
		u := *p.Target
		cpy.Target = &u
	}
	cpy.Headers = p.Headers.Clone()
	if cpy.Headers == nil {
		cpy.Headers = http.Header{}
	}
	cpy.Cookies = maps.Clone(p.Cookies)
	if cpy.Cookies == nil {
		cpy.Cookies = map[string]string{}
	}
	cpy.Extensions = maps.Clone(p.Extensions)
	if cpy.Extensions == nil {
		cpy.Extensions = map[string]string{}
	}
	return cpy
}

// WithTarget returns a copy of p aimed at target.
func (p RequestProperties) WithTarget(target *url.URL) RequestProperties {
	cpy := p.Clone()
	u := *target
	cpy.Target = &u
	return cpy
}

// WithAuthorization returns a copy of p using auth; nil removes it along
// with any literal Authorization header.
func (p RequestProperties) WithAuthorization(auth Authorization) RequestProperties {
	cpy := p.Clone()
	cpy.Authorization = auth
	if auth == nil {
		cpy.Headers.Del("Authorization")
	}
	return cpy
}

// Extension returns the extension property for key, or "".
func (p RequestProperties) Extension(key string) string {
	return p.Extensions[key]
}

// CookieHeader serializes the cookie map as name=value; pairs sorted by name.
func (p RequestProperties) CookieHeader() string {
	if len(p.Cookies) == 0 {
		return ""
	}

	var b strings.Builder
	for _, name := range slices.Sorted(maps.Keys(p.Cookies)) {
		b.WriteString(name)
		b.WriteByte('=')
		b.WriteString(p.Cookies[name])
		b.WriteByte(';')
	}
	return b.String()
}
