package client

import (
	"bytes"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/adamwoolhether/httpauth/client/document"
)

const (
	// MIMEOctetStream is substituted for missing or unparseable content types.
	MIMEOctetStream = "application/octet-stream"
	// MIMEProblemReport is the content type of problem report documents.
	MIMEProblemReport = "application/problem+json"

	// maxProblemReportSize caps how much of a problem report body is read.
	maxProblemReportSize = 1 << 20
)

// neverExpires is the bound at or beyond which a cookie expiry means
// "does not expire".
var neverExpires = time.Date(9999, time.December, 31, 0, 0, 0, 0, time.UTC)

// MIMEType is a parsed media type.
type MIMEType struct {
	Type       string
	Subtype    string
	Parameters map[string]string
}

// FullType returns "type/subtype".
func (m MIMEType) FullType() string {
	return m.Type + "/" + m.Subtype
}

func (m MIMEType) String() string {
	return mime.FormatMediaType(m.FullType(), m.Parameters)
}

// MIMEParser parses a Content-Type value.
type MIMEParser func(string) (MIMEType, error)

// ParseMIME parses s with [mime.ParseMediaType].
func ParseMIME(s string) (MIMEType, error) {
	full, params, err := mime.ParseMediaType(s)
	if err != nil {
		return MIMEType{}, err
	}

	typ, sub, ok := strings.Cut(full, "/")
	if !ok || typ == "" || sub == "" {
		return MIMEType{}, mime.ErrInvalidMediaParameter
	}

	return MIMEType{Type: typ, Subtype: sub, Parameters: params}, nil
}

// MustParseMIME is like ParseMIME but panics on error.
func MustParseMIME(s string) MIMEType {
	m, err := ParseMIME(s)
	if err != nil {
		panic(err)
	}
	return m
}

// ProblemReportParser reads a problem report document. Implementations may
// return a nil report to signal that none is present.
type ProblemReportParser interface {
	Parse(r io.Reader) (*ProblemReport, error)
}

// ProblemReportParserFunc adapts a function to [ProblemReportParser].
type ProblemReportParserFunc func(r io.Reader) (*ProblemReport, error)

func (f ProblemReportParserFunc) Parse(r io.Reader) (*ProblemReport, error) { return f(r) }

// JSONProblemReports decodes problem reports as JSON.
var JSONProblemReports ProblemReportParser = ProblemReportParserFunc(func(r io.Reader) (*ProblemReport, error) {
	var report ProblemReport
	if err := document.Decode(r, &report); err != nil {
		return nil, err
	}
	return &report, nil
})

// Classifier turns raw responses into a [ResponseStatus]. The zero value
// uses [ParseMIME], [JSONProblemReports] and the wall clock.
type Classifier struct {
	ParseMIME MIMEParser
	Problems  ProblemReportParser
	Now       func() time.Time
	Logger    *slog.Logger
}

// Classify converts resp into an *OK or *Error. Ownership of resp.Body moves
// to the returned status.
func (c *Classifier) Classify(resp *http.Response) ResponseStatus {
	logger := c.logger()

	contentType := c.contentType(resp, logger)

	body := resp.Body
	if body == nil {
		body = http.NoBody
	}

	contentLength := resp.ContentLength

	var report *ProblemReport
	if contentType.FullType() == MIMEProblemReport {
		report, body = c.problemReport(body, logger)
		if body == nil {
			contentLength = 0
		}
	}

	status := resp.StatusCode
	if report != nil && report.Status != nil {
		logger.Debug("problem report changed status", "from", resp.StatusCode, "to", *report.Status)
		status = *report.Status
	}

	headers := resp.Header.Clone()
	if headers == nil {
		headers = http.Header{}
	}

	var extensions map[string]string
	if token, ok := headers[PropertyAccessToken]; ok && len(token) > 0 {
		extensions = map[string]string{PropertyAccessToken: token[0]}
		delete(headers, PropertyAccessToken)
	}

	var hop *url.URL
	if resp.Request != nil {
		hop = resp.Request.URL
	}

	responded := Responded{
		Status:         status,
		OriginalStatus: resp.StatusCode,
		Message:        statusMessage(resp),
		ContentType:    contentType,
		ContentLength:  contentLength,
		Headers:        headers,
		Cookies:        c.cookies(hop, resp.Header),
		ProblemReport:  report,
		Body:           body,
		Extensions:     extensions,
		closer:         &closeState{},
	}

	if status >= 400 {
		return &Error{Responded: responded}
	}
	return &OK{Responded: responded}
}

func (c *Classifier) contentType(resp *http.Response, logger *slog.Logger) MIMEType {
	raw := resp.Header.Get("Content-Type")
	if raw == "" {
		return MustParseMIME(MIMEOctetStream)
	}

	parse := c.ParseMIME
	if parse == nil {
		parse = ParseMIME
	}

	m, err := parse(raw)
	if err != nil {
		logger.Error("could not parse content type", "content_type", raw, "error", err)
		return MustParseMIME(MIMEOctetStream)
	}
	return m
}

// problemReport reads the report from body. When a report parses the body
// is consumed and suppressed; otherwise the buffered bytes stay readable.
func (c *Classifier) problemReport(body io.ReadCloser, logger *slog.Logger) (*ProblemReport, io.ReadCloser) {
	buf, err := io.ReadAll(io.LimitReader(body, maxProblemReportSize))
	if err != nil {
		logger.Warn("reading problem report", "error", err)
	}

	parser := c.Problems
	if parser == nil {
		parser = JSONProblemReports
	}

	report, err := parser.Parse(bytes.NewReader(buf))
	if err != nil || report == nil {
		if err != nil {
			logger.Debug("ignoring unparseable problem report", "error", err)
		}
		return nil, readCloser{Reader: io.MultiReader(bytes.NewReader(buf), body), Closer: body}
	}

	if err := body.Close(); err != nil {
		logger.Error("failed to close problem report body", "error", err)
	}
	return report, nil
}

func (c *Classifier) cookies(hop *url.URL, header http.Header) []Cookie {
	lines := header.Values("Set-Cookie")
	if len(lines) == 0 {
		return nil
	}

	now := time.Now
	if c.Now != nil {
		now = c.Now
	}

	cookies := make([]Cookie, 0, len(lines))
	for _, line := range lines {
		hc, err := http.ParseSetCookie(line)
		if err != nil {
			continue
		}
		cookies = append(cookies, cookieOf(hc, hop, now()))
	}
	return cookies
}

func (c *Classifier) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

func cookieOf(hc *http.Cookie, hop *url.URL, now time.Time) Cookie {
	var expires *time.Time
	switch {
	case hc.MaxAge > 0:
		t := now.Add(time.Duration(hc.MaxAge) * time.Second)
		expires = &t
	case hc.MaxAge < 0:
		t := time.Unix(0, 0).UTC()
		expires = &t
	case !hc.Expires.IsZero():
		t := hc.Expires.UTC()
		expires = &t
	}
	persistent := expires != nil
	if expires != nil && !expires.Before(neverExpires) {
		expires = nil
	}

	domain := strings.TrimPrefix(strings.ToLower(hc.Domain), ".")
	hostOnly := domain == ""
	if hostOnly && hop != nil {
		domain = hop.Hostname()
	}

	path := hc.Path
	if path == "" {
		path = defaultCookiePath(hop)
	}

	attrs := map[string]string{
		"domain":     domain,
		"path":       path,
		"hostOnly":   strconv.FormatBool(hostOnly),
		"persistent": strconv.FormatBool(persistent),
	}
	if name := sameSiteName(hc.SameSite); name != "" {
		attrs["sameSite"] = name
	}

	return Cookie{
		Name:       hc.Name,
		Value:      hc.Value,
		Secure:     hc.Secure,
		HTTPOnly:   hc.HttpOnly,
		ExpiresAt:  expires,
		Attributes: attrs,
	}
}

// defaultCookiePath implements RFC 6265 section 5.1.4.
func defaultCookiePath(hop *url.URL) string {
	if hop == nil {
		return "/"
	}
	p := hop.EscapedPath()
	if p == "" || p[0] != '/' {
		return "/"
	}
	i := strings.LastIndex(p, "/")
	if i == 0 {
		return "/"
	}
	return p[:i]
}

func sameSiteName(s http.SameSite) string {
	switch s {
	case http.SameSiteLaxMode:
		return "Lax"
	case http.SameSiteStrictMode:
		return "Strict"
	case http.SameSiteNoneMode:
		return "None"
	default:
		return ""
	}
}

// statusMessage strips the numeric code from resp.Status.
func statusMessage(resp *http.Response) string {
	if resp.Status == "" {
		return http.StatusText(resp.StatusCode)
	}
	if _, msg, ok := strings.Cut(resp.Status, " "); ok {
		return msg
	}
	return resp.Status
}

type readCloser struct {
	io.Reader
	io.Closer
}
