package client_test

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/adamwoolhether/httpauth/client"
)

func rawResponse(t *testing.T, status int, contentType, body string) *http.Response {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet, "http://example.com/books/1", nil)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}

	header := http.Header{}
	if contentType != "" {
		header.Set("Content-Type", contentType)
	}
	return respond(req, status, header, body)
}

func readBody(t *testing.T, r client.Responded) string {
	t.Helper()

	if r.Body == nil {
		return ""
	}
	b, err := io.ReadAll(r.Body)
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}
	return string(b)
}

func responded(t *testing.T, status client.ResponseStatus) client.Responded {
	t.Helper()

	switch s := status.(type) {
	case *client.OK:
		return s.Responded
	case *client.Error:
		return s.Responded
	default:
		t.Fatalf("expected a response, got %T", status)
		return client.Responded{}
	}
}

func TestClassifier_Classify(t *testing.T) {
	testCases := map[string]struct {
		status         int
		contentType    string
		body           string
		expError       bool
		expStatus      int
		expContentType string
		expBody        string
		expReport      bool
	}{
		"ok": {
			status:         http.StatusOK,
			contentType:    "text/plain; charset=utf-8",
			body:           "hello",
			expStatus:      http.StatusOK,
			expContentType: "text/plain",
			expBody:        "hello",
		},
		"not found": {
			status:         http.StatusNotFound,
			contentType:    "text/plain",
			body:           "missing",
			expError:       true,
			expStatus:      http.StatusNotFound,
			expContentType: "text/plain",
			expBody:        "missing",
		},
		"missing content type": {
			status:         http.StatusOK,
			expStatus:      http.StatusOK,
			expContentType: client.MIMEOctetStream,
		},
		"bad content type": {
			status:         http.StatusOK,
			contentType:    "what even is this",
			expStatus:      http.StatusOK,
			expContentType: client.MIMEOctetStream,
		},
		"report overrides to error": {
			status:         http.StatusOK,
			contentType:    client.MIMEProblemReport,
			body:           `{"type":"about:blank","title":"Loan limit","detail":"Too many loans","status":403}`,
			expError:       true,
			expStatus:      http.StatusForbidden,
			expContentType: client.MIMEProblemReport,
			expReport:      true,
		},
		"report overrides to ok": {
			status:         http.StatusInternalServerError,
			contentType:    client.MIMEProblemReport,
			body:           `{"type":"about:blank","title":"Fine","status":200}`,
			expStatus:      http.StatusOK,
			expContentType: client.MIMEProblemReport,
			expReport:      true,
		},
		"report without status": {
			status:         http.StatusBadRequest,
			contentType:    client.MIMEProblemReport,
			body:           `{"type":"about:blank","title":"Bad"}`,
			expError:       true,
			expStatus:      http.StatusBadRequest,
			expContentType: client.MIMEProblemReport,
			expReport:      true,
		},
		"malformed report is ignored": {
			status:         http.StatusOK,
			contentType:    client.MIMEProblemReport,
			body:           `{"type":`,
			expStatus:      http.StatusOK,
			expContentType: client.MIMEProblemReport,
			expBody:        `{"type":`,
		},
		"empty report is ignored": {
			status:         http.StatusOK,
			contentType:    client.MIMEProblemReport,
			expStatus:      http.StatusOK,
			expContentType: client.MIMEProblemReport,
		},
	}

	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			var classifier client.Classifier
			status := classifier.Classify(rawResponse(t, tc.status, tc.contentType, tc.body))
			defer status.Close()

			_, isError := status.(*client.Error)
			if isError != tc.expError {
				t.Fatalf("expected error classification %v, got %T", tc.expError, status)
			}

			r := responded(t, status)
			if r.Status != tc.expStatus {
				t.Errorf("expected status %d, got %d", tc.expStatus, r.Status)
			}
			if r.OriginalStatus != tc.status {
				t.Errorf("expected original status %d, got %d", tc.status, r.OriginalStatus)
			}
			if got := r.ContentType.FullType(); got != tc.expContentType {
				t.Errorf("expected content type %q, got %q", tc.expContentType, got)
			}
			if (r.ProblemReport != nil) != tc.expReport {
				t.Errorf("expected problem report %v, got %+v", tc.expReport, r.ProblemReport)
			}
			if tc.expReport && r.Body != nil {
				t.Error("body must be suppressed once a problem report parsed")
			}
			if tc.expReport && r.ContentLength != 0 {
				t.Errorf("expected no content length once the body is suppressed, got %d", r.ContentLength)
			}
			if got := readBody(t, r); got != tc.expBody {
				t.Errorf("expected body %q, got %q", tc.expBody, got)
			}
		})
	}
}

func TestClassifier_Deterministic(t *testing.T) {
	raw := func() *http.Response {
		resp := rawResponse(t, http.StatusOK, client.MIMEProblemReport, `{"title":"Gone","status":410}`)
		resp.Header.Add("Set-Cookie", "session=abc; Path=/; HttpOnly")
		resp.Header.Set("X-Trace", "1")
		return resp
	}

	now := time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)
	classifier := client.Classifier{Now: func() time.Time { return now }}

	first := classifier.Classify(raw())
	defer first.Close()
	second := classifier.Classify(raw())
	defer second.Close()

	opts := cmp.Options{
		cmpopts.IgnoreUnexported(client.Responded{}),
		cmpopts.IgnoreFields(client.Responded{}, "Body"),
	}
	if diff := cmp.Diff(first, second, opts); diff != "" {
		t.Errorf("classification is not deterministic (-first +second):\n%s", diff)
	}

	if _, ok := first.(*client.Error); !ok {
		t.Fatalf("expected *client.Error, got %T", first)
	}
}

func TestClassifier_Cookies(t *testing.T) {
	now := time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)
	classifier := client.Classifier{Now: func() time.Time { return now }}

	resp := rawResponse(t, http.StatusUnauthorized, "text/plain", "")
	resp.Header.Add("Set-Cookie", "forever=1; Expires=Fri, 31 Dec 9999 23:59:59 GMT; Secure")
	resp.Header.Add("Set-Cookie", "short=2; Max-Age=60; Domain=.Example.com; Path=/books; SameSite=Lax")
	resp.Header.Add("Set-Cookie", "session=3; HttpOnly")

	status := classifier.Classify(resp)
	defer status.Close()

	// Cookies are kept regardless of classification.
	r := responded(t, status)

	expires := now.Add(time.Minute)
	exp := []client.Cookie{
		{
			Name:   "forever",
			Value:  "1",
			Secure: true,
			Attributes: map[string]string{
				"domain":     "example.com",
				"path":       "/books",
				"hostOnly":   "true",
				"persistent": "true",
			},
		},
		{
			Name:      "short",
			Value:     "2",
			ExpiresAt: &expires,
			Attributes: map[string]string{
				"domain":     "example.com",
				"path":       "/books",
				"hostOnly":   "false",
				"persistent": "true",
				"sameSite":   "Lax",
			},
		},
		{
			Name:     "session",
			Value:    "3",
			HTTPOnly: true,
			Attributes: map[string]string{
				"domain":     "example.com",
				"path":       "/books",
				"hostOnly":   "true",
				"persistent": "false",
			},
		},
	}
	if diff := cmp.Diff(exp, r.Cookies); diff != "" {
		t.Errorf("cookies mismatch (-exp +got):\n%s", diff)
	}
}

func TestClassifier_AccessTokenExtension(t *testing.T) {
	resp := rawResponse(t, http.StatusOK, "text/plain", "")
	resp.Header[client.PropertyAccessToken] = []string{"abcd"}

	var classifier client.Classifier
	status := classifier.Classify(resp)
	defer status.Close()

	r := responded(t, status)
	if got := r.Extensions[client.PropertyAccessToken]; got != "abcd" {
		t.Errorf("expected access token extension, got %q", got)
	}
	if _, ok := r.Headers[client.PropertyAccessToken]; ok {
		t.Error("access token must not remain in the headers")
	}
}

func TestClassifier_CustomParsers(t *testing.T) {
	status := 418
	classifier := client.Classifier{
		ParseMIME: func(string) (client.MIMEType, error) {
			return client.MustParseMIME(client.MIMEProblemReport), nil
		},
		Problems: client.ProblemReportParserFunc(func(r io.Reader) (*client.ProblemReport, error) {
			return &client.ProblemReport{Title: "teapot", Status: &status}, nil
		}),
	}

	result := classifier.Classify(rawResponse(t, http.StatusOK, "anything", "ignored"))
	defer result.Close()

	e, ok := result.(*client.Error)
	if !ok {
		t.Fatalf("expected *client.Error, got %T", result)
	}
	if e.Status != 418 || e.ProblemReport.Title != "teapot" {
		t.Errorf("unexpected error %+v", e.Responded)
	}
	if !errors.Is(e, client.ErrServer) {
		t.Errorf("expected ErrServer, got %v", e)
	}
	if !strings.Contains(e.Error(), "teapot") {
		t.Errorf("expected title in error message, got %q", e.Error())
	}
}

func TestResponded_CloseTwice(t *testing.T) {
	var classifier client.Classifier
	status := classifier.Classify(rawResponse(t, http.StatusOK, "text/plain", "x"))

	if err := status.Close(); err != nil {
		t.Fatalf("first close: %v", err)
	}
	if err := status.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

// countingCloser counts calls to Close.
type countingCloser struct {
	io.Reader
	closes int
}

func (c *countingCloser) Close() error {
	c.closes++
	return nil
}

func TestResponded_CopiesCloseOnce(t *testing.T) {
	resp := rawResponse(t, http.StatusOK, "text/plain", "")
	body := &countingCloser{Reader: strings.NewReader("x")}
	resp.Body = body

	var classifier client.Classifier
	status := classifier.Classify(resp)

	cpy := responded(t, status)
	if err := cpy.Close(); err != nil {
		t.Fatalf("closing copy: %v", err)
	}
	if err := status.Close(); err != nil {
		t.Fatalf("closing status: %v", err)
	}

	if body.closes != 1 {
		t.Errorf("expected the body to be closed once, got %d", body.closes)
	}
}
