package client

import (
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// ResponseStatus is the classified outcome of a call. It is exactly one of
// *OK, *Error or *Failed. The caller owns it and must Close it to release
// the body.
type ResponseStatus interface {
	io.Closer
	responseStatus()
}

// ProblemReport is an RFC 7807 style error document. A non-nil Status
// overrides the HTTP status code of the response carrying it.
type ProblemReport struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
	Status *int   `json:"status,omitempty"`
}

// Cookie is a cookie received in a Set-Cookie header. A nil ExpiresAt
// means the cookie does not expire.
type Cookie struct {
	Name       string
	Value      string
	Secure     bool
	HTTPOnly   bool
	ExpiresAt  *time.Time
	Attributes map[string]string
}

// Responded holds what the server sent back. Status is the effective
// status and differs from OriginalStatus only when a problem report
// overrides it.
type Responded struct {
	Status         int
	OriginalStatus int
	Message        string
	ContentType    MIMEType
	ContentLength  int64
	Headers        http.Header
	Cookies        []Cookie
	ProblemReport  *ProblemReport
	Body           io.ReadCloser
	Extensions     map[string]string

	closer *closeState
}

// closeState is shared by every copy of a Responded so the body is
// released once.
type closeState struct {
	once sync.Once
	err  error
}

// Close releases the body. It is safe to call more than once on a
// Responded built by a [Classifier].
func (r *Responded) Close() error {
	if r.closer == nil {
		if r.Body == nil {
			return nil
		}
		return r.Body.Close()
	}

	r.closer.once.Do(func() {
		if r.Body != nil {
			r.closer.err = r.Body.Close()
		}
	})
	return r.closer.err
}

// OK is a response with an effective status below 400.
type OK struct {
	Responded
}

// Error is a response with an effective status of 400 or above.
type Error struct {
	Responded
}

func (e *Error) Error() string {
	if e.ProblemReport != nil && e.ProblemReport.Title != "" {
		return fmt.Sprintf("%v: %d: %s", ErrServer, e.Status, e.ProblemReport.Title)
	}
	return fmt.Sprintf("%v: %d %s", ErrServer, e.Status, e.Message)
}

func (e *Error) Unwrap() error {
	return ErrServer
}

// Failed means no response was obtained.
type Failed struct {
	Err error
}

func (f *Failed) Close() error { return nil }

func (f *Failed) Error() string {
	return fmt.Sprintf("%v: %v", ErrTransport, f.Err)
}

func (f *Failed) Unwrap() []error {
	return []error{ErrTransport, f.Err}
}

func (*OK) responseStatus()     {}
func (*Error) responseStatus()  {}
func (*Failed) responseStatus() {}
