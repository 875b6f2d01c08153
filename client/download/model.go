package download

import (
	"errors"
	"fmt"

	"github.com/adamwoolhether/httpauth/client"
)

var (
	ErrChecksumMismatch = errors.New("checksum mismatch")
	ErrUnacceptableMIME = errors.New("unacceptable content type")
	ErrCancelled        = errors.New("download cancelled")
	ErrQueueShutdown    = errors.New("download queue shut down")
)

// Error carries detail about a failed verification.
type Error struct {
	Detail string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%v: %s", e.Err, e.Detail)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// InvariantError is the value panicked with when the destination does not
// hold exactly the bytes that were received. It is a broken contract, not
// a transfer failure.
type InvariantError struct {
	Path         string
	FileSize     int64
	ExpectedSize int64
	ReceivedSize int64
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("download %s: output size %d must match expected size %d and received size %d",
		e.Path, e.FileSize, e.ExpectedSize, e.ReceivedSize)
}

// State is one event in the life of a transfer: Started, Receiving or a
// Terminal state.
type State interface {
	state()
}

// Terminal is a State ending a transfer. Every state but
// CompletedSuccessfully is also an error. Responses carried by terminal
// states are already closed.
type Terminal interface {
	State
	terminal()
}

// Started is emitted first, before the request is made.
type Started struct{}

// Receiving reports progress. It is emitted once before the first chunk
// and then each time the throughput window rolls over.
type Receiving struct {
	ExpectedSize   int64
	ReceivedSize   int64
	BytesPerSecond int64
	AccessToken    string
}

// CompletedSuccessfully means the whole body is on disk.
type CompletedSuccessfully struct {
	ReceivedSize int64
	Response     *client.OK
}

// FailedUnacceptableMIME means the content type was rejected; nothing was
// written.
type FailedUnacceptableMIME struct {
	Response *client.OK
}

func (f FailedUnacceptableMIME) Error() string {
	return fmt.Sprintf("%v: %s", ErrUnacceptableMIME, f.Response.ContentType.FullType())
}

func (f FailedUnacceptableMIME) Unwrap() error { return ErrUnacceptableMIME }

// FailedServer means the server answered with an error status.
type FailedServer struct {
	Response *client.Error
}

func (f FailedServer) Error() string { return f.Response.Error() }

func (f FailedServer) Unwrap() error { return f.Response }

// FailedExceptionally means no usable response was obtained or the
// transfer itself failed. Failure is set when the request failed.
type FailedExceptionally struct {
	Failure *client.Failed
	Err     error
}

func (f FailedExceptionally) Error() string { return fmt.Sprintf("download failed: %v", f.Err) }

func (f FailedExceptionally) Unwrap() error { return f.Err }

// Cancelled means cancellation was observed. Cause is the context error,
// if the context was the source.
type Cancelled struct {
	Cause error
}

func (c Cancelled) Error() string {
	if c.Cause != nil {
		return fmt.Sprintf("%v: %v", ErrCancelled, c.Cause)
	}
	return ErrCancelled.Error()
}

func (c Cancelled) Unwrap() []error {
	if c.Cause != nil {
		return []error{ErrCancelled, c.Cause}
	}
	return []error{ErrCancelled}
}

func (Started) state()                {}
func (Receiving) state()              {}
func (CompletedSuccessfully) state()  {}
func (FailedUnacceptableMIME) state() {}
func (FailedServer) state()           {}
func (FailedExceptionally) state()    {}
func (Cancelled) state()              {}

func (CompletedSuccessfully) terminal()  {}
func (FailedUnacceptableMIME) terminal() {}
func (FailedServer) terminal()           {}
func (FailedExceptionally) terminal()    {}
func (Cancelled) terminal()              {}

// Err returns the error of a terminal state, nil on success.
func Err(t Terminal) error {
	if err, ok := t.(error); ok {
		return err
	}
	return nil
}
