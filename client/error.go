package client

import (
	"errors"
)

var (
	// ErrTransport is wrapped by [Failed] when no response was obtained.
	ErrTransport = errors.New("transport failure")
	// ErrServer is wrapped by [Error] when the effective status is 400 or above.
	ErrServer = errors.New("server error")
	// ErrTooManyRedirects is returned when a call exceeds the hop limit.
	ErrTooManyRedirects = errors.New("too many redirects")
	// ErrNoTarget is reported when properties carry no target URL.
	ErrNoTarget = errors.New("request has no target")
	// ErrModifier wraps failures of a caller supplied request modifier.
	ErrModifier = errors.New("request modifier failed")
)
