package download

import (
	"errors"
	"hash"
	"log/slog"
	"strings"
	"time"

	"github.com/adamwoolhether/httpauth/client"
)

// Option defines optional settings for a transfer.
type Option func(*options) error

type options struct {
	acceptMIME func(client.MIMEType) bool
	cancel     func() bool
	observer   func(State)
	checksum   *checksumVerifier
	progress   bool
	now        func() time.Time
	logger     *slog.Logger
	batch      int
	queue      *Queue
}

func apply(optFns []Option) (options, error) {
	opts := options{
		acceptMIME: func(client.MIMEType) bool { return true },
		cancel:     func() bool { return false },
		observer:   func(State) {},
		now:        time.Now,
		logger:     slog.Default(),
	}

	for _, opt := range optFns {
		if err := opt(&opts); err != nil {
			return options{}, err
		}
	}

	if opts.batch > 0 && opts.queue != nil {
		return options{}, errors.New("WithBatch cannot be used when adding to an existing batch")
	}

	return opts, nil
}

// WithAcceptMIME sets the predicate deciding whether a response's content
// type may be written. All types are accepted by default.
func WithAcceptMIME(accept func(client.MIMEType) bool) Option {
	return func(opts *options) error {
		if accept == nil {
			return errors.New("mime predicate must not be nil")
		}
		opts.acceptMIME = accept
		return nil
	}
}

// WithContentTypes accepts only the given "type/subtype" values.
func WithContentTypes(types ...string) Option {
	return func(opts *options) error {
		if len(types) == 0 {
			return errors.New("at least one content type is required")
		}
		opts.acceptMIME = func(m client.MIMEType) bool {
			for _, typ := range types {
				if strings.EqualFold(typ, m.FullType()) {
					return true
				}
			}
			return false
		}
		return nil
	}
}

// WithCancel sets a flag polled before the request and before each chunk.
// The transfer stops with Cancelled once it reports true.
func WithCancel(cancelled func() bool) Option {
	return func(opts *options) error {
		if cancelled == nil {
			return errors.New("cancel flag must not be nil")
		}
		opts.cancel = cancelled
		return nil
	}
}

// WithObserver receives every state in order. Exactly one Terminal state
// is delivered, last.
func WithObserver(fn func(State)) Option {
	return func(opts *options) error {
		if fn == nil {
			return errors.New("observer must not be nil")
		}
		opts.observer = fn
		return nil
	}
}

// WithChecksum enables checksum validation of the downloaded file.
// h is a hash.Hash instance (e.g. sha256.New()), and expected is the
// hex-encoded expected checksum string.
func WithChecksum(h hash.Hash, expected string) Option {
	return func(opts *options) error {
		if h == nil {
			return errors.New("hash must not be nil")
		}

		if expected == "" {
			return errors.New("expected checksum must not be empty")
		}

		opts.checksum = &checksumVerifier{hash: h, expected: expected}
		return nil
	}
}

// WithProgress logs every Receiving state.
func WithProgress() Option {
	return func(opts *options) error {
		opts.progress = true
		return nil
	}
}

// WithClock replaces the clock used to measure throughput.
func WithClock(now func() time.Time) Option {
	return func(opts *options) error {
		if now == nil {
			return errors.New("clock must not be nil")
		}
		opts.now = now
		return nil
	}
}

// WithLogger sets the logger of the transfer.
func WithLogger(logger *slog.Logger) Option {
	return func(opts *options) error {
		if logger == nil {
			return errors.New("logger must not be nil")
		}
		opts.logger = logger
		return nil
	}
}

// WithBatch limits how many transfers started by [Async] and
// [Result.Add] run at once.
func WithBatch(maxConcurrent int) Option {
	return func(opts *options) error {
		if maxConcurrent <= 0 {
			return errors.New("batch size must be positive")
		}
		opts.batch = maxConcurrent
		return nil
	}
}

func withQueue(q *Queue) Option {
	return func(opts *options) error {
		opts.queue = q
		return nil
	}
}
