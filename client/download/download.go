package download

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/google/uuid"

	"github.com/adamwoolhether/httpauth/client"
)

// chunkSize is the size of each read from the response body.
const chunkSize = 64 << 10

// sink is the destination of a transfer.
type sink interface {
	io.Writer
	Flush() error
	Size() (int64, error)
}

type fileSink struct {
	f *os.File
}

func (s fileSink) Write(p []byte) (int, error) { return s.f.Write(p) }

func (s fileSink) Flush() error { return s.f.Sync() }

func (s fileSink) Size() (int64, error) {
	info, err := s.f.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

type transfer struct {
	path    string
	opts    options
	logger  *slog.Logger
	started time.Time
}

func newTransfer(path string, opts options) *transfer {
	return &transfer{
		path:    path,
		opts:    opts,
		logger:  opts.logger.With("transfer", uuid.NewString(), "path", path),
		started: opts.now(),
	}
}

// Execute runs props through exec and writes the body of an OK response
// to destPath. Every state is passed to the observer set with
// [WithObserver]; the terminal state is also returned. The error is
// non-nil only for invalid arguments, in which case nothing happens.
func Execute(ctx context.Context, exec client.Executor, props client.RequestProperties, destPath string, optFns ...Option) (Terminal, error) {
	if destPath == "" {
		return nil, errors.New("destination path must not be empty")
	}

	opts, err := apply(optFns)
	if err != nil {
		return nil, fmt.Errorf("applying option: %w", err)
	}

	return newTransfer(destPath, opts).run(ctx, exec, props), nil
}

func (t *transfer) run(ctx context.Context, exec client.Executor, props client.RequestProperties) Terminal {
	t.emit(Started{})

	if cancelled, ok := t.cancelled(ctx); ok {
		return t.finish(cancelled)
	}

	status := exec.Execute(ctx, props)
	defer status.Close()

	switch s := status.(type) {
	case *client.OK:
		return t.receive(ctx, s)
	case *client.Error:
		return t.finish(FailedServer{Response: s})
	case *client.Failed:
		if cancelled, ok := t.cancelled(ctx); ok {
			return t.finish(cancelled)
		}
		return t.finish(FailedExceptionally{Failure: s, Err: s.Err})
	default:
		panic(fmt.Sprintf("unexpected response status %T", status))
	}
}

func (t *transfer) receive(ctx context.Context, s *client.OK) Terminal {
	if !t.opts.acceptMIME(s.ContentType) {
		t.logger.Warn("rejecting content type", "content_type", s.ContentType.FullType())
		return t.finish(FailedUnacceptableMIME{Response: s})
	}
	if cancelled, ok := t.cancelled(ctx); ok {
		return t.finish(cancelled)
	}

	var body io.Reader = http.NoBody
	expected := s.ContentLength
	if s.Body != nil {
		body = s.Body
	} else {
		expected = 0
	}

	inferred := expected < 0
	if inferred {
		buf, err := io.ReadAll(body)
		if err != nil {
			return t.failed(ctx, fmt.Errorf("buffering body: %w", err))
		}
		t.logger.Debug("buffered body of unknown length", "size", len(buf))
		expected = int64(len(buf))
		body = bytes.NewReader(buf)
	}

	file, err := os.Create(t.path)
	if err != nil {
		return t.failed(ctx, fmt.Errorf("creating destination: %w", err))
	}
	defer func() {
		if err := file.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
			t.logger.Error("closing destination", "error", err)
		}
	}()

	return t.copy(ctx, s, body, fileSink{f: file}, expected, inferred)
}

// copy moves body into dst chunk by chunk. expected must be known.
func (t *transfer) copy(ctx context.Context, s *client.OK, body io.Reader, dst sink, expected int64, inferred bool) Terminal {
	token := s.Extensions[client.PropertyAccessToken]

	var w io.Writer = dst
	if t.opts.checksum != nil {
		w = io.MultiWriter(dst, t.opts.checksum)
	}

	rate := newThroughput(t.opts.now)
	t.progress(Receiving{ExpectedSize: expected, AccessToken: token})

	buf := make([]byte, chunkSize)
	var received int64
	for {
		if cancelled, ok := t.cancelled(ctx); ok {
			return t.finish(cancelled)
		}

		n, rerr := body.Read(buf)
		if n > 0 {
			if _, err := w.Write(buf[:n]); err != nil {
				return t.failed(ctx, fmt.Errorf("writing destination: %w", err))
			}
			received += int64(n)

			if rate.add(n) {
				t.progress(Receiving{
					ExpectedSize:   expected,
					ReceivedSize:   received,
					BytesPerSecond: rate.rate,
					AccessToken:    token,
				})
			}
			if inferred {
				runtime.Gosched()
			}
		}

		if errors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil {
			return t.failed(ctx, fmt.Errorf("reading body: %w", rerr))
		}
	}

	if err := dst.Flush(); err != nil {
		return t.failed(ctx, fmt.Errorf("flushing destination: %w", err))
	}

	size, err := dst.Size()
	if err != nil {
		return t.failed(ctx, fmt.Errorf("checking destination size: %w", err))
	}
	if (expected >= 0 && size != expected) || size != received {
		panic(&InvariantError{Path: t.path, FileSize: size, ExpectedSize: expected, ReceivedSize: received})
	}

	if err := t.opts.checksum.Verify(); err != nil {
		return t.finish(FailedExceptionally{Err: err})
	}

	return t.finish(CompletedSuccessfully{ReceivedSize: received, Response: s})
}

// cancelled polls the cancellation sources.
func (t *transfer) cancelled(ctx context.Context) (Cancelled, bool) {
	if err := ctx.Err(); err != nil {
		return Cancelled{Cause: err}, true
	}
	if t.opts.cancel() {
		return Cancelled{}, true
	}
	return Cancelled{}, false
}

// failed reports err, unless cancellation was requested meanwhile.
func (t *transfer) failed(ctx context.Context, err error) Terminal {
	if cancelled, ok := t.cancelled(ctx); ok {
		return t.finish(cancelled)
	}
	return t.finish(FailedExceptionally{Err: err})
}

func (t *transfer) progress(r Receiving) {
	if t.opts.progress {
		logProgress(t.logger, t.started, t.opts.now(), r)
	}
	t.emit(r)
}

func (t *transfer) emit(s State) {
	t.opts.observer(s)
}

func (t *transfer) finish(s Terminal) Terminal {
	switch s := s.(type) {
	case CompletedSuccessfully:
		t.logger.Info("download complete", "size", s.ReceivedSize, "elapsed", t.opts.now().Sub(t.started).Round(time.Millisecond))
	case Cancelled:
		t.logger.Info("download cancelled")
	default:
		t.logger.Error("download failed", "error", Err(s))
	}

	t.emit(s)
	return s
}
