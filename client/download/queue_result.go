package download

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/adamwoolhether/httpauth/client"
)

// Result represents an in-flight or completed async download.
type Result struct {
	adder  Adder
	done   chan struct{}
	state  Terminal
	err    error
	cancel context.CancelFunc
	group  *Queue
}

// Async starts [Execute] in the background. Use [WithBatch] to bound how
// many transfers of the batch run at once, and [Result.Add] to grow it.
func Async(ctx context.Context, exec client.Executor, props client.RequestProperties, destPath string, optFns ...Option) (*Result, error) {
	if destPath == "" {
		return nil, errors.New("destination path must not be empty")
	}

	opts, err := apply(optFns)
	if err != nil {
		return nil, fmt.Errorf("applying option: %w", err)
	}

	q := opts.queue
	if q == nil {
		q = NewQueue(opts.batch)
	}

	adder := func(props client.RequestProperties, destPath string, optFns ...Option) (*Result, error) {
		return Async(ctx, exec, props, destPath, optFns...)
	}

	return q.Start(ctx, func(ctx context.Context) Terminal {
		return newTransfer(destPath, opts).run(ctx, exec, props)
	}, adder), nil
}

// Add another download to the same batch.
// It calls the injected Adder and reuses the existing Queue.
// WithBatch cannot be used with this method.
//
// Validation errors (empty destPath, conflicting options) are recorded
// in the queue so that [Result.Wait] returns them; the caller does not
// need to check each Add individually.
func (r *Result) Add(props client.RequestProperties, destPath string, optFns ...Option) *Result {
	result, err := r.adder(props, destPath, slices.Concat([]Option{withQueue(r.group)}, optFns)...)
	if err != nil {
		done := make(chan struct{})
		close(done)
		r.group.recordErr(err)
		return &Result{
			adder:  r.adder,
			done:   done,
			err:    err,
			cancel: func() {},
			group:  r.group,
		}
	}
	return result
}

// Done returns a channel that is closed when the specific download completes.
func (r *Result) Done() <-chan struct{} { return r.done }

// State blocks until this download completes and returns its terminal
// state. It is nil when the download could not be started.
func (r *Result) State() Terminal {
	<-r.done
	return r.state
}

// Err blocks until this download completes and returns its error.
func (r *Result) Err() error {
	<-r.done
	return r.err
}

// Wait blocks until all downloads in the group complete.
// Returns all errors joined.
func (r *Result) Wait() error {
	return r.group.Wait()
}

// Cancel cancels this download's context.
func (r *Result) Cancel() {
	r.cancel()
}

func (r *Result) finish(t Terminal) {
	r.state = t
	if t != nil {
		r.err = Err(t)
	}
	if r.err != nil {
		r.group.recordErr(r.err)
	}
}

// recordErr appends err to the group's error slice under the mutex.
func (g *Queue) recordErr(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.errs = append(g.errs, err)
}
