package httpauth

import (
	"context"
	"hash"

	"github.com/adamwoolhether/httpauth/client"
	"github.com/adamwoolhether/httpauth/client/download"
)

// ————————————————————————————————————————————————————————————————————
// Type aliases – re-export user-facing types from [download].
// ————————————————————————————————————————————————————————————————————

type (
	// DownloadOption configures a transfer.
	DownloadOption = download.Option

	// DownloadState is one event in the life of a transfer.
	DownloadState = download.State

	// DownloadTerminal is the final state of a transfer.
	DownloadTerminal = download.Terminal

	// DownloadError wraps a sentinel error with additional detail.
	DownloadError = download.Error

	// DownloadResult represents an in-flight or completed async download.
	DownloadResult = download.Result
)

// ————————————————————————————————————————————————————————————————————
// Sentinel errors
// ————————————————————————————————————————————————————————————————————

var (
	// ErrChecksumMismatch indicates the file checksum did not match the expected value.
	ErrChecksumMismatch = download.ErrChecksumMismatch

	// ErrDownloadCancelled indicates the download was cancelled.
	ErrDownloadCancelled = download.ErrCancelled

	// ErrQueueShutdown indicates the download queue was shut down.
	ErrQueueShutdown = download.ErrQueueShutdown
)

// ————————————————————————————————————————————————————————————————————
// Download forwarding functions
// ————————————————————————————————————————————————————————————————————

// Download writes the body of the resource described by props to destPath
// and returns the terminal state of the transfer.
func Download(ctx context.Context, c client.Executor, props client.RequestProperties, destPath string, opts ...DownloadOption) (DownloadTerminal, error) {
	return download.Execute(ctx, c, props, destPath, opts...)
}

// DownloadAsync starts the transfer in the background.
func DownloadAsync(ctx context.Context, c client.Executor, props client.RequestProperties, destPath string, opts ...DownloadOption) (*DownloadResult, error) {
	return download.Async(ctx, c, props, destPath, opts...)
}

// WithContentTypes restricts accepted responses to the given media types.
func WithContentTypes(types ...string) DownloadOption { return download.WithContentTypes(types...) }

// WithCancel installs a flag polled before the request and each chunk.
func WithCancel(cancelled func() bool) DownloadOption { return download.WithCancel(cancelled) }

// WithObserver receives every state of the transfer.
func WithObserver(fn func(DownloadState)) DownloadOption { return download.WithObserver(fn) }

// WithChecksum enables checksum validation of the downloaded file.
// h is a [hash.Hash] instance (e.g. sha256.New()), and expected is the
// hex-encoded expected checksum string.
func WithChecksum(h hash.Hash, expected string) DownloadOption {
	return download.WithChecksum(h, expected)
}

// WithProgress enables periodic download progress logging.
func WithProgress() DownloadOption { return download.WithProgress() }

// WithBatch activates batch mode by creating a download queue with the given
// concurrency limit. maxConcurrent must be positive; otherwise the download
// is rejected with an error.
func WithBatch(maxConcurrent int) DownloadOption { return download.WithBatch(maxConcurrent) }
