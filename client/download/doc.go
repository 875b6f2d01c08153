// Package download transfers classified HTTP responses to disk, reporting
// progress and honouring cancellation between chunks.
//
// # Transfers
//
// [Execute] issues a request through a [client.Executor] and, when the
// response is OK and its content type acceptable, writes the body to the
// destination in 64 KiB chunks:
//
//	final, err := download.Execute(ctx, c, props, "/tmp/book.epub",
//		download.WithContentTypes("application/epub+zip"),
//		download.WithObserver(func(s download.State) { ... }),
//	)
//
// The observer sees Started, then Receiving events at most once per
// second, then exactly one Terminal state. Cancellation, through the
// context or [WithCancel], is checked before the request and before each
// chunk and leaves the destination partially written.
//
// A body of unknown length is read into memory before the transfer so
// that progress can be reported against its size.
//
// # Async Downloads
//
// [Async] runs a transfer in the background. [WithBatch] bounds the
// number of concurrent transfers and [Result.Add] appends to the batch:
//
//	r, err := download.Async(ctx, c, props1, "/tmp/a.bin", download.WithBatch(4))
//	r.Add(props2, "/tmp/b.bin")
//	err = r.Wait() // blocks until all downloads finish
package download
