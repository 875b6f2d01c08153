package client

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/http/httptrace"
	"net/url"
	"sync/atomic"
	"time"
)

// callIDs numbers calls for the lifetime of the process. The ids only
// correlate log lines and spans.
var callIDs atomic.Uint64

func (c *Client) newCall() *Call {
	id := callIDs.Add(1)
	return &Call{
		ID:        id,
		Logger:    c.logger.With("call", fmt.Sprintf("0x%x", id)),
		ParseMIME: c.classifier.ParseMIME,
	}
}

// shortURLLen bounds the URL length in hop timing events.
const shortURLLen = 32

func shortURL(u *url.URL) string {
	s := u.Redacted()
	if len(s) > shortURLLen {
		return s[:shortURLLen-1] + "…"
	}
	return s
}

// hopTiming attaches a client trace logging connection level events of one
// hop, relative to the start of the hop. It is a no-op unless debug
// logging is enabled.
func (c *Client) hopTiming(ctx context.Context, call *Call, target *url.URL) context.Context {
	if !call.Logger.Enabled(ctx, slog.LevelDebug) {
		return ctx
	}

	start := time.Now()
	location := shortURL(target)

	event := func(name string, err error) {
		attrs := []any{"event", name, "url", location, "elapsed_ms", time.Since(start).Milliseconds()}
		if err != nil {
			attrs = append(attrs, "error", err)
		}
		call.Logger.Debug("hop event", attrs...)
	}

	return httptrace.WithClientTrace(ctx, &httptrace.ClientTrace{
		GetConn: func(string) { event("getConn", nil) },
		GotConn: func(info httptrace.GotConnInfo) {
			if info.Reused {
				event("connectionReused", nil)
				return
			}
			event("connectionAcquired", nil)
		},
		DNSStart:          func(httptrace.DNSStartInfo) { event("dnsStart", nil) },
		DNSDone:           func(info httptrace.DNSDoneInfo) { event("dnsEnd", info.Err) },
		ConnectStart:      func(string, string) { event("connectStart", nil) },
		ConnectDone:       func(_, _ string, err error) { event("connectEnd", err) },
		TLSHandshakeStart: func() { event("secureConnectStart", nil) },
		TLSHandshakeDone: func(_ tls.ConnectionState, err error) {
			event("secureConnectEnd", err)
		},
		WroteHeaders:         func() { event("requestHeadersEnd", nil) },
		WroteRequest:         func(info httptrace.WroteRequestInfo) { event("requestEnd", info.Err) },
		GotFirstResponseByte: func() { event("responseHeadersStart", nil) },
	})
}
