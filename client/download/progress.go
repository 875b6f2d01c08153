package download

import (
	"fmt"
	"log/slog"
	"time"
)

// sampleWindow is how often throughput is measured and reported.
const sampleWindow = time.Second

// throughput measures bytes per second over consecutive windows.
type throughput struct {
	now         func() time.Time
	windowStart time.Time
	windowBytes int64
	rate        int64
}

func newThroughput(now func() time.Time) *throughput {
	return &throughput{now: now, windowStart: now()}
}

// add records n bytes and reports whether a window just closed, in which
// case rate holds the bytes per second of that window.
func (t *throughput) add(n int) bool {
	t.windowBytes += int64(n)

	now := t.now()
	elapsed := now.Sub(t.windowStart)
	if elapsed < sampleWindow {
		return false
	}

	t.rate = int64(float64(t.windowBytes) / elapsed.Seconds())
	t.windowBytes = 0
	t.windowStart = now
	return true
}

// logProgress logs a Receiving state the way a progress bar would show it.
func logProgress(logger *slog.Logger, started time.Time, now time.Time, r Receiving) {
	percent := "?"
	if r.ExpectedSize > 0 {
		percent = fmt.Sprintf("%.1f%%", float64(r.ReceivedSize)/float64(r.ExpectedSize)*100)
	}

	logger.Info("downloading",
		"progress", percent,
		"elapsed", now.Sub(started).Round(time.Millisecond),
		"transferred", r.ReceivedSize,
		"total", r.ExpectedSize,
		"mbps", fmt.Sprintf("%.2f", float64(r.BytesPerSecond)/(1024*1024)),
	)
}
