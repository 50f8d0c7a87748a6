package httpx

import (
	"context"
	"sync"
	"time"

	"github.com/drewfallon/vigil/internal/common"
)

// slidingWindow counts requests within the trailing window and blocks when
// the count reaches maxRequests. Unlike a token bucket it never lends burst
// capacity beyond what the window has actually freed.
type slidingWindow struct {
	mu     sync.Mutex
	max    int
	window time.Duration
	stamps []time.Time // admission times, oldest first
}

func newSlidingWindow(max int, window time.Duration) *slidingWindow {
	return &slidingWindow{max: max, window: window}
}

// Wait blocks until a slot is free or ctx is cancelled, then records the
// admission.
func (w *slidingWindow) Wait(ctx context.Context, clock common.Clock) error {
	for {
		w.mu.Lock()
		now := clock.Now()
		w.evict(now)
		if len(w.stamps) < w.max {
			w.stamps = append(w.stamps, now)
			w.mu.Unlock()
			return nil
		}
		// Oldest admission leaving the window frees the next slot.
		wait := w.stamps[0].Add(w.window).Sub(now)
		w.mu.Unlock()

		if err := clock.Sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// evict drops admissions that have left the window. Caller holds mu.
func (w *slidingWindow) evict(now time.Time) {
	cutoff := now.Add(-w.window)
	i := 0
	for i < len(w.stamps) && !w.stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		w.stamps = append(w.stamps[:0], w.stamps[i:]...)
	}
}
