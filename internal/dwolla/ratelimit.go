package dwolla

import (
	"context"
	"sync"
	"time"
)

// rateLimitWindow coordinates a single shared cooldown across all in-flight
// calls. The first 429 arms the window; every other call observing it awaits
// the same reset instead of issuing its own request. At most one window is
// active at a time.
type rateLimitWindow struct {
	done    chan struct{}
	resetAt time.Time
	mu      sync.Mutex
}

// wait blocks until any active window elapses. Returns immediately when no
// window is armed.
func (w *rateLimitWindow) wait(ctx context.Context) error {
	w.mu.Lock()
	ch := w.done
	w.mu.Unlock()

	if ch == nil {
		return nil
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-ch:
		return nil
	}
}

// arm starts a cooldown ending at resetAt, or joins the one already active,
// then waits for it. Only the goroutine that armed the window clears it.
func (w *rateLimitWindow) arm(ctx context.Context, resetAt time.Time) error {
	w.mu.Lock()
	ch := w.done
	if ch == nil {
		ch = make(chan struct{})
		w.done = ch
		w.resetAt = resetAt

		wait := time.Until(resetAt)
		if wait < 0 {
			wait = 0
		}
		time.AfterFunc(wait, func() {
			w.mu.Lock()
			if w.done == ch {
				w.done = nil
			}
			w.mu.Unlock()
			close(ch)
		})
	}
	w.mu.Unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-ch:
		return nil
	}
}

// active reports whether a cooldown is currently in progress.
func (w *rateLimitWindow) active() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.done != nil
}
