package usecase

import (
	"sync/atomic"
	"time"
)

// idleWatchdog closes a hung stream: when no payload arrives within the
// window, onIdle fires (closing the body), which surfaces in the read loop
// as an error that expired() disambiguates from a genuine transport failure.
type idleWatchdog struct {
	window time.Duration
	timer  *time.Timer
	fired  atomic.Bool
}

func newIdleWatchdog(window time.Duration, onIdle func()) *idleWatchdog {
	w := &idleWatchdog{window: window}
	if window > 0 {
		w.timer = time.AfterFunc(window, func() {
			w.fired.Store(true)
			onIdle()
		})
	}
	return w
}

// reset restarts the window; call it on every decoded payload.
func (w *idleWatchdog) reset() {
	if w.timer != nil && !w.fired.Load() {
		w.timer.Reset(w.window)
	}
}

func (w *idleWatchdog) stop() {
	if w.timer != nil {
		w.timer.Stop()
	}
}

func (w *idleWatchdog) expired() bool {
	return w.fired.Load()
}
