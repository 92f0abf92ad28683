package session

import (
	"sync"
	"time"
)

// watchdog fires once if it is not disarmed within the timeout. It guards
// the connecting state against a transport that never confirms the session.
type watchdog struct {
	mu    sync.Mutex
	timer *time.Timer
	gen   uint64
}

func (w *watchdog) Arm(timeout time.Duration, onExpire func()) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.gen++
	gen := w.gen

	w.timer = time.AfterFunc(timeout, func() {
		w.mu.Lock()
		if w.gen != gen {
			w.mu.Unlock()
			return
		}
		w.timer = nil
		w.mu.Unlock()

		onExpire()
	})
}

func (w *watchdog) Disarm() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.gen++
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}
