package session

import (
	"sync"

	"github.com/gback-app/coach-engine/internal/llm"
)

// uplink forwards encoded capture frames to the live session in capture
// order. Frames that arrive before the session handle is attached and the
// transport has confirmed the open are held back and flushed first.
type uplink struct {
	mu      sync.Mutex
	cond    *sync.Cond
	pending [][]byte
	session llm.LiveSession
	open    bool
	closed  bool
	sent    int
}

func newUplink() *uplink {
	u := &uplink{}
	u.cond = sync.NewCond(&u.mu)
	return u
}

func (u *uplink) push(chunk []byte) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.closed {
		return
	}
	u.pending = append(u.pending, chunk)
	u.cond.Signal()
}

func (u *uplink) attach(s llm.LiveSession) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.session = s
	u.cond.Broadcast()
}

func (u *uplink) markOpen() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.open = true
	u.cond.Broadcast()
}

// close drops anything still pending and stops run.
func (u *uplink) close() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.closed = true
	u.pending = nil
	u.cond.Broadcast()
}

func (u *uplink) queued() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.pending)
}

func (u *uplink) sentCount() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.sent
}

// run sends until close is called or a send fails. onErr receives the first
// send failure.
func (u *uplink) run(onErr func(error)) {
	for {
		u.mu.Lock()
		for !u.closed && (u.session == nil || !u.open || len(u.pending) == 0) {
			u.cond.Wait()
		}
		if u.closed {
			u.mu.Unlock()
			return
		}
		batch := u.pending
		u.pending = nil
		s := u.session
		u.mu.Unlock()

		for _, chunk := range batch {
			if err := s.SendAudio(chunk); err != nil {
				onErr(err)
				return
			}
			u.mu.Lock()
			u.sent++
			stop := u.closed
			u.mu.Unlock()
			if stop {
				return
			}
		}
	}
}
