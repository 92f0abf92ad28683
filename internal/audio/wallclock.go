package audio

import (
	"sync"
	"time"
)

// WallClockOutput is a silent Output driven by wall time. It is used when no
// speaker is configured and in tests.
type WallClockOutput struct {
	now    func() time.Time
	origin time.Time

	mu        sync.Mutex
	closed    bool
	scheduled int
	played    float64
}

func NewWallClockOutput(now func() time.Time) *WallClockOutput {
	if now == nil {
		now = time.Now
	}
	return &WallClockOutput{now: now, origin: now()}
}

func (o *WallClockOutput) Now() float64 {
	return o.now().Sub(o.origin).Seconds()
}

func (o *WallClockOutput) Schedule(start float64, samples []float32, sampleRate int) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrOutputClosed
	}
	o.scheduled++
	o.played += float64(len(samples)) / float64(sampleRate)
	return nil
}

// Stats returns how many chunks were scheduled and their total length.
func (o *WallClockOutput) Stats() (chunks int, seconds float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.scheduled, o.played
}

func (o *WallClockOutput) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed = true
	return nil
}
