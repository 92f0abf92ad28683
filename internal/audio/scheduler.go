package audio

import (
	"fmt"
	"math"
	"sync"

	"github.com/gback-app/coach-engine/internal/pcm"
)

// Output is a playback device with a monotonic clock in seconds.
type Output interface {
	Now() float64
	// Schedule arranges for samples to start playing at start seconds on
	// the output clock.
	Schedule(start float64, samples []float32, sampleRate int) error
	Close() error
}

// Scheduler lays chunks back to back on the output clock. A chunk never
// starts before the previous one ends, and never in the past.
type Scheduler struct {
	out Output

	mu     sync.Mutex
	cursor float64
	closed bool
}

func NewScheduler(out Output) *Scheduler {
	return &Scheduler{out: out, cursor: out.Now()}
}

// Enqueue schedules samples and returns the start time it chose. On failure
// the cursor does not move.
func (s *Scheduler) Enqueue(samples []float32, sampleRate int) (float64, error) {
	if sampleRate <= 0 {
		return 0, fmt.Errorf("enqueue playback: invalid sample rate %d", sampleRate)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrSchedulerClosed
	}
	if len(samples) == 0 {
		return s.cursor, nil
	}

	start := math.Max(s.out.Now(), s.cursor)
	if err := s.out.Schedule(start, samples, sampleRate); err != nil {
		return 0, fmt.Errorf("schedule playback at %.3fs: %w", start, err)
	}
	s.cursor = start + pcm.Duration(len(samples), sampleRate)
	return start, nil
}

// EnqueueFrame schedules a playback frame.
func (s *Scheduler) EnqueueFrame(f Frame) (float64, error) {
	return s.Enqueue(f.Samples, f.SampleRate)
}

// Cursor returns the output time at which the next chunk would start if the
// clock has not caught up with it.
func (s *Scheduler) Cursor() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// Close releases the output. Pending audio is dropped.
func (s *Scheduler) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.out.Close()
}
