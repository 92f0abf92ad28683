package audio

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOutput struct {
	mu      sync.Mutex
	now     float64
	starts  []float64
	failing error
	closed  int
}

func (o *fakeOutput) Now() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.now
}

func (o *fakeOutput) advance(d float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.now += d
}

func (o *fakeOutput) Schedule(start float64, samples []float32, sampleRate int) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.failing != nil {
		return o.failing
	}
	o.starts = append(o.starts, start)
	return nil
}

func (o *fakeOutput) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.closed++
	return nil
}

func seconds(d float64, rate int) []float32 {
	return make([]float32, int(d*float64(rate)))
}

func TestSchedulerPlaysChunksBackToBack(t *testing.T) {
	out := &fakeOutput{}
	s := NewScheduler(out)

	var starts []float64
	for _, d := range []float64{1.0, 0.5, 0.75} {
		start, err := s.Enqueue(seconds(d, 24000), 24000)
		require.NoError(t, err)
		starts = append(starts, start)
		out.advance(0.2)
	}

	assert.InDeltaSlice(t, []float64{0.0, 1.0, 1.5}, starts, 1e-9)
	assert.InDelta(t, 2.25, s.Cursor(), 1e-9)
}

func TestSchedulerNeverStartsInThePast(t *testing.T) {
	out := &fakeOutput{}
	s := NewScheduler(out)

	_, err := s.Enqueue(seconds(1.0, 24000), 24000)
	require.NoError(t, err)

	out.advance(5)
	start, err := s.Enqueue(seconds(0.5, 24000), 24000)
	require.NoError(t, err)

	assert.InDelta(t, 5.0, start, 1e-9)
	assert.InDelta(t, 5.5, s.Cursor(), 1e-9)
}

func TestSchedulerHandlesOtherRates(t *testing.T) {
	s := NewScheduler(&fakeOutput{})

	_, err := s.Enqueue(seconds(1.0, 16000), 16000)
	require.NoError(t, err)
	start, err := s.Enqueue(seconds(0.5, 24000), 24000)
	require.NoError(t, err)

	assert.InDelta(t, 1.0, start, 1e-9)
}

func TestSchedulerFailedScheduleKeepsCursor(t *testing.T) {
	out := &fakeOutput{failing: errors.New("device gone")}
	s := NewScheduler(out)

	_, err := s.Enqueue(seconds(1.0, 24000), 24000)
	require.Error(t, err)
	assert.InDelta(t, 0.0, s.Cursor(), 1e-9)
}

func TestSchedulerRejectsBadRateAndEmptyChunks(t *testing.T) {
	out := &fakeOutput{}
	s := NewScheduler(out)

	_, err := s.Enqueue([]float32{0}, 0)
	assert.Error(t, err)

	start, err := s.Enqueue(nil, 24000)
	assert.NoError(t, err)
	assert.InDelta(t, 0.0, start, 1e-9)
	assert.Empty(t, out.starts)
}

func TestSchedulerCloseIsIdempotent(t *testing.T) {
	out := &fakeOutput{}
	s := NewScheduler(out)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.Equal(t, 1, out.closed)

	_, err := s.Enqueue(seconds(0.1, 24000), 24000)
	assert.ErrorIs(t, err, ErrSchedulerClosed)
}

func TestTimelineRendersAtScheduledFrame(t *testing.T) {
	tl := newTimeline(4)
	tl.add(0.5, []float32{1, 1}, 4)

	out := make([]float32, 4)
	tl.render(out)

	assert.Equal(t, []float32{0, 0, 1, 1}, out)
	assert.InDelta(t, 1.0, tl.now(), 1e-9)
	assert.Empty(t, tl.chunks)
}

func TestTimelineSplitsChunksAcrossCallbacks(t *testing.T) {
	tl := newTimeline(4)
	tl.add(0, []float32{1, 2, 3}, 4)
	tl.add(0.75, []float32{4, 5}, 4)

	first := make([]float32, 2)
	tl.render(first)
	second := make([]float32, 4)
	tl.render(second)

	assert.Equal(t, []float32{1, 2}, first)
	assert.Equal(t, []float32{3, 4, 5, 0}, second)
}

func TestTimelineClampsLateChunks(t *testing.T) {
	tl := newTimeline(4)
	tl.render(make([]float32, 4))

	tl.add(0, []float32{7}, 4)
	out := make([]float32, 2)
	tl.render(out)

	assert.Equal(t, []float32{7, 0}, out)
}

func TestWallClockOutputTracksTime(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	now := base
	out := NewWallClockOutput(func() time.Time { return now })
	s := NewScheduler(out)

	_, err := s.Enqueue(seconds(1.0, 24000), 24000)
	require.NoError(t, err)

	now = base.Add(3 * time.Second)
	start, err := s.Enqueue(seconds(0.5, 24000), 24000)
	require.NoError(t, err)
	assert.InDelta(t, 3.0, start, 1e-9)

	chunks, total := out.Stats()
	assert.Equal(t, 2, chunks)
	assert.InDelta(t, 1.5, total, 1e-9)

	require.NoError(t, s.Close())
	assert.ErrorIs(t, out.Schedule(0, []float32{0}, 24000), ErrOutputClosed)
}
