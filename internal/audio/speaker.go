package audio

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// PortAudioOutput plays scheduled chunks through the default output device.
// Its clock counts frames handed to the device.
type PortAudioOutput struct {
	stream *portaudio.Stream

	mu     sync.Mutex
	tl     *timeline
	closed bool
}

func OpenPortAudioOutput(sampleRate, framesPerBuffer int) (*PortAudioOutput, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, classifyDeviceError(err)
	}

	o := &PortAudioOutput{tl: newTimeline(sampleRate)}
	stream, err := portaudio.OpenDefaultStream(0, 1, float64(sampleRate), framesPerBuffer, o.render)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, classifyDeviceError(err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return nil, classifyDeviceError(err)
	}
	o.stream = stream
	return o, nil
}

func (o *PortAudioOutput) render(out []float32) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.tl.render(out)
}

func (o *PortAudioOutput) Now() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.tl.now()
}

func (o *PortAudioOutput) Schedule(start float64, samples []float32, sampleRate int) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return ErrOutputClosed
	}
	o.tl.add(start, samples, sampleRate)
	return nil
}

func (o *PortAudioOutput) Close() error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	o.tl.reset()
	o.mu.Unlock()

	var errs []error
	if err := o.stream.Abort(); err != nil {
		errs = append(errs, fmt.Errorf("abort output stream: %w", err))
	}
	if err := o.stream.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close output stream: %w", err))
	}
	if err := portaudio.Terminate(); err != nil {
		errs = append(errs, fmt.Errorf("terminate portaudio: %w", err))
	}
	return errors.Join(errs...)
}

type timedChunk struct {
	start   int64
	samples []float32
}

func (c timedChunk) end() int64 { return c.start + int64(len(c.samples)) }

// timeline is a sample-accurate mix bus. Chunks are kept sorted by start and
// are assumed not to overlap.
type timeline struct {
	rate   int
	pos    int64
	chunks []timedChunk
}

func newTimeline(rate int) *timeline {
	return &timeline{rate: rate}
}

func (t *timeline) now() float64 {
	return float64(t.pos) / float64(t.rate)
}

func (t *timeline) add(start float64, samples []float32, sampleRate int) {
	if sampleRate != t.rate {
		samples = Resample(samples, sampleRate, t.rate)
	}
	chunk := timedChunk{start: int64(math.Round(start * float64(t.rate))), samples: samples}
	if chunk.start < t.pos {
		chunk.start = t.pos
	}

	i := len(t.chunks)
	for i > 0 && t.chunks[i-1].start > chunk.start {
		i--
	}
	t.chunks = append(t.chunks, timedChunk{})
	copy(t.chunks[i+1:], t.chunks[i:])
	t.chunks[i] = chunk
}

func (t *timeline) render(out []float32) {
	clear(out)
	end := t.pos + int64(len(out))

	for _, c := range t.chunks {
		if c.start >= end {
			break
		}
		if c.end() <= t.pos {
			continue
		}
		from := max(c.start, t.pos)
		to := min(c.end(), end)
		copy(out[from-t.pos:to-t.pos], c.samples[from-c.start:to-c.start])
	}
	t.pos = end

	n := 0
	for n < len(t.chunks) && t.chunks[n].end() <= t.pos {
		n++
	}
	t.chunks = t.chunks[n:]
}

func (t *timeline) reset() {
	t.chunks = nil
}
