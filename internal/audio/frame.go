// Package audio holds the two device-facing halves of a voice session: the
// capture pipeline that turns microphone input into fixed-size frames, and the
// playback scheduler that lays agent audio onto the output clock.
package audio

// Source tags which direction a frame travels.
type Source int

const (
	// SourceCapture frames flow from the microphone to the agent.
	SourceCapture Source = iota
	// SourcePlayback frames flow from the agent to the speaker.
	SourcePlayback
)

func (s Source) String() string {
	switch s {
	case SourceCapture:
		return "capture"
	case SourcePlayback:
		return "playback"
	default:
		return "unknown"
	}
}

// Frame is a chunk of normalized samples at a declared rate. A frame is owned
// by whichever stage holds it and is never mutated after creation.
type Frame struct {
	Samples    []float32
	SampleRate int
	Source     Source
	Seq        uint64
}

// Duration returns the frame length in seconds.
func (f Frame) Duration() float64 {
	if f.SampleRate <= 0 {
		return 0
	}
	return float64(len(f.Samples)) / float64(f.SampleRate)
}
