package audio

// Resampler converts a continuous stream between two rates with linear
// interpolation. State carries across Process calls so block boundaries do
// not click.
type Resampler struct {
	step    float64
	pos     float64
	last    float32
	hasLast bool
}

func NewResampler(fromRate, toRate int) *Resampler {
	if fromRate <= 0 || toRate <= 0 {
		fromRate, toRate = 1, 1
	}
	return &Resampler{step: float64(fromRate) / float64(toRate)}
}

// Process returns the resampled block. The input slice is not retained.
func (r *Resampler) Process(in []float32) []float32 {
	if len(in) == 0 {
		return nil
	}
	if r.step == 1 {
		out := make([]float32, len(in))
		copy(out, in)
		return out
	}

	// The previous block's last sample sits at index 0 so interpolation
	// spans the boundary.
	buf := in
	if r.hasLast {
		buf = make([]float32, 0, len(in)+1)
		buf = append(buf, r.last)
		buf = append(buf, in...)
	}

	out := make([]float32, 0, int(float64(len(buf))/r.step)+1)
	limit := float64(len(buf) - 1)
	for r.pos < limit {
		i := int(r.pos)
		frac := float32(r.pos - float64(i))
		out = append(out, buf[i]+(buf[i+1]-buf[i])*frac)
		r.pos += r.step
	}

	r.pos -= limit
	r.last = buf[len(buf)-1]
	r.hasLast = true
	return out
}

// Resample converts a self-contained chunk in one shot.
func Resample(in []float32, fromRate, toRate int) []float32 {
	if fromRate == toRate {
		return in
	}
	r := NewResampler(fromRate, toRate)
	out := r.Process(in)
	// Flush the tail sample the streaming form holds back for interpolation.
	if want := int(float64(len(in)) * float64(toRate) / float64(fromRate)); len(out) < want && len(in) > 0 {
		tail := in[len(in)-1]
		for len(out) < want {
			out = append(out, tail)
		}
	}
	return out
}

// framer slices a sample stream into fixed-size blocks.
type framer struct {
	size    int
	pending []float32
}

func newFramer(size int) *framer {
	if size <= 0 {
		size = DefaultFrameSize
	}
	return &framer{size: size, pending: make([]float32, 0, size*2)}
}

func (f *framer) push(samples []float32) [][]float32 {
	f.pending = append(f.pending, samples...)

	var frames [][]float32
	off := 0
	for len(f.pending)-off >= f.size {
		frame := make([]float32, f.size)
		copy(frame, f.pending[off:off+f.size])
		frames = append(frames, frame)
		off += f.size
	}
	f.pending = f.pending[:copy(f.pending, f.pending[off:])]
	return frames
}
