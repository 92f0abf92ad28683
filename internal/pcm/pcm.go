// Package pcm converts between little-endian 16-bit PCM buffers, normalized
// float32 samples and the base64 text used on the agent transport.
//
// The codec is rate-agnostic; callers carry the sample rate alongside.
package pcm

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// InputSampleRate is the rate of microphone audio sent to the agent.
	InputSampleRate = 16000
	// OutputSampleRate is the rate of agent-produced audio.
	OutputSampleRate = 24000

	BytesPerSample = 2

	scale = 32768.0
)

// ErrMalformed is returned when a payload is not a valid PCM16 buffer.
var ErrMalformed = errors.New("malformed pcm payload")

// DecodePCM16 converts a PCM16-LE buffer into samples in [-1.0, 1.0).
func DecodePCM16(b []byte) ([]float32, error) {
	if len(b)%BytesPerSample != 0 {
		return nil, fmt.Errorf("decode pcm16: odd byte length %d: %w", len(b), ErrMalformed)
	}

	out := make([]float32, len(b)/BytesPerSample)
	for i := range out {
		v := int16(binary.LittleEndian.Uint16(b[2*i:]))
		out[i] = float32(v) / scale
	}
	return out, nil
}

// EncodePCM16 converts samples to PCM16-LE by multiplying by 32768 and
// truncating toward zero. Samples outside the int16 range are clamped.
func EncodePCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*BytesPerSample)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(toInt16(s)))
	}
	return out
}

// Decode parses transport text (base64 PCM16-LE) into samples.
func Decode(text string) ([]float32, error) {
	raw, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		return nil, fmt.Errorf("decode transport text: %v: %w", err, ErrMalformed)
	}
	return DecodePCM16(raw)
}

// Encode is the inverse of Decode.
func Encode(samples []float32) string {
	return base64.StdEncoding.EncodeToString(EncodePCM16(samples))
}

// Duration returns the playback length of n samples at sampleRate, in seconds.
func Duration(n, sampleRate int) float64 {
	if sampleRate <= 0 {
		return 0
	}
	return float64(n) / float64(sampleRate)
}

func toInt16(s float32) int16 {
	v := float64(s) * scale
	switch {
	case v >= 32767:
		return 32767
	case v <= -32768:
		return -32768
	default:
		return int16(v)
	}
}
