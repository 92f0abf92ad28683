package pcm

import (
	"encoding/base64"
	"encoding/binary"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodePCM16Normalizes(t *testing.T) {
	b := []byte{
		0x00, 0x00, // 0
		0xFF, 0x7F, // 32767
		0x00, 0x80, // -32768
		0x00, 0x40, // 16384
	}

	samples, err := DecodePCM16(b)
	require.NoError(t, err)
	require.Len(t, samples, 4)

	assert.Equal(t, float32(0), samples[0])
	assert.InDelta(t, 32767.0/32768.0, samples[1], 1e-9)
	assert.Equal(t, float32(-1), samples[2])
	assert.Equal(t, float32(0.5), samples[3])
}

func TestDecodePCM16OddLength(t *testing.T) {
	_, err := DecodePCM16([]byte{0x01, 0x02, 0x03})
	require.ErrorIs(t, err, ErrMalformed)
}

func TestEncodePCM16TruncatesAndClamps(t *testing.T) {
	tests := []struct {
		name string
		in   float32
		want int16
	}{
		{"zero", 0, 0},
		{"half", 0.5, 16384},
		{"full scale positive clamps", 1.0, 32767},
		{"over range clamps", 1.5, 32767},
		{"full scale negative", -1.0, -32768},
		{"under range clamps", -2, -32768},
		{"truncates toward zero", 0.00005, 1},
		{"truncates negative toward zero", -0.00005, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := EncodePCM16([]float32{tt.in})
			require.Len(t, out, 2)
			assert.Equal(t, tt.want, int16(binary.LittleEndian.Uint16(out)))
		})
	}
}

func TestRoundTripIsIdentity(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	b := make([]byte, 4096)
	_, _ = rng.Read(b)

	samples, err := DecodePCM16(b)
	require.NoError(t, err)
	assert.Equal(t, b, EncodePCM16(samples))
}

func TestRoundTripExtremes(t *testing.T) {
	b := []byte{0x00, 0x80, 0xFF, 0x7F, 0xFF, 0xFF, 0x01, 0x00}

	text := base64Of(b)
	samples, err := Decode(text)
	require.NoError(t, err)
	assert.Equal(t, text, Encode(samples))
}

func TestDecodeRejectsBadTransportText(t *testing.T) {
	_, err := Decode("not base64!!")
	require.ErrorIs(t, err, ErrMalformed)

	_, err = Decode(base64Of([]byte{0x01}))
	require.ErrorIs(t, err, ErrMalformed)
}

func TestDuration(t *testing.T) {
	assert.Equal(t, 1.0, Duration(24000, OutputSampleRate))
	assert.Equal(t, 0.256, Duration(4096, InputSampleRate))
	assert.Equal(t, 0.0, Duration(100, 0))
}

func TestWAVHeader(t *testing.T) {
	h, err := WAVHeader(3200, 16000, 1, 16)
	require.NoError(t, err)
	require.Len(t, h, 44)

	assert.Equal(t, "RIFF", string(h[0:4]))
	assert.Equal(t, uint32(36+3200), binary.LittleEndian.Uint32(h[4:8]))
	assert.Equal(t, "WAVEfmt ", string(h[8:16]))
	assert.Equal(t, uint32(16000), binary.LittleEndian.Uint32(h[24:28]))
	assert.Equal(t, uint32(32000), binary.LittleEndian.Uint32(h[28:32]))
	assert.Equal(t, "data", string(h[36:40]))
	assert.Equal(t, uint32(3200), binary.LittleEndian.Uint32(h[40:44]))
}

func base64Of(b []byte) string { return base64.StdEncoding.EncodeToString(b) }
