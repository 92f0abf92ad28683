package audio

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// PortAudioInput opens the default input device. Each stream holds its own
// Initialize/Terminate pair so streams can be opened and closed independently.
type PortAudioInput struct{}

func (PortAudioInput) OpenInput(sampleRate, framesPerBuffer int) (InputStream, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, classifyDeviceError(err)
	}

	buf := make([]float32, framesPerBuffer)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(sampleRate), framesPerBuffer, buf)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, classifyDeviceError(err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return nil, classifyDeviceError(err)
	}

	return &micStream{stream: stream, buf: buf}, nil
}

type micStream struct {
	stream *portaudio.Stream
	buf    []float32

	mu       sync.Mutex
	aborted  bool
	closed   bool
	closeErr error
}

func (m *micStream) Read(out []float32) (int, error) {
	if err := m.stream.Read(); err != nil {
		if errors.Is(err, portaudio.InputOverflowed) {
			return copy(out, m.buf), fmt.Errorf("%w: %v", ErrInputOverflow, err)
		}
		return 0, err
	}
	return copy(out, m.buf), nil
}

func (m *micStream) Interrupt() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.aborted || m.closed {
		return nil
	}
	m.aborted = true
	return m.stream.Abort()
}

func (m *micStream) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return m.closeErr
	}
	m.closed = true

	var errs []error
	if !m.aborted {
		if err := m.stream.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop stream: %w", err))
		}
	}
	if err := m.stream.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close stream: %w", err))
	}
	if err := portaudio.Terminate(); err != nil {
		errs = append(errs, fmt.Errorf("terminate portaudio: %w", err))
	}
	m.closeErr = errors.Join(errs...)
	return m.closeErr
}

func classifyDeviceError(err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "permission") || strings.Contains(msg, "denied") || strings.Contains(msg, "not authorized") {
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	}
	return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
}
