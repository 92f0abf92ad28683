package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gback-app/coach-engine/internal/pcm"
)

const (
	DefaultFrameSize = 4096
	defaultReadSize  = 1024
	overflowBackoff  = 250 * time.Millisecond
)

// DefaultDeviceRates is the order in which device sample rates are tried.
var DefaultDeviceRates = []int{16000, 48000, 44100, 32000, 24000}

// InputStream is an opened microphone. Read blocks until samples arrive.
// Interrupt must unblock a pending Read from another goroutine; Close is only
// called by the goroutine that reads.
type InputStream interface {
	Read(buf []float32) (int, error)
	Interrupt() error
	Close() error
}

// InputOpener opens a mono input stream at the requested rate.
type InputOpener interface {
	OpenInput(sampleRate, framesPerBuffer int) (InputStream, error)
}

type CaptureConfig struct {
	DeviceRates []int
	TargetRate  int
	FrameSize   int
	ReadSize    int
}

func (c CaptureConfig) withDefaults() CaptureConfig {
	if len(c.DeviceRates) == 0 {
		c.DeviceRates = DefaultDeviceRates
	}
	if c.TargetRate <= 0 {
		c.TargetRate = pcm.InputSampleRate
	}
	if c.FrameSize <= 0 {
		c.FrameSize = DefaultFrameSize
	}
	if c.ReadSize <= 0 {
		c.ReadSize = defaultReadSize
	}
	return c
}

// Capture turns microphone input into ordered frames at the target rate.
//
// After Stop returns no further frame is delivered. Stop is safe to call any
// number of times, including while Start is still opening the device. The
// onFrame callback must not call Stop synchronously.
type Capture struct {
	opener InputOpener
	cfg    CaptureConfig
	logger *slog.Logger
	sleep  func(time.Duration)

	mu       sync.Mutex
	gen      uint64
	opening  chan struct{}
	stream   InputStream
	cancel   context.CancelFunc
	done     chan struct{}
	closeErr error
}

func NewCapture(opener InputOpener, cfg CaptureConfig, logger *slog.Logger) *Capture {
	if logger == nil {
		logger = slog.Default()
	}
	return &Capture{
		opener: opener,
		cfg:    cfg.withDefaults(),
		logger: logger,
		sleep:  time.Sleep,
	}
}

// Start opens the device and begins delivering frames on a separate
// goroutine. It returns once the device is open. If reading fails later the
// device is released and onError, when set, receives an error wrapping
// ErrDeviceUnavailable; Stop is not needed afterwards.
func (c *Capture) Start(ctx context.Context, onFrame func(Frame), onError func(error)) error {
	c.mu.Lock()
	if c.opening != nil || c.stream != nil {
		c.mu.Unlock()
		return ErrCaptureRunning
	}
	gen := c.gen
	opening := make(chan struct{})
	c.opening = opening
	c.mu.Unlock()
	defer close(opening)

	stream, rate, err := c.open()

	c.mu.Lock()
	c.opening = nil
	if err != nil {
		c.mu.Unlock()
		return err
	}
	if c.gen != gen {
		c.mu.Unlock()
		_ = stream.Close()
		return ErrCaptureStopped
	}

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	c.stream = stream
	c.cancel = cancel
	c.done = done
	c.closeErr = nil
	c.mu.Unlock()

	c.logger.Info("capture started", "device_rate", rate, "target_rate", c.cfg.TargetRate, "frame_size", c.cfg.FrameSize)
	go c.run(loopCtx, stream, rate, onFrame, onError, done)
	return nil
}

// Stop halts delivery and releases the device. A Start still waiting on the
// device is abandoned and Stop returns after the late stream is closed.
func (c *Capture) Stop() error {
	c.mu.Lock()
	c.gen++
	opening := c.opening
	stream, cancel, done := c.stream, c.cancel, c.done
	c.stream, c.cancel, c.done = nil, nil, nil
	c.mu.Unlock()

	if opening != nil {
		<-opening
		return nil
	}
	if stream == nil {
		return nil
	}

	cancel()
	interruptErr := stream.Interrupt()
	<-done

	c.mu.Lock()
	closeErr := c.closeErr
	c.mu.Unlock()

	c.logger.Info("capture stopped")
	return errors.Join(interruptErr, closeErr)
}

// Running reports whether a device is open.
func (c *Capture) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stream != nil
}

func (c *Capture) open() (InputStream, int, error) {
	var lastErr error
	for _, rate := range c.cfg.DeviceRates {
		stream, err := c.opener.OpenInput(rate, c.cfg.ReadSize)
		if err == nil {
			return stream, rate, nil
		}
		if errors.Is(err, ErrPermissionDenied) {
			return nil, 0, fmt.Errorf("open microphone: %w", err)
		}
		c.logger.Warn("microphone open failed", "rate", rate, "error", err)
		lastErr = err
	}

	if lastErr == nil {
		lastErr = errors.New("no sample rates to try")
	}
	if !errors.Is(lastErr, ErrDeviceUnavailable) {
		lastErr = fmt.Errorf("%w: %v", ErrDeviceUnavailable, lastErr)
	}
	return nil, 0, fmt.Errorf("open microphone: %w", lastErr)
}

func (c *Capture) run(ctx context.Context, stream InputStream, rate int, onFrame func(Frame), onError func(error), done chan struct{}) {
	readErr := c.read(ctx, stream, rate, onFrame)
	closeErr := stream.Close()

	// If Stop did not claim the stream it died on its own.
	c.mu.Lock()
	orphaned := c.stream == stream
	var cancel context.CancelFunc
	if orphaned {
		cancel = c.cancel
		c.stream, c.cancel, c.done = nil, nil, nil
	} else {
		c.closeErr = closeErr
	}
	c.mu.Unlock()
	close(done)

	if !orphaned {
		return
	}
	cancel()
	if closeErr != nil {
		c.logger.Warn("close failed microphone", "error", closeErr)
	}
	if readErr == nil {
		readErr = errors.New("capture ended")
	}
	c.logger.Error("microphone read failed", "error", readErr)
	if onError != nil {
		onError(fmt.Errorf("%w: read microphone: %v", ErrDeviceUnavailable, readErr))
	}
}

// read delivers frames until the context ends (nil) or the stream fails.
func (c *Capture) read(ctx context.Context, stream InputStream, rate int, onFrame func(Frame)) error {
	resampler := NewResampler(rate, c.cfg.TargetRate)
	frames := newFramer(c.cfg.FrameSize)
	buf := make([]float32, c.cfg.ReadSize)
	var seq uint64

	for {
		n, err := stream.Read(buf)
		if ctx.Err() != nil {
			return nil
		}

		if n > 0 {
			for _, samples := range frames.push(resampler.Process(buf[:n])) {
				if ctx.Err() != nil {
					return nil
				}
				onFrame(Frame{Samples: samples, SampleRate: c.cfg.TargetRate, Source: SourceCapture, Seq: seq})
				seq++
			}
		}

		switch {
		case err == nil:
		case errors.Is(err, ErrInputOverflow):
			c.logger.Warn("microphone input overflow, continuing")
			c.sleep(overflowBackoff)
		default:
			return err
		}
	}
}
