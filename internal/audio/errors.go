package audio

import "errors"

var (
	// ErrPermissionDenied means the user or OS refused microphone access.
	ErrPermissionDenied = errors.New("microphone permission denied")
	// ErrDeviceUnavailable means no usable device could be opened.
	ErrDeviceUnavailable = errors.New("audio device unavailable")
	// ErrCaptureStopped is returned by Start when Stop won the race against
	// a pending device open.
	ErrCaptureStopped = errors.New("capture stopped")
	// ErrInputOverflow means the device dropped input because reads fell
	// behind. The samples returned with it are still valid.
	ErrInputOverflow   = errors.New("microphone input overflowed")
	ErrCaptureRunning  = errors.New("capture already running")
	ErrSchedulerClosed = errors.New("playback scheduler closed")
	ErrOutputClosed    = errors.New("audio output closed")
)
