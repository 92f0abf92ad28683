package session

import "errors"

var (
	// ErrTransport covers network and remote session failures. It ends a
	// voice session and is surfaced to the user.
	ErrTransport = errors.New("transport failure")
	// ErrVoiceActive is returned when an operation needs the controller to
	// be idle.
	ErrVoiceActive = errors.New("voice session active")
	// ErrVoiceStopped is returned by StartVoice when StopVoice ran before the
	// session connected.
	ErrVoiceStopped = errors.New("voice session stopped")
	// ErrNoVoiceSession is returned by StopVoice when nothing is running.
	ErrNoVoiceSession = errors.New("no voice session")
	// ErrTurnCancelled means the turn's response arrived after CancelTurn or
	// Reset and was discarded.
	ErrTurnCancelled = errors.New("turn cancelled")
	ErrEmptyTurn     = errors.New("empty turn")
)
