package session

type Lifecycle string

const (
	Idle       Lifecycle = "idle"
	Connecting Lifecycle = "connecting"
	Connected  Lifecycle = "connected"
	Closing    Lifecycle = "closing"
	Errored    Lifecycle = "errored"
)

type Mode string

const (
	ModeChat  Mode = "chat"
	ModeVoice Mode = "voice"
)

// SessionState is a snapshot of the controller's state.
type SessionState struct {
	Lifecycle      Lifecycle `json:"lifecycle"`
	Mode           Mode      `json:"mode"`
	PlaybackCursor float64   `json:"playback_cursor"`
	SessionID      string    `json:"session_id,omitempty"`
	LastError      string    `json:"last_error,omitempty"`
}

var transitions = map[Lifecycle][]Lifecycle{
	Idle:       {Connecting},
	Connecting: {Connected, Closing, Errored},
	Connected:  {Closing, Errored},
	Closing:    {Idle},
	Errored:    {Idle},
}

func canTransition(from, to Lifecycle) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
