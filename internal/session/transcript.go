package session

import (
	"sync"
	"time"
)

const (
	RoleUser  = "user"
	RoleAgent = "agent"
)

// Turn is one entry of the visible conversation. Turns are never modified
// after they are appended.
type Turn struct {
	Seq  int       `json:"seq"`
	Role string    `json:"role"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// Transcript is append-only with a single writer and any number of readers.
type Transcript struct {
	mu    sync.RWMutex
	turns []Turn
}

func (t *Transcript) Append(role, text string, at time.Time) Turn {
	t.mu.Lock()
	defer t.mu.Unlock()

	turn := Turn{Seq: len(t.turns) + 1, Role: role, Text: text, At: at}
	t.turns = append(t.turns, turn)
	return turn
}

// Turns returns a copy of the conversation so far.
func (t *Transcript) Turns() []Turn {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]Turn(nil), t.turns...)
}

func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.turns)
}

// clear starts a fresh conversation.
func (t *Transcript) clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.turns = nil
}
