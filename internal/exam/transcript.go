package exam

import (
	"strings"
	"sync"
)

// Turn is one completed exchange.
type Turn struct {
	Student string `json:"student"`
	Patient string `json:"patient"`
}

// Transcript is the append-only record of a session's turns. It is written
// by the conversation loop and may be read concurrently.
type Transcript struct {
	mu    sync.RWMutex
	turns []Turn
}

// Append adds t to the end of the transcript.
func (tr *Transcript) Append(t Turn) {
	tr.mu.Lock()
	tr.turns = append(tr.turns, t)
	tr.mu.Unlock()
}

// Turns returns a copy of the recorded turns in order.
func (tr *Transcript) Turns() []Turn {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	out := make([]Turn, len(tr.turns))
	copy(out, tr.turns)
	return out
}

// Len returns the number of recorded turns.
func (tr *Transcript) Len() int {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	return len(tr.turns)
}

// Render serialises the transcript as "Student: <s>\nPatient: <p>" blocks
// joined by newlines. An empty transcript renders as "".
func (tr *Transcript) Render() string {
	tr.mu.RLock()
	defer tr.mu.RUnlock()
	var b strings.Builder
	for i, t := range tr.turns {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("Student: ")
		b.WriteString(t.Student)
		b.WriteString("\nPatient: ")
		b.WriteString(t.Patient)
	}
	return b.String()
}
