package exam

// State is the position of the conversation loop.
type State int

const (
	StateNotStarted State = iota
	StateListening
	StateTranscribing
	StateGenerating
	StateSpeaking
	StateLogging
	StateAssessing
	StateFinished
)

var stateNames = [...]string{
	StateNotStarted:   "not_started",
	StateListening:    "listening",
	StateTranscribing: "transcribing",
	StateGenerating:   "generating",
	StateSpeaking:     "speaking",
	StateLogging:      "logging",
	StateAssessing:    "assessing",
	StateFinished:     "finished",
}

// String returns the snake_case name of the state.
func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}
