package exam

// Messages shown to the student.
const (
	MsgNoCriteria     = "Please provide the ADC assessment criteria before starting the simulation."
	MsgStarted        = "Simulation started! Speak to the patient."
	MsgListening      = "Listening..."
	MsgNoSpeech       = "No speech detected. Please try again."
	MsgUnintelligible = "Could not understand the audio. Please try again."
	MsgUnavailable    = "Could not request results from the speech recognition service; "
	MsgInterrupted    = "Simulation interrupted."
	MsgAssessing      = "Assessing the conversation..."
)

// NoticeKind classifies a [Notice].
type NoticeKind string

const (
	NoticeStatus   NoticeKind = "status"
	NoticeInfo     NoticeKind = "info"
	NoticeWarning  NoticeKind = "warning"
	NoticeError    NoticeKind = "error"
	NoticeStudent  NoticeKind = "student"
	NoticePatient  NoticeKind = "patient"
	NoticeFeedback NoticeKind = "feedback"
	NoticeState    NoticeKind = "state"
	NoticeDone     NoticeKind = "done"
)

// Notice is one progress update from a running session. Student and Patient
// notices carry the raw utterance; renderers add the "You: " and "Patient: "
// prefixes. A Done notice is always the last one a session sends.
type Notice struct {
	Kind NoticeKind
	Text string
}

// Reporter receives a session's notices in order. Report is called from the
// session goroutine and should not block for long.
type Reporter interface {
	Report(Notice)
}

// ReporterFunc adapts a function to [Reporter].
type ReporterFunc func(Notice)

// Report implements [Reporter].
func (f ReporterFunc) Report(n Notice) { f(n) }

// Discard is a [Reporter] that drops every notice.
var Discard Reporter = ReporterFunc(func(Notice) {})
