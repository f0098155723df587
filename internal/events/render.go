package events

import (
	"context"
	"fmt"
	"io"

	"github.com/SalahAli20/ADCAI/internal/exam"
)

// Line formats ev the way the student sees it. ok is false for events that
// have no visible form (state changes, end of stream).
func Line(ev Event) (line string, ok bool) {
	switch ev.Kind {
	case exam.NoticeStatus, exam.NoticeInfo:
		return ev.Text, true
	case exam.NoticeWarning:
		return "Warning: " + ev.Text, true
	case exam.NoticeError:
		return "Error: " + ev.Text, true
	case exam.NoticeStudent:
		return "You: " + ev.Text, true
	case exam.NoticePatient:
		return "Patient: " + ev.Text, true
	case exam.NoticeFeedback:
		return "Feedback\n" + ev.Text, true
	default:
		return "", false
	}
}

// Render writes each visible event from evs to w until a done event arrives,
// evs closes, or ctx is cancelled.
func Render(ctx context.Context, w io.Writer, evs <-chan Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-evs:
			if !ok || ev.Kind == exam.NoticeDone {
				return nil
			}
			line, visible := Line(ev)
			if !visible {
				continue
			}
			if ev.Kind == exam.NoticeFeedback {
				line = "\n" + line
			}
			if _, err := fmt.Fprintln(w, line); err != nil {
				return fmt.Errorf("events: render: %w", err)
			}
		}
	}
}
