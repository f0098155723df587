// Package tts defines the Speaker interface for Text-to-Speech backends.
//
// A speaker turns text into audible speech and blocks until playback has
// finished. Local engines such as espeak-ng drive the sound device
// themselves; network engines such as Coqui return WAV audio that is played
// through an [audio.Player].
//
// Implementations must honour ctx cancellation by stopping playback.
package tts

import "context"

// DefaultRate is the speaking rate in words per minute.
const DefaultRate = 150

// Speaker is the abstraction over any TTS backend.
type Speaker interface {
	// Speak renders text aloud and returns once playback is complete.
	Speak(ctx context.Context, text string) error
}

// RateSpeaker is implemented by speakers whose pace can be chosen per call.
// Network voices that set their own pace only implement [Speaker].
type RateSpeaker interface {
	Speaker

	// SpeakAt is Speak at wpm words per minute.
	SpeakAt(ctx context.Context, text string, wpm int) error
}
