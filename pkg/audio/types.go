package audio

import "time"

const (
	// DefaultSampleRate is the capture rate used for speech recognition.
	DefaultSampleRate = 16000

	// BytesPerSample is fixed at 2 for 16-bit signed little-endian PCM.
	BytesPerSample = 2
)

// Frame represents a single frame of audio data read from a capture device.
// Frames are the atomic unit of audio transport between a [Source] and the
// [Capturer].
type Frame struct {
	// Data holds 16-bit signed little-endian PCM samples.
	Data []byte

	// SampleRate in Hz (e.g., 16000).
	SampleRate int

	// Channels is 1 for mono capture.
	Channels int
}

// Duration returns the playback length of the frame.
func (f Frame) Duration() time.Duration {
	return PCMDuration(len(f.Data), f.SampleRate, f.Channels)
}

// Utterance is one captured phrase: everything between the onset of speech
// and the trailing pause that ended it.
type Utterance struct {
	// PCM is the raw 16-bit signed little-endian audio, including a short
	// pre-roll captured before the speech onset.
	PCM []byte

	// SampleRate in Hz.
	SampleRate int

	// Channels is the interleaved channel count.
	Channels int
}

// Duration returns the length of the utterance.
func (u Utterance) Duration() time.Duration {
	return PCMDuration(len(u.PCM), u.SampleRate, u.Channels)
}

// WAV returns the utterance wrapped in a RIFF/WAV container.
func (u Utterance) WAV() []byte {
	return EncodeWAV(u.PCM, u.SampleRate, u.Channels)
}

// PCMDuration converts a PCM byte count into a duration. Returns 0 for
// invalid formats.
func PCMDuration(n, sampleRate, channels int) time.Duration {
	if sampleRate <= 0 || channels <= 0 {
		return 0
	}
	bytesPerSec := sampleRate * channels * BytesPerSample
	return time.Duration(n) * time.Second / time.Duration(bytesPerSec)
}
