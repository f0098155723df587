package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
)

// Player plays PCM audio and blocks until playback finishes or ctx is
// cancelled.
type Player interface {
	Play(ctx context.Context, pcm []byte, sampleRate, channels int) error
}

// CommandPlayer pipes raw PCM into an external player. The default is aplay.
type CommandPlayer struct {
	// Argv builds the command line for a given format. Nil uses aplay.
	Argv func(sampleRate, channels int) []string
}

// aplayArgv returns an aplay invocation reading raw PCM from stdin.
func aplayArgv(sampleRate, channels int) []string {
	return []string{"aplay", "-q", "-t", "raw", "-f", "S16_LE",
		"-r", strconv.Itoa(sampleRate), "-c", strconv.Itoa(channels)}
}

// Play implements [Player].
func (p *CommandPlayer) Play(ctx context.Context, pcm []byte, sampleRate, channels int) error {
	if len(pcm) == 0 {
		return nil
	}
	if sampleRate <= 0 || channels <= 0 {
		return fmt.Errorf("audio: invalid playback format %d Hz / %d ch", sampleRate, channels)
	}
	build := p.Argv
	if build == nil {
		build = aplayArgv
	}
	argv := build(sampleRate, channels)
	if len(argv) == 0 {
		return errors.New("audio: empty playback command")
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdin = bytes.NewReader(pcm)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("audio: %s: %w: %s", argv[0], err, bytes.TrimSpace(stderr.Bytes()))
	}
	return nil
}

var _ Player = (*CommandPlayer)(nil)
