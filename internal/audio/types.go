package audio

import (
	"context"
	"errors"
	"io"

	"github.com/user/discord-jinglebox/internal/playback"
)

const (
	SampleRate = 48000
	Channels   = 2   // Stereo
	FrameSize  = 960 // 20ms at 48kHz

	// frameBytes is one s16le PCM frame across all channels.
	frameBytes = FrameSize * Channels * 2
)

var (
	ErrUnknownHandle = errors.New("unknown playback handle")
	ErrBusy          = errors.New("another playback is still active")
)

// Opener produces raw s16le 48kHz stereo PCM for a source. cleanup releases
// whatever process or file backs the stream.
type Opener interface {
	Open(ctx context.Context, src playback.Source) (pcm io.ReadCloser, cleanup func(), err error)
}

// Encoder turns one PCM frame into one opus packet.
type Encoder interface {
	Encode(pcm []int16) ([]byte, error)
}

// Sink is where opus frames go, usually a Discord voice connection.
type Sink interface {
	Send(ctx context.Context, opus []byte) error
	Speaking(speaking bool) error
	Disconnect() error
}
