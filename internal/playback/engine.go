package playback

import (
	"context"

	"github.com/user/discord-jinglebox/internal/media"
	"github.com/user/discord-jinglebox/internal/store"
)

// Handle is an opaque token for one playback started on an Engine.
type Handle string

// Source is anything the Engine can play: a local clip path or a resolved stream URL.
type Source struct {
	Name     string
	Location string
}

// Clips are the fixed jingles bracketing every Session.
type Clips struct {
	Intro Source
	Outro Source
}

// Engine performs audio playback. onComplete is invoked exactly once per
// successful Start, possibly from another goroutine, including after Stop.
type Engine interface {
	Start(ctx context.Context, src Source, onComplete func(Handle, error)) (Handle, error)
	Pause(h Handle) error
	Resume(h Handle) error
	Stop(ctx context.Context, h Handle) error
}

// Conn is a live voice connection that can play audio.
type Conn interface {
	Engine
	Disconnect(ctx context.Context) error
}

// Connector joins voice channels.
type Connector interface {
	Connect(ctx context.Context, key ChannelKey) (Conn, error)
}

// Resolver turns a user request into playable media. It may block for a long time.
type Resolver interface {
	Resolve(ctx context.Context, request string) (media.Media, error)
}

// Notifier delivers asynchronous outcomes to the text channel that issued the last command.
type Notifier interface {
	Notify(ctx context.Context, textChannelID, msg string)
}

// PlayLog records media as it starts playing.
type PlayLog interface {
	AppendPlay(sessionID string, entry store.PlayEntry) error
}
