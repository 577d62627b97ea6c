package audio

import (
	"context"

	"github.com/bwmarrin/discordgo"
)

// DiscordSink sends opus frames over a discordgo voice connection.
type DiscordSink struct {
	vc *discordgo.VoiceConnection
}

func NewDiscordSink(vc *discordgo.VoiceConnection) *DiscordSink {
	return &DiscordSink{vc: vc}
}

func (d *DiscordSink) Send(ctx context.Context, opus []byte) error {
	select {
	case d.vc.OpusSend <- opus:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *DiscordSink) Speaking(speaking bool) error {
	return d.vc.Speaking(speaking)
}

func (d *DiscordSink) Disconnect() error {
	return d.vc.Disconnect()
}
