package bot

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"
	"github.com/user/discord-jinglebox/internal/audio"
	"github.com/user/discord-jinglebox/internal/playback"
)

const voiceReadyTimeout = 10 * time.Second

// voiceConnector joins voice channels and hands back an audio Player bound to
// the new connection.
type voiceConnector struct {
	session *discordgo.Session
	ffmpeg  audio.FFmpeg
}

func (c *voiceConnector) Connect(ctx context.Context, key playback.ChannelKey) (playback.Conn, error) {
	// Parameters: guildID, channelID, mute, deaf
	// deaf: true, the bot only ever sends audio
	vc, err := c.session.ChannelVoiceJoin(key.GuildID, key.ChannelID, false, true)
	if err != nil {
		return nil, fmt.Errorf("failed to join voice channel: %w", err)
	}

	if err := waitReady(ctx, vc); err != nil {
		if derr := vc.Disconnect(); derr != nil {
			log.Debug().Err(derr).Str("channel_id", key.ChannelID).Msg("Failed to drop half-open voice connection")
		}
		return nil, err
	}

	log.Info().
		Str("guild_id", key.GuildID).
		Str("channel_id", key.ChannelID).
		Msg("Voice connection ready")

	return audio.NewPlayer(audio.NewDiscordSink(vc), c.ffmpeg, nil), nil
}

func waitReady(ctx context.Context, vc *discordgo.VoiceConnection) error {
	ctx, cancel := context.WithTimeout(ctx, voiceReadyTimeout)
	defer cancel()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for {
		vc.RLock()
		ready := vc.Ready
		vc.RUnlock()
		if ready {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("voice connection not ready: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

// textNotifier posts asynchronous session events to a text channel.
type textNotifier struct {
	session *discordgo.Session
}

func (n *textNotifier) Notify(ctx context.Context, textChannelID, msg string) {
	if _, err := n.session.ChannelMessageSend(textChannelID, msg); err != nil {
		log.Warn().Err(err).Str("channel_id", textChannelID).Msg("Failed to send notification")
	}
}
