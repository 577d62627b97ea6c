package bot

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"
	"github.com/user/discord-jinglebox/internal/audio"
	"github.com/user/discord-jinglebox/internal/config"
	"github.com/user/discord-jinglebox/internal/media"
	"github.com/user/discord-jinglebox/internal/playback"
	"github.com/user/discord-jinglebox/internal/store"
)

const commandTimeout = 30 * time.Second

// Bot is the Command Gateway: it turns Discord messages into playback requests.
type Bot struct {
	config  *config.Config
	session *discordgo.Session
	manager *playback.Manager
	plays   *store.FileStore
}

func NewBot(cfg *config.Config) (*Bot, error) {
	// Create Discord session
	session, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}

	// Set intents
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildVoiceStates |
		discordgo.IntentsMessageContent

	// Create store
	store, err := store.NewFileStore(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}

	manager := playback.NewManager(playback.Options{
		Connector: &voiceConnector{
			session: session,
			ffmpeg:  audio.FFmpeg{Path: cfg.FFmpegPath, Volume: cfg.DefaultVolume},
		},
		Resolver: media.NewYTDLP(cfg.ResolveRate, cfg.ResolveBurst),
		Notifier: &textNotifier{session: session},
		PlayLog:  store,
		Clips: playback.Clips{
			Intro: playback.Source{Name: filepath.Base(cfg.IntroClip), Location: cfg.IntroClip},
			Outro: playback.Source{Name: filepath.Base(cfg.OutroClip), Location: cfg.OutroClip},
		},
		EventBuffer: cfg.EventBuffer,
	})

	bot := &Bot{
		config:  cfg,
		session: session,
		manager: manager,
		plays:   store,
	}

	// Register handlers
	session.AddHandler(bot.onReady)
	session.AddHandler(bot.onMessageCreate)

	return bot, nil
}

func (b *Bot) Start() error {
	// Open connection
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open Discord session: %w", err)
	}

	log.Info().Msg("Discord bot started")
	return nil
}

// Stop leaves every voice channel without the outro, then closes the gateway.
// It returns how many voice sessions were open.
func (b *Bot) Stop(ctx context.Context) (int, error) {
	open := b.manager.Registry().Len()
	if err := b.manager.Shutdown(ctx); err != nil {
		log.Error().Err(err).Int("sessions", open).Msg("Failed to close voice sessions")
	}

	// Close Discord session
	if err := b.session.Close(); err != nil {
		return open, fmt.Errorf("failed to close Discord session: %w", err)
	}

	log.Info().Msg("Discord bot stopped")
	return open, nil
}

func (b *Bot) onReady(s *discordgo.Session, event *discordgo.Ready) {
	log.Info().
		Str("username", event.User.Username).
		Int("guilds", len(event.Guilds)).
		Msg("Bot is ready")
}

func (b *Bot) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	// Ignore bot messages
	if m.Author == nil || m.Author.Bot || m.GuildID == "" {
		return
	}

	name, args, ok := parseCommand(b.config.CommandPrefix, m.Content)
	if !ok {
		return
	}
	switch name {
	case "help":
		b.send(s, m.ChannelID, helpText(b.config.CommandPrefix))
		return
	case "history":
		b.send(s, m.ChannelID, b.history(m.GuildID))
		return
	}
	cmd, ok := commandNames[name]
	if !ok {
		return
	}

	req := playback.Request{
		GuildID:       m.GuildID,
		TextChannelID: m.ChannelID,
		UserID:        m.Author.ID,
		Voice:         b.voiceState(s, m.GuildID, m.Author.ID),
		Command:       cmd,
		Args:          args,
	}

	log.Debug().
		Str("guild_id", req.GuildID).
		Str("user_id", req.UserID).
		Str("command", string(cmd)).
		Str("args", args).
		Msg("Received command")

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	msg, err := b.manager.Handle(ctx, req)
	b.send(s, m.ChannelID, replyText(msg, err))
}

// history renders the play log of the guild's current session.
func (b *Bot) history(guildID string) string {
	sess, ok := b.manager.Registry().InGuild(guildID)
	if !ok {
		return "ℹ️ I am not in a voice channel in this server."
	}
	entries, err := b.plays.LoadPlays(sess.ID)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Error().Err(err).Str("session_id", sess.ID).Msg("Failed to load play log")
		return "⚠️ Could not read the play history."
	}
	return historyText(entries)
}

// voiceState looks up the issuer's voice channel in the state cache.
func (b *Bot) voiceState(s *discordgo.Session, guildID, userID string) playback.VoiceState {
	guild, err := s.State.Guild(guildID)
	if err != nil {
		log.Warn().Err(err).Str("guild_id", guildID).Msg("Failed to get guild information")
		return playback.VoiceState{}
	}

	channelID := voiceChannelOf(guild, userID)
	if channelID == "" {
		return playback.VoiceState{}
	}

	vs := playback.VoiceState{ChannelID: channelID}
	if ch, err := s.State.Channel(channelID); err == nil {
		vs.ChannelName = ch.Name
	}
	return vs
}

func (b *Bot) send(s *discordgo.Session, channelID, message string) {
	if message == "" {
		return
	}
	if _, err := s.ChannelMessageSend(channelID, message); err != nil {
		log.Warn().Err(err).Str("channel_id", channelID).Msg("Failed to send message")
	}
}
