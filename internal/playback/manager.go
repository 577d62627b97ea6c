package playback

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Options wires a Manager to its collaborators.
type Options struct {
	Connector   Connector
	Resolver    Resolver
	Notifier    Notifier
	PlayLog     PlayLog
	Clips       Clips
	EventBuffer int
}

// Manager is the Playback Session Manager: it owns the Registry and applies
// gateway commands to the right Session.
type Manager struct {
	registry *Registry
	opts     Options

	ctx    context.Context
	cancel context.CancelFunc
}

func NewManager(opts Options) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		registry: NewRegistry(),
		opts:     opts,
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (m *Manager) Registry() *Registry { return m.registry }

// Handle applies one gateway command and returns the confirmation shown to the issuer.
// Every failure is a *Error and has already been logged.
func (m *Manager) Handle(ctx context.Context, req Request) (string, error) {
	msg, err := m.handle(ctx, req)
	if err != nil {
		log.Warn().
			Err(err).
			Str("guild_id", req.GuildID).
			Str("channel_id", req.Voice.ChannelID).
			Str("user_id", req.UserID).
			Str("command", string(req.Command)).
			Msg("Command failed")
	}
	return msg, err
}

func (m *Manager) handle(ctx context.Context, req Request) (string, error) {
	if req.Voice.ChannelID == "" {
		return "", ErrNotInVoiceChannel
	}
	key := ChannelKey{GuildID: req.GuildID, ChannelID: req.Voice.ChannelID}

	if other, ok := m.registry.InGuild(req.GuildID); ok && other.Key != key {
		return "", guildTaken(other)
	}

	c := command{kind: req.Command, arg: strings.TrimSpace(req.Args), textID: req.TextChannelID}

	switch req.Command {
	case CmdJoinAndPlay, CmdPlay, CmdJoin:
		if req.Command != CmdJoin && c.arg == "" {
			return "", invalid("Usage: play <url or search terms>")
		}
		s, created, err := m.registry.GetOrCreate(ctx, key, func(ctx context.Context) (*Session, error) {
			return m.open(ctx, key, req.Voice.ChannelName)
		})
		var perr *Error
		if errors.As(err, &perr) {
			return "", perr
		}
		if err != nil {
			return "", joinErr(err)
		}
		switch {
		case created && c.kind == CmdPlay:
			c.kind = CmdJoinAndPlay
		case !created && c.kind == CmdJoinAndPlay:
			c.kind = CmdPlay
		}
		return s.submit(ctx, c)
	case CmdPause, CmdResume, CmdStop, CmdLeave:
		s, ok := m.registry.Get(key)
		if !ok {
			return "", invalid("I am not connected to your voice channel.")
		}
		return s.submit(ctx, c)
	default:
		return "", invalid("Unknown command %q.", req.Command)
	}
}

func (m *Manager) open(ctx context.Context, key ChannelKey, channelName string) (*Session, error) {
	conn, err := m.opts.Connector.Connect(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", key, err)
	}
	if channelName == "" {
		channelName = key.ChannelID
	}

	s := newSession(sessionConfig{
		id:          uuid.NewString(),
		key:         key,
		channelName: channelName,
		conn:        conn,
		resolver:    m.opts.Resolver,
		notifier:    m.opts.Notifier,
		playlog:     m.opts.PlayLog,
		clips:       m.opts.Clips,
		buffer:      m.opts.EventBuffer,
		onClose:     m.registry.removeSession,
	})
	go s.run(m.ctx)

	log.Info().
		Str("session_id", s.ID).
		Str("guild_id", key.GuildID).
		Str("channel_id", key.ChannelID).
		Msg("Voice session started")
	return s, nil
}

// Shutdown closes every Session concurrently and waits for them to finish.
func (m *Manager) Shutdown(ctx context.Context) error {
	var g errgroup.Group
	for _, s := range m.registry.Sessions() {
		s := s
		g.Go(func() error {
			if err := s.Close(ctx); err != nil {
				return fmt.Errorf("close session %s: %w", s.ID, err)
			}
			return nil
		})
	}
	err := g.Wait()
	m.cancel()
	return err
}
