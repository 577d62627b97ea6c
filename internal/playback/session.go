package playback

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/user/discord-jinglebox/internal/media"
	"github.com/user/discord-jinglebox/internal/store"
)

const teardownTimeout = 10 * time.Second

// event is anything applied by a Session's loop: command, completion,
// fetchResult, disconnected or closeRequest.
type event any

type fetchResult struct {
	seq     int
	request string
	media   media.Media
	err     error
}

type disconnected struct {
	err error
}

type closeRequest struct {
	replyCh chan error
}

// Snapshot is a read-only copy of a Session's state taken after its last event.
type Snapshot struct {
	State          State
	PendingRequest string
	CurrentMedia   *media.Media
	Handle         Handle
	Deferred       int
}

// Session is the per-channel playback state machine. All fields below the
// loop-owned marker are touched only by the run goroutine.
type Session struct {
	ID          string
	Key         ChannelKey
	ChannelName string

	conn     Conn
	engine   *engineAdapter
	resolver Resolver
	notifier Notifier
	playlog  PlayLog
	clips    Clips
	onClose  func(*Session)

	events chan event
	done   chan struct{}

	snapMu sync.RWMutex
	snap   Snapshot

	// loop-owned
	state      State
	pending    string
	current    *media.Media
	handle     Handle
	greeted    bool
	fetchSeq   int
	superseded bool
	deferred   []command
	textID     string
	terminated bool
	outbox     []pendingReply
}

// pendingReply is an answer held back until the Snapshot reflects it.
type pendingReply struct {
	c   command
	res result
}

type sessionConfig struct {
	id          string
	key         ChannelKey
	channelName string
	conn        Conn
	resolver    Resolver
	notifier    Notifier
	playlog     PlayLog
	clips       Clips
	buffer      int
	onClose     func(*Session)
}

func newSession(cfg sessionConfig) *Session {
	if cfg.buffer <= 0 {
		cfg.buffer = 32
	}
	s := &Session{
		ID:          cfg.id,
		Key:         cfg.key,
		ChannelName: cfg.channelName,
		conn:        cfg.conn,
		resolver:    cfg.resolver,
		notifier:    cfg.notifier,
		playlog:     cfg.playlog,
		clips:       cfg.clips,
		onClose:     cfg.onClose,
		events:      make(chan event, cfg.buffer),
		done:        make(chan struct{}),
	}
	s.engine = &engineAdapter{engine: cfg.conn, sessionID: cfg.id, post: s.post}
	return s
}

// Snapshot returns the state as of the last applied event.
func (s *Session) Snapshot() Snapshot {
	s.snapMu.RLock()
	defer s.snapMu.RUnlock()
	return s.snap
}

// Done is closed once the Session reached its terminal state.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) post(ev event) error {
	select {
	case <-s.done:
		return ErrSessionClosed
	default:
	}
	select {
	case s.events <- ev:
		return nil
	case <-s.done:
		return ErrSessionClosed
	}
}

// submit enqueues a command and waits until the loop has answered it.
func (s *Session) submit(ctx context.Context, c command) (string, error) {
	c.replyCh = make(chan result, 1)
	if err := s.post(c); err != nil {
		return "", invalid("I am leaving this channel, try again in a moment.")
	}
	select {
	case r := <-c.replyCh:
		return r.msg, r.err
	case <-s.done:
		select {
		case r := <-c.replyCh:
			return r.msg, r.err
		default:
			return "", invalid("I am leaving this channel, try again in a moment.")
		}
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Close tears the Session down without playing the outro.
func (s *Session) Close(ctx context.Context) error {
	req := closeRequest{replyCh: make(chan error, 1)}
	if err := s.post(req); err != nil {
		return nil
	}
	select {
	case err := <-req.replyCh:
		return err
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) run(ctx context.Context) {
	defer close(s.done)
	s.publish()

	for {
		select {
		case ev := <-s.events:
			s.apply(ctx, ev)
			s.publish()
			s.flush(ctx)
			if s.terminated {
				s.drain(ctx)
				return
			}
		case <-ctx.Done():
			ctx = context.WithoutCancel(ctx)
			s.teardown(ctx)
			s.publish()
			s.flush(ctx)
			s.drain(ctx)
			return
		}
	}
}

func (s *Session) apply(ctx context.Context, ev event) {
	switch ev := ev.(type) {
	case command:
		s.textID = ev.textID
		s.handleCommand(ctx, ev)
	case completion:
		s.handleCompletion(ctx, ev)
	case fetchResult:
		s.handleFetchResult(ctx, ev)
	case disconnected:
		s.handleDisconnected(ev)
	case closeRequest:
		ev.replyCh <- s.teardown(ctx)
	default:
		log.Error().Str("session_id", s.ID).Str("event", fmt.Sprintf("%T", ev)).Msg("Unknown session event")
	}
}

func (s *Session) handleCommand(ctx context.Context, c command) {
	logger := log.With().
		Str("session_id", s.ID).
		Str("command", string(c.kind)).
		Str("state", s.state.String()).
		Logger()

	if s.state == StateFetching && (len(s.deferred) > 0 || c.kind == CmdStop || c.kind == CmdLeave) {
		s.postpone(c)
		logger.Debug().Int("deferred", len(s.deferred)).Msg("Deferred command until fetch completes")
		return
	}

	switch c.kind {
	case CmdJoinAndPlay, CmdJoin:
		if !s.greeted && s.state == StateIdle {
			s.startIntro(ctx, c)
			return
		}
		if c.kind == CmdJoin {
			s.reply(c, "", invalid("I am already connected to **%s**.", s.ChannelName))
			return
		}
		s.play(ctx, c)
	case CmdPlay:
		s.play(ctx, c)
	case CmdPause:
		if s.state != StatePlayingMedia {
			s.reply(c, "", invalid("No audio is playing to pause."))
			return
		}
		if err := s.engine.pause(s.handle); err != nil {
			logger.Error().Err(err).Msg("Failed to pause")
			s.reply(c, "", engineErr("pause playback", err))
			return
		}
		s.state = StatePaused
		s.reply(c, "⏸️ Paused the audio.", nil)
	case CmdResume:
		if s.state != StatePaused {
			s.reply(c, "", invalid("No audio is paused."))
			return
		}
		if err := s.engine.resume(s.handle); err != nil {
			logger.Error().Err(err).Msg("Failed to resume")
			s.reply(c, "", engineErr("resume playback", err))
			return
		}
		s.state = StatePlayingMedia
		s.reply(c, "▶️ Resumed the audio.", nil)
	case CmdStop:
		switch s.state {
		case StatePlayingIntro, StatePlayingMedia, StatePaused:
		default:
			s.reply(c, "", invalid("No audio is playing to stop."))
			return
		}
		if err := s.engine.stop(ctx, s.handle); err != nil {
			logger.Error().Err(err).Msg("Failed to stop")
			s.reply(c, "", engineErr("stop playback", err))
			return
		}
		s.handle = ""
		s.pending = ""
		s.state = StateIdle
		s.reply(c, "⏹️ Stopped the audio playback.", nil)
	case CmdLeave:
		if s.state.leaving() {
			s.reply(c, "👋 Already leaving the voice channel.", nil)
			return
		}
		s.releaseHandle(ctx)
		s.pending = ""
		s.reply(c, "👋 Playing end sound and disconnecting...", nil)
		s.startOutro(ctx)
	default:
		s.reply(c, "", invalid("Unknown command %q.", c.kind))
	}
}

// postpone acknowledges c right away and queues it. Its outcome is reported
// through the Notifier once the lookup finishes.
func (s *Session) postpone(c command) {
	switch c.kind {
	case CmdStop:
		s.reply(c, "⏹️ Will stop once the current lookup finishes.", nil)
	case CmdLeave:
		s.reply(c, "👋 Will leave once the current lookup finishes.", nil)
	default:
		s.reply(c, "⏳ Queued until the current lookup finishes.", nil)
	}
	c.replyCh = nil
	c.async = true
	s.deferred = append(s.deferred, c)
}

func (s *Session) play(ctx context.Context, c command) {
	switch s.state {
	case StateIdle:
		s.startFetch(ctx, c.arg)
		s.reply(c, "🔍 Fetching the song, please wait...", nil)
	case StatePlayingIntro:
		s.pending = c.arg
		s.reply(c, "🎶 Will play that right after the intro.", nil)
	case StateFetching:
		s.pending = c.arg
		s.superseded = true
		s.reply(c, "🔁 Replacing the pending request, fetching it once the current lookup finishes...", nil)
	case StatePlayingMedia, StatePaused:
		s.reply(c, "", invalid("Audio is already playing. Use stop first."))
	default:
		s.reply(c, "", invalid("I am leaving the voice channel."))
	}
}

func (s *Session) startIntro(ctx context.Context, c command) {
	h, err := s.engine.start(ctx, s.clips.Intro)
	if err != nil {
		log.Error().Err(err).Str("session_id", s.ID).Str("clip", s.clips.Intro.Location).Msg("Failed to play intro clip")
		s.state = StateIdle
		s.pending = ""
		s.reply(c, "", engineErr("play "+s.clips.Intro.Name, err))
		return
	}
	s.greeted = true
	s.handle = h
	s.pending = c.arg
	s.state = StatePlayingIntro
	s.reply(c, fmt.Sprintf("✅ Joined **%s**", s.ChannelName), nil)
}

func (s *Session) startOutro(ctx context.Context) {
	h, err := s.engine.start(ctx, s.clips.Outro)
	if err != nil {
		log.Error().Err(err).Str("session_id", s.ID).Str("clip", s.clips.Outro.Location).Msg("Failed to play outro clip")
		s.notify(ctx, engineErr("play "+s.clips.Outro.Name, err))
		s.beginDisconnect(ctx)
		return
	}
	s.handle = h
	s.state = StatePlayingOutro
}

func (s *Session) startFetch(ctx context.Context, request string) {
	s.fetchSeq++
	seq := s.fetchSeq
	s.pending = request
	s.superseded = false
	s.state = StateFetching

	log.Info().Str("session_id", s.ID).Str("request", request).Int("seq", seq).Msg("Resolving media")
	go func() {
		m, err := s.resolver.Resolve(ctx, request)
		if perr := s.post(fetchResult{seq: seq, request: request, media: m, err: err}); perr != nil {
			log.Warn().Err(perr).Str("session_id", s.ID).Str("request", request).Msg("Dropped resolver result")
		}
	}()
}

func (s *Session) handleFetchResult(ctx context.Context, ev fetchResult) {
	if s.state != StateFetching || ev.seq != s.fetchSeq {
		log.Debug().Str("session_id", s.ID).Int("seq", ev.seq).Msg("Ignoring stale resolver result")
		return
	}

	if len(s.deferred) > 0 {
		if ev.err != nil {
			log.Error().Err(ev.err).Str("session_id", s.ID).Str("request", ev.request).Msg("Failed to resolve media")
			s.notify(ctx, resolutionErr(ev.err))
		} else {
			log.Info().Str("session_id", s.ID).Str("title", ev.media.Title).Msg("Discarding fetched media")
		}
		cmds := s.deferred
		s.deferred = nil
		s.pending = ""
		s.superseded = false
		s.state = StateIdle
		for i, c := range cmds {
			if i == 0 && c.kind == CmdStop {
				msg := "⏹️ Stopped the audio playback."
				if ev.err == nil {
					msg = "⏹️ Stopped; the fetched media was discarded."
				}
				s.reply(c, msg, nil)
				continue
			}
			s.apply(ctx, c)
		}
		return
	}

	if s.superseded {
		log.Info().Str("session_id", s.ID).Str("request", ev.request).Str("next", s.pending).Msg("Resolve superseded by newer request")
		s.startFetch(ctx, s.pending)
		return
	}

	s.pending = ""
	if ev.err != nil {
		log.Error().Err(ev.err).Str("session_id", s.ID).Str("request", ev.request).Msg("Failed to resolve media")
		s.state = StateIdle
		s.notify(ctx, resolutionErr(ev.err))
		return
	}

	h, err := s.engine.start(ctx, Source{Name: ev.media.Title, Location: ev.media.URL})
	if err != nil {
		log.Error().Err(err).Str("session_id", s.ID).Str("title", ev.media.Title).Msg("Failed to start media")
		s.state = StateIdle
		s.notify(ctx, engineErr("play "+ev.media.Title, err))
		return
	}
	m := ev.media
	s.handle = h
	s.current = &m
	s.state = StatePlayingMedia
	s.say(ctx, fmt.Sprintf("▶️ Now playing: **%s**", m.Title))

	if s.playlog != nil {
		entry := store.PlayEntry{
			GuildID:   s.Key.GuildID,
			ChannelID: s.Key.ChannelID,
			Request:   ev.request,
			Title:     m.Title,
			URL:       m.URL,
			StartedAt: time.Now(),
		}
		if err := s.playlog.AppendPlay(s.ID, entry); err != nil {
			log.Warn().Err(err).Str("session_id", s.ID).Msg("Failed to record play")
		}
	}
}

func (s *Session) handleCompletion(ctx context.Context, ev completion) {
	if s.handle == "" || ev.handle != s.handle {
		log.Debug().Str("session_id", s.ID).Str("handle", string(ev.handle)).Msg("Ignoring completion of released handle")
		return
	}
	s.handle = ""

	logger := log.With().Str("session_id", s.ID).Str("state", s.state.String()).Logger()
	if !s.state.holdsHandle() {
		logger.Error().Msg("Completion in state without handle")
		return
	}
	if ev.err != nil {
		logger.Warn().Err(ev.err).Msg("Playback finished with error")
	}

	switch s.state {
	case StatePlayingIntro:
		if s.pending == "" {
			s.state = StateIdle
			return
		}
		s.startFetch(ctx, s.pending)
	case StatePlayingMedia, StatePaused:
		s.state = StateIdle
		if ev.err != nil {
			s.notify(ctx, engineErr("keep playing", ev.err))
			return
		}
		logger.Info().Msg("Media finished")
	case StatePlayingOutro:
		s.beginDisconnect(ctx)
	}
}

func (s *Session) beginDisconnect(ctx context.Context) {
	s.handle = ""
	s.state = StateDisconnecting
	go func() {
		dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), teardownTimeout)
		defer cancel()
		err := s.conn.Disconnect(dctx)
		if perr := s.post(disconnected{err: err}); perr != nil {
			log.Warn().Err(perr).Str("session_id", s.ID).Msg("Dropped disconnect result")
		}
	}()
}

func (s *Session) handleDisconnected(ev disconnected) {
	if ev.err != nil {
		log.Error().Err(ev.err).Str("session_id", s.ID).Msg("Error disconnecting")
	}
	s.terminate()
	log.Info().Str("session_id", s.ID).Str("channel_id", s.Key.ChannelID).Msg("Session ended")
}

// releaseHandle stops whatever is playing. Failures are logged only: the
// caller is leaving and the engine invalidates the handle either way.
func (s *Session) releaseHandle(ctx context.Context) {
	if s.handle == "" {
		return
	}
	if err := s.engine.stop(ctx, s.handle); err != nil {
		log.Warn().Err(err).Str("session_id", s.ID).Str("handle", string(s.handle)).Msg("Failed to stop playback")
	}
	s.handle = ""
}

func (s *Session) teardown(ctx context.Context) error {
	if s.terminated {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, teardownTimeout)
	defer cancel()

	s.releaseHandle(ctx)
	err := s.conn.Disconnect(ctx)
	if err != nil {
		log.Error().Err(err).Str("session_id", s.ID).Msg("Error disconnecting")
	}
	s.terminate()
	return err
}

func (s *Session) terminate() {
	s.state = StateDisconnecting
	s.handle = ""
	s.current = nil
	s.pending = ""
	s.terminated = true
	if s.onClose != nil {
		s.onClose(s)
	}
}

// drain answers commands that were queued behind the terminal event.
func (s *Session) drain(ctx context.Context) {
	for _, c := range s.deferred {
		s.deliver(ctx, c, "", invalid("I left the voice channel."))
	}
	s.deferred = nil
	for {
		select {
		case ev := <-s.events:
			switch ev := ev.(type) {
			case command:
				ev.reply("", invalid("I left the voice channel."))
			case closeRequest:
				ev.replyCh <- nil
			}
		default:
			return
		}
	}
}

func (s *Session) reply(c command, msg string, err error) {
	s.outbox = append(s.outbox, pendingReply{c: c, res: result{msg: msg, err: err}})
}

func (s *Session) flush(ctx context.Context) {
	for _, r := range s.outbox {
		s.deliver(ctx, r.c, r.res.msg, r.res.err)
	}
	s.outbox = nil
}

// deliver answers the waiting issuer, or posts to its text channel when
// the command was acknowledged earlier.
func (s *Session) deliver(ctx context.Context, c command, msg string, err error) {
	if !c.async {
		c.reply(msg, err)
		return
	}
	if s.notifier == nil || c.textID == "" {
		return
	}
	if err != nil {
		msg = UserMessage(err)
	}
	s.notifier.Notify(ctx, c.textID, msg)
}

func (s *Session) publish() {
	snap := Snapshot{
		State:          s.state,
		PendingRequest: s.pending,
		CurrentMedia:   s.current,
		Handle:         s.handle,
		Deferred:       len(s.deferred),
	}
	s.snapMu.Lock()
	s.snap = snap
	s.snapMu.Unlock()
}

func (s *Session) notify(ctx context.Context, err error) {
	s.say(ctx, UserMessage(err))
}

func (s *Session) say(ctx context.Context, msg string) {
	if s.notifier == nil || s.textID == "" {
		return
	}
	s.notifier.Notify(ctx, s.textID, msg)
}
