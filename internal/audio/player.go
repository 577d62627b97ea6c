package audio

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/user/discord-jinglebox/internal/playback"
)

// Player is the Audio Engine for one voice connection. It plays one source at
// a time and reports each finished playback through its completion callback.
type Player struct {
	sink       Sink
	opener     Opener
	newEncoder func() (Encoder, error)

	mutex  sync.Mutex
	tracks map[playback.Handle]*track
}

type track struct {
	handle playback.Handle
	source playback.Source
	ctx    context.Context
	cancel context.CancelFunc
	paused atomic.Bool
	wake   chan struct{}
	done   chan struct{}
}

func NewPlayer(sink Sink, opener Opener, newEncoder func() (Encoder, error)) *Player {
	if newEncoder == nil {
		newEncoder = NewOpusEncoder
	}
	return &Player{
		sink:       sink,
		opener:     opener,
		newEncoder: newEncoder,
		tracks:     make(map[playback.Handle]*track),
	}
}

// Start opens src and streams it in the background.
func (p *Player) Start(ctx context.Context, src playback.Source, onComplete func(playback.Handle, error)) (playback.Handle, error) {
	p.mutex.Lock()
	busy := len(p.tracks) > 0
	p.mutex.Unlock()
	if busy {
		return "", ErrBusy
	}

	encoder, err := p.newEncoder()
	if err != nil {
		return "", err
	}

	tctx, cancel := context.WithCancel(ctx)
	pcm, cleanup, err := p.opener.Open(tctx, src)
	if err != nil {
		cancel()
		return "", fmt.Errorf("failed to open %s: %w", src.Name, err)
	}

	t := &track{
		handle: playback.Handle(uuid.NewString()),
		source: src,
		ctx:    tctx,
		cancel: cancel,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}

	p.mutex.Lock()
	p.tracks[t.handle] = t
	p.mutex.Unlock()

	log.Info().
		Str("handle", string(t.handle)).
		Str("source", src.Name).
		Msg("Playback started")

	go p.stream(t, pcm, cleanup, encoder, onComplete)
	return t.handle, nil
}

func (p *Player) stream(t *track, pcm io.ReadCloser, cleanup func(), encoder Encoder, onComplete func(playback.Handle, error)) {
	err := p.pump(t, pcm, encoder)

	pcm.Close()
	if cleanup != nil {
		cleanup()
	}
	if serr := p.sink.Speaking(false); serr != nil {
		log.Debug().Err(serr).Str("handle", string(t.handle)).Msg("Failed to clear speaking state")
	}

	p.mutex.Lock()
	delete(p.tracks, t.handle)
	p.mutex.Unlock()
	t.cancel()
	close(t.done)

	if err != nil {
		log.Warn().Err(err).Str("handle", string(t.handle)).Str("source", t.source.Name).Msg("Playback finished with error")
	} else {
		log.Info().Str("handle", string(t.handle)).Str("source", t.source.Name).Msg("Playback finished")
	}

	if onComplete != nil {
		onComplete(t.handle, err)
	}
}

// pump moves frames from pcm to the sink until EOF or cancellation.
func (p *Player) pump(t *track, pcm io.Reader, encoder Encoder) error {
	if err := p.sink.Speaking(true); err != nil {
		log.Warn().Err(err).Str("handle", string(t.handle)).Msg("Failed to set speaking state")
	}

	pcmBuf := make([]byte, frameBytes)
	intBuf := make([]int16, FrameSize*Channels)

	for {
		if t.ctx.Err() != nil {
			return nil
		}
		if t.paused.Load() {
			select {
			case <-t.ctx.Done():
				return nil
			case <-t.wake:
			}
			continue
		}

		_, err := io.ReadFull(pcm, pcmBuf)
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil
		}
		if err != nil {
			if t.ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read error: %w", err)
		}

		for i := range intBuf {
			intBuf[i] = int16(binary.LittleEndian.Uint16(pcmBuf[i*2 : i*2+2]))
		}

		opus, err := encoder.Encode(intBuf)
		if err != nil {
			return fmt.Errorf("encode error: %w", err)
		}

		if err := p.sink.Send(t.ctx, opus); err != nil {
			if t.ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("send error: %w", err)
		}
	}
}

func (p *Player) lookup(h playback.Handle) (*track, bool) {
	p.mutex.Lock()
	defer p.mutex.Unlock()
	t, ok := p.tracks[h]
	return t, ok
}

func (p *Player) Pause(h playback.Handle) error {
	t, ok := p.lookup(h)
	if !ok {
		return ErrUnknownHandle
	}
	t.paused.Store(true)
	return nil
}

func (p *Player) Resume(h playback.Handle) error {
	t, ok := p.lookup(h)
	if !ok {
		return ErrUnknownHandle
	}
	if t.paused.CompareAndSwap(true, false) {
		select {
		case t.wake <- struct{}{}:
		default:
		}
	}
	return nil
}

// Stop ends playback of h and waits for its stream to wind down. Stopping a
// handle that already finished is a no-op.
func (p *Player) Stop(ctx context.Context, h playback.Handle) error {
	t, ok := p.lookup(h)
	if !ok {
		return nil
	}
	t.cancel()
	select {
	case <-t.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Disconnect stops everything and leaves the voice channel.
func (p *Player) Disconnect(ctx context.Context) error {
	p.mutex.Lock()
	handles := make([]playback.Handle, 0, len(p.tracks))
	for h := range p.tracks {
		handles = append(handles, h)
	}
	p.mutex.Unlock()

	for _, h := range handles {
		if err := p.Stop(ctx, h); err != nil {
			return err
		}
	}
	return p.sink.Disconnect()
}
