package playback

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// completion is the marshaled form of an engine onComplete callback.
type completion struct {
	handle Handle
	err    error
}

// engineAdapter re-enters the owning Session's event stream for every engine
// completion instead of touching Session fields from the engine's goroutine.
type engineAdapter struct {
	engine    Engine
	sessionID string
	post      func(event) error
}

func (a *engineAdapter) start(ctx context.Context, src Source) (Handle, error) {
	var once sync.Once
	return a.engine.Start(ctx, src, func(h Handle, err error) {
		once.Do(func() {
			if perr := a.post(completion{handle: h, err: err}); perr != nil {
				// the Session may legitimately be gone already
				log.Warn().
					Err(perr).
					Str("session_id", a.sessionID).
					Str("handle", string(h)).
					Msg("Dropped engine completion")
			}
		})
	})
}

func (a *engineAdapter) pause(h Handle) error  { return a.engine.Pause(h) }
func (a *engineAdapter) resume(h Handle) error { return a.engine.Resume(h) }

func (a *engineAdapter) stop(ctx context.Context, h Handle) error {
	return a.engine.Stop(ctx, h)
}
