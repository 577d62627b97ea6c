package playback

import (
	"errors"
	"fmt"

	"github.com/user/discord-jinglebox/internal/media"
)

// Kind classifies errors surfaced to command issuers.
type Kind int

const (
	KindNotInVoiceChannel Kind = iota + 1
	KindJoinFailure
	KindResolution
	KindEngine
	KindInvalidCommand
)

var (
	ErrNotInVoiceChannel = &Error{Kind: KindNotInVoiceChannel, Msg: "you are not connected to a voice channel"}
	ErrJoinFailure       = &Error{Kind: KindJoinFailure, Msg: "could not join the voice channel"}
	ErrResolution        = &Error{Kind: KindResolution, Msg: "could not resolve media"}
	ErrEngine            = &Error{Kind: KindEngine, Msg: "audio engine failure"}
	ErrInvalidCommand    = &Error{Kind: KindInvalidCommand, Msg: "command not valid right now"}

	// ErrSessionClosed is returned when an event reaches a Session whose loop has exited.
	ErrSessionClosed = errors.New("session closed")
)

// Error is the typed failure returned by Manager.Handle and reported via Notifier.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so callers can use errors.Is(err, ErrInvalidCommand).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

func invalid(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidCommand, Msg: fmt.Sprintf(format, args...)}
}

func engineErr(op string, err error) *Error {
	return &Error{Kind: KindEngine, Msg: "failed to " + op, Err: err}
}

func joinErr(err error) *Error {
	return &Error{Kind: KindJoinFailure, Msg: "could not join the voice channel", Err: err}
}

func resolutionErr(err error) *Error {
	var re *media.ResolutionError
	if errors.As(err, &re) {
		return &Error{Kind: KindResolution, Msg: "could not retrieve media", Err: re}
	}
	return &Error{Kind: KindResolution, Msg: "could not retrieve media", Err: err}
}

// UserMessage renders err the way it is shown to the command issuer.
func UserMessage(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return "⚠️ An error occurred: " + err.Error()
	}
	switch e.Kind {
	case KindNotInVoiceChannel:
		return "🚫 You are not connected to a voice channel. Please join one and try again."
	case KindJoinFailure:
		return "⚠️ " + e.Error()
	case KindInvalidCommand:
		return "ℹ️ " + e.Msg
	default:
		return "⚠️ " + e.Error()
	}
}
