package playback

// State is the position of a Session in its playback lifecycle.
type State int

const (
	StateIdle State = iota
	StatePlayingIntro
	StateFetching
	StatePlayingMedia
	StatePaused
	StatePlayingOutro
	StateDisconnecting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePlayingIntro:
		return "playing_intro"
	case StateFetching:
		return "fetching"
	case StatePlayingMedia:
		return "playing_media"
	case StatePaused:
		return "paused"
	case StatePlayingOutro:
		return "playing_outro"
	case StateDisconnecting:
		return "disconnecting"
	default:
		return "unknown"
	}
}

// holdsHandle reports whether a Session in this state owns a live engine handle.
func (s State) holdsHandle() bool {
	switch s {
	case StatePlayingIntro, StatePlayingMedia, StatePaused, StatePlayingOutro:
		return true
	}
	return false
}

// leaving reports whether the Session is already on its way out.
func (s State) leaving() bool {
	return s == StatePlayingOutro || s == StateDisconnecting
}
