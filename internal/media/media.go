// Package media resolves user requests into playable stream URLs.
package media

import "fmt"

// Media is a resolved, playable item.
type Media struct {
	Title string
	URL   string
}

// Reason classifies why resolution failed.
type Reason string

const (
	ReasonNetwork       Reason = "network"
	ReasonNoMatch       Reason = "no_match"
	ReasonEmptyPlaylist Reason = "empty_playlist"
	ReasonInvalid       Reason = "invalid_request"
)

// ResolutionError carries a human-readable cause for a failed resolve.
type ResolutionError struct {
	Request string
	Reason  Reason
	Cause   string
	Err     error
}

func (e *ResolutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("could not retrieve information for %q: %s (%v)", e.Request, e.Cause, e.Err)
	}
	return fmt.Sprintf("could not retrieve information for %q: %s", e.Request, e.Cause)
}

func (e *ResolutionError) Unwrap() error { return e.Err }
