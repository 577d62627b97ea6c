package playback

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Registry maps voice channels to their Session. Concurrent creations within a
// guild share one connect attempt; different guilds never wait on each other.
type Registry struct {
	mu       sync.RWMutex
	sessions map[ChannelKey]*Session
	group    singleflight.Group
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[ChannelKey]*Session)}
}

// Get returns the Session for key, if any.
func (r *Registry) Get(key ChannelKey) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[key]
	return s, ok
}

// InGuild returns any Session in the guild. There is at most one, since a
// bot holds a single voice connection per guild.
func (r *Registry) InGuild(guildID string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := r.inGuildLocked(guildID)
	return s, s != nil
}

func (r *Registry) inGuildLocked(guildID string) *Session {
	for key, s := range r.sessions {
		if key.GuildID == guildID {
			return s
		}
	}
	return nil
}

// GetOrCreate returns the registered Session for key or builds one with create.
// created is true only for the caller whose create actually ran. A failed
// create leaves the registry untouched. Creations are collapsed per guild, and
// a guild already held by another channel yields an InvalidCommand error.
func (r *Registry) GetOrCreate(ctx context.Context, key ChannelKey, create func(context.Context) (*Session, error)) (s *Session, created bool, err error) {
	if s, ok := r.Get(key); ok {
		return s, false, nil
	}

	v, err, _ := r.group.Do(key.GuildID, func() (any, error) {
		r.mu.RLock()
		cur, ok := r.sessions[key]
		other := r.inGuildLocked(key.GuildID)
		r.mu.RUnlock()
		if ok {
			return cur, nil
		}
		if other != nil {
			return other, nil
		}

		s, err := create(ctx)
		if err != nil {
			return nil, err
		}
		created = true
		r.mu.Lock()
		r.sessions[key] = s
		r.mu.Unlock()
		return s, nil
	})
	if err != nil {
		return nil, false, err
	}
	s = v.(*Session)
	// callers sharing a flight for another channel of the same guild land here
	if s.Key != key {
		return nil, false, guildTaken(s)
	}
	return s, created, nil
}

func guildTaken(s *Session) *Error {
	return invalid("I am already connected to **%s** in this server.", s.ChannelName)
}

// Remove deletes the mapping for key. Removing an absent key is a no-op.
func (r *Registry) Remove(key ChannelKey) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, key)
}

// removeSession deletes key only while it still maps to s.
func (r *Registry) removeSession(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.sessions[s.Key]; ok && cur == s {
		delete(r.sessions, s.Key)
	}
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Sessions returns a copy of the registered Sessions.
func (r *Registry) Sessions() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}
