package guild

import "sync"

// Registry holds one State per guild, created lazily on first use.
type Registry struct {
	mu            sync.Mutex
	states        map[string]*State
	defaultVolume int
}

// NewRegistry creates a Registry. New states start at defaultVolume.
func NewRegistry(defaultVolume int) *Registry {
	return &Registry{
		states:        make(map[string]*State),
		defaultVolume: defaultVolume,
	}
}

// Get returns the guild's state, creating it on first access.
func (r *Registry) Get(guildID string) *State {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.states[guildID]; ok {
		return s
	}
	s := &State{guildID: guildID, volume: r.defaultVolume}
	r.states[guildID] = s
	return s
}

// Peek returns the guild's state without creating it.
func (r *Registry) Peek(guildID string) (*State, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.states[guildID]
	return s, ok
}

// All returns every known guild state.
func (r *Registry) All() []*State {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*State, 0, len(r.states))
	for _, s := range r.states {
		out = append(out, s)
	}
	return out
}
