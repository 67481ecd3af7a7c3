package mcp

import (
	"slices"
	"sync"
)

// SessionRegistry maps perspectives to the MCP sessions watching them.
// Populated when a client calls bpmn.overlays with watch set. The empty
// perspective means every perspective.
type SessionRegistry struct {
	mu       sync.RWMutex
	watchers map[string][]string // perspective → sessionIDs
}

// NewSessionRegistry creates a new empty SessionRegistry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{watchers: make(map[string][]string)}
}

// Register adds sessionID as a watcher of perspective. Registering twice is a no-op.
func (r *SessionRegistry) Register(perspective, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !slices.Contains(r.watchers[perspective], sessionID) {
		r.watchers[perspective] = append(r.watchers[perspective], sessionID)
	}
}

// SessionsFor returns the sessions to notify about perspective: its own
// watchers plus those watching everything. An empty perspective concerns
// every watcher.
func (r *SessionRegistry) SessionsFor(perspective string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []string
	add := func(ids []string) {
		for _, id := range ids {
			if !slices.Contains(out, id) {
				out = append(out, id)
			}
		}
	}
	if perspective == "" {
		for _, ids := range r.watchers {
			add(ids)
		}
		slices.Sort(out)
		return out
	}
	add(r.watchers[perspective])
	add(r.watchers[""])
	return out
}

// Remove deletes every registration of sessionID.
// Called when a session disconnects.
func (r *SessionRegistry) Remove(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for p, ids := range r.watchers {
		ids = slices.DeleteFunc(ids, func(id string) bool { return id == sessionID })
		if len(ids) == 0 {
			delete(r.watchers, p)
		} else {
			r.watchers[p] = ids
		}
	}
}
