package realtime

import "sync"

// Registry tracks which user each realtime session belongs to and how many
// sessions a user currently has open. Presence transitions hang off the
// 0->1 and 1->0 edges of the per-user counter, so every mutation must be
// atomic with respect to other lifecycle events for the same user.
type Registry struct {
	mu     sync.Mutex
	users  map[string]string // sessionID -> userID
	counts map[string]int    // userID -> open sessions
}

func NewRegistry() *Registry {
	return &Registry{
		users:  make(map[string]string),
		counts: make(map[string]int),
	}
}

// Register binds a session to a user and reports whether this is the user's
// first open session (the 0->1 presence transition). Registering an already
// bound session is a no-op.
func (r *Registry) Register(sessionID, userID string) (first bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.users[sessionID]; exists {
		return false
	}
	r.users[sessionID] = userID
	r.counts[userID]++
	return r.counts[userID] == 1
}

// Unregister removes a session binding and reports the bound user and
// whether that was the user's last open session (the ->0 transition).
// ok is false when the session was never registered.
func (r *Registry) Unregister(sessionID string) (userID string, last bool, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok = r.users[sessionID]
	if !ok {
		return "", false, false
	}
	delete(r.users, sessionID)

	r.counts[userID]--
	if r.counts[userID] <= 0 {
		delete(r.counts, userID)
		return userID, true, true
	}
	return userID, false, true
}

// UserOf returns the user bound to a session.
func (r *Registry) UserOf(sessionID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	userID, ok := r.users[sessionID]
	return userID, ok
}

// Connections returns the user's live session count.
func (r *Registry) Connections(userID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[userID]
}
