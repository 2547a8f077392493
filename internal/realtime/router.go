package realtime

import (
	"sync"

	"github.com/converse-app/converse-backend/pkg/logger"
)

// Sink is the outbound side of a realtime session. socket.io connections
// satisfy it directly; tests substitute fakes.
type Sink interface {
	Emit(event string, args ...interface{})
}

// Forwarder is the boundary through which durable writes reach the router.
// Forwarding is fire-and-forget: a failed or dropped delivery never fails
// the write that triggered it.
type Forwarder interface {
	Forward(ev Event)
}

const eventBufferSize = 256

type session struct {
	id     string
	userID string
	sink   Sink
}

// Router is a directed publish/subscribe hub over three group kinds: the
// per-user inbox group (every session of one user), per-conversation groups
// (sessions that joined a conversation's room), and per-target presence
// watch groups. A single dispatch goroutine is the serialization point, so
// events for the same conversation are delivered in publish order.
type Router struct {
	mu       sync.RWMutex
	sessions map[string]*session
	inboxes  map[string]map[string]*session // userID -> sessionID -> session
	rooms    map[string]map[string]*session // conversationID -> sessionID -> session
	watches  map[string]map[string]*session // target userID -> sessionID -> session

	sessionRooms   map[string]map[string]struct{}
	sessionWatches map[string]map[string]struct{}

	events    chan Event
	done      chan struct{}
	closeOnce sync.Once
	stopped   sync.WaitGroup
}

func NewRouter() *Router {
	r := &Router{
		sessions:       make(map[string]*session),
		inboxes:        make(map[string]map[string]*session),
		rooms:          make(map[string]map[string]*session),
		watches:        make(map[string]map[string]*session),
		sessionRooms:   make(map[string]map[string]struct{}),
		sessionWatches: make(map[string]map[string]struct{}),
		events:         make(chan Event, eventBufferSize),
		done:           make(chan struct{}),
	}
	r.stopped.Add(1)
	go r.run()
	return r
}

// Attach registers a session's sink and adds it to its user's inbox group.
func (r *Router) Attach(sessionID, userID string, sink Sink) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := &session{id: sessionID, userID: userID, sink: sink}
	r.sessions[sessionID] = s

	inbox := r.inboxes[userID]
	if inbox == nil {
		inbox = make(map[string]*session)
		r.inboxes[userID] = inbox
	}
	inbox[sessionID] = s
}

// Detach removes a session from every group. It is synchronous: once it
// returns, no further event reaches the session.
func (r *Router) Detach(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return
	}
	delete(r.sessions, sessionID)

	if inbox := r.inboxes[s.userID]; inbox != nil {
		delete(inbox, sessionID)
		if len(inbox) == 0 {
			delete(r.inboxes, s.userID)
		}
	}

	for roomID := range r.sessionRooms[sessionID] {
		if room := r.rooms[roomID]; room != nil {
			delete(room, sessionID)
			if len(room) == 0 {
				delete(r.rooms, roomID)
			}
		}
	}
	delete(r.sessionRooms, sessionID)

	for target := range r.sessionWatches[sessionID] {
		if watch := r.watches[target]; watch != nil {
			delete(watch, sessionID)
			if len(watch) == 0 {
				delete(r.watches, target)
			}
		}
	}
	delete(r.sessionWatches, sessionID)
}

// JoinConversation adds the session to a conversation group. Membership
// authorization happens upstream in the gateway.
func (r *Router) JoinConversation(sessionID, conversationID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return
	}

	room := r.rooms[conversationID]
	if room == nil {
		room = make(map[string]*session)
		r.rooms[conversationID] = room
	}
	room[sessionID] = s

	memberships := r.sessionRooms[sessionID]
	if memberships == nil {
		memberships = make(map[string]struct{})
		r.sessionRooms[sessionID] = memberships
	}
	memberships[conversationID] = struct{}{}
}

// WatchPresence subscribes the session to a target user's presence changes.
func (r *Router) WatchPresence(sessionID, targetUserID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return
	}

	watch := r.watches[targetUserID]
	if watch == nil {
		watch = make(map[string]*session)
		r.watches[targetUserID] = watch
	}
	watch[sessionID] = s

	subs := r.sessionWatches[sessionID]
	if subs == nil {
		subs = make(map[string]struct{})
		r.sessionWatches[sessionID] = subs
	}
	subs[targetUserID] = struct{}{}
}

// UnwatchPresence removes a presence subscription.
func (r *Router) UnwatchPresence(sessionID, targetUserID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if watch := r.watches[targetUserID]; watch != nil {
		delete(watch, sessionID)
		if len(watch) == 0 {
			delete(r.watches, targetUserID)
		}
	}
	if subs := r.sessionWatches[sessionID]; subs != nil {
		delete(subs, targetUserID)
		if len(subs) == 0 {
			delete(r.sessionWatches, sessionID)
		}
	}
}

// Publish hands an event to the dispatch goroutine. It never blocks: when
// the buffer is full the event is dropped and logged, durable state having
// already been committed by the caller.
func (r *Router) Publish(ev Event) {
	select {
	case <-r.done:
	case r.events <- ev:
	default:
		logger.Warn().Str("event", ev.EventName()).Msg("Event buffer full, dropping realtime event")
	}
}

// Forward implements Forwarder.
func (r *Router) Forward(ev Event) { r.Publish(ev) }

// Close stops the dispatch goroutine. Pending buffered events are dropped.
func (r *Router) Close() {
	r.closeOnce.Do(func() {
		close(r.done)
	})
	r.stopped.Wait()
}

func (r *Router) run() {
	defer r.stopped.Done()
	for {
		select {
		case <-r.done:
			return
		case ev := <-r.events:
			r.dispatch(ev)
		}
	}
}

// dispatch fans an event out to every session the routing rules select,
// at most once per session.
func (r *Router) dispatch(ev Event) {
	targets := r.collect(ev)
	for _, s := range targets {
		s.sink.Emit(ev.EventName(), ev)
	}
}

func (r *Router) collect(ev Event) []*session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	targets := make(map[string]*session)

	switch e := ev.(type) {
	case MessageNew:
		addAll(targets, r.rooms[e.Message.ConversationID])
		addAll(targets, r.inboxes[e.Message.SenderID])
		addAll(targets, r.inboxes[e.Message.RecipientID])
	case MessageRead:
		addAll(targets, r.rooms[e.ConversationID])
	case MessageDeleted:
		if e.Mode == DeleteModeMe {
			addAll(targets, r.inboxes[e.ActorID])
		} else {
			addAll(targets, r.rooms[e.ConversationID])
			addAll(targets, r.inboxes[e.SenderID])
			addAll(targets, r.inboxes[e.RecipientID])
		}
	case TypingUpdate:
		addAll(targets, r.inboxes[e.ToUserID])
		delete(targets, e.FromSessionID)
	case PresenceUpdate:
		addAll(targets, r.watches[e.UserID])
		addAll(targets, r.inboxes[e.UserID])
	default:
		logger.Warn().Str("event", ev.EventName()).Msg("Unroutable event type")
	}

	out := make([]*session, 0, len(targets))
	for _, s := range targets {
		out = append(out, s)
	}
	return out
}

func addAll(dst map[string]*session, src map[string]*session) {
	for id, s := range src {
		dst[id] = s
	}
}
