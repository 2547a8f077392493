package realtime

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	socketio "github.com/googollee/go-socket.io"
	"github.com/googollee/go-socket.io/engineio"
	"github.com/googollee/go-socket.io/engineio/transport"
	"github.com/googollee/go-socket.io/engineio/transport/polling"
	"github.com/googollee/go-socket.io/engineio/transport/websocket"

	"github.com/converse-app/converse-backend/pkg/logger"
)

// Typing timing knobs. These mirror the client contract (re-signal at most
// once per second while typing, receiver-side expiry ~1.2s); the server
// tolerates faster senders by throttling, it does not enforce the contract.
const (
	TypingThrottle       = 500 * time.Millisecond
	TypingReceiverExpiry = 1200 * time.Millisecond
)

// Directory is what the gateway needs from the persistence-backed services:
// presence persistence, presence authorization, and conversation membership.
type Directory interface {
	// SetOnline persists the online flag and last-seen and returns the
	// presence event reflecting exactly what was persisted.
	SetOnline(userID string, online bool, at time.Time) (PresenceUpdate, error)
	CanWatch(watcherID, targetID string) (bool, error)
	IsParticipant(userID, conversationID string) (bool, error)
	// Snapshot reads the target's current persisted presence, served to a
	// watcher right after a successful subscribe.
	Snapshot(userID string) (PresenceUpdate, error)
}

// Authenticator resolves a credential token to a user id.
type Authenticator func(token string) (userID string, err error)

// Gateway owns the socket.io transport and translates connection lifecycle
// and client events into registry and router operations.
type Gateway struct {
	server    *socketio.Server
	router    *Router
	registry  *Registry
	directory Directory
	auth      Authenticator

	typingMu   sync.Mutex
	lastTyping map[string]time.Time // userID -> last typing=true emit
}

func NewGateway(router *Router, registry *Registry, directory Directory, auth Authenticator) *Gateway {
	server := socketio.NewServer(&engineio.Options{
		Transports: []transport.Transport{
			&websocket.Transport{
				CheckOrigin: func(r *http.Request) bool { return true },
			},
			&polling.Transport{
				CheckOrigin: func(r *http.Request) bool { return true },
			},
		},
	})

	g := &Gateway{
		server:     server,
		router:     router,
		registry:   registry,
		directory:  directory,
		auth:       auth,
		lastTyping: make(map[string]time.Time),
	}

	server.OnConnect("/", g.onConnect)
	server.OnEvent("/", "conversation:join", g.onConversationJoin)
	server.OnEvent("/", "typing:update", g.onTypingUpdate)
	server.OnEvent("/", "presence:subscribe", g.onPresenceSubscribe)
	server.OnEvent("/", "presence:unsubscribe", g.onPresenceUnsubscribe)
	server.OnDisconnect("/", g.onDisconnect)
	server.OnError("/", func(s socketio.Conn, e error) {
		logger.Warn().Err(e).Msg("Socket error")
	})

	return g
}

// Serve starts the socket.io accept loop.
func (g *Gateway) Serve() {
	go func() {
		if err := g.server.Serve(); err != nil {
			logger.Error().Err(err).Msg("Socket server stopped")
		}
	}()
}

// Close shuts the transport down.
func (g *Gateway) Close() error {
	return g.server.Close()
}

// Handler wraps the socket.io server for gin.
func (g *Gateway) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		g.server.ServeHTTP(c.Writer, c.Request)
	}
}

func (g *Gateway) onConnect(s socketio.Conn) error {
	s.SetContext("")
	url := s.URL()

	token := url.Query().Get("token")
	if token == "" {
		token = url.Query().Get("auth_token") // Fallback
	}
	if token == "" {
		logger.Warn().Str("session", s.ID()).Msg("Socket connection rejected: no token provided")
		return errors.New("authentication required")
	}

	userID, err := g.auth(token)
	if err != nil {
		logger.Warn().Str("session", s.ID()).Msg("Socket connection rejected: invalid token")
		return errors.New("invalid token")
	}

	// Store userID in socket context for O(1) lookup
	s.SetContext(userID)

	g.router.Attach(s.ID(), userID, s)
	first := g.registry.Register(s.ID(), userID)

	// Presence flips only on the user's first open session. Persist first,
	// then publish the event reflecting the persisted state.
	if first {
		ev, err := g.directory.SetOnline(userID, true, time.Now())
		if err != nil {
			logger.Error().Err(err).Str("user", userID).Msg("Failed to persist online presence")
		} else {
			g.router.Publish(ev)
		}
	}

	logger.Debug().Str("session", s.ID()).Str("user", userID).Msg("Socket authenticated")
	return nil
}

func (g *Gateway) onDisconnect(s socketio.Conn, reason string) {
	// Group removal is synchronous; a reconnect is a brand-new session.
	g.router.Detach(s.ID())

	userID, last, ok := g.registry.Unregister(s.ID())
	if !ok {
		return
	}

	if last {
		ev, err := g.directory.SetOnline(userID, false, time.Now())
		if err != nil {
			logger.Error().Err(err).Str("user", userID).Msg("Failed to persist offline presence")
			return
		}
		g.router.Publish(ev)
	}

	logger.Debug().Str("session", s.ID()).Str("reason", reason).Msg("Socket closed")
}

func (g *Gateway) onConversationJoin(s socketio.Conn, data map[string]interface{}) {
	userID, _ := s.Context().(string)
	if userID == "" {
		return
	}
	conversationID, _ := data["conversationId"].(string)
	if conversationID == "" {
		return
	}

	ok, err := g.directory.IsParticipant(userID, conversationID)
	if err != nil {
		logger.Error().Err(err).Str("conversation", conversationID).Msg("Membership check failed")
		return
	}
	if !ok {
		logger.Warn().Str("user", userID).Str("conversation", conversationID).Msg("Rejected join: not a participant")
		return
	}

	g.router.JoinConversation(s.ID(), conversationID)
}

func (g *Gateway) onTypingUpdate(s socketio.Conn, data map[string]interface{}) {
	userID, _ := s.Context().(string)
	if userID == "" {
		return
	}
	conversationID, _ := data["conversationId"].(string)
	toUserID, _ := data["toUserId"].(string)
	isTyping, _ := data["isTyping"].(bool)
	if conversationID == "" || toUserID == "" {
		return
	}

	// Throttle repeated typing=true signals; stop signals always pass so
	// receivers can clear their indicator promptly.
	if isTyping && !g.allowTyping(userID) {
		return
	}

	g.router.Publish(TypingUpdate{
		ConversationID: conversationID,
		FromUserID:     userID,
		ToUserID:       toUserID,
		IsTyping:       isTyping,
		FromSessionID:  s.ID(),
	})
}

func (g *Gateway) onPresenceSubscribe(s socketio.Conn, data map[string]interface{}) {
	userID, _ := s.Context().(string)
	if userID == "" {
		return
	}
	targetID, _ := data["userId"].(string)
	if targetID == "" {
		return
	}

	ok, err := g.directory.CanWatch(userID, targetID)
	if err != nil {
		logger.Error().Err(err).Str("target", targetID).Msg("Presence authorization failed")
		return
	}
	if !ok {
		logger.Warn().Str("watcher", userID).Str("target", targetID).Msg("Rejected presence subscribe")
		return
	}

	g.router.WatchPresence(s.ID(), targetID)

	// Serve the current persisted state to the new watcher directly.
	snapshot, err := g.directory.Snapshot(targetID)
	if err != nil {
		logger.Error().Err(err).Str("target", targetID).Msg("Presence snapshot failed")
		return
	}
	s.Emit(snapshot.EventName(), snapshot)
}

func (g *Gateway) onPresenceUnsubscribe(s socketio.Conn, data map[string]interface{}) {
	targetID, _ := data["userId"].(string)
	if targetID == "" {
		return
	}
	g.router.UnwatchPresence(s.ID(), targetID)
}

func (g *Gateway) allowTyping(userID string) bool {
	g.typingMu.Lock()
	defer g.typingMu.Unlock()

	now := time.Now()
	if last, ok := g.lastTyping[userID]; ok && now.Sub(last) < TypingThrottle {
		return false
	}
	g.lastTyping[userID] = now
	return true
}
