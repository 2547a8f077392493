package handlers

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/converse-app/converse-backend/internal/config"
	"github.com/converse-app/converse-backend/internal/models"
	"github.com/converse-app/converse-backend/internal/realtime"
	"github.com/converse-app/converse-backend/pkg/logger"
)

// IngressHandler is the notification ingress: writes performed outside the
// realtime layer (other processes, background jobs) post their committed
// events here and the router fans them out. The endpoint is guarded by a
// shared secret header, not user auth.
type IngressHandler struct {
	fw realtime.Forwarder
}

func NewIngressHandler(fw realtime.Forwarder) *IngressHandler {
	return &IngressHandler{fw: fw}
}

type ingressEnvelope struct {
	Type    string          `json:"type" binding:"required"`
	Payload json.RawMessage `json:"payload" binding:"required"`
}

// HandleEvent accepts {type, payload} and applies the router's fan-out
// rules. The write behind the event is already durable, so ingestion always
// acknowledges once the envelope is valid.
func (h *IngressHandler) HandleEvent(c *gin.Context) {
	secret := config.AppConfig.InternalEventSecret
	provided := c.GetHeader("X-Internal-Secret")
	if secret == "" || subtle.ConstantTimeCompare([]byte(secret), []byte(provided)) != 1 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid internal secret"})
		return
	}

	var env ingressEnvelope
	if err := c.ShouldBindJSON(&env); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid event envelope"})
		return
	}

	ev, err := decodeIngressEvent(env)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.fw.Forward(ev)
	logger.Debug().Str("type", env.Type).Msg("Ingress event accepted")
	c.JSON(http.StatusOK, gin.H{"accepted": true})
}

func decodeIngressEvent(env ingressEnvelope) (realtime.Event, error) {
	switch env.Type {
	case "message:new":
		var msg models.Message
		if err := json.Unmarshal(env.Payload, &msg); err != nil {
			return nil, errBadPayload
		}
		if msg.ConversationID == "" || msg.SenderID == "" || msg.RecipientID == "" {
			return nil, errBadPayload
		}
		return realtime.MessageNew{Message: msg}, nil

	case "message:read":
		var ev realtime.MessageRead
		if err := json.Unmarshal(env.Payload, &ev); err != nil {
			return nil, errBadPayload
		}
		if ev.ConversationID == "" || ev.ReaderID == "" {
			return nil, errBadPayload
		}
		return ev, nil

	case "message:deleted":
		var ev realtime.MessageDeleted
		if err := json.Unmarshal(env.Payload, &ev); err != nil {
			return nil, errBadPayload
		}
		if _, ok := realtime.ParseDeleteMode(string(ev.Mode)); !ok {
			return nil, errBadPayload
		}
		if ev.ConversationID == "" || ev.ActorID == "" {
			return nil, errBadPayload
		}
		return ev, nil

	default:
		return nil, errUnknownEventType
	}
}

var (
	errBadPayload       = &ingressError{"Invalid event payload"}
	errUnknownEventType = &ingressError{"Unknown event type"}
)

type ingressError struct{ msg string }

func (e *ingressError) Error() string { return e.msg }
