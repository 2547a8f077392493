package handlers

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/converse-app/converse-backend/internal/config"
	"github.com/converse-app/converse-backend/internal/realtime"
)

type fakeForwarder struct {
	events []realtime.Event
}

func (f *fakeForwarder) Forward(ev realtime.Event) {
	f.events = append(f.events, ev)
}

func postIngress(h *IngressHandler, secret, body string) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/api/internal/events", bytes.NewBufferString(body))
	c.Request.Header.Set("Content-Type", "application/json")
	if secret != "" {
		c.Request.Header.Set("X-Internal-Secret", secret)
	}
	h.HandleEvent(c)
	return w
}

func TestIngressRejectsWrongSecret(t *testing.T) {
	config.AppConfig = &config.Config{InternalEventSecret: "topsecret"}
	fw := &fakeForwarder{}
	h := NewIngressHandler(fw)

	w := postIngress(h, "wrong", `{"type":"message:read","payload":{}}`)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, fw.events)
}

func TestIngressRejectsWhenSecretUnconfigured(t *testing.T) {
	// An empty configured secret closes the endpoint entirely
	config.AppConfig = &config.Config{InternalEventSecret: ""}
	fw := &fakeForwarder{}
	h := NewIngressHandler(fw)

	w := postIngress(h, "", `{"type":"message:read","payload":{}}`)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, fw.events)
}

func TestIngressRejectsMalformedEnvelope(t *testing.T) {
	config.AppConfig = &config.Config{InternalEventSecret: "topsecret"}
	fw := &fakeForwarder{}
	h := NewIngressHandler(fw)

	w := postIngress(h, "topsecret", `{"nope":true}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, fw.events)
}

func TestIngressRejectsUnknownType(t *testing.T) {
	config.AppConfig = &config.Config{InternalEventSecret: "topsecret"}
	fw := &fakeForwarder{}
	h := NewIngressHandler(fw)

	w := postIngress(h, "topsecret", `{"type":"message:liked","payload":{}}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, fw.events)
}

func TestIngressRejectsIncompletePayload(t *testing.T) {
	config.AppConfig = &config.Config{InternalEventSecret: "topsecret"}
	fw := &fakeForwarder{}
	h := NewIngressHandler(fw)

	// message:new without a recipient
	w := postIngress(h, "topsecret", `{"type":"message:new","payload":{"conversationId":"c1","senderId":"u1"}}`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, fw.events)
}

func TestIngressForwardsMessageNew(t *testing.T) {
	config.AppConfig = &config.Config{InternalEventSecret: "topsecret"}
	fw := &fakeForwarder{}
	h := NewIngressHandler(fw)

	body := `{"type":"message:new","payload":{"id":"m1","conversationId":"c1","senderId":"u1","recipientId":"u2","content":"hi"}}`
	w := postIngress(h, "topsecret", body)

	assert.Equal(t, http.StatusOK, w.Code)
	require.Len(t, fw.events, 1)

	ev, ok := fw.events[0].(realtime.MessageNew)
	require.True(t, ok)
	assert.Equal(t, "m1", ev.Message.ID)
	assert.Equal(t, "c1", ev.Message.ConversationID)
	assert.Equal(t, "hi", ev.Message.Content)
}

func TestIngressForwardsMessageDeleted(t *testing.T) {
	config.AppConfig = &config.Config{InternalEventSecret: "topsecret"}
	fw := &fakeForwarder{}
	h := NewIngressHandler(fw)

	body := `{"type":"message:deleted","payload":{"conversationId":"c1","messageId":"m1","mode":"everyone","actorId":"u1","senderId":"u1","recipientId":"u2"}}`
	w := postIngress(h, "topsecret", body)

	assert.Equal(t, http.StatusOK, w.Code)
	require.Len(t, fw.events, 1)

	ev, ok := fw.events[0].(realtime.MessageDeleted)
	require.True(t, ok)
	assert.Equal(t, realtime.DeleteModeEveryone, ev.Mode)
}

func TestIngressRejectsBadDeleteMode(t *testing.T) {
	config.AppConfig = &config.Config{InternalEventSecret: "topsecret"}
	fw := &fakeForwarder{}
	h := NewIngressHandler(fw)

	body := `{"type":"message:deleted","payload":{"conversationId":"c1","messageId":"m1","mode":"later","actorId":"u1"}}`
	w := postIngress(h, "topsecret", body)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, fw.events)
}
