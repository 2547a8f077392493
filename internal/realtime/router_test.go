package realtime

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/converse-app/converse-backend/internal/models"
)

type fakeSink struct {
	mu     sync.Mutex
	events []string // event names received
}

func (f *fakeSink) Emit(event string, args ...interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

func (f *fakeSink) received() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.events))
	copy(out, f.events)
	return out
}

func newTestMessage(conv, sender, recipient string) models.Message {
	return models.Message{
		ID:             "m1",
		ConversationID: conv,
		SenderID:       sender,
		RecipientID:    recipient,
		Content:        "hello",
	}
}

func TestMessageNewReachesRoomAndBothInboxes(t *testing.T) {
	r := NewRouter()
	defer r.Close()

	aliceTab := &fakeSink{}
	aliceOtherTab := &fakeSink{}
	bob := &fakeSink{}
	stranger := &fakeSink{}

	r.Attach("a1", "alice", aliceTab)
	r.Attach("a2", "alice", aliceOtherTab)
	r.Attach("b1", "bob", bob)
	r.Attach("x1", "mallory", stranger)

	// Only one of alice's tabs joined the room; the other must still be
	// reached through her inbox group, exactly once.
	r.JoinConversation("a1", "c1")

	r.dispatch(MessageNew{Message: newTestMessage("c1", "alice", "bob")})

	assert.Equal(t, []string{"message:new"}, aliceTab.received())
	assert.Equal(t, []string{"message:new"}, aliceOtherTab.received())
	assert.Equal(t, []string{"message:new"}, bob.received())
	assert.Empty(t, stranger.received())
}

func TestMessageReadReachesRoomOnly(t *testing.T) {
	r := NewRouter()
	defer r.Close()

	inRoom := &fakeSink{}
	outOfRoom := &fakeSink{}

	r.Attach("a1", "alice", inRoom)
	r.Attach("b1", "bob", outOfRoom)
	r.JoinConversation("a1", "c1")

	r.dispatch(MessageRead{ConversationID: "c1", ReaderID: "bob", MessageIDs: []string{"m1"}})

	assert.Equal(t, []string{"message:read"}, inRoom.received())
	assert.Empty(t, outOfRoom.received())
}

func TestMessageDeletedModeMeOnlyReachesActor(t *testing.T) {
	r := NewRouter()
	defer r.Close()

	actorTab := &fakeSink{}
	counterpart := &fakeSink{}

	r.Attach("a1", "alice", actorTab)
	r.Attach("b1", "bob", counterpart)
	r.JoinConversation("b1", "c1")

	r.dispatch(MessageDeleted{
		ConversationID: "c1",
		MessageID:      "m1",
		Mode:           DeleteModeMe,
		ActorID:        "alice",
		SenderID:       "alice",
		RecipientID:    "bob",
	})

	assert.Equal(t, []string{"message:deleted"}, actorTab.received())
	assert.Empty(t, counterpart.received())
}

func TestMessageDeletedModeEveryoneReachesAll(t *testing.T) {
	r := NewRouter()
	defer r.Close()

	alice := &fakeSink{}
	bob := &fakeSink{}

	r.Attach("a1", "alice", alice)
	r.Attach("b1", "bob", bob)
	r.JoinConversation("a1", "c1")

	r.dispatch(MessageDeleted{
		ConversationID: "c1",
		MessageID:      "m1",
		Mode:           DeleteModeEveryone,
		ActorID:        "alice",
		SenderID:       "alice",
		RecipientID:    "bob",
	})

	assert.Equal(t, []string{"message:deleted"}, alice.received())
	assert.Equal(t, []string{"message:deleted"}, bob.received())
}

func TestTypingUpdateSkipsProducingSession(t *testing.T) {
	r := NewRouter()
	defer r.Close()

	sender := &fakeSink{}
	recipientTab1 := &fakeSink{}
	recipientTab2 := &fakeSink{}

	r.Attach("s1", "alice", sender)
	r.Attach("b1", "bob", recipientTab1)
	r.Attach("b2", "bob", recipientTab2)

	r.dispatch(TypingUpdate{
		ConversationID: "c1",
		FromUserID:     "alice",
		ToUserID:       "bob",
		IsTyping:       true,
		FromSessionID:  "s1",
	})

	assert.Empty(t, sender.received())
	assert.Equal(t, []string{"typing:update"}, recipientTab1.received())
	assert.Equal(t, []string{"typing:update"}, recipientTab2.received())
}

func TestPresenceUpdateReachesWatchersAndOwnInbox(t *testing.T) {
	r := NewRouter()
	defer r.Close()

	watcher := &fakeSink{}
	ownTab := &fakeSink{}
	unrelated := &fakeSink{}

	r.Attach("w1", "bob", watcher)
	r.Attach("a1", "alice", ownTab)
	r.Attach("x1", "mallory", unrelated)
	r.WatchPresence("w1", "alice")

	r.dispatch(PresenceUpdate{UserID: "alice", IsOnline: true})

	assert.Equal(t, []string{"presence:update"}, watcher.received())
	assert.Equal(t, []string{"presence:update"}, ownTab.received())
	assert.Empty(t, unrelated.received())
}

func TestUnwatchStopsPresenceDelivery(t *testing.T) {
	r := NewRouter()
	defer r.Close()

	watcher := &fakeSink{}
	r.Attach("w1", "bob", watcher)
	r.WatchPresence("w1", "alice")
	r.UnwatchPresence("w1", "alice")

	r.dispatch(PresenceUpdate{UserID: "alice", IsOnline: false})

	assert.Empty(t, watcher.received())
}

func TestDetachRemovesFromEveryGroup(t *testing.T) {
	r := NewRouter()
	defer r.Close()

	sink := &fakeSink{}
	r.Attach("s1", "alice", sink)
	r.JoinConversation("s1", "c1")
	r.WatchPresence("s1", "bob")

	r.Detach("s1")

	r.dispatch(MessageNew{Message: newTestMessage("c1", "alice", "bob")})
	r.dispatch(PresenceUpdate{UserID: "bob", IsOnline: true})

	assert.Empty(t, sink.received())
}

func TestJoinUnknownSessionIsIgnored(t *testing.T) {
	r := NewRouter()
	defer r.Close()

	r.JoinConversation("ghost", "c1")
	r.WatchPresence("ghost", "alice")

	// Nothing to assert beyond "no panic": the ghost session holds no sink.
	r.dispatch(MessageNew{Message: newTestMessage("c1", "alice", "bob")})
}

func TestPublishDeliversAsynchronously(t *testing.T) {
	r := NewRouter()
	defer r.Close()

	sink := &fakeSink{}
	r.Attach("b1", "bob", sink)

	r.Publish(MessageNew{Message: newTestMessage("c1", "alice", "bob")})

	assert.Eventually(t, func() bool {
		return len(sink.received()) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestPublishPreservesOrderPerConversation(t *testing.T) {
	r := NewRouter()
	defer r.Close()

	sink := &fakeSink{}
	r.Attach("b1", "bob", sink)
	r.JoinConversation("b1", "c1")

	r.Publish(MessageNew{Message: newTestMessage("c1", "alice", "bob")})
	r.Publish(MessageRead{ConversationID: "c1", ReaderID: "bob", MessageIDs: []string{"m1"}})

	assert.Eventually(t, func() bool {
		return len(sink.received()) == 2
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"message:new", "message:read"}, sink.received())
}

func TestPublishAfterCloseIsDropped(t *testing.T) {
	r := NewRouter()

	sink := &fakeSink{}
	r.Attach("b1", "bob", sink)
	r.Close()

	r.Publish(MessageNew{Message: newTestMessage("c1", "alice", "bob")})

	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, sink.received())
}
