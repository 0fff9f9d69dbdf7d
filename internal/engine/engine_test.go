package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fathima-sithara/realtime-chat/internal/events"
	"github.com/fathima-sithara/realtime-chat/internal/hub"
	"github.com/fathima-sithara/realtime-chat/internal/models"
	"github.com/fathima-sithara/realtime-chat/internal/presence"
	"github.com/fathima-sithara/realtime-chat/internal/store"
	"github.com/fathima-sithara/realtime-chat/internal/unread"
)

type fakeConn struct {
	id     string
	userID string

	mu       sync.Mutex
	payloads [][]byte
}

func (c *fakeConn) ID() string     { return c.id }
func (c *fakeConn) UserID() string { return c.userID }

func (c *fakeConn) Send(payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.payloads = append(c.payloads, payload)
	return true
}

// messageEvents returns the received envelope types with presence
// chatter filtered out.
func (c *fakeConn) messageEvents(t *testing.T) []string {
	t.Helper()
	var out []string
	for _, typ := range c.eventTypes(t) {
		if typ == models.EventPresenceChanged {
			continue
		}
		out = append(out, typ)
	}
	return out
}

// eventTypes returns the envelope types received, in order.
func (c *fakeConn) eventTypes(t *testing.T) []string {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.payloads))
	for _, b := range c.payloads {
		var env models.Envelope
		require.NoError(t, json.Unmarshal(b, &env))
		out = append(out, env.Type)
	}
	return out
}

type recordingPublisher struct {
	mu          sync.Mutex
	messageSent []events.MessageSentEvent
	chatCreated []events.ChatCreatedEvent
}

func (p *recordingPublisher) PublishMessageSent(_ context.Context, ev events.MessageSentEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messageSent = append(p.messageSent, ev)
	return nil
}

func (p *recordingPublisher) PublishChatCreated(_ context.Context, ev events.ChatCreatedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.chatCreated = append(p.chatCreated, ev)
	return nil
}

type fixture struct {
	eng    *Engine
	store  *store.MemoryStore
	rooms  *hub.Hub
	reg    *presence.Registry
	ledger *unread.Ledger
	pub    *recordingPublisher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:  store.NewMemoryStore(),
		rooms:  hub.New(nil),
		reg:    presence.NewRegistry(nil, nil),
		ledger: unread.NewLedger(),
		pub:    &recordingPublisher{},
	}
	f.eng = New(f.store, f.reg, f.rooms, f.ledger, f.pub, nil)
	return f
}

func (f *fixture) createChat(t *testing.T, participants ...string) *models.Chat {
	t.Helper()
	chat := &models.Chat{Participants: participants}
	require.NoError(t, f.store.CreateChat(context.Background(), chat))
	return chat
}

func TestSendMessageAppendsToLogTail(t *testing.T) {
	f := newFixture(t)
	chat := f.createChat(t, "alice", "bob")

	msg, _, err := f.eng.SendMessage(context.Background(), chat.ID, "alice", "hi", nil)
	require.NoError(t, err)

	got, err := f.store.FindChatByID(context.Background(), chat.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastMessage)
	assert.Equal(t, msg.ID, got.LastMessage.ID)
	require.NotEmpty(t, got.Messages)
	assert.Equal(t, msg.ID, got.Messages[len(got.Messages)-1].ID)
	assert.Equal(t, "hi", got.LastMessage.Content)
	assert.Equal(t, []string{"alice"}, msg.ReadBy)
}

func TestSendMessageUnreadCounters(t *testing.T) {
	f := newFixture(t)
	chat := f.createChat(t, "alice", "bob", "carol")

	_, counts, err := f.eng.SendMessage(context.Background(), chat.ID, "alice", "hello", nil)
	require.NoError(t, err)

	assert.Equal(t, int64(1), counts["bob"])
	assert.Equal(t, int64(1), counts["carol"])
	assert.Equal(t, int64(0), counts["alice"], "sender's counter never incremented")

	_, counts, err = f.eng.SendMessage(context.Background(), chat.ID, "bob", "hey", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts["alice"])
	assert.Equal(t, int64(1), counts["bob"])
	assert.Equal(t, int64(2), counts["carol"])
}

func TestSendMessageValidation(t *testing.T) {
	f := newFixture(t)
	chat := f.createChat(t, "alice", "bob")

	_, _, err := f.eng.SendMessage(context.Background(), chat.ID, "alice", "   \n\t ", nil)
	assert.ErrorIs(t, err, ErrEmptyContent)

	_, _, err = f.eng.SendMessage(context.Background(), chat.ID, "mallory", "hi", nil)
	assert.ErrorIs(t, err, ErrNotParticipant)

	_, _, err = f.eng.SendMessage(context.Background(), "missing", "alice", "hi", nil)
	assert.ErrorIs(t, err, store.ErrChatNotFound)

	// none of the failures left side effects behind
	got, err := f.store.FindChatByID(context.Background(), chat.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Messages)
	assert.Equal(t, int64(0), f.ledger.Get(chat.ID, "bob"))
}

func TestSendMessageContentIsTrimmed(t *testing.T) {
	f := newFixture(t)
	chat := f.createChat(t, "alice", "bob")

	msg, _, err := f.eng.SendMessage(context.Background(), chat.ID, "alice", "  hi there  ", nil)
	require.NoError(t, err)
	assert.Equal(t, "hi there", msg.Content)
}

func TestSendMessageTimestampsAreMonotonic(t *testing.T) {
	f := newFixture(t)
	chat := f.createChat(t, "alice", "bob")

	// freeze the clock so the second append sees a non-advancing wall
	// clock and must correct against the log tail
	frozen := time.Now().UTC()
	f.eng.now = func() time.Time { return frozen }

	first, _, err := f.eng.SendMessage(context.Background(), chat.ID, "alice", "one", nil)
	require.NoError(t, err)
	second, _, err := f.eng.SendMessage(context.Background(), chat.ID, "alice", "two", nil)
	require.NoError(t, err)

	assert.True(t, second.CreatedAt.After(first.CreatedAt))
	assert.Equal(t, first.CreatedAt.Add(time.Millisecond), second.CreatedAt)
}

func TestConcurrentSendsSameChat(t *testing.T) {
	f := newFixture(t)
	chat := f.createChat(t, "alice", "bob")

	const sends = 50
	var wg sync.WaitGroup
	for i := 0; i < sends; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, _, err := f.eng.SendMessage(context.Background(), chat.ID, "alice", fmt.Sprintf("msg %d", n), nil)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	got, err := f.store.FindChatByID(context.Background(), chat.ID)
	require.NoError(t, err)
	require.Len(t, got.Messages, sends, "no gaps, no duplicates")

	seen := make(map[string]struct{}, sends)
	for i := range got.Messages {
		seen[got.Messages[i].ID] = struct{}{}
		if i > 0 {
			assert.False(t, got.Messages[i].CreatedAt.Before(got.Messages[i-1].CreatedAt),
				"timestamps must be non-decreasing along the log")
		}
	}
	assert.Len(t, seen, sends)
	assert.Equal(t, got.Messages[sends-1].ID, got.LastMessage.ID)
	assert.Equal(t, int64(sends), f.ledger.Get(chat.ID, "bob"))
}

func TestTwoPathDelivery(t *testing.T) {
	f := newFixture(t)
	chat := f.createChat(t, "alice", "bob", "carol")

	aliceConn := &fakeConn{id: "a1", userID: "alice"}
	bobViewing := &fakeConn{id: "b1", userID: "bob"}
	bobElsewhere := &fakeConn{id: "b2", userID: "bob"}
	carolElsewhere := &fakeConn{id: "c1", userID: "carol"}

	ctx := context.Background()
	f.reg.Register(ctx, "alice", aliceConn)
	f.reg.Register(ctx, "bob", bobViewing)
	f.reg.Register(ctx, "bob", bobElsewhere)
	f.reg.Register(ctx, "carol", carolElsewhere)

	// only alice's and bob's first connections watch the room
	f.rooms.Join(aliceConn, chat.ID)
	f.rooms.Join(bobViewing, chat.ID)

	_, _, err := f.eng.SendMessage(ctx, chat.ID, "alice", "hi", aliceConn)
	require.NoError(t, err)

	assert.Equal(t, []string{models.EventNewMessage}, aliceConn.messageEvents(t))
	assert.Equal(t, []string{models.EventNewMessage}, bobViewing.messageEvents(t),
		"subscribed connection gets the broadcast, never a duplicate notification")
	assert.Equal(t, []string{models.EventNewMessageNotification}, bobElsewhere.messageEvents(t))
	assert.Equal(t, []string{models.EventNewMessageNotification}, carolElsewhere.messageEvents(t))
}

func TestPersistenceFailureAbortsAtomically(t *testing.T) {
	f := newFixture(t)
	chat := f.createChat(t, "alice", "bob")

	bobConn := &fakeConn{id: "b1", userID: "bob"}
	f.reg.Register(context.Background(), "bob", bobConn)
	f.rooms.Join(bobConn, chat.ID)

	failing := &failingStore{ChatStore: f.store}
	eng := New(failing, f.reg, f.rooms, f.ledger, f.pub, nil)

	_, _, err := eng.SendMessage(context.Background(), chat.ID, "alice", "hi", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, errAppendRejected)

	// no partial side effects: no unread update, no delivery, no publish
	assert.Equal(t, int64(0), f.ledger.Get(chat.ID, "bob"))
	assert.Empty(t, bobConn.eventTypes(t))
	f.pub.mu.Lock()
	assert.Empty(t, f.pub.messageSent)
	f.pub.mu.Unlock()
}

var errAppendRejected = errors.New("append rejected")

type failingStore struct {
	store.ChatStore
}

func (s *failingStore) AppendMessage(context.Context, string, *models.Message, []string) error {
	return errAppendRejected
}

func TestMarkReadScenario(t *testing.T) {
	f := newFixture(t)
	chat := f.createChat(t, "alice", "bob")

	msg, _, err := f.eng.SendMessage(context.Background(), chat.ID, "alice", "hi", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), f.ledger.Get(chat.ID, "bob"))

	counts, err := f.eng.MarkRead(context.Background(), chat.ID, msg.ID, "bob", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), counts["bob"])

	got, err := f.store.FindChatByID(context.Background(), chat.ID)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alice", "bob"}, got.Messages[0].ReadBy)
}

func TestMarkReadIsIdempotent(t *testing.T) {
	f := newFixture(t)
	chat := f.createChat(t, "alice", "bob")
	msg, _, err := f.eng.SendMessage(context.Background(), chat.ID, "alice", "hi", nil)
	require.NoError(t, err)

	first, err := f.eng.MarkRead(context.Background(), chat.ID, msg.ID, "bob", nil)
	require.NoError(t, err)
	second, err := f.eng.MarkRead(context.Background(), chat.ID, msg.ID, "bob", nil)
	require.NoError(t, err)

	assert.Equal(t, first, second)

	got, err := f.store.FindChatByID(context.Background(), chat.ID)
	require.NoError(t, err)
	assert.Len(t, got.Messages[0].ReadBy, 2, "repeat reads do not grow the read set")
}

func TestMarkReadAuthorization(t *testing.T) {
	f := newFixture(t)
	chat := f.createChat(t, "alice", "bob")
	msg, _, err := f.eng.SendMessage(context.Background(), chat.ID, "alice", "hi", nil)
	require.NoError(t, err)

	_, err = f.eng.MarkRead(context.Background(), chat.ID, msg.ID, "mallory", nil)
	assert.ErrorIs(t, err, ErrNotParticipant)

	_, err = f.eng.MarkRead(context.Background(), "missing", msg.ID, "bob", nil)
	assert.ErrorIs(t, err, store.ErrChatNotFound)
}

func TestMarkReadBroadcastExcludesOrigin(t *testing.T) {
	f := newFixture(t)
	chat := f.createChat(t, "alice", "bob")

	aliceConn := &fakeConn{id: "a1", userID: "alice"}
	bobConn := &fakeConn{id: "b1", userID: "bob"}
	ctx := context.Background()
	f.reg.Register(ctx, "alice", aliceConn)
	f.reg.Register(ctx, "bob", bobConn)
	f.rooms.Join(aliceConn, chat.ID)
	f.rooms.Join(bobConn, chat.ID)

	msg, _, err := f.eng.SendMessage(ctx, chat.ID, "alice", "hi", aliceConn)
	require.NoError(t, err)

	_, err = f.eng.MarkRead(ctx, chat.ID, msg.ID, "bob", bobConn)
	require.NoError(t, err)

	assert.Contains(t, aliceConn.eventTypes(t), models.EventMessageRead)
	assert.NotContains(t, bobConn.eventTypes(t), models.EventMessageRead)
}

func TestMarkReadUnknownMessageIsQuietNoOp(t *testing.T) {
	f := newFixture(t)
	chat := f.createChat(t, "alice", "bob")

	aliceConn := &fakeConn{id: "a1", userID: "alice"}
	f.reg.Register(context.Background(), "alice", aliceConn)
	f.rooms.Join(aliceConn, chat.ID)

	_, err := f.eng.MarkRead(context.Background(), chat.ID, "missing-message", "bob", nil)
	require.NoError(t, err)
	assert.NotContains(t, aliceConn.eventTypes(t), models.EventMessageRead)
}

func TestCreateChatDirectDedupe(t *testing.T) {
	f := newFixture(t)

	first, created, err := f.eng.CreateChat(context.Background(), "alice", []string{"bob"}, false, "")
	require.NoError(t, err)
	assert.True(t, created)

	second, created, err := f.eng.CreateChat(context.Background(), "bob", []string{"alice"}, false, "")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
}

func TestCreateChatGroup(t *testing.T) {
	f := newFixture(t)

	chat, created, err := f.eng.CreateChat(context.Background(), "alice", []string{"bob", "carol", "alice"}, true, "team")
	require.NoError(t, err)
	assert.True(t, created)
	assert.True(t, chat.IsGroup)
	assert.Equal(t, "team", chat.GroupName)
	assert.Equal(t, "alice", chat.GroupAdmin)
	assert.ElementsMatch(t, []string{"alice", "bob", "carol"}, chat.Participants)

	// a second identical group is a new chat, dedupe is direct-only
	again, created, err := f.eng.CreateChat(context.Background(), "alice", []string{"bob", "carol"}, true, "team")
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, chat.ID, again.ID)
}

func TestCreateChatRequiresTwoParticipants(t *testing.T) {
	f := newFixture(t)
	_, _, err := f.eng.CreateChat(context.Background(), "alice", []string{"alice"}, false, "")
	assert.ErrorIs(t, err, ErrInvalidParticipants)
}

func TestCreateChatSubscribesConnectedParticipants(t *testing.T) {
	f := newFixture(t)
	bobConn := &fakeConn{id: "b1", userID: "bob"}
	f.reg.Register(context.Background(), "bob", bobConn)

	chat, _, err := f.eng.CreateChat(context.Background(), "alice", []string{"bob"}, false, "")
	require.NoError(t, err)

	assert.True(t, f.rooms.IsSubscribed("b1", chat.ID))
	assert.Contains(t, bobConn.eventTypes(t), models.EventChatCreated)

	// the new subscription delivers subsequent sends inline
	_, _, err = f.eng.SendMessage(context.Background(), chat.ID, "alice", "welcome", nil)
	require.NoError(t, err)
	assert.Contains(t, bobConn.eventTypes(t), models.EventNewMessage)
}

func TestEventsArePublishedAfterCommit(t *testing.T) {
	f := newFixture(t)
	chat, _, err := f.eng.CreateChat(context.Background(), "alice", []string{"bob"}, false, "")
	require.NoError(t, err)

	msg, _, err := f.eng.SendMessage(context.Background(), chat.ID, "alice", "hi", nil)
	require.NoError(t, err)

	f.pub.mu.Lock()
	defer f.pub.mu.Unlock()
	require.Len(t, f.pub.chatCreated, 1)
	assert.Equal(t, chat.ID, f.pub.chatCreated[0].ChatID)
	require.Len(t, f.pub.messageSent, 1)
	assert.Equal(t, msg.ID, f.pub.messageSent[0].Message.ID)
}

func TestListMessagesAuthorization(t *testing.T) {
	f := newFixture(t)
	chat := f.createChat(t, "alice", "bob")
	_, _, err := f.eng.SendMessage(context.Background(), chat.ID, "alice", "hi", nil)
	require.NoError(t, err)

	msgs, err := f.eng.ListMessages(context.Background(), chat.ID, "bob")
	require.NoError(t, err)
	assert.Len(t, msgs, 1)

	_, err = f.eng.ListMessages(context.Background(), chat.ID, "mallory")
	assert.ErrorIs(t, err, ErrNotParticipant)
}
