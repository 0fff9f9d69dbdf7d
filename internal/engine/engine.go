// Package engine orchestrates message fan-out: it authorizes and
// persists inbound sends, maintains unread counters and decides, per
// connection, between in-room broadcast and out-of-room notification.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fathima-sithara/realtime-chat/internal/events"
	"github.com/fathima-sithara/realtime-chat/internal/hub"
	"github.com/fathima-sithara/realtime-chat/internal/metrics"
	"github.com/fathima-sithara/realtime-chat/internal/models"
	"github.com/fathima-sithara/realtime-chat/internal/presence"
	"github.com/fathima-sithara/realtime-chat/internal/store"
	"github.com/fathima-sithara/realtime-chat/internal/unread"
)

type Engine struct {
	store    store.ChatStore
	registry *presence.Registry
	rooms    *hub.Hub
	ledger   *unread.Ledger
	pub      events.Publisher
	log      *zap.SugaredLogger
	locks    *chatLocks

	// injectable for the timestamp monotonicity tests
	now func() time.Time
}

// New wires the engine. pub may be nil when no broker is configured.
func New(st store.ChatStore, reg *presence.Registry, rooms *hub.Hub, ledger *unread.Ledger, pub events.Publisher, log *zap.SugaredLogger) *Engine {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Engine{
		store:    st,
		registry: reg,
		rooms:    rooms,
		ledger:   ledger,
		pub:      pub,
		log:      log,
		locks:    newChatLocks(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SendMessage appends a message to the chat log and delivers it.
// Authorization, validation and the append run under the chat's
// exclusive section so a participant removed concurrently can never
// slip an append in, and two appends never interleave. Unread updates
// and delivery happen only after the append commits; a persistence
// failure aborts the whole operation with no side effects.
//
// origin is the connection that triggered the send, nil on the REST
// path.
func (e *Engine) SendMessage(ctx context.Context, chatID, senderID, content string, origin hub.Conn) (*models.Message, map[string]int64, error) {
	unlock := e.locks.lock(chatID)
	defer unlock()

	chat, err := e.store.FindChatByID(ctx, chatID)
	if err != nil {
		return nil, nil, err
	}
	if !chat.HasParticipant(senderID) {
		return nil, nil, ErrNotParticipant
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, nil, ErrEmptyContent
	}

	ts := e.now()
	if chat.LastMessage != nil && !ts.After(chat.LastMessage.CreatedAt) {
		// wall clock went backwards relative to the log tail
		ts = chat.LastMessage.CreatedAt.Add(time.Millisecond)
	}
	msg := &models.Message{
		ID:        uuid.NewString(),
		SenderID:  senderID,
		Content:   content,
		ReadBy:    []string{senderID},
		CreatedAt: ts,
	}

	recipients := make([]string, 0, len(chat.Participants)-1)
	for _, p := range chat.Participants {
		if p != senderID {
			recipients = append(recipients, p)
		}
	}

	if err := e.store.AppendMessage(ctx, chatID, msg, recipients); err != nil {
		return nil, nil, fmt.Errorf("persist message: %w", err)
	}

	e.ledger.Seed(chatID, chat.UnreadCounts)
	e.ledger.Increment(chatID, recipients...)
	counts := e.ledger.Snapshot(chatID)
	metrics.MessagesSent.Inc()

	e.deliver(chatID, msg, counts, recipients)
	e.publishMessageSent(ctx, chatID, msg)

	return msg, counts, nil
}

// deliver implements the two-path rule: one broadcast to every
// connection subscribed to the chat room, plus a distinct notification
// to each recipient connection that is online but not watching the
// chat. A connection receives exactly one of the two.
func (e *Engine) deliver(chatID string, msg *models.Message, counts map[string]int64, recipients []string) {
	payload := models.NewMessagePayload{ChatID: chatID, Message: msg, UnreadCounts: counts}
	e.rooms.Broadcast(chatID, models.Encode(models.EventNewMessage, payload), "")

	notification := models.Encode(models.EventNewMessageNotification, payload)
	for _, r := range recipients {
		for _, c := range e.registry.ConnectionsOf(r) {
			if e.rooms.IsSubscribed(c.ID(), chatID) {
				continue
			}
			if c.Send(notification) {
				metrics.NotificationsSent.Inc()
			} else {
				e.log.Debugw("notification dropped", "chat_id", chatID, "user_id", r, "conn_id", c.ID())
			}
		}
	}
}

// MarkRead adds the reader to the message's read set, zeroes the
// reader's unread counter and tells the room. Re-reading an already
// read message is a no-op, not an error. The originating connection is
// excluded from the broadcast to avoid echo.
func (e *Engine) MarkRead(ctx context.Context, chatID, messageID, readerID string, origin hub.Conn) (map[string]int64, error) {
	unlock := e.locks.lock(chatID)
	defer unlock()

	chat, err := e.store.FindChatByID(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if !chat.HasParticipant(readerID) {
		return nil, ErrNotParticipant
	}

	e.ledger.Seed(chatID, chat.UnreadCounts)

	added, err := e.store.MarkMessageRead(ctx, chatID, messageID, readerID)
	if err != nil {
		return nil, fmt.Errorf("persist read state: %w", err)
	}
	if !added {
		return e.ledger.Snapshot(chatID), nil
	}

	e.ledger.Reset(chatID, readerID)
	counts := e.ledger.Snapshot(chatID)
	metrics.MessagesRead.Inc()

	excludeConn := ""
	if origin != nil {
		excludeConn = origin.ID()
	}
	e.rooms.Broadcast(chatID, models.Encode(models.EventMessageRead, models.MessageReadPayload{
		ChatID:       chatID,
		MessageID:    messageID,
		ReaderID:     readerID,
		UnreadCounts: counts,
	}), excludeConn)

	return counts, nil
}

// CreateChat creates a chat owned by creatorID. For direct chats an
// existing chat with the same participant set is returned instead of a
// duplicate; the second return value reports whether a chat was
// actually created. Participants with live connections are subscribed
// to the new room immediately and receive a chatCreated event.
func (e *Engine) CreateChat(ctx context.Context, creatorID string, participants []string, isGroup bool, groupName string) (*models.Chat, bool, error) {
	all := dedupe(append([]string{creatorID}, participants...))
	if len(all) < 2 {
		return nil, false, ErrInvalidParticipants
	}

	if !isGroup {
		existing, err := e.store.FindExistingDirectChat(ctx, all)
		if err == nil {
			return existing, false, nil
		}
		if !errors.Is(err, store.ErrChatNotFound) {
			return nil, false, fmt.Errorf("direct chat lookup: %w", err)
		}
	}

	chat := &models.Chat{
		Participants: all,
		IsGroup:      isGroup,
		GroupName:    groupName,
		Messages:     []models.Message{},
		UnreadCounts: map[string]int64{},
	}
	if isGroup {
		chat.GroupAdmin = creatorID
	}
	if err := e.store.CreateChat(ctx, chat); err != nil {
		return nil, false, fmt.Errorf("persist chat: %w", err)
	}

	if e.pub != nil {
		if err := e.pub.PublishChatCreated(ctx, events.ChatCreatedEvent{
			ChatID:       chat.ID,
			Participants: chat.Participants,
			IsGroup:      chat.IsGroup,
			GroupName:    chat.GroupName,
		}); err != nil {
			e.log.Warnw("chat.created publish failed", "chat_id", chat.ID, "err", err)
		}
	}

	// participants already connected join the new room right away
	created := models.Encode(models.EventChatCreated, models.ChatCreatedPayload{Chat: chat})
	for _, p := range chat.Participants {
		for _, c := range e.registry.ConnectionsOf(p) {
			e.rooms.Join(c, chat.ID)
			c.Send(created)
		}
	}

	return chat, true, nil
}

// ListChats returns the user's chats, most recently active first.
func (e *Engine) ListChats(ctx context.Context, userID string) ([]*models.Chat, error) {
	return e.store.FindChatsByParticipant(ctx, userID)
}

// ListMessages returns the chat's full message log, participant-only.
func (e *Engine) ListMessages(ctx context.Context, chatID, userID string) ([]models.Message, error) {
	chat, err := e.store.FindChatByID(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if !chat.HasParticipant(userID) {
		return nil, ErrNotParticipant
	}
	return chat.Messages, nil
}

// ChatIDsFor lists the ids of every chat the user participates in.
// The websocket handler uses it to join all rooms at connect time.
func (e *Engine) ChatIDsFor(ctx context.Context, userID string) ([]string, error) {
	chats, err := e.store.FindChatsByParticipant(ctx, userID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(chats))
	for i, c := range chats {
		ids[i] = c.ID
	}
	return ids, nil
}

func (e *Engine) publishMessageSent(ctx context.Context, chatID string, msg *models.Message) {
	if e.pub == nil {
		return
	}
	if err := e.pub.PublishMessageSent(ctx, events.MessageSentEvent{ChatID: chatID, Message: msg}); err != nil {
		e.log.Warnw("message.sent publish failed", "chat_id", chatID, "err", err)
	}
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
