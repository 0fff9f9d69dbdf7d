package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fathima-sithara/realtime-chat/internal/models"
)

// MemoryStore keeps all chats in process memory. Reads return copies so
// callers never share mutable state with the store.
type MemoryStore struct {
	mu    sync.RWMutex
	chats map[string]*models.Chat
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{chats: make(map[string]*models.Chat)}
}

func (s *MemoryStore) FindChatByID(_ context.Context, id string) (*models.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.chats[id]
	if !ok {
		return nil, ErrChatNotFound
	}
	return copyChat(c), nil
}

func (s *MemoryStore) FindChatsByParticipant(_ context.Context, userID string) ([]*models.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Chat
	for _, c := range s.chats {
		if c.HasParticipant(userID) {
			out = append(out, copyChat(c))
		}
	}
	// newest activity first, matching the mongo store's sort
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (s *MemoryStore) CreateChat(_ context.Context, chat *models.Chat) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if chat.ID == "" {
		chat.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	chat.CreatedAt = now
	chat.UpdatedAt = now
	if chat.UnreadCounts == nil {
		chat.UnreadCounts = make(map[string]int64)
	}
	s.chats[chat.ID] = copyChat(chat)
	return nil
}

func (s *MemoryStore) FindExistingDirectChat(_ context.Context, participants []string) (*models.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	want := toSet(participants)
	for _, c := range s.chats {
		if c.IsGroup {
			continue
		}
		if setsEqual(want, toSet(c.Participants)) {
			return copyChat(c), nil
		}
	}
	return nil, ErrChatNotFound
}

func (s *MemoryStore) AppendMessage(_ context.Context, chatID string, msg *models.Message, recipients []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chats[chatID]
	if !ok {
		return ErrChatNotFound
	}
	c.Messages = append(c.Messages, *msg)
	tail := &c.Messages[len(c.Messages)-1]
	c.LastMessage = copyMessage(tail)
	if c.UnreadCounts == nil {
		c.UnreadCounts = make(map[string]int64)
	}
	for _, r := range recipients {
		c.UnreadCounts[r]++
	}
	c.UpdatedAt = msg.CreatedAt
	return nil
}

func (s *MemoryStore) MarkMessageRead(_ context.Context, chatID, messageID, readerID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chats[chatID]
	if !ok {
		return false, ErrChatNotFound
	}
	m := c.FindMessage(messageID)
	if m == nil || m.ReadByContains(readerID) {
		return false, nil
	}
	m.ReadBy = append(m.ReadBy, readerID)
	if c.LastMessage != nil && c.LastMessage.ID == messageID {
		c.LastMessage.ReadBy = append([]string(nil), m.ReadBy...)
	}
	if c.UnreadCounts == nil {
		c.UnreadCounts = make(map[string]int64)
	}
	c.UnreadCounts[readerID] = 0
	return true, nil
}

func copyChat(c *models.Chat) *models.Chat {
	out := *c
	out.Participants = append([]string(nil), c.Participants...)
	out.Messages = make([]models.Message, len(c.Messages))
	for i := range c.Messages {
		out.Messages[i] = *copyMessage(&c.Messages[i])
	}
	if c.LastMessage != nil {
		out.LastMessage = copyMessage(c.LastMessage)
	}
	out.UnreadCounts = make(map[string]int64, len(c.UnreadCounts))
	for k, v := range c.UnreadCounts {
		out.UnreadCounts[k] = v
	}
	return &out
}

func copyMessage(m *models.Message) *models.Message {
	out := *m
	out.ReadBy = append([]string(nil), m.ReadBy...)
	return &out
}

func toSet(ids []string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func setsEqual(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}
