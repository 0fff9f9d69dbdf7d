// Package store holds the durable record of chats and their message
// logs. Two implementations exist: the Mongo-backed store used in
// production and an in-memory store used for tests and single-process
// development runs.
package store

import (
	"context"
	"errors"

	"github.com/fathima-sithara/realtime-chat/internal/models"
)

var ErrChatNotFound = errors.New("chat not found")

// ChatStore is the persistence boundary consumed by the fan-out engine
// and the HTTP layer. AppendMessage must be atomic with respect to
// concurrent appends to the same chat; the engine additionally
// serializes per chat id, so implementations only need single-update
// atomicity, not cross-call transactions.
type ChatStore interface {
	FindChatByID(ctx context.Context, id string) (*models.Chat, error)
	FindChatsByParticipant(ctx context.Context, userID string) ([]*models.Chat, error)

	// CreateChat persists the chat and assigns its id.
	CreateChat(ctx context.Context, chat *models.Chat) error

	// FindExistingDirectChat looks up a non-group chat with exactly the
	// given participant set. Returns ErrChatNotFound when none exists.
	FindExistingDirectChat(ctx context.Context, participants []string) (*models.Chat, error)

	// AppendMessage pushes msg onto the chat's log, updates the cached
	// last message and increments the stored unread counter of every
	// recipient, all in one atomic update.
	AppendMessage(ctx context.Context, chatID string, msg *models.Message, recipients []string) error

	// MarkMessageRead adds readerID to the message's read set and zeroes
	// the reader's stored unread counter. Returns false when the message
	// does not exist or the reader was already present; both are no-ops,
	// not errors.
	MarkMessageRead(ctx context.Context, chatID, messageID, readerID string) (bool, error)
}
