package models

import "time"

// Message lives inside its parent chat's log. It is immutable after the
// append except for growth of ReadBy.
type Message struct {
	ID        string    `bson:"_id" json:"id"`
	SenderID  string    `bson:"sender_id" json:"sender_id"`
	Content   string    `bson:"content" json:"content"`
	ReadBy    []string  `bson:"read_by" json:"read_by"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}

// ReadByContains reports whether userID is already in the read set.
func (m *Message) ReadByContains(userID string) bool {
	for _, id := range m.ReadBy {
		if id == userID {
			return true
		}
	}
	return false
}

type Chat struct {
	ID           string           `bson:"_id,omitempty" json:"id"`
	Participants []string         `bson:"participants" json:"participants"`
	IsGroup      bool             `bson:"is_group" json:"is_group"`
	GroupName    string           `bson:"group_name,omitempty" json:"group_name,omitempty"`
	GroupAdmin   string           `bson:"group_admin,omitempty" json:"group_admin,omitempty"`
	Messages     []Message        `bson:"messages" json:"messages"`
	LastMessage  *Message         `bson:"last_message,omitempty" json:"last_message,omitempty"`
	UnreadCounts map[string]int64 `bson:"unread_counts,omitempty" json:"unread_counts,omitempty"`
	CreatedAt    time.Time        `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time        `bson:"updated_at" json:"updated_at"`
}

// HasParticipant reports whether userID belongs to the chat.
func (c *Chat) HasParticipant(userID string) bool {
	for _, id := range c.Participants {
		if id == userID {
			return true
		}
	}
	return false
}

// FindMessage returns the message with the given id, or nil.
func (c *Chat) FindMessage(messageID string) *Message {
	for i := range c.Messages {
		if c.Messages[i].ID == messageID {
			return &c.Messages[i]
		}
	}
	return nil
}

type PresenceStatus string

const (
	StatusOnline  PresenceStatus = "online"
	StatusOffline PresenceStatus = "offline"
)
