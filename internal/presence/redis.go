package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fathima-sithara/realtime-chat/internal/models"
)

// RedisMirror writes presence snapshots to Redis under
// <prefix>:presence:<userID> so the HTTP layer and sibling services can
// read them without touching the in-process registry.
type RedisMirror struct {
	client *redis.Client
	prefix string
}

type presenceDoc struct {
	Status   models.PresenceStatus `json:"status"`
	LastSeen int64                 `json:"last_seen"`
}

func NewRedisMirror(client *redis.Client, prefix string) *RedisMirror {
	return &RedisMirror{client: client, prefix: prefix}
}

func (m *RedisMirror) key(userID string) string {
	return fmt.Sprintf("%s:presence:%s", m.prefix, userID)
}

func (m *RedisMirror) SetPresence(ctx context.Context, userID string, status models.PresenceStatus, lastSeen time.Time) error {
	doc := presenceDoc{Status: status, LastSeen: lastSeen.Unix()}
	b, _ := json.Marshal(doc)
	return m.client.Set(ctx, m.key(userID), b, 0).Err()
}

// GetPresence reads a presence snapshot back. Users never seen report
// offline.
func (m *RedisMirror) GetPresence(ctx context.Context, userID string) (models.PresenceStatus, time.Time, error) {
	b, err := m.client.Get(ctx, m.key(userID)).Bytes()
	if err == redis.Nil {
		return models.StatusOffline, time.Time{}, nil
	}
	if err != nil {
		return "", time.Time{}, err
	}
	var doc presenceDoc
	if err := json.Unmarshal(b, &doc); err != nil {
		return "", time.Time{}, err
	}
	return doc.Status, time.Unix(doc.LastSeen, 0).UTC(), nil
}
