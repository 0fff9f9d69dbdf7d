// Package presence tracks which users currently hold live connections.
package presence

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fathima-sithara/realtime-chat/internal/hub"
	"github.com/fathima-sithara/realtime-chat/internal/models"
)

// Mirror publishes presence transitions to an external store so
// HTTP-side consumers and other services can read them. Failures are
// logged by the registry and never surfaced to the caller.
type Mirror interface {
	SetPresence(ctx context.Context, userID string, status models.PresenceStatus, lastSeen time.Time) error
}

type entry struct {
	mu       sync.Mutex
	conns    map[string]hub.Conn
	status   models.PresenceStatus
	lastSeen time.Time
}

// Registry is the in-memory user -> live connections mapping. Mutations
// to a single user's entry are serialized on that entry; unrelated
// users' connects and disconnects do not contend.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	mirror  Mirror
	log     *zap.SugaredLogger
}

func NewRegistry(mirror Mirror, log *zap.SugaredLogger) *Registry {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Registry{
		entries: make(map[string]*entry),
		mirror:  mirror,
		log:     log,
	}
}

func (r *Registry) entryFor(userID string) *entry {
	r.mu.RLock()
	e, ok := r.entries[userID]
	r.mu.RUnlock()
	if ok {
		return e
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok = r.entries[userID]; ok {
		return e
	}
	e = &entry{conns: make(map[string]hub.Conn), status: models.StatusOffline}
	r.entries[userID] = e
	return e
}

// Register adds the connection to the user's set. The first connection
// flips the user online, stamps last seen and announces the transition
// to every other registered user's connections.
func (r *Registry) Register(ctx context.Context, userID string, c hub.Conn) {
	e := r.entryFor(userID)
	e.mu.Lock()
	e.conns[c.ID()] = c
	wentOnline := e.status != models.StatusOnline
	e.status = models.StatusOnline
	e.lastSeen = time.Now().UTC()
	e.mu.Unlock()

	if !wentOnline {
		return
	}
	if r.mirror != nil {
		if err := r.mirror.SetPresence(ctx, userID, models.StatusOnline, time.Now().UTC()); err != nil {
			r.log.Warnw("presence mirror update failed", "user_id", userID, "err", err)
		}
	}
	r.announce(userID, models.StatusOnline, nil)
}

// Unregister removes the connection. When the last connection drops the
// user flips offline, last seen is stamped and the transition is
// announced.
func (r *Registry) Unregister(ctx context.Context, userID string, c hub.Conn) {
	e := r.entryFor(userID)
	e.mu.Lock()
	delete(e.conns, c.ID())
	wentOffline := len(e.conns) == 0 && e.status == models.StatusOnline
	var lastSeen time.Time
	if wentOffline {
		e.status = models.StatusOffline
		e.lastSeen = time.Now().UTC()
		lastSeen = e.lastSeen
	}
	e.mu.Unlock()

	if !wentOffline {
		return
	}
	if r.mirror != nil {
		if err := r.mirror.SetPresence(ctx, userID, models.StatusOffline, lastSeen); err != nil {
			r.log.Warnw("presence mirror update failed", "user_id", userID, "err", err)
		}
	}
	r.announce(userID, models.StatusOffline, &lastSeen)
}

// announce best-effort delivers a presenceChanged event to every
// connection of every user other than the one transitioning.
func (r *Registry) announce(userID string, status models.PresenceStatus, lastSeen *time.Time) {
	payload := models.Encode(models.EventPresenceChanged, models.PresenceChangedPayload{
		UserID:   userID,
		Status:   status,
		LastSeen: lastSeen,
	})

	r.mu.RLock()
	others := make([]*entry, 0, len(r.entries))
	for id, e := range r.entries {
		if id != userID {
			others = append(others, e)
		}
	}
	r.mu.RUnlock()

	for _, e := range others {
		e.mu.Lock()
		conns := make([]hub.Conn, 0, len(e.conns))
		for _, c := range e.conns {
			conns = append(conns, c)
		}
		e.mu.Unlock()
		for _, c := range conns {
			c.Send(payload)
		}
	}
}

// IsOnline reports whether the user has at least one live connection.
func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	e, ok := r.entries[userID]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status == models.StatusOnline
}

// ConnectionsOf returns a snapshot of the user's live connections.
func (r *Registry) ConnectionsOf(userID string) []hub.Conn {
	r.mu.RLock()
	e, ok := r.entries[userID]
	r.mu.RUnlock()
	if !ok {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]hub.Conn, 0, len(e.conns))
	for _, c := range e.conns {
		out = append(out, c)
	}
	return out
}

// LastSeen returns the user's last-seen stamp and whether the user has
// ever been registered.
func (r *Registry) LastSeen(userID string) (time.Time, bool) {
	r.mu.RLock()
	e, ok := r.entries[userID]
	r.mu.RUnlock()
	if !ok {
		return time.Time{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastSeen, true
}
