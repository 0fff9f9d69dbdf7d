// Package unread keeps the in-process per-chat, per-user unread
// counters the fan-out engine embeds in outbound events. The durable
// copy rides on the chat document; the ledger is seeded from it the
// first time a chat is touched.
package unread

import "sync"

type Ledger struct {
	mu     sync.Mutex
	counts map[string]map[string]int64 // chat id -> user id -> count
}

func NewLedger() *Ledger {
	return &Ledger{counts: make(map[string]map[string]int64)}
}

func (l *Ledger) chat(chatID string) map[string]int64 {
	m, ok := l.counts[chatID]
	if !ok {
		m = make(map[string]int64)
		l.counts[chatID] = m
	}
	return m
}

// Seed installs the stored counters for a chat unless the ledger
// already tracks it.
func (l *Ledger) Seed(chatID string, counts map[string]int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.counts[chatID]; ok {
		return
	}
	m := make(map[string]int64, len(counts))
	for k, v := range counts {
		m[k] = v
	}
	l.counts[chatID] = m
}

// Increment adds one to each user's counter for the chat.
func (l *Ledger) Increment(chatID string, userIDs ...string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	m := l.chat(chatID)
	for _, id := range userIDs {
		m[id]++
	}
}

// Reset zeroes one user's counter for the chat.
func (l *Ledger) Reset(chatID, userID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.chat(chatID)[userID] = 0
}

// Get returns the user's counter for the chat; missing keys read zero.
func (l *Ledger) Get(chatID, userID string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.counts[chatID]
	if !ok {
		return 0
	}
	return m[userID]
}

// Snapshot returns a copy of all counters for the chat.
func (l *Ledger) Snapshot(chatID string) map[string]int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	m := l.counts[chatID]
	out := make(map[string]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
