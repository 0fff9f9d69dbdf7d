package engine

import "sync"

// chatLocks serializes operations per chat id. Entries are reference
// counted and removed once the last holder releases, so the map does
// not grow with the number of chats ever touched.
type chatLocks struct {
	mu sync.Mutex
	m  map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newChatLocks() *chatLocks {
	return &chatLocks{m: make(map[string]*lockEntry)}
}

// lock acquires the chat's exclusive section and returns its release
// function.
func (l *chatLocks) lock(chatID string) func() {
	l.mu.Lock()
	e, ok := l.m[chatID]
	if !ok {
		e = &lockEntry{}
		l.m[chatID] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.m, chatID)
		}
		l.mu.Unlock()
	}
}
