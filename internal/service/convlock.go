package service

import "sync"

// ConvLocks hands out one mutex per conversation id. The pipeline and the
// conversation service hold it across persist and publish so subscribers
// observe events in commit order. Entries are reference counted and removed
// when idle, so the map does not grow with conversation history.
type ConvLocks struct {
	mu      sync.Mutex
	entries map[string]*convLockEntry
}

type convLockEntry struct {
	mu   sync.Mutex
	refs int
}

func NewConvLocks() *ConvLocks {
	return &ConvLocks{entries: make(map[string]*convLockEntry)}
}

// Lock acquires the conversation's mutex and returns its release func.
func (l *ConvLocks) Lock(conversationID string) func() {
	l.mu.Lock()
	e, ok := l.entries[conversationID]
	if !ok {
		e = &convLockEntry{}
		l.entries[conversationID] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.entries, conversationID)
		}
		l.mu.Unlock()
	}
}
