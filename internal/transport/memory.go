package transport

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemoryLog is an in-process Transport. It backs local-only operation and
// tests: appends are assigned uuid keys and delivered to every subscriber
// of the same log, and a new subscriber first replays the existing entries
// in append order, matching the at-least-once contract.
type MemoryLog struct {
	mu   sync.Mutex
	logs map[string][]record
	subs map[string]map[int]Handler
	next int
}

type record struct {
	id    string
	entry Entry
}

// NewMemoryLog creates an empty in-memory log store.
func NewMemoryLog() *MemoryLog {
	return &MemoryLog{
		logs: make(map[string][]record),
		subs: make(map[string]map[int]Handler),
	}
}

// Append stores the entry and fans it out to current subscribers of logKey.
func (m *MemoryLog) Append(_ context.Context, logKey string, e Entry) (string, error) {
	m.mu.Lock()
	id := uuid.New().String()
	m.logs[logKey] = append(m.logs[logKey], record{id: id, entry: e})
	handlers := make([]Handler, 0, len(m.subs[logKey]))
	for _, h := range m.subs[logKey] {
		handlers = append(handlers, h)
	}
	m.mu.Unlock()

	for _, h := range handlers {
		h(id, e)
	}
	return id, nil
}

// Subscribe replays the log to h, then registers it for future appends.
func (m *MemoryLog) Subscribe(logKey string, h Handler) (func(), error) {
	m.mu.Lock()
	replay := append([]record(nil), m.logs[logKey]...)
	if m.subs[logKey] == nil {
		m.subs[logKey] = make(map[int]Handler)
	}
	id := m.next
	m.next++
	m.subs[logKey][id] = h
	m.mu.Unlock()

	for _, r := range replay {
		h(r.id, r.entry)
	}

	return func() {
		m.mu.Lock()
		delete(m.subs[logKey], id)
		m.mu.Unlock()
	}, nil
}

// Len reports the number of entries in one log.
func (m *MemoryLog) Len(logKey string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.logs[logKey])
}
