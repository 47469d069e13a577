package testutil

import (
	"strconv"
	"sync"
)

// SessionIDs hands out deterministic session identifiers: "<prefix>-1",
// "<prefix>-2", ...
//
// Sessions normally get a UUIDv7. Scenario runs use SessionIDs instead so the
// same scenario produces byte-identical firing traces.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type SessionIDs struct {
	mu     sync.Mutex
	prefix string
	seq    int64
}

// NewSessionIDs creates a generator. An empty prefix defaults to "session".
func NewSessionIDs(prefix string) *SessionIDs {
	if prefix == "" {
		prefix = "session"
	}
	return &SessionIDs{prefix: prefix}
}

// Next returns the next identifier. The first call returns "<prefix>-1".
func (g *SessionIDs) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq++
	return g.prefix + "-" + strconv.FormatInt(g.seq, 10)
}

// Reset restarts the sequence.
func (g *SessionIDs) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.seq = 0
}
