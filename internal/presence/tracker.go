// Package presence tracks which agents are reachable and available.
//
// An agent is considered online only when both signals hold: it has at least
// one live connection, and it has explicitly declared itself available. The
// two signals are updated independently (connectivity by the connection
// registry, availability by the agent profile endpoint).
package presence

import (
	"sort"
	"sync"
)

// Tracker is the in-memory presence set for agents.
type Tracker struct {
	mu       sync.RWMutex
	declared map[int64]bool
	conns    map[int64]int
}

// NewTracker creates an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{
		declared: make(map[int64]bool),
		conns:    make(map[int64]int),
	}
}

// SetDeclaredOnline records the agent's declared availability flag.
func (t *Tracker) SetDeclaredOnline(agentID int64, online bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if online {
		t.declared[agentID] = true
	} else {
		delete(t.declared, agentID)
	}
}

// OnConnect records one more live connection for the agent.
func (t *Tracker) OnConnect(agentID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.conns[agentID]++
}

// OnDisconnect records that one of the agent's connections went away.
// The agent stays connected while it holds other live connections.
func (t *Tracker) OnDisconnect(agentID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.conns[agentID] <= 1 {
		delete(t.conns, agentID)
		return
	}
	t.conns[agentID]--
}

// Online reports whether the agent is connected and declared available.
func (t *Tracker) Online(agentID int64) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.declared[agentID] && t.conns[agentID] > 0
}

// ListOnline returns the IDs of every online agent in stable order.
func (t *Tracker) ListOnline() []int64 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var ids []int64
	for id := range t.declared {
		if t.conns[id] > 0 {
			ids = append(ids, id)
		}
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
