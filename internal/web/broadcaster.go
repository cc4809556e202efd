package web

import (
	"encoding/json"
	"sync"

	"github.com/openspectro/fieldbox/internal/logic/machine"
)

// SnapshotBroadcaster fans control-loop snapshots out to SSE clients
// and keeps the latest one for the polling handlers.
type SnapshotBroadcaster struct {
	mu      sync.RWMutex
	clients map[chan string]struct{}
	latest  machine.Snapshot
	has     bool
}

// NewSnapshotBroadcaster creates an empty broadcaster.
func NewSnapshotBroadcaster() *SnapshotBroadcaster {
	return &SnapshotBroadcaster{
		clients: make(map[chan string]struct{}),
	}
}

// Publish records the snapshot and pushes its JSON form to every
// subscriber. Safe to call from the control loop; slow clients miss
// messages rather than block it.
func (b *SnapshotBroadcaster) Publish(s machine.Snapshot) {
	data, err := json.Marshal(s)
	if err != nil {
		return
	}
	payload := string(data)

	b.mu.Lock()
	b.latest = s
	b.has = true
	for ch := range b.clients {
		select {
		case ch <- payload:
		default:
			// channel full, skip
		}
	}
	b.mu.Unlock()
}

// Latest returns the most recently published snapshot, if any.
func (b *SnapshotBroadcaster) Latest() (machine.Snapshot, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.latest, b.has
}

// Subscribe returns a channel receiving snapshot JSON and a cleanup
// function. The caller must invoke the cleanup on disconnect.
func (b *SnapshotBroadcaster) Subscribe() (<-chan string, func()) {
	ch := make(chan string, 16)
	b.mu.Lock()
	b.clients[ch] = struct{}{}
	b.mu.Unlock()

	unsub := func() {
		b.mu.Lock()
		delete(b.clients, ch)
		b.mu.Unlock()
		close(ch)
	}
	return ch, unsub
}
