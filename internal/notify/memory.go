package notify

import (
	"context"
	"sync"
)

// MemoryNotifier records published events for tests.

type MemoryNotifier struct {
	mu     sync.Mutex
	events []Published
}

type Published struct {
	Channel string
	Event   Event
}

func NewMemoryNotifier() *MemoryNotifier { return &MemoryNotifier{} }

func (n *MemoryNotifier) Publish(ctx context.Context, channel string, ev Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, Published{Channel: channel, Event: ev})
	return nil
}

func (n *MemoryNotifier) Events() []Published {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Published, len(n.events))
	copy(out, n.events)
	return out
}

// ByType filters recorded events by type.
func (n *MemoryNotifier) ByType(t EventType) []Published {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Published, 0)
	for _, p := range n.events {
		if p.Event.Type == t {
			out = append(out, p)
		}
	}
	return out
}

// MemoryPresence is a fixed reachability map for tests.
type MemoryPresence struct {
	mu        sync.Mutex
	reachable map[string]bool
}

func NewMemoryPresence() *MemoryPresence {
	return &MemoryPresence{reachable: map[string]bool{}}
}

func (p *MemoryPresence) SetReachable(userID string, ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reachable[userID] = ok
}

func (p *MemoryPresence) IsReachable(ctx context.Context, userID string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reachable[userID], nil
}
