package feed

import (
	"sync"

	"github.com/swarm-blackjack/casino-bot/internal/table"
)

const subscriberBuffer = 16

// Bus fans table events out to local subscribers, keyed by location.
// Slow subscribers miss events rather than block the publisher.
type Bus struct {
	mu   sync.RWMutex
	subs map[string]map[chan TableEvent]struct{}
}

func NewBus() *Bus {
	return &Bus{subs: make(map[string]map[chan TableEvent]struct{})}
}

func (b *Bus) Subscribe(location string) chan TableEvent {
	ch := make(chan TableEvent, subscriberBuffer)
	b.mu.Lock()
	if b.subs[location] == nil {
		b.subs[location] = make(map[chan TableEvent]struct{})
	}
	b.subs[location][ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe is safe to call after the location was closed.
func (b *Bus) Unsubscribe(location string, ch chan TableEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[location][ch]; !ok {
		return
	}
	delete(b.subs[location], ch)
	if len(b.subs[location]) == 0 {
		delete(b.subs, location)
	}
	close(ch)
}

func (b *Bus) Broadcast(snap table.Snapshot) {
	b.send(snap.Location, TableEvent{Snapshot: snap})
}

// CloseLocation delivers a final closed event and ends every subscription
// for location.
func (b *Bus) CloseLocation(location, reason string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs[location] {
		select {
		case ch <- TableEvent{Snapshot: table.Snapshot{Location: location}, Closed: true, Reason: reason}:
		default:
		}
		close(ch)
	}
	delete(b.subs, location)
}

func (b *Bus) send(location string, evt TableEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs[location] {
		select {
		case ch <- evt:
		default:
		}
	}
}

func (b *Bus) Subscribers(location string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[location])
}
