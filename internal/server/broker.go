package server

import (
	"encoding/json"
	"strconv"
	"sync"

	"github.com/fellside/timekeeper/internal/api"
)

// Broker is an in-process pub/sub for SSE events, keyed by race ID.
// Dashboards subscribe per race and hear about starts, finishes, result
// submissions, and conflict resolutions without polling.
type Broker struct {
	mu   sync.RWMutex
	subs map[string]map[chan []byte]struct{}
}

func NewBroker() *Broker {
	return &Broker{
		subs: make(map[string]map[chan []byte]struct{}),
	}
}

// Subscribe returns a channel that receives JSON-encoded events for the race.
func (b *Broker) Subscribe(raceID int64) chan []byte {
	key := raceKey(raceID)
	ch := make(chan []byte, 16)
	b.mu.Lock()
	if b.subs[key] == nil {
		b.subs[key] = make(map[chan []byte]struct{})
	}
	b.subs[key][ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a channel from the race's subscribers.
func (b *Broker) Unsubscribe(raceID int64, ch chan []byte) {
	key := raceKey(raceID)
	b.mu.Lock()
	delete(b.subs[key], ch)
	if len(b.subs[key]) == 0 {
		delete(b.subs, key)
	}
	b.mu.Unlock()
}

// Publish sends an event to all subscribers of the given race.
func (b *Broker) Publish(raceID int64, event api.RaceEvent) {
	data, _ := json.Marshal(event)
	b.mu.RLock()
	for ch := range b.subs[raceKey(raceID)] {
		select {
		case ch <- data:
		default:
			// Drop if subscriber is slow.
		}
	}
	b.mu.RUnlock()
}

func raceKey(raceID int64) string {
	return strconv.FormatInt(raceID, 10)
}
