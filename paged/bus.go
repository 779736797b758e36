package paged

import (
	"sync"

	"github.com/kithare/kithscord/gateway/types"
)

// Bus fans gateway reaction events out to per-message subscribers.
// Sessions subscribe on their target message; publishes never block
// the gateway reader.
type Bus struct {
	mu   sync.Mutex
	subs map[int64][]chan types.ReactionEvent
}

// NewBus creates an empty reaction bus
func NewBus() *Bus {
	return &Bus{subs: make(map[int64][]chan types.ReactionEvent)}
}

// Subscribe registers interest in reactions on one message. The
// returned cancel func must be called when the session ends.
func (b *Bus) Subscribe(messageID int64) (<-chan types.ReactionEvent, func()) {
	ch := make(chan types.ReactionEvent, 16)

	b.mu.Lock()
	b.subs[messageID] = append(b.subs[messageID], ch)
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		chans := b.subs[messageID]
		for i, c := range chans {
			if c == ch {
				b.subs[messageID] = append(chans[:i], chans[i+1:]...)
				break
			}
		}
		if len(b.subs[messageID]) == 0 {
			delete(b.subs, messageID)
		}
	}
	return ch, cancel
}

// Publish delivers a reaction event to subscribers of its message.
// Slow subscribers drop events rather than stall the gateway.
func (b *Bus) Publish(ev types.ReactionEvent) {
	b.mu.Lock()
	chans := append([]chan types.ReactionEvent(nil), b.subs[ev.MessageRef.MessageID]...)
	b.mu.Unlock()

	for _, ch := range chans {
		select {
		case ch <- ev:
		default:
		}
	}
}
