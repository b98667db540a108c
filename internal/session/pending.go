// ABOUTME: Pending-reply slot table keyed by outbound message id.
// ABOUTME: Resolution is a compare-and-remove; exactly one of reply/timeout wins.

package session

import (
	"log/slog"
	"sync"
)

// pendingSlots tracks in-flight requests awaiting an agent reply.
// Each slot is a buffered channel of capacity 1: the single winner of the
// reply/timeout race removes the slot and (for a reply) delivers the content.
// Slots are independent; resolving one never touches another.
type pendingSlots struct {
	mu     sync.Mutex
	slots  map[string]chan string // message id -> waiter
	logger *slog.Logger
}

func newPendingSlots(logger *slog.Logger) *pendingSlots {
	return &pendingSlots{
		slots:  make(map[string]chan string),
		logger: logger,
	}
}

// add registers a new slot for messageID and returns the waiter channel.
// The caller must eventually consume the channel or remove the slot.
func (p *pendingSlots) add(messageID string) <-chan string {
	p.mu.Lock()
	defer p.mu.Unlock()

	ch := make(chan string, 1)
	p.slots[messageID] = ch
	return ch
}

// remove deletes the slot if it is still live. Returns true if this call
// removed it, false if a reply already resolved it. This is the timeout
// side of the compare-and-remove race.
func (p *pendingSlots) remove(messageID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.slots[messageID]; !ok {
		return false
	}
	delete(p.slots, messageID)
	return true
}

// resolve delivers a reply to the slot's waiter if the slot is still live.
// Returns false for late or duplicate replies, which are dropped. The send
// happens under the lock so a loser of the race that observes the slot gone
// can immediately read the delivered value.
func (p *pendingSlots) resolve(messageID, content string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	ch, ok := p.slots[messageID]
	if !ok {
		return false
	}
	delete(p.slots, messageID)
	ch <- content // buffered, never blocks: only the first resolver reaches here
	return true
}

// size reports the number of live slots.
func (p *pendingSlots) size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.slots)
}
