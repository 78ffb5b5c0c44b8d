// Package events fans out trade lifecycle events to live subscribers.
package events

import (
	"sync"

	"github.com/vadiminshakov/riskdesk/internal/domain"
)

// ApprovalBroadcaster fans out lifecycle events to all subscribers via buffered channels.
type ApprovalBroadcaster struct {
	mu     sync.RWMutex
	subs   map[chan domain.ApprovalEvent]struct{}
	buffer int
}

// NewApprovalBroadcaster creates a broadcaster with the given per-subscriber buffer.
func NewApprovalBroadcaster(buffer int) *ApprovalBroadcaster {
	if buffer < 1 {
		buffer = 64
	}
	return &ApprovalBroadcaster{
		subs:   make(map[chan domain.ApprovalEvent]struct{}),
		buffer: buffer,
	}
}

// Publish sends the event to all subscribers, dropping if a reader is slow.
func (b *ApprovalBroadcaster) Publish(ev domain.ApprovalEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- ev:
		default:
			// drop slow consumer
		}
	}
}

// Subscribe returns a channel that receives events until Unsubscribe is called.
func (b *ApprovalBroadcaster) Subscribe() chan domain.ApprovalEvent {
	ch := make(chan domain.ApprovalEvent, b.buffer)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes the channel and closes it.
func (b *ApprovalBroadcaster) Unsubscribe(ch chan domain.ApprovalEvent) {
	b.mu.Lock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
	b.mu.Unlock()
}

// Subscribers returns the number of active subscribers.
func (b *ApprovalBroadcaster) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
