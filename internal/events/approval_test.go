package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/riskdesk/internal/domain"
)

func TestApprovalBroadcaster_FanOut(t *testing.T) {
	b := NewApprovalBroadcaster(4)
	first := b.Subscribe()
	second := b.Subscribe()
	assert.Equal(t, 2, b.Subscribers())

	ev := domain.ApprovalEvent{TradeID: "t1", To: domain.ApprovalStateApproved, At: time.Now()}
	b.Publish(ev)

	assert.Equal(t, ev, <-first)
	assert.Equal(t, ev, <-second)

	b.Unsubscribe(first)
	_, open := <-first
	assert.False(t, open)
	assert.Equal(t, 1, b.Subscribers())

	// unsubscribing twice is harmless
	b.Unsubscribe(first)
}

func TestApprovalBroadcaster_DropsSlowConsumer(t *testing.T) {
	b := NewApprovalBroadcaster(1)
	ch := b.Subscribe()

	b.Publish(domain.ApprovalEvent{TradeID: "a"})
	b.Publish(domain.ApprovalEvent{TradeID: "b"})

	got := <-ch
	require.Equal(t, "a", got.TradeID)
	select {
	case ev := <-ch:
		t.Fatalf("unexpected event %s", ev.TradeID)
	default:
	}
}
