// ABOUTME: Tests for the in-process event broadcaster
// ABOUTME: Covers per-conversation fanout, unsubscribe, and slow-subscriber drops

package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEvent(convID, kind string, seq int64) *Event {
	return &Event{
		ConversationID: convID,
		Kind:           kind,
		Seq:            seq,
		At:             time.Now(),
	}
}

func TestBroadcaster_PublishToSubscriber(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()
	ctx := context.Background()

	ch, _ := b.Subscribe(ctx, "conv-1")

	require.NoError(t, b.Publish(ctx, testEvent("conv-1", KindHandoffStarted, 1)))

	select {
	case got := <-ch:
		assert.Equal(t, KindHandoffStarted, got.Kind)
		assert.EqualValues(t, 1, got.Seq)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestBroadcaster_IsolatesConversations(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()
	ctx := context.Background()

	ch1, _ := b.Subscribe(ctx, "conv-1")
	ch2, _ := b.Subscribe(ctx, "conv-2")

	require.NoError(t, b.Publish(ctx, testEvent("conv-1", KindMessageCreated, 1)))

	select {
	case <-ch1:
	case <-time.After(time.Second):
		t.Fatal("conv-1 subscriber missed its event")
	}

	select {
	case ev := <-ch2:
		t.Fatalf("conv-2 subscriber received foreign event %q", ev.Kind)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBroadcaster_MultipleSubscribers(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()
	ctx := context.Background()

	ch1, _ := b.Subscribe(ctx, "conv-1")
	ch2, _ := b.Subscribe(ctx, "conv-1")

	require.NoError(t, b.Publish(ctx, testEvent("conv-1", KindClosed, 7)))

	for _, ch := range []<-chan *Event{ch1, ch2} {
		select {
		case got := <-ch:
			assert.EqualValues(t, 7, got.Seq)
		case <-time.After(time.Second):
			t.Fatal("subscriber missed event")
		}
	}
}

func TestBroadcaster_SlowSubscriberDropsNotBlocks(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()
	ctx := context.Background()

	// Never drained: fills up after subscriberBufferSize events
	b.Subscribe(ctx, "conv-1")

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBufferSize*2; i++ {
			b.Publish(ctx, testEvent("conv-1", KindAIDelta, int64(i)))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}

func TestBroadcaster_UnsubscribeOnContextCancel(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch, _ := b.Subscribe(ctx, "conv-1")
	cancel()

	// The channel closes once cleanup runs
	deadline := time.After(time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("subscription not cleaned up after context cancel")
		}
	}
}

func TestFanout_SwallowsFailures(t *testing.T) {
	b := NewBroadcaster(nil)
	defer b.Close()

	f := NewFanout(nil, failingPublisher{}, b)
	ctx := context.Background()

	ch, _ := b.Subscribe(ctx, "conv-1")

	assert.NoError(t, f.Publish(ctx, testEvent("conv-1", KindAIDone, 3)))

	select {
	case got := <-ch:
		assert.Equal(t, KindAIDone, got.Kind)
	case <-time.After(time.Second):
		t.Fatal("healthy transport starved by failing one")
	}
}

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, *Event) error {
	return assert.AnError
}
