package eventbus

import (
	"testing"
	"time"

	"pkt.systems/codesync/schema"
)

func TestSubscribeAndPublish(t *testing.T) {
	bus := New(nil)
	ch, cancel := bus.Subscribe("alice")
	defer cancel()

	event := schema.BufferEvent{UserID: "alice", FileID: "main", Content: "x", Remote: true}
	bus.OnBuffer(event)

	select {
	case got := <-ch:
		if got.Type != EventBuffer {
			t.Fatalf("expected buffer event, got %v", got.Type)
		}
		if got.Buffer.FileID != event.FileID || !got.Buffer.Remote {
			t.Fatalf("unexpected payload: %+v", got.Buffer)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("timed out waiting for event")
	}
}

func TestPublishIsScopedToParticipant(t *testing.T) {
	bus := New(nil)
	alice, cancelAlice := bus.Subscribe("alice")
	defer cancelAlice()
	bob, cancelBob := bus.Subscribe("bob")
	defer cancelBob()

	bus.OnStatus(schema.StatusEvent{UserID: "bob", Text: "hi"})

	select {
	case got := <-bob:
		if got.Status.Text != "hi" {
			t.Fatalf("unexpected status: %+v", got.Status)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("timed out waiting for bob event")
	}
	select {
	case got := <-alice:
		t.Fatalf("alice should not receive bob events, got %+v", got)
	default:
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := New(nil)
	ch, cancel := bus.Subscribe("alice")
	cancel()
	cancel()
	if _, ok := <-ch; ok {
		t.Fatalf("expected channel to be closed")
	}
	bus.OnStatus(schema.StatusEvent{UserID: "alice", Text: "after"})
}

func TestPublishDoesNotBlockWhenFull(t *testing.T) {
	bus := New(nil)
	bus.depth = 1
	_, cancel := bus.Subscribe("alice")
	defer cancel()

	bus.OnChannel(schema.ChannelEvent{UserID: "alice", State: schema.ChannelOpen})
	done := make(chan struct{})
	go func() {
		bus.OnChannel(schema.ChannelEvent{UserID: "alice", State: schema.ChannelErroring})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatalf("publish blocked on full channel")
	}
	if bus.Dropped() != 1 {
		t.Fatalf("expected one dropped event, got %d", bus.Dropped())
	}
}
