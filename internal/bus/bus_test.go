package bus

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("message.", 10)
	defer unsub()

	b.Emit(MessageIncoming, MessagesPayload{ChatID: "c1"})

	select {
	case evt := <-ch:
		if evt.Kind != MessageIncoming {
			t.Errorf("got kind %q, want %q", evt.Kind, MessageIncoming)
		}
		p, ok := evt.Payload.(MessagesPayload)
		if !ok || p.ChatID != "c1" {
			t.Errorf("payload = %#v, want MessagesPayload for c1", evt.Payload)
		}
		if evt.Timestamp.IsZero() {
			t.Error("event timestamp not set")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestNamespaceFiltering(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("status.", 10)
	defer unsub()

	b.Emit(ChatListRefresh, nil)
	b.Emit(StatusCreated, nil)

	select {
	case evt := <-ch:
		if evt.Kind != StatusCreated {
			t.Errorf("got kind %q, want %q", evt.Kind, StatusCreated)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}

	select {
	case evt := <-ch:
		t.Errorf("unexpected event: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestUnsubscribe(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("session.", 10)
	unsub()

	b.Emit(SessionStatusChanged, nil)

	select {
	case evt := <-ch:
		t.Errorf("received event after unsubscribe: %v", evt)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDropOnFullBuffer(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe("chat.", 1)
	defer unsub()

	b.Emit(ChatOpened, nil)
	// Dropped, buffer is full.
	b.Emit(ChatRestored, nil)

	evt := <-ch
	if evt.Kind != ChatOpened {
		t.Errorf("got %q, want %q", evt.Kind, ChatOpened)
	}
}

func TestNilBusPublish(t *testing.T) {
	var b *Bus
	b.Emit(ChatListRefresh, nil)
}
