package server

import (
	"testing"
	"time"
)

func TestHubBroadcastExcludesSender(t *testing.T) {
	hub := NewHub()
	sender := hub.Attach("comp-1")
	sibling := hub.Attach("comp-1")
	stranger := hub.Attach("comp-2")

	hub.Broadcast("comp-1", sender, []byte("update"))

	select {
	case payload := <-sibling.Stream():
		if string(payload) != "update" {
			t.Fatalf("unexpected payload %q", payload)
		}
	case <-time.After(time.Second):
		t.Fatalf("sibling never received the broadcast")
	}

	select {
	case <-sender.Stream():
		t.Fatalf("sender must not receive its own broadcast")
	default:
	}
	select {
	case <-stranger.Stream():
		t.Fatalf("other competitions must not receive the broadcast")
	default:
	}
}

func TestHubDetachReportsRemaining(t *testing.T) {
	hub := NewHub()
	first := hub.Attach("comp-1")
	second := hub.Attach("comp-1")

	if remaining := hub.Detach("comp-1", first); remaining != 1 {
		t.Fatalf("expected one remaining connection, got %d", remaining)
	}
	select {
	case <-first.Done():
	case <-time.After(time.Second):
		t.Fatalf("detach must close the done channel")
	}

	if remaining := hub.Detach("comp-1", second); remaining != 0 {
		t.Fatalf("expected empty room, got %d remaining", remaining)
	}

	// Detaching an already-detached subscription must not panic or close
	// done twice.
	if remaining := hub.Detach("comp-1", second); remaining != 0 {
		t.Fatalf("expected repeat detach to report zero, got %d", remaining)
	}
}

func TestHubBroadcastDropsOnFullBuffer(t *testing.T) {
	hub := NewHub()
	sender := hub.Attach("comp-1")
	slow := hub.Attach("comp-1")

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < hubStreamBuffer+10; i++ {
			hub.Broadcast("comp-1", sender, []byte{byte(i)})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("broadcast must never block on a slow consumer")
	}

	if buffered := len(slow.stream); buffered != hubStreamBuffer {
		t.Fatalf("expected buffer capped at %d payloads, got %d", hubStreamBuffer, buffered)
	}
}
