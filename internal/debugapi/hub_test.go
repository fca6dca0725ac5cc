package debugapi

import (
	"testing"

	"github.com/nerrad567/switchsentry/internal/infrastructure/logging"
)

func TestHub_WriteRuleFireDropsWhenNoClients(t *testing.T) {
	hub := NewHub(logging.Default())
	hub.WriteRuleFire("motion-light", "hall-sensor") // must not panic with zero clients
	if got := hub.clientCount(); got != 0 {
		t.Errorf("clientCount() = %d, want 0", got)
	}
}

func TestHub_RegisterAndUnregisterTracksCount(t *testing.T) {
	hub := NewHub(logging.Default())
	c := &client{send: make(chan []byte, 1)}

	hub.register(c)
	if got := hub.clientCount(); got != 1 {
		t.Fatalf("clientCount() after register = %d, want 1", got)
	}

	hub.WriteRuleFire("motion-light", "hall-sensor")
	select {
	case msg := <-c.send:
		if len(msg) == 0 {
			t.Error("expected a non-empty broadcast message")
		}
	default:
		t.Error("expected a message to be queued for the registered client")
	}

	hub.unregister(c)
	if got := hub.clientCount(); got != 0 {
		t.Errorf("clientCount() after unregister = %d, want 0", got)
	}
}
