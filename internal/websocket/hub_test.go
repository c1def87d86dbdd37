package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"
	"testing"
	"time"
)

// mockClient builds a Client with an outbox and no connection.
func mockClient(hub *Hub, familyID int64) *Client {
	return &Client{
		hub:      hub,
		familyID: familyID,
		outbox:   make(chan []byte, outboxSize),
	}
}

func TestRegisterUnregister(t *testing.T) {
	hub := NewHub(slog.Default())

	c1 := mockClient(hub, 1)
	c2 := mockClient(hub, 1)

	hub.Register(c1)
	hub.Register(c2)

	if got := hub.ClientCount(); got != 2 {
		t.Fatalf("expected 2 clients, got %d", got)
	}

	hub.Unregister(c1)
	if got := hub.ClientCount(); got != 1 {
		t.Fatalf("expected 1 client after unregister, got %d", got)
	}

	hub.Unregister(c2)
	if got := hub.ClientCount(); got != 0 {
		t.Fatalf("expected 0 clients, got %d", got)
	}
}

func TestFamilyClientCount(t *testing.T) {
	hub := NewHub(slog.Default())
	a := mockClient(hub, 1)
	b := mockClient(hub, 2)
	hub.Register(a)
	hub.Register(b)

	if got := hub.FamilyClientCount(1); got != 1 {
		t.Fatalf("family 1 = %d, want 1", got)
	}
	hub.Unregister(a)
	if got := hub.FamilyClientCount(1); got != 0 {
		t.Fatalf("family 1 after unregister = %d, want 0", got)
	}
	if got := hub.FamilyClientCount(2); got != 1 {
		t.Fatalf("family 2 = %d, want 1", got)
	}
	hub.Unregister(b)
}

func TestDoubleUnregister(t *testing.T) {
	hub := NewHub(slog.Default())
	c := mockClient(hub, 1)
	hub.Register(c)
	hub.Unregister(c)
	// Should not panic
	hub.Unregister(c)

	if got := hub.ClientCount(); got != 0 {
		t.Fatalf("expected 0 clients, got %d", got)
	}
}

func TestBroadcastStaysInFamily(t *testing.T) {
	hub := NewHub(slog.Default())

	c1 := mockClient(hub, 1)
	c2 := mockClient(hub, 1)
	other := mockClient(hub, 2)
	hub.Register(c1)
	hub.Register(c2)
	hub.Register(other)

	hub.Notify(1, "packing_list_item", "added", 42, map[string]any{"list_id": float64(1)})

	for _, c := range []*Client{c1, c2} {
		select {
		case data := <-c.outbox:
			var got Message
			if err := json.Unmarshal(data, &got); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if got.Type != "packing_list_item_added" {
				t.Errorf("expected type packing_list_item_added, got %s", got.Type)
			}
			if got.ID != 42 {
				t.Errorf("expected id 42, got %d", got.ID)
			}
		case <-time.After(100 * time.Millisecond):
			t.Fatal("timeout waiting for message")
		}
	}

	select {
	case <-other.outbox:
		t.Error("client of another family received the message")
	default:
	}

	hub.Unregister(c1)
	hub.Unregister(c2)
	hub.Unregister(other)
}

func TestBroadcastEmptyHub(t *testing.T) {
	hub := NewHub(slog.Default())
	// Should not panic
	hub.Broadcast(1, NewMessage("template", "updated", 1, nil))
}

func TestBroadcastFullBuffer(t *testing.T) {
	hub := NewHub(slog.Default())

	c := mockClient(hub, 1)
	hub.Register(c)

	for i := 0; i < outboxSize; i++ {
		hub.Broadcast(1, NewMessage("test", "fill", int64(i), nil))
	}

	// This should drop the message, not panic or block
	hub.Broadcast(1, NewMessage("test", "dropped", 999, nil))

	count := 0
	for {
		select {
		case <-c.outbox:
			count++
		default:
			goto done
		}
	}
done:
	if count != outboxSize {
		t.Errorf("expected %d messages, got %d", outboxSize, count)
	}

	hub.Unregister(c)
}

func TestNewMessage(t *testing.T) {
	msg := NewMessage("template", "updated", 5, nil)
	if msg.Type != "template_updated" {
		t.Errorf("expected type template_updated, got %s", msg.Type)
	}
	if msg.Entity != "template" {
		t.Errorf("expected entity template, got %s", msg.Entity)
	}
	if msg.Action != "updated" {
		t.Errorf("expected action updated, got %s", msg.Action)
	}
	if msg.ID != 5 {
		t.Errorf("expected id 5, got %d", msg.ID)
	}
}

func TestConcurrentAccess(t *testing.T) {
	hub := NewHub(slog.Default())
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(family int64) {
			defer wg.Done()
			c := mockClient(hub, family)
			hub.Register(c)
			hub.Broadcast(family, NewMessage("test", "concurrent", 0, nil))
			for {
				select {
				case <-c.outbox:
				default:
					hub.Unregister(c)
					return
				}
			}
		}(int64(i % 3))
	}

	wg.Wait()

	if got := hub.ClientCount(); got != 0 {
		t.Errorf("expected 0 clients after concurrent test, got %d", got)
	}
}
