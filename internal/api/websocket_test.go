package api

import (
	"testing"

	"github.com/nerrad567/tapowatt/internal/aggregate"
	"github.com/nerrad567/tapowatt/internal/infrastructure/config"
)

func newTestHub() *Hub {
	return NewHub(config.WebSocketConfig{
		MaxMessageSize: 8192,
		PingInterval:   30,
		PongTimeout:    10,
	}, testLogger())
}

// newHubClient creates a client without a network connection, enough
// to exercise registration and broadcast fan-out.
func newHubClient(h *Hub) *WSClient {
	return &WSClient{
		hub:           h,
		send:          make(chan WSMessage, wsSendBufferSize),
		subscriptions: make(map[string]struct{}),
	}
}

func TestHub_RegisterUnregister(t *testing.T) {
	h := newTestHub()
	c := newHubClient(h)

	h.Register(c)
	if h.ClientCount() != 1 {
		t.Fatalf("ClientCount = %d, want 1", h.ClientCount())
	}

	h.Unregister(c)
	if h.ClientCount() != 0 {
		t.Fatalf("ClientCount = %d, want 0", h.ClientCount())
	}

	// A second unregister must not panic on the closed send channel.
	h.Unregister(c)
}

func TestHub_BroadcastRespectsSubscriptions(t *testing.T) {
	h := newTestHub()

	subscribed := newHubClient(h)
	subscribed.subscriptions[ChannelPowerUpdate] = struct{}{}
	idle := newHubClient(h)

	h.Register(subscribed)
	h.Register(idle)

	readings := []aggregate.Reading{
		{Device: "heater", Status: aggregate.StatusSuccess, Data: map[string]any{"current_power": 1500.0}},
	}
	h.Broadcast(ChannelPowerUpdate, readings)

	select {
	case msg := <-subscribed.send:
		if msg.Type != WSTypeEvent {
			t.Errorf("Type = %q, want %q", msg.Type, WSTypeEvent)
		}
		if msg.EventType != ChannelPowerUpdate {
			t.Errorf("EventType = %q, want %q", msg.EventType, ChannelPowerUpdate)
		}
	default:
		t.Fatal("subscribed client received nothing")
	}

	select {
	case msg := <-idle.send:
		t.Fatalf("idle client received unexpected message: %+v", msg)
	default:
	}
}

func TestClient_HandleSubscribe(t *testing.T) {
	h := newTestHub()
	c := newHubClient(h)

	c.handleMessage(WSMessage{
		Type:    WSTypeSubscribe,
		ID:      "1",
		Payload: []byte(`{"channel":"power_update"}`),
	})

	if !c.isSubscribed(ChannelPowerUpdate) {
		t.Fatal("client not subscribed after subscribe message")
	}

	select {
	case msg := <-c.send:
		if msg.Type != WSTypeResponse || msg.ID != "1" {
			t.Errorf("unexpected response: %+v", msg)
		}
	default:
		t.Fatal("no response queued")
	}

	c.handleMessage(WSMessage{
		Type:    WSTypeUnsubscribe,
		ID:      "2",
		Payload: []byte(`{"channel":"power_update"}`),
	})
	if c.isSubscribed(ChannelPowerUpdate) {
		t.Fatal("client still subscribed after unsubscribe")
	}
}

func TestClient_HandlePing(t *testing.T) {
	h := newTestHub()
	c := newHubClient(h)

	c.handleMessage(WSMessage{Type: WSTypePing, ID: "7"})

	select {
	case msg := <-c.send:
		if msg.Type != WSTypePong || msg.ID != "7" {
			t.Errorf("unexpected pong: %+v", msg)
		}
	default:
		t.Fatal("no pong queued")
	}
}
