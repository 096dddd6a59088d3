package monitoring

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap/zaptest"
)

func waitForClients(t *testing.T, hub *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d clients, have %d", n, hub.ClientCount())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestHubBroadcastsEvents(t *testing.T) {
	hub := NewHub(zaptest.NewLogger(t))
	hub.Start()
	defer hub.Stop()

	server := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer conn.Close()
	waitForClients(t, hub, 1)

	hub.Notify("model.trained", map[string]float64{"accuracy": 0.96})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var event Event
	if err := json.Unmarshal(data, &event); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if event.Type != "model.trained" || event.ID == "" {
		t.Errorf("unexpected event: %+v", event)
	}
	var payload map[string]float64
	if err := json.Unmarshal(event.Data, &payload); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if payload["accuracy"] != 0.96 {
		t.Errorf("expected accuracy 0.96, got %v", payload["accuracy"])
	}
}

func TestClientSubscriptions(t *testing.T) {
	c := &client{subscriptions: make(map[string]bool)}
	if !c.wants("model.saved") {
		t.Fatal("client without subscriptions should receive every event")
	}
	c.handle(ClientMessage{Type: "subscribe", Topic: "model.loaded"})
	if c.wants("model.saved") {
		t.Error("unsubscribed event type delivered")
	}
	if !c.wants("model.loaded") {
		t.Error("subscribed event type not delivered")
	}
	c.handle(ClientMessage{Type: "unsubscribe", Topic: "model.loaded"})
	if !c.wants("model.saved") {
		t.Error("expected every event after unsubscribing")
	}
}

func TestNotifyWithoutClientsDoesNotBlock(t *testing.T) {
	hub := NewHub(nil)
	for i := 0; i < 1000; i++ {
		hub.Notify("model.trained", i)
	}
}
