package wsbridge

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"s7gateway/internal/eventbus"
)

func TestHubBroadcastsEventToConnectedClient(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Shutdown()

	srv := httptest.NewServer(NewHandler(hub))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(time.Second)
	for hub.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for client registration")
		}
		time.Sleep(5 * time.Millisecond)
	}

	hub.BroadcastEvent(eventbus.Event{
		EventName: "monitor_on_change_response",
		EventData: map[string]interface{}{"temp": 71},
		MachineID: "uid1",
		EventType: "on_change",
	})

	conn.SetReadDeadline(time.Now().Add(time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	var envelope struct {
		Type string `json:"type"`
		Data eventbus.Event
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if envelope.Type != "event" || envelope.Data.MachineID != "uid1" {
		t.Fatalf("unexpected envelope: %+v", envelope)
	}
}
