package runs

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func waitForClients(t *testing.T, hub *WSHub, want int) {
	t.Helper()
	for i := 0; i < 200; i++ {
		hub.mu.Lock()
		n := len(hub.clients)
		hub.mu.Unlock()
		if n == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("hub never reached %d clients", want)
}

func TestWSHubBroadcastAndPing(t *testing.T) {
	old := pingInterval
	pingInterval = 20 * time.Millisecond
	defer func() { pingInterval = old }()

	hub := NewWSHub()
	go hub.Run()

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	waitForClients(t, hub, 1)

	pinged := make(chan struct{}, 1)
	conn.SetPingHandler(func(string) error {
		select {
		case pinged <- struct{}{}:
		default:
		}
		return nil
	})

	msgs := make(chan []byte, 4)
	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			msgs <- data
		}
	}()

	hub.Broadcast(WSMessage{Type: "run_completed", RunID: "r1", NumTrades: 3})

	select {
	case data := <-msgs:
		var got WSMessage
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if got.Type != "run_completed" || got.RunID != "r1" || got.NumTrades != 3 {
			t.Errorf("message = %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("broadcast never arrived")
	}

	// Pings come from the hub loop, interleaved with broadcasts on the
	// same writer goroutine.
	select {
	case <-pinged:
	case <-time.After(2 * time.Second):
		t.Fatal("ping never arrived")
	}
}

func TestWSHubUnregisterOnDisconnect(t *testing.T) {
	hub := NewWSHub()
	go hub.Run()

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	waitForClients(t, hub, 1)

	conn.Close()
	waitForClients(t, hub, 0)
}
