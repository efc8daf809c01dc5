package stream

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/uavlink/gcs/internal/telemetry"
)

func subscribe(t *testing.T, h *Hub) *websocket.Conn {
	t.Helper()

	srv := httptest.NewServer(h.Handler())
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dialing hub: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	// Registration happens just after the upgrade response; wait for it.
	deadline := time.Now().Add(time.Second)
	for h.Subscribers() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscriber never registered")
		}
		time.Sleep(time.Millisecond)
	}
	return conn
}

func TestHubPublish(t *testing.T) {
	h := NewHub()
	defer h.Close()

	conn := subscribe(t, h)

	snap := telemetry.NewSnapshot()
	snap.Mode = "LOITER"
	snap.Altitude = 42.5
	snap.Armed = true
	h.Publish(snap)

	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("reading broadcast: %v", err)
	}

	var got telemetry.Snapshot
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("decoding broadcast: %v", err)
	}
	if got.Mode != "LOITER" || got.Altitude != 42.5 || !got.Armed {
		t.Errorf("broadcast = %+v, want mode LOITER, altitude 42.5, armed", got)
	}
}

func TestHubPublishWithoutSubscribers(t *testing.T) {
	h := NewHub()
	defer h.Close()

	// Must be a no-op, not a panic or a block.
	h.Publish(telemetry.NewSnapshot())

	if n := h.Subscribers(); n != 0 {
		t.Errorf("Subscribers() = %d, want 0", n)
	}
}

func TestHubClose(t *testing.T) {
	h := NewHub()
	conn := subscribe(t, h)

	h.Close()
	h.Close() // idempotent

	if n := h.Subscribers(); n != 0 {
		t.Errorf("Subscribers() = %d after Close, want 0", n)
	}

	// The server side tears the connection down; the read fails soon after.
	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("read succeeded on a closed hub")
	}
}
