package service_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/suipaper/paper-engine/internal/service"
)

func newWSEnv(t *testing.T) (*service.WSHub, string) {
	t.Helper()
	hub := service.NewWSHub()
	go hub.Run()

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(srv.Close)

	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dialWS(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("ws dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestWSHub_BroadcastDelivers(t *testing.T) {
	hub, url := newWSEnv(t)

	conn := dialWS(t, url)

	// Let the registration land before broadcasting.
	time.Sleep(50 * time.Millisecond)

	hub.Broadcast(service.WSMessage{
		Type:   "price_tick",
		Prices: map[string]string{"MOON": "0.5"},
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg service.WSMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("expected broadcast message: %v", err)
	}
	if msg.Type != "price_tick" || msg.Prices["MOON"] != "0.5" {
		t.Errorf("unexpected message: %+v", msg)
	}
}

// Dead connections are evicted during broadcast while the per-connection
// goroutines still consult hub membership. Run under -race: eviction is
// a map write and must be fully excluded from those reads.
func TestWSHub_EvictsDeadClientsDuringBroadcast(t *testing.T) {
	hub, url := newWSEnv(t)

	healthy := dialWS(t, url)

	dead := make([]*websocket.Conn, 3)
	for i := range dead {
		dead[i] = dialWS(t, url)
	}
	time.Sleep(50 * time.Millisecond)

	// Abrupt transport close so server-side writes start failing.
	for _, c := range dead {
		c.UnderlyingConn().Close()
	}

	for i := 0; i < 50; i++ {
		hub.Broadcast(service.WSMessage{Type: "trade_executed", Symbol: "MOON"})
	}

	// The healthy client keeps receiving through the evictions.
	healthy.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg service.WSMessage
	if err := healthy.ReadJSON(&msg); err != nil {
		t.Fatalf("healthy client should keep receiving: %v", err)
	}
	if msg.Type != "trade_executed" {
		t.Errorf("unexpected message type %q", msg.Type)
	}
}
