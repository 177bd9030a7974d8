package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"jobpulse/internal/domain/posting"

	"github.com/gorilla/websocket"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met in time")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestNotifyRunFinished_ReachesSubscriber(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(nil)
	go hub.Run(ctx)

	srv := httptest.NewServer(NewHandler(hub).Mux())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/runs"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	waitFor(t, func() bool { return hub.ClientCount() == 1 })

	hub.NotifyRunFinished(posting.Run{
		ID:         "r1",
		Kind:       posting.RunCrawl,
		Status:     posting.RunFinished,
		StopReason: "empty_streak",
		Counts:     posting.RunCounts{Pages: 4, Inserted: 12},
	})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var evt RunFinishedEvent
	if err := json.Unmarshal(msg, &evt); err != nil {
		t.Fatalf("decode %q: %v", msg, err)
	}
	if evt.Type != "run_finished" || evt.RunID != "r1" || evt.Kind != posting.RunCrawl || evt.Counts.Inserted != 12 {
		t.Fatalf("unexpected event %+v", evt)
	}
}

func TestHub_ClientLeaves(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(nil)
	go hub.Run(ctx)

	srv := httptest.NewServer(NewHandler(hub).Mux())
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/runs", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	waitFor(t, func() bool { return hub.ClientCount() == 1 })

	_ = conn.Close()
	waitFor(t, func() bool { return hub.ClientCount() == 0 })
}

func TestNilHubIsSafe(t *testing.T) {
	var hub *Hub
	hub.NotifyRunFinished(posting.Run{ID: "x"})
	hub.Broadcast([]byte("x"))
	if hub.ClientCount() != 0 {
		t.Fatalf("nil hub has clients")
	}
}
