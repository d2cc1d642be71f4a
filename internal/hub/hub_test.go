package hub

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jacquesd/jacquesd/internal/session"
	"github.com/gorilla/websocket"
)

func dialTestServer(t *testing.T, h *Hub, handler RequestHandler, snapshot func() ([]*session.Session, string)) (*websocket.Conn, *httptest.Server) {
	t.Helper()
	srv := NewServer(h, handler, nil, snapshot)
	mux := http.NewServeMux()
	srv.SetupRoutes(mux)
	ts := httptest.NewServer(mux)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn, ts
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return msg
}

func TestInitialStateSentOnConnect(t *testing.T) {
	h := NewHub()
	sessions := []*session.Session{{SessionID: "s1", Status: session.Active}}
	conn, ts := dialTestServer(t, h, nil, func() ([]*session.Session, string) { return sessions, "s1" })
	defer ts.Close()
	defer conn.Close()

	msg := readMessage(t, conn)
	if msg.Type != MsgInitialState {
		t.Fatalf("first message type = %q, want %q", msg.Type, MsgInitialState)
	}
}

func TestBroadcastSessionUpdateReachesClient(t *testing.T) {
	h := NewHub()
	conn, ts := dialTestServer(t, h, nil, func() ([]*session.Session, string) { return nil, "" })
	defer ts.Close()
	defer conn.Close()

	readMessage(t, conn) // initial_state

	// Wait for the server to register the client before broadcasting.
	deadline := time.Now().Add(time.Second)
	for h.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	h.BroadcastSessionUpdate(&session.Session{SessionID: "s1", Status: session.Working})
	msg := readMessage(t, conn)
	if msg.Type != MsgSessionUpdate {
		t.Fatalf("message type = %q, want %q", msg.Type, MsgSessionUpdate)
	}
}

func TestClientEnqueueCoalescesSessionUpdates(t *testing.T) {
	c := &Client{notify: make(chan struct{}, 1)}

	c.enqueue(outboundFrame{kind: kindSessionUpdate, sessionID: "s1", data: []byte(`{"n":1}`)})
	c.enqueue(outboundFrame{kind: kindSessionUpdate, sessionID: "s1", data: []byte(`{"n":2}`)})
	c.enqueue(outboundFrame{kind: kindSessionUpdate, sessionID: "s2", data: []byte(`{"n":3}`)})

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.queue) != 2 {
		t.Fatalf("queue length = %d, want 2 (coalesced s1 update)", len(c.queue))
	}
	if string(c.queue[0].data) != `{"n":2}` {
		t.Errorf("s1 update not replaced with latest: got %s", c.queue[0].data)
	}
}

func TestClientBackpressureDropsSessionUpdatesBeforeCritical(t *testing.T) {
	c := &Client{notify: make(chan struct{}, 1)}

	for i := 0; i < maxClientQueue+10; i++ {
		c.enqueue(outboundFrame{kind: kindSessionUpdate, sessionID: "distinct-session-that-never-repeats-" + string(rune(i)), data: []byte("x")})
	}
	c.enqueue(outboundFrame{kind: kindCritical, data: []byte("critical")})

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.queue) == 0 {
		t.Fatal("queue unexpectedly empty")
	}
	last := c.queue[len(c.queue)-1]
	if last.kind != kindCritical {
		t.Fatal("critical frame was dropped or reordered")
	}
	if len(c.queue) > maxClientQueue+1 {
		t.Errorf("queue not trimmed by backpressure: len=%d", len(c.queue))
	}
}
