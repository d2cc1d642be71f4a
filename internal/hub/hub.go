package hub

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/jacquesd/jacquesd/internal/session"
	"github.com/gorilla/websocket"
)

// Hub owns the set of connected UI clients and fans registry/tile-state
// changes out to all of them (spec §4.3, C3). The registry and tile-state
// model are never touched here; the Hub only serialises its own client set.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[*Client]bool)}
}

// AddClient registers a new WebSocket connection, immediately sends it an
// initial_state snapshot (spec §4.3: "sent exactly once, immediately upon
// connection"), and returns the Client handle the caller should retain for
// RemoveClient and for routing *_result replies.
func (h *Hub) AddClient(conn *websocket.Conn, sessions []*session.Session, focusedID string) *Client {
	c := newClient(conn)

	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()

	h.sendSnapshotTo(c, sessions, focusedID)
	return c
}

// RemoveClient purges a disconnected client. Abnormal close is never an
// error (spec §4.3 "connection lifecycle"): this does nothing else.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()
	if ok {
		c.close()
	}
}

// ClientCount returns the number of currently connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) clientList() []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		out = append(out, c)
	}
	return out
}

func (h *Hub) sendSnapshotTo(c *Client, sessions []*session.Session, focusedID string) {
	data, err := encode(Message{
		Type: MsgInitialState,
		Payload: InitialStatePayload{
			Sessions:         sessions,
			FocusedSessionID: focusedID,
		},
	})
	if err != nil {
		log.Printf("hub: marshal initial_state: %v", err)
		return
	}
	c.enqueue(outboundFrame{kind: kindCritical, data: data})
}

// BroadcastSessionUpdate fans a session_update out to every client. These
// frames coalesce per session id under backpressure (spec §4.3).
func (h *Hub) BroadcastSessionUpdate(s *session.Session) {
	data, err := encode(Message{Type: MsgSessionUpdate, Payload: SessionUpdatePayload{Session: s}})
	if err != nil {
		log.Printf("hub: marshal session_update: %v", err)
		return
	}
	h.fanOut(outboundFrame{kind: kindSessionUpdate, sessionID: s.SessionID, data: data})
}

// BroadcastSessionRemoved fans a session_removed out. Never dropped.
func (h *Hub) BroadcastSessionRemoved(sessionID string) {
	data, err := encode(Message{Type: MsgSessionRemoved, Payload: SessionRemovedPayload{SessionID: sessionID}})
	if err != nil {
		log.Printf("hub: marshal session_removed: %v", err)
		return
	}
	h.fanOut(outboundFrame{kind: kindCritical, data: data})
}

// BroadcastFocusChanged fans a focus_changed out. Never dropped.
func (h *Hub) BroadcastFocusChanged(sessionID string, s *session.Session) {
	data, err := encode(Message{Type: MsgFocusChanged, Payload: FocusChangedPayload{SessionID: sessionID, Session: s}})
	if err != nil {
		log.Printf("hub: marshal focus_changed: %v", err)
		return
	}
	h.fanOut(outboundFrame{kind: kindCritical, data: data})
}

// BroadcastAutocompactToggled fans an autocompact_toggled out. Used after
// toggle_autocompact persists a new setting (spec §4.9).
func (h *Hub) BroadcastAutocompactToggled(enabled bool, warning string) {
	data, err := encode(Message{Type: MsgAutocompactToggled, Payload: AutocompactToggledPayload{Enabled: enabled, Warning: warning}})
	if err != nil {
		log.Printf("hub: marshal autocompact_toggled: %v", err)
		return
	}
	h.fanOut(outboundFrame{kind: kindCritical, data: data})
}

// BroadcastHandoffReady fans a handoff_ready out (spec §4.8, C8). Never
// dropped.
func (h *Hub) BroadcastHandoffReady(sessionID, path string) {
	data, err := encode(Message{Type: MsgHandoffReady, Payload: HandoffReadyPayload{SessionID: sessionID, Path: path}})
	if err != nil {
		log.Printf("hub: marshal handoff_ready: %v", err)
		return
	}
	h.fanOut(outboundFrame{kind: kindCritical, data: data})
}

// BroadcastTelemetry forwards an opaque telemetry message (claude_operation,
// api_log, server_log) as-is. Under backpressure these are shed once no
// queued session_update frame is left to drop.
func (h *Hub) BroadcastTelemetry(kind MessageType, payload interface{}) {
	data, err := encode(Message{Type: kind, Payload: payload})
	if err != nil {
		log.Printf("hub: marshal %s: %v", kind, err)
		return
	}
	h.fanOut(outboundFrame{kind: kindTelemetry, data: data})
}

// SendResult delivers a *_result reply to exactly the requesting client.
// Never dropped (spec §4.3).
func (h *Hub) SendResult(c *Client, requestType string, requestID string, payload interface{}) {
	msg := ResultMessage{Type: requestType + ResultSuffix, Payload: payload}
	data, err := json.Marshal(struct {
		ResultMessage
		RequestID string `json:"request_id,omitempty"`
	}{ResultMessage: msg, RequestID: requestID})
	if err != nil {
		log.Printf("hub: marshal %s: %v", msg.Type, err)
		return
	}
	c.enqueue(outboundFrame{kind: kindCritical, data: data})
}

func (h *Hub) fanOut(f outboundFrame) {
	for _, c := range h.clientList() {
		c.enqueue(f)
	}
}

func encode(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}
