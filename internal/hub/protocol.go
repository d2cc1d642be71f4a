// Package hub is the subscription fan-out server (spec §4.3, C3): it
// accepts WebSocket UI clients, ships an initial snapshot, and streams
// live deltas with bounded, coalescing backpressure per client.
package hub

import (
	"encoding/json"

	"github.com/jacquesd/jacquesd/internal/session"
)

// MessageType tags every server -> client wire message (spec §4.3).
type MessageType string

const (
	MsgInitialState        MessageType = "initial_state"
	MsgSessionUpdate       MessageType = "session_update"
	MsgSessionRemoved      MessageType = "session_removed"
	MsgFocusChanged        MessageType = "focus_changed"
	MsgAutocompactToggled  MessageType = "autocompact_toggled"
	MsgHandoffReady        MessageType = "handoff_ready"
	MsgClaudeOperation     MessageType = "claude_operation"
	MsgAPILog              MessageType = "api_log"
	MsgServerLog           MessageType = "server_log"
	MsgNotificationFired   MessageType = "notification_fired"
)

// ResultSuffix is appended to a client request's type to form its
// response's MessageType, e.g. "tile_windows" -> "tile_windows_result".
const ResultSuffix = "_result"

// Message is the envelope every server -> client frame uses.
type Message struct {
	Type    MessageType `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// ResultMessage is the envelope for a `<request>_result` reply (spec §4.9).
type ResultMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

type InitialStatePayload struct {
	Sessions         []*session.Session `json:"sessions"`
	FocusedSessionID string             `json:"focused_session_id,omitempty"`
}

type SessionUpdatePayload struct {
	Session *session.Session `json:"session"`
}

type SessionRemovedPayload struct {
	SessionID string `json:"session_id"`
}

type FocusChangedPayload struct {
	SessionID string           `json:"session_id"`
	Session   *session.Session `json:"session,omitempty"`
}

type AutocompactToggledPayload struct {
	Enabled bool   `json:"enabled"`
	Warning string `json:"warning,omitempty"`
}

type HandoffReadyPayload struct {
	SessionID string `json:"session_id"`
	Path      string `json:"path"`
}

// ClientRequest is the envelope every client -> server frame uses (spec
// §4.9). RequestID is optional and echoed back on the result so a client
// that has multiple in-flight requests of the same type can match them up;
// it is not required by the protocol.
type ClientRequest struct {
	Type      string          `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}
