package session

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventKind is the recognised `event` tag on an ingress record (spec §4.1).
type EventKind string

const (
	EventSessionStart      EventKind = "session_start"
	EventSessionUpdate     EventKind = "session_update"
	EventToolUseStart      EventKind = "tool_use_start"
	EventToolUseAwaiting   EventKind = "tool_use_awaiting_approval"
	EventToolUseEnd        EventKind = "tool_use_end"
	EventAssistantComplete EventKind = "assistant_response_complete"
	EventSessionEnd        EventKind = "session_end"
	EventClaudeOperation   EventKind = "claude_operation"
)

// Event is one newline-delimited JSON record received over the ingress
// socket. Every recognised kind shares this single wire shape; fields not
// relevant to a given kind are simply absent. Unknown kinds still decode
// (Event.Kind carries whatever string was present); the registry applies no
// state transition for them and only refreshes LastActivity of an existing
// session.
type Event struct {
	Kind EventKind `json:"event"`

	SessionID string `json:"session_id"`

	Title          *string `json:"title,omitempty"`
	TranscriptPath *string `json:"transcript_path,omitempty"`
	Cwd            *string `json:"cwd,omitempty"`
	Project        *string `json:"project,omitempty"`
	Terminal       *string `json:"terminal,omitempty"`
	TerminalKey    *string `json:"terminal_key,omitempty"`
	GitRepoRoot    *string `json:"git_repo_root,omitempty"`
	GitBranch      *string `json:"git_branch,omitempty"`
	GitWorktree    *string `json:"git_worktree,omitempty"`

	ToolName *string `json:"tool_name,omitempty"`

	ContextMetrics *ContextMetrics `json:"context_metrics,omitempty"`

	// Timestamp is advisory (used for logging); the registry always
	// stamps LastActivity with its own clock so ordering is consistent
	// with arrival order, not claimed event time.
	Timestamp *time.Time `json:"timestamp,omitempty"`

	// Raw carries the record's original bytes. Nothing forwards them to
	// subscribers: an opaque kind such as claude_operation only refreshes
	// the session's LastActivity and reaches subscribers as a
	// session_update.
	Raw json.RawMessage `json:"-"`
}

// DecodeEvent parses one newline-delimited JSON record and keeps a copy of
// the original bytes in Raw.
func DecodeEvent(line []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(line, &e); err != nil {
		return Event{}, fmt.Errorf("decoding event: %w", err)
	}
	if e.Kind == "" {
		return Event{}, fmt.Errorf("decoding event: missing %q field", "event")
	}
	e.Raw = append(json.RawMessage(nil), line...)
	return e, nil
}
