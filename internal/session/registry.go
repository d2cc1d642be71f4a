package session

import (
	"fmt"
	"sync"
	"time"
)

// Registry is the single authority for live session state (spec §4.2). All
// mutations are serialised under one mutex; reads observe a consistent
// snapshot via copy-on-read, mirroring the teacher's Store.
type Registry struct {
	mu         sync.RWMutex
	sessions   map[string]*Session
	focusedID  string
	onRemoved  func(*Session)
	now        func() time.Time
}

// NewRegistry creates an empty registry. onRemoved, if non-nil, is invoked
// (outside the registry's lock) whenever a session transitions to ended and
// is removed, by explicit session_end or by reaping (spec §4.2 "side effect
// on remove"). The orchestrator wires this to notify the subscription hub
// and clear tile-state slots.
func NewRegistry(onRemoved func(*Session)) *Registry {
	return &Registry{
		sessions:  make(map[string]*Session),
		onRemoved: onRemoved,
		now:       time.Now,
	}
}

// Get returns a copy of the session with the given id, or ok=false if it is
// not currently live.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, false
	}
	return s.Clone(), true
}

// All returns a copy of every live session. Order is unspecified.
func (r *Registry) All() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s.Clone())
	}
	return out
}

// FocusedID returns the currently focused session id, or "" if none.
func (r *Registry) FocusedID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.focusedID
}

// SetFocus sets the focused session to id (empty string clears focus). It
// returns true iff the focus actually changed (spec §8 "Focus update"
// property): calling SetFocus with the already-focused id is a no-op.
func (r *Registry) SetFocus(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id == r.focusedID {
		return false
	}
	r.focusedID = id
	return true
}

// Ingest applies one event to the registry and returns the mutated
// session (a copy, safe to retain), or nil if the event produced no
// session (e.g. an update for an unknown session id other than
// session_start). Per spec §4.1 the ingress layer is responsible for
// logging malformed/unknown records and continuing; Ingest itself never
// panics and returns a descriptive error only for records this layer
// cannot apply at all.
func (r *Registry) Ingest(e Event) (*Session, error) {
	if e.SessionID == "" {
		return nil, fmt.Errorf("ingest %s: missing session_id", e.Kind)
	}

	r.mu.Lock()
	s, existed := r.sessions[e.SessionID]

	switch e.Kind {
	case EventSessionStart:
		if !existed {
			s = &Session{
				SessionID:    e.SessionID,
				Status:       Active,
				RegisteredAt: r.now(),
			}
			r.sessions[e.SessionID] = s
		}
		// Re-registration (existed == true) preserves status but refreshes
		// identity/location fields below — see the open question recorded
		// in DESIGN.md about terminal_key churn vs. tile-state slots.
		applyOptionalFields(s, e)
		s.LastActivity = r.now()

	case EventSessionUpdate:
		if !existed {
			r.mu.Unlock()
			return nil, nil
		}
		applyOptionalFields(s, e)
		s.LastActivity = r.now()

	case EventToolUseStart:
		if !existed {
			r.mu.Unlock()
			return nil, nil
		}
		s.activeTools++
		s.Status = Working
		if e.ToolName != nil {
			s.LastToolName = *e.ToolName
		}
		s.LastActivity = r.now()

	case EventToolUseAwaiting:
		if !existed {
			r.mu.Unlock()
			return nil, nil
		}
		s.Status = Awaiting
		if e.ToolName != nil {
			s.LastToolName = *e.ToolName
		}
		s.LastActivity = r.now()

	case EventToolUseEnd:
		if !existed {
			r.mu.Unlock()
			return nil, nil
		}
		if s.activeTools > 0 {
			s.activeTools--
		}
		if s.activeTools == 0 {
			s.Status = Idle
		} else {
			s.Status = Working
		}
		s.LastActivity = r.now()

	case EventAssistantComplete:
		if !existed {
			r.mu.Unlock()
			return nil, nil
		}
		s.Status = Idle
		s.activeTools = 0
		if e.ContextMetrics != nil {
			cm := *e.ContextMetrics
			s.ContextMetrics = &cm
		}
		s.LastActivity = r.now()

	case EventSessionEnd:
		if !existed {
			r.mu.Unlock()
			return nil, nil
		}
		s.Status = Ended
		s.LastActivity = r.now()
		delete(r.sessions, e.SessionID)
		if r.focusedID == e.SessionID {
			r.focusedID = ""
		}
		removed := s.Clone()
		r.mu.Unlock()
		r.notifyRemoved(removed)
		return removed, nil

	default:
		// Unrecognised/opaque kind (e.g. claude_operation): no state
		// transition, but still counts as activity if the session exists.
		if !existed {
			r.mu.Unlock()
			return nil, nil
		}
		s.LastActivity = r.now()
	}

	out := s.Clone()
	r.mu.Unlock()
	return out, nil
}

// Remove force-removes a session (used by reaping, spec §4.2). It is a
// no-op if the session is already gone. Idempotent.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	s.Status = Ended
	delete(r.sessions, id)
	if r.focusedID == id {
		r.focusedID = ""
	}
	removed := s.Clone()
	r.mu.Unlock()
	r.notifyRemoved(removed)
}

func (r *Registry) notifyRemoved(s *Session) {
	if r.onRemoved != nil {
		r.onRemoved(s)
	}
}

// applyOptionalFields patches the non-nil fields carried on e onto s. Used
// by both session_start (re-registration) and session_update.
func applyOptionalFields(s *Session, e Event) {
	if e.Title != nil {
		s.Title = *e.Title
	}
	if e.TranscriptPath != nil {
		s.TranscriptPath = *e.TranscriptPath
	}
	if e.Cwd != nil {
		s.Cwd = *e.Cwd
	}
	if e.Project != nil {
		s.ProjectName = *e.Project
	}
	if e.TerminalKey != nil && *e.TerminalKey != "" {
		s.TerminalKey = *e.TerminalKey
	}
	if e.GitRepoRoot != nil {
		s.GitRepoRoot = *e.GitRepoRoot
	}
	if e.GitBranch != nil {
		s.GitBranch = *e.GitBranch
	}
	if e.GitWorktree != nil {
		s.GitWorktree = *e.GitWorktree
	}
}
