// Package tile holds the daemon's belief about how windows are arranged on
// each display (spec §4.5, C5). It is pure model state: placing windows is
// the router's job (C9) via the window adapter (C7); this package only
// tracks what was last asked for, so the next smart-add has something to
// reason about.
package tile

import (
	"sync"

	"github.com/jacquesd/jacquesd/internal/layout"
)

// TiledSlot binds one occupied grid slot to the session placed there.
type TiledSlot struct {
	SessionID string
	Col, Row  int
	Rect      layout.Rect
}

// State is one display's tile arrangement.
type State struct {
	WorkArea       layout.Rect
	ColumnsPerRow  []int
	Slots          []TiledSlot
}

// BoundsReader reads back a window's actual on-screen rectangle for a
// session, used by bounds-based validation (spec §4.5: macOS). The caller
// resolves session id to terminal key and then to a window internally.
// Returns false if no window could be resolved.
type BoundsReader func(sessionID string) (layout.Rect, bool)

// SessionExists reports whether a session id is still live, used by
// session-existence-based validation (spec §4.5: Windows/Linux).
type SessionExists func(sessionID string) bool

// Manager holds at most one State per display id.
type Manager struct {
	mu       sync.Mutex
	byDisplay map[string]*State
}

// NewManager creates an empty Manager.
func NewManager() *Manager {
	return &Manager{byDisplay: make(map[string]*State)}
}

// Get returns the tile state for a display, if any.
func (m *Manager) Get(displayID string) (*State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byDisplay[displayID]
	if !ok {
		return nil, false
	}
	return s.clone(), true
}

// Any returns an arbitrary tile state, for callers that don't track which
// display is in play (spec §4.5: "convenience when display id is unknown").
func (m *Manager) Any() (*State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.byDisplay {
		return s.clone(), true
	}
	return nil, false
}

// AnyDisplayID returns the id of an arbitrary display that has tile state,
// for callers that need to know which display a state came from (spec
// §4.9 step 1: "display of any existing tile state").
func (m *Manager) AnyDisplayID() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id := range m.byDisplay {
		return id, true
	}
	return "", false
}

// Set replaces the tile state for a display.
func (m *Manager) Set(displayID string, s *State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byDisplay[displayID] = s.clone()
}

// Clear removes a single display's tile state.
func (m *Manager) Clear(displayID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byDisplay, displayID)
}

// ClearAll removes every tracked display's tile state.
func (m *Manager) ClearAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byDisplay = make(map[string]*State)
}

// RemoveSession drops sessionID's slot from every display that has it,
// recomputing the grid for the new, smaller count and reassigning the
// remaining sessions to the new slots in their current relative order
// (spec §4.5). It never issues window-placement operations itself; it
// only updates the model. Idempotent: a session absent from every state
// is a no-op.
func (m *Manager) RemoveSession(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for displayID, s := range m.byDisplay {
		idx := -1
		for i, slot := range s.Slots {
			if slot.SessionID == sessionID {
				idx = i
				break
			}
		}
		if idx == -1 {
			continue
		}

		remaining := make([]string, 0, len(s.Slots)-1)
		for i, slot := range s.Slots {
			if i == idx {
				continue
			}
			remaining = append(remaining, slot.SessionID)
		}

		m.byDisplay[displayID] = buildState(s.WorkArea, remaining)
	}
}

// BuildFromManualTile replaces a display's state with the grid for
// len(sessions), assigning sessions to slots in the order provided.
func (m *Manager) BuildFromManualTile(displayID string, workArea layout.Rect, sessions []string) *State {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := buildState(workArea, sessions)
	m.byDisplay[displayID] = s
	return s.clone()
}

func buildState(workArea layout.Rect, sessions []string) *State {
	slots := layout.CalculateAllSlots(workArea, len(sessions))
	s := &State{
		WorkArea:      workArea,
		ColumnsPerRow: layout.GridSpec(len(sessions)),
	}
	for i, slot := range slots {
		if i >= len(sessions) {
			break
		}
		s.Slots = append(s.Slots, TiledSlot{
			SessionID: sessions[i],
			Col:       slot.Col,
			Row:       slot.Row,
			Rect:      slot.Rect,
		})
	}
	return s
}

func (s *State) clone() *State {
	if s == nil {
		return nil
	}
	cp := *s
	cp.ColumnsPerRow = append([]int(nil), s.ColumnsPerRow...)
	cp.Slots = append([]TiledSlot(nil), s.Slots...)
	return &cp
}

// ValidateBounds is the macOS validation path: every slot's recorded rect
// must still be within tolerance pixels of the window's actual bounds on
// every axis.
func ValidateBounds(s *State, read BoundsReader, tolerance int) bool {
	if s == nil {
		return false
	}
	for _, slot := range s.Slots {
		actual, ok := read(slot.SessionID)
		if !ok {
			return false
		}
		if absInt(actual.X-slot.Rect.X) > tolerance ||
			absInt(actual.Y-slot.Rect.Y) > tolerance ||
			absInt(actual.W-slot.Rect.W) > tolerance ||
			absInt(actual.H-slot.Rect.H) > tolerance {
			return false
		}
	}
	return true
}

// ValidateSessionsExist is the Windows/Linux validation path: every slot's
// session must still be registered.
func ValidateSessionsExist(s *State, exists SessionExists) bool {
	if s == nil {
		return false
	}
	for _, slot := range s.Slots {
		if !exists(slot.SessionID) {
			return false
		}
	}
	return true
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
