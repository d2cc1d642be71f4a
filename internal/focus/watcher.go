// Package focus implements the focus-follows-terminal loop (spec §4.4, C4).
// It polls the OS for the frontmost terminal window, maps the result onto a
// live session's terminal_key, and pushes the change into the registry. It
// owns no state of its own beyond the last poll result: the registry remains
// the single authority for focused_session_id.
package focus

import (
	"context"
	"log"
	"time"

	"github.com/jacquesd/jacquesd/internal/session"
)

// DefaultInterval matches spec §4.4's "~250-500 ms" polling cadence.
const DefaultInterval = 300 * time.Millisecond

// Probe reports the candidate terminal keys that could describe the
// frontmost window, most specific first (e.g. on iTerm both an
// "ITERM:<id>" key and a "TTY:<dev>" fallback may describe the same
// window — spec §4.4). An empty slice means no terminal is frontmost, or
// the probe could not determine one.
type Probe func() ([]string, error)

// Registry is the subset of session.Registry the watcher needs.
type Registry interface {
	All() []*session.Session
	FocusedID() string
	SetFocus(id string) bool
}

// Watcher polls a Probe at a fixed interval and reconciles the result
// against the registry's live terminal_keys.
type Watcher struct {
	probe    Probe
	registry Registry
	interval time.Duration
	onChange func(sessionID string, s *session.Session)
}

// New creates a Watcher. onChange is invoked (outside the registry lock)
// whenever SetFocus actually changes the focused session; it may be nil.
func New(probe Probe, registry Registry, interval time.Duration, onChange func(string, *session.Session)) *Watcher {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Watcher{probe: probe, registry: registry, interval: interval, onChange: onChange}
}

// Run polls until ctx is cancelled. A failed probe is logged once per
// occurrence and the loop continues (spec §4.4: "fault-tolerant").
func (w *Watcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	log.Printf("focus: watcher started, interval=%s", w.interval)

	for {
		select {
		case <-ctx.Done():
			log.Println("focus: watcher stopped")
			return
		case <-ticker.C:
			w.tick()
		}
	}
}

func (w *Watcher) tick() {
	sessions := w.registry.All()
	if len(sessions) == 0 {
		// Polling is conditional per spec §4.4; with nothing registered
		// there is nothing a probe result could match.
		return
	}

	candidates, err := w.probe()
	if err != nil {
		log.Printf("focus: probe failed: %v", err)
		return
	}
	if len(candidates) == 0 {
		return
	}

	matched := w.matchCandidate(candidates, sessions)
	if matched == "" {
		return
	}
	if matched == w.registry.FocusedID() {
		return
	}
	if !w.registry.SetFocus(matched) {
		return
	}

	if w.onChange == nil {
		return
	}
	for _, s := range sessions {
		if s.SessionID == matched {
			w.onChange(matched, s)
			return
		}
	}
}

// matchCandidate tries each candidate key in order (most specific first)
// against every live session's terminal_key and returns the first hit's
// session id, or "" if nothing matches.
func (w *Watcher) matchCandidate(candidates []string, sessions []*session.Session) string {
	for _, candidate := range candidates {
		if candidate == "" {
			continue
		}
		for _, s := range sessions {
			if s.TerminalKey == candidate {
				return s.SessionID
			}
		}
	}
	return ""
}
