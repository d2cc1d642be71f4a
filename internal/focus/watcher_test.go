package focus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jacquesd/jacquesd/internal/session"
)

func newRegistryWithSessions(t *testing.T, keys map[string]string) *session.Registry {
	t.Helper()
	reg := session.NewRegistry(nil)
	for id, key := range keys {
		terminalKey := key
		_, err := reg.Ingest(session.Event{Kind: session.EventSessionStart, SessionID: id, TerminalKey: &terminalKey})
		if err != nil {
			t.Fatalf("seed session %s: %v", id, err)
		}
	}
	return reg
}

func TestTickMatchesFirstCandidateHit(t *testing.T) {
	reg := newRegistryWithSessions(t, map[string]string{
		"s1": "ITERM:A",
		"s2": "ITERM:B",
	})

	var changed string
	w := New(func() ([]string, error) {
		return []string{"ITERM:B", "TTY:/dev/ttys003"}, nil
	}, reg, time.Millisecond, func(id string, s *session.Session) { changed = id })

	w.tick()

	if reg.FocusedID() != "s2" {
		t.Fatalf("FocusedID = %q, want s2", reg.FocusedID())
	}
	if changed != "s2" {
		t.Fatalf("onChange called with %q, want s2", changed)
	}
}

func TestTickIsIdempotentOnRepeatedPoll(t *testing.T) {
	reg := newRegistryWithSessions(t, map[string]string{"s1": "ITERM:A"})

	calls := 0
	var mu sync.Mutex
	w := New(func() ([]string, error) {
		return []string{"ITERM:A"}, nil
	}, reg, time.Millisecond, func(id string, s *session.Session) {
		mu.Lock()
		calls++
		mu.Unlock()
	})

	w.tick()
	w.tick()
	w.tick()

	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Fatalf("onChange called %d times, want exactly 1 (second+ poll is a no-op)", calls)
	}
}

func TestTickSkipsWhenNoSessionsRegistered(t *testing.T) {
	reg := session.NewRegistry(nil)
	probed := false
	w := New(func() ([]string, error) {
		probed = true
		return []string{"ITERM:A"}, nil
	}, reg, time.Millisecond, nil)

	w.tick()

	if probed {
		t.Fatal("probe should not be called when the registry has zero sessions")
	}
}

func TestTickToleratesProbeFailure(t *testing.T) {
	reg := newRegistryWithSessions(t, map[string]string{"s1": "ITERM:A"})
	w := New(func() ([]string, error) {
		return nil, errors.New("osascript: not permitted")
	}, reg, time.Millisecond, nil)

	// Must not panic; registry focus stays untouched.
	w.tick()

	if reg.FocusedID() != "" {
		t.Fatalf("FocusedID = %q, want empty after a failed probe", reg.FocusedID())
	}
}

func TestTickNoMatchLeavesFocusUnchanged(t *testing.T) {
	reg := newRegistryWithSessions(t, map[string]string{"s1": "ITERM:A"})
	w := New(func() ([]string, error) {
		return []string{"ITERM:ZZZ"}, nil
	}, reg, time.Millisecond, nil)

	w.tick()

	if reg.FocusedID() != "" {
		t.Fatalf("FocusedID = %q, want empty when no candidate matches", reg.FocusedID())
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	reg := newRegistryWithSessions(t, map[string]string{"s1": "ITERM:A"})
	w := New(func() ([]string, error) { return []string{"ITERM:A"}, nil }, reg, time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
