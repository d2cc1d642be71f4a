package tile

import (
	"testing"

	"github.com/jacquesd/jacquesd/internal/layout"
)

var testWorkArea = layout.Rect{X: 0, Y: 23, W: 1920, H: 1057}

func TestBuildFromManualTileAssignsInOrder(t *testing.T) {
	m := NewManager()
	s := m.BuildFromManualTile("d1", testWorkArea, []string{"s1", "s2", "s3", "s4"})

	if len(s.Slots) != 4 {
		t.Fatalf("len(Slots) = %d, want 4", len(s.Slots))
	}
	want := []string{"s1", "s2", "s3", "s4"}
	for i, slot := range s.Slots {
		if slot.SessionID != want[i] {
			t.Errorf("slot %d session = %q, want %q", i, slot.SessionID, want[i])
		}
	}
}

func TestBuildFromManualTileMatchesGridSpec(t *testing.T) {
	m := NewManager()
	sessions := []string{"a", "b", "c", "d", "e"}
	s := m.BuildFromManualTile("d1", testWorkArea, sessions)

	want := layout.GridSpec(len(sessions))
	if len(s.ColumnsPerRow) != len(want) {
		t.Fatalf("ColumnsPerRow = %v, want %v", s.ColumnsPerRow, want)
	}
	for i := range want {
		if s.ColumnsPerRow[i] != want[i] {
			t.Errorf("ColumnsPerRow[%d] = %d, want %d", i, s.ColumnsPerRow[i], want[i])
		}
	}
}

func TestGetReturnsIndependentCopy(t *testing.T) {
	m := NewManager()
	m.BuildFromManualTile("d1", testWorkArea, []string{"s1", "s2"})

	s, ok := m.Get("d1")
	if !ok {
		t.Fatal("expected tile state for d1")
	}
	s.Slots[0].SessionID = "mutated"

	again, _ := m.Get("d1")
	if again.Slots[0].SessionID == "mutated" {
		t.Fatal("Get returned a live reference instead of a copy")
	}
}

func TestRemoveSessionRecomputesGrid(t *testing.T) {
	m := NewManager()
	m.BuildFromManualTile("d1", testWorkArea, []string{"s1", "s2", "s3", "s4"})

	m.RemoveSession("s2")

	s, ok := m.Get("d1")
	if !ok {
		t.Fatal("expected tile state to remain for d1")
	}
	if len(s.Slots) != 3 {
		t.Fatalf("len(Slots) = %d, want 3", len(s.Slots))
	}
	want := []string{"s1", "s3", "s4"}
	for i, slot := range s.Slots {
		if slot.SessionID != want[i] {
			t.Errorf("slot %d session = %q, want %q (relative order preserved)", i, slot.SessionID, want[i])
		}
	}

	wantGrid := layout.GridSpec(3)
	if !equalInts(s.ColumnsPerRow, wantGrid) {
		t.Errorf("ColumnsPerRow = %v, want %v", s.ColumnsPerRow, wantGrid)
	}
}

func TestRemoveSessionIsIdempotent(t *testing.T) {
	m := NewManager()
	m.BuildFromManualTile("d1", testWorkArea, []string{"s1", "s2"})

	m.RemoveSession("s1")
	first, _ := m.Get("d1")

	m.RemoveSession("s1")
	second, _ := m.Get("d1")

	if len(first.Slots) != len(second.Slots) {
		t.Fatalf("slot count changed between repeated RemoveSession calls: %d vs %d", len(first.Slots), len(second.Slots))
	}
	for i := range first.Slots {
		if first.Slots[i].SessionID != second.Slots[i].SessionID {
			t.Errorf("slot %d changed: %q vs %q", i, first.Slots[i].SessionID, second.Slots[i].SessionID)
		}
	}
}

func TestRemoveSessionUnknownIDIsNoOp(t *testing.T) {
	m := NewManager()
	m.BuildFromManualTile("d1", testWorkArea, []string{"s1", "s2"})

	m.RemoveSession("does-not-exist")

	s, _ := m.Get("d1")
	if len(s.Slots) != 2 {
		t.Fatalf("len(Slots) = %d, want 2 (unchanged)", len(s.Slots))
	}
}

func TestClearAndClearAll(t *testing.T) {
	m := NewManager()
	m.BuildFromManualTile("d1", testWorkArea, []string{"s1"})
	m.BuildFromManualTile("d2", testWorkArea, []string{"s2"})

	m.Clear("d1")
	if _, ok := m.Get("d1"); ok {
		t.Fatal("Clear did not remove d1")
	}
	if _, ok := m.Get("d2"); !ok {
		t.Fatal("Clear should not affect other displays")
	}

	m.ClearAll()
	if _, ok := m.Get("d2"); ok {
		t.Fatal("ClearAll did not remove d2")
	}
}

func TestValidateBoundsWithinTolerance(t *testing.T) {
	m := NewManager()
	s := m.BuildFromManualTile("d1", testWorkArea, []string{"s1", "s2"})

	reader := func(sessionID string) (layout.Rect, bool) {
		for _, slot := range s.Slots {
			if slot.SessionID == sessionID {
				drifted := slot.Rect
				drifted.X += 10 // within the +-50px tolerance
				return drifted, true
			}
		}
		return layout.Rect{}, false
	}

	if !ValidateBounds(s, reader, 50) {
		t.Fatal("expected validation to pass within tolerance")
	}
}

func TestValidateBoundsOutsideToleranceFails(t *testing.T) {
	m := NewManager()
	s := m.BuildFromManualTile("d1", testWorkArea, []string{"s1"})

	reader := func(sessionID string) (layout.Rect, bool) {
		drifted := s.Slots[0].Rect
		drifted.X += 200
		return drifted, true
	}

	if ValidateBounds(s, reader, 50) {
		t.Fatal("expected validation to fail outside tolerance")
	}
}

func TestValidateBoundsMissingWindowFails(t *testing.T) {
	m := NewManager()
	s := m.BuildFromManualTile("d1", testWorkArea, []string{"s1"})

	reader := func(sessionID string) (layout.Rect, bool) { return layout.Rect{}, false }

	if ValidateBounds(s, reader, 50) {
		t.Fatal("expected validation to fail when the adapter cannot resolve a window")
	}
}

func TestValidateSessionsExist(t *testing.T) {
	m := NewManager()
	s := m.BuildFromManualTile("d1", testWorkArea, []string{"s1", "s2"})

	live := map[string]bool{"s1": true, "s2": true}
	exists := func(id string) bool { return live[id] }
	if !ValidateSessionsExist(s, exists) {
		t.Fatal("expected validation to pass while both sessions are live")
	}

	delete(live, "s2")
	if ValidateSessionsExist(s, exists) {
		t.Fatal("expected validation to fail once a tiled session is gone")
	}
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
