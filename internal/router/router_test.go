package router

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/jacquesd/jacquesd/internal/adapter"
	"github.com/jacquesd/jacquesd/internal/hub"
	"github.com/jacquesd/jacquesd/internal/layout"
	"github.com/jacquesd/jacquesd/internal/session"
	"github.com/jacquesd/jacquesd/internal/tile"
)

var testWorkArea = layout.Rect{X: 0, Y: 23, W: 1920, H: 1057}

// fakeBroadcaster captures every call the router makes through Broadcaster,
// standing in for hub.Hub (which requires a live websocket client).
type fakeBroadcaster struct {
	focusChanged      []string
	autocompactCalls  []bool
	results           []fakeResult
}

type fakeResult struct {
	requestType string
	requestID   string
	payload     interface{}
}

func (f *fakeBroadcaster) BroadcastFocusChanged(sessionID string, s *session.Session) {
	f.focusChanged = append(f.focusChanged, sessionID)
}

func (f *fakeBroadcaster) BroadcastAutocompactToggled(enabled bool, warning string) {
	f.autocompactCalls = append(f.autocompactCalls, enabled)
}

func (f *fakeBroadcaster) SendResult(c *hub.Client, requestType string, requestID string, payload interface{}) {
	f.results = append(f.results, fakeResult{requestType: requestType, requestID: requestID, payload: payload})
}

func (f *fakeBroadcaster) last() fakeResult {
	return f.results[len(f.results)-1]
}

// fakeAdapter is a scripted window adapter: per-terminal-key errors, a
// fixed display list, and optional bounds/browser capability.
type fakeAdapter struct {
	displays       []adapter.Display
	positionErrors map[string]error
	activateErrors map[string]error
	positioned     []positionedCall
	bounds         map[string]layout.Rect
	browserCalls   int
}

type positionedCall struct {
	terminalKey string
	rect        layout.Rect
}

func (a *fakeAdapter) EnumerateDisplays(ctx context.Context) ([]adapter.Display, error) {
	return a.displays, nil
}

func (a *fakeAdapter) PositionWindow(ctx context.Context, terminalKey string, rect layout.Rect) error {
	a.positioned = append(a.positioned, positionedCall{terminalKey, rect})
	if err, ok := a.positionErrors[terminalKey]; ok {
		return err
	}
	return nil
}

func (a *fakeAdapter) Activate(ctx context.Context, terminalKey string) error {
	if err, ok := a.activateErrors[terminalKey]; ok {
		return err
	}
	return nil
}

func (a *fakeAdapter) GetWindowBounds(ctx context.Context, terminalKey string) (layout.Rect, bool, error) {
	r, ok := a.bounds[terminalKey]
	return r, ok, nil
}

func (a *fakeAdapter) PositionBrowserWindow(ctx context.Context, rect layout.Rect) error {
	a.browserCalls++
	return nil
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{
		displays: []adapter.Display{
			{ID: "main", Bounds: testWorkArea, WorkArea: testWorkArea, IsPrimary: true},
		},
		positionErrors: map[string]error{},
		activateErrors: map[string]error{},
		bounds:         map[string]layout.Rect{},
	}
}

func newRegistryWith(ids ...string) *session.Registry {
	reg := session.NewRegistry(nil)
	for _, id := range ids {
		key := "PID:100" + id
		reg.Ingest(session.Event{Kind: session.EventSessionStart, SessionID: id, TerminalKey: &key})
	}
	return reg
}

func newRouter(reg *session.Registry, tiles *tile.Manager, ad adapter.Adapter, bc *fakeBroadcaster) *Router {
	return New(reg, tiles, ad, bc, nil, nil, "/tmp/does-not-matter-autocompact.json", "/tmp/does-not-matter-notifications.json")
}

func decodeResult(t *testing.T, v interface{}, out interface{}) {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
}

func TestSelectSessionBroadcastsOnlyOnActualChange(t *testing.T) {
	reg := newRegistryWith("s1")
	bc := &fakeBroadcaster{}
	rt := newRouter(reg, tile.NewManager(), newFakeAdapter(), bc)

	rt.Handle(nil, hub.ClientRequest{Type: "select_session", Payload: mustJSON(selectSessionPayload{SessionID: "s1"})})
	rt.Handle(nil, hub.ClientRequest{Type: "select_session", Payload: mustJSON(selectSessionPayload{SessionID: "s1"})})

	if len(bc.focusChanged) != 1 {
		t.Fatalf("focusChanged = %v, want exactly one broadcast", bc.focusChanged)
	}
	if bc.focusChanged[0] != "s1" {
		t.Errorf("focusChanged[0] = %q, want s1", bc.focusChanged[0])
	}
}

func TestFocusTerminalNoWindowWhenSessionUnknown(t *testing.T) {
	reg := newRegistryWith()
	bc := &fakeBroadcaster{}
	rt := newRouter(reg, tile.NewManager(), newFakeAdapter(), bc)

	rt.Handle(nil, hub.ClientRequest{Type: "focus_terminal", Payload: mustJSON(focusTerminalPayload{SessionID: "ghost"})})

	var res focusTerminalResult
	decodeResult(t, bc.last().payload, &res)
	if res.Success || res.Error != string(adapter.ErrNoWindow) {
		t.Errorf("result = %+v, want no_window error", res)
	}
}

func TestFocusTerminalActivatesAndReportsMethod(t *testing.T) {
	reg := newRegistryWith("s1")
	bc := &fakeBroadcaster{}
	rt := newRouter(reg, tile.NewManager(), newFakeAdapter(), bc)

	rt.Handle(nil, hub.ClientRequest{Type: "focus_terminal", Payload: mustJSON(focusTerminalPayload{SessionID: "s1"})})

	var res focusTerminalResult
	decodeResult(t, bc.last().payload, &res)
	if !res.Success || res.Method != "activate" {
		t.Errorf("result = %+v, want success via activate", res)
	}
}

func TestTileWindowsPositionsEachSessionAndUpdatesState(t *testing.T) {
	reg := newRegistryWith("s1", "s2")
	bc := &fakeBroadcaster{}
	tiles := tile.NewManager()
	ad := newFakeAdapter()
	rt := newRouter(reg, tiles, ad, bc)

	rt.Handle(nil, hub.ClientRequest{Type: "tile_windows", Payload: mustJSON(tileWindowsPayload{SessionIDs: []string{"s1", "s2"}})})

	var res tileWindowsResult
	decodeResult(t, bc.last().payload, &res)
	if len(res.Succeeded) != 2 || len(res.Failed) != 0 {
		t.Fatalf("result = %+v, want both sessions tiled", res)
	}
	if len(ad.positioned) != 2 {
		t.Fatalf("adapter saw %d PositionWindow calls, want 2", len(ad.positioned))
	}
	state, ok := tiles.Get("main")
	if !ok || len(state.Slots) != 2 {
		t.Fatalf("tile state not updated: %+v ok=%v", state, ok)
	}
}

func TestTileWindowsCollectsPerWindowFailures(t *testing.T) {
	reg := newRegistryWith("s1", "s2")
	bc := &fakeBroadcaster{}
	ad := newFakeAdapter()
	s2, _ := reg.Get("s2")
	ad.positionErrors[s2.TerminalKey] = &adapter.Error{Kind: adapter.ErrTimeout, Message: "hung"}
	rt := newRouter(reg, tile.NewManager(), ad, bc)

	rt.Handle(nil, hub.ClientRequest{Type: "tile_windows", Payload: mustJSON(tileWindowsPayload{SessionIDs: []string{"s1", "s2"}})})

	var res tileWindowsResult
	decodeResult(t, bc.last().payload, &res)
	if len(res.Succeeded) != 1 || res.Succeeded[0] != "s1" {
		t.Errorf("Succeeded = %v, want [s1]", res.Succeeded)
	}
	if res.Failed["s2"] != string(adapter.ErrTimeout) {
		t.Errorf("Failed[s2] = %q, want timeout", res.Failed["s2"])
	}
}

func TestMaximizeWindowClearsDisplayTileState(t *testing.T) {
	reg := newRegistryWith("s1")
	bc := &fakeBroadcaster{}
	tiles := tile.NewManager()
	tiles.BuildFromManualTile("main", testWorkArea, []string{"s1"})
	rt := newRouter(reg, tiles, newFakeAdapter(), bc)

	rt.Handle(nil, hub.ClientRequest{Type: "maximize_window", Payload: mustJSON(maximizeWindowPayload{SessionID: "s1"})})

	var res maximizeWindowResult
	decodeResult(t, bc.last().payload, &res)
	if !res.Success {
		t.Fatalf("result = %+v, want success", res)
	}
	if _, ok := tiles.Get("main"); ok {
		t.Error("maximize_window should clear the display's tile state")
	}
}

func TestPositionBrowserLayoutUnsupportedWithoutCapability(t *testing.T) {
	reg := newRegistryWith("s1")
	bc := &fakeBroadcaster{}
	ad := newFakeAdapter()
	rt := newRouter(reg, tile.NewManager(), bareAdapter{ad}, bc)

	rt.Handle(nil, hub.ClientRequest{Type: "position_browser_layout", Payload: mustJSON(positionBrowserLayoutPayload{SessionIDs: []string{"s1"}, Layout: "browser-terminal"})})

	var res positionBrowserLayoutResult
	decodeResult(t, bc.last().payload, &res)
	if res.Error != string(adapter.ErrUnsupported) {
		t.Errorf("result = %+v, want unsupported error", res)
	}
}

func TestPositionBrowserLayoutPositionsBrowserThenTerminals(t *testing.T) {
	reg := newRegistryWith("s1", "s2")
	bc := &fakeBroadcaster{}
	ad := newFakeAdapter()
	rt := newRouter(reg, tile.NewManager(), ad, bc)

	rt.Handle(nil, hub.ClientRequest{Type: "position_browser_layout", Payload: mustJSON(positionBrowserLayoutPayload{SessionIDs: []string{"s1", "s2"}, Layout: "browser-two-terminals"})})

	var res positionBrowserLayoutResult
	decodeResult(t, bc.last().payload, &res)
	if !res.Success {
		t.Fatalf("result = %+v, want success", res)
	}
	if ad.browserCalls != 1 {
		t.Errorf("browserCalls = %d, want 1", ad.browserCalls)
	}
	if len(ad.positioned) != 2 {
		t.Errorf("positioned = %d terminal calls, want 2", len(ad.positioned))
	}
}

func TestSmartTileAddUsesFreeSpaceWhenNoTileState(t *testing.T) {
	reg := newRegistryWith("s1")
	bc := &fakeBroadcaster{}
	rt := newRouter(reg, tile.NewManager(), newFakeAdapter(), bc)

	rt.Handle(nil, hub.ClientRequest{Type: "smart_tile_add", Payload: mustJSON(smartTileAddPayload{NewSessionID: "s1"})})

	var res smartTileAddResult
	decodeResult(t, bc.last().payload, &res)
	if !res.UsedFreeSpace {
		t.Errorf("result = %+v, want UsedFreeSpace", res)
	}
	if !res.Success {
		t.Errorf("result = %+v, want success positioning the existing session", res)
	}
}

func TestSmartTileAddRepositionsExistingGridOnValidState(t *testing.T) {
	reg := newRegistryWith("s1", "s2", "s3")
	bc := &fakeBroadcaster{}
	tiles := tile.NewManager()
	tiles.BuildFromManualTile("main", testWorkArea, []string{"s1", "s2", "s3"})
	// bareAdapter has no GetWindowBounds, so validation falls back to the
	// existence-based path, which succeeds since all three are still live.
	rt := newRouter(reg, tiles, bareAdapter{newFakeAdapter()}, bc)

	rt.Handle(nil, hub.ClientRequest{Type: "smart_tile_add", Payload: mustJSON(smartTileAddPayload{NewSessionID: ""})})

	var res smartTileAddResult
	decodeResult(t, bc.last().payload, &res)
	if res.UsedFreeSpace {
		t.Errorf("result = %+v, want the grid transition path, not free space", res)
	}
	if res.TotalTiled != 4 {
		t.Errorf("TotalTiled = %d, want 4 (3 existing + 1 new placeholder)", res.TotalTiled)
	}
}

func TestToggleAutocompactPersistsAndBroadcasts(t *testing.T) {
	dir := t.TempDir()
	reg := newRegistryWith()
	bc := &fakeBroadcaster{}
	rt := New(reg, tile.NewManager(), newFakeAdapter(), bc, nil, nil, dir+"/settings.json", dir+"/notifications.json")

	rt.Handle(nil, hub.ClientRequest{Type: "toggle_autocompact", Payload: mustJSON(toggleAutocompactPayload{Enabled: false})})

	var res toggleAutocompactResult
	decodeResult(t, bc.last().payload, &res)
	if res.Enabled {
		t.Errorf("result = %+v, want Enabled=false", res)
	}
	if len(bc.autocompactCalls) != 1 || bc.autocompactCalls[0] {
		t.Errorf("autocompactCalls = %v, want [false]", bc.autocompactCalls)
	}
}

func TestUpdateNotificationSettingsEchoesBack(t *testing.T) {
	dir := t.TempDir()
	reg := newRegistryWith()
	bc := &fakeBroadcaster{}
	rt := New(reg, tile.NewManager(), newFakeAdapter(), bc, nil, nil, dir+"/settings.json", dir+"/notifications.json")

	rt.Handle(nil, hub.ClientRequest{Type: "update_notification_settings", Payload: mustJSON(updateNotificationSettingsPayload{DesktopEnabled: false, SoundEnabled: true})})

	var res struct {
		DesktopEnabled bool `json:"desktop_enabled"`
		SoundEnabled   bool `json:"sound_enabled"`
	}
	decodeResult(t, bc.last().payload, &res)
	if res.DesktopEnabled || !res.SoundEnabled {
		t.Errorf("result = %+v, want {false true}", res)
	}
}

func TestCreateWorktreeUnsupportedWithoutCollaborator(t *testing.T) {
	reg := newRegistryWith()
	bc := &fakeBroadcaster{}
	rt := newRouter(reg, tile.NewManager(), newFakeAdapter(), bc)

	rt.Handle(nil, hub.ClientRequest{Type: "create_worktree", Payload: mustJSON(createWorktreePayload{RepoRoot: "/repo", Name: "feature"})})

	var res createWorktreeResult
	decodeResult(t, bc.last().payload, &res)
	if res.Success || res.Error != string(adapter.ErrUnsupported) {
		t.Errorf("result = %+v, want unsupported error", res)
	}
}

func TestUnknownRequestTypeStillGetsAResult(t *testing.T) {
	reg := newRegistryWith()
	bc := &fakeBroadcaster{}
	rt := newRouter(reg, tile.NewManager(), newFakeAdapter(), bc)

	rt.Handle(nil, hub.ClientRequest{Type: "wat", RequestID: "r1"})

	if len(bc.results) != 1 {
		t.Fatalf("expected exactly one result for an unknown request type")
	}
	if bc.last().requestType != "wat" {
		t.Errorf("requestType = %q, want echoed back as wat", bc.last().requestType)
	}
}

func mustJSON(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}

// bareAdapter strips fakeAdapter down to the mandatory Adapter methods only,
// so SupportsBrowserPositioning/SupportsBounds type assertions fail the way
// a real platform adapter without that capability would.
type bareAdapter struct {
	a *fakeAdapter
}

func (b bareAdapter) EnumerateDisplays(ctx context.Context) ([]adapter.Display, error) {
	return b.a.EnumerateDisplays(ctx)
}
func (b bareAdapter) PositionWindow(ctx context.Context, terminalKey string, rect layout.Rect) error {
	return b.a.PositionWindow(ctx, terminalKey, rect)
}
func (b bareAdapter) Activate(ctx context.Context, terminalKey string) error {
	return b.a.Activate(ctx, terminalKey)
}
