// Package router dispatches decoded client requests (spec §4.9, C9) to the
// session registry, tile-state model, window adapter, and the two external
// collaborators (worktree shell commands, terminal launcher) that the spec
// treats as out of scope. It implements hub.RequestHandler.
package router

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/jacquesd/jacquesd/internal/adapter"
	"github.com/jacquesd/jacquesd/internal/hub"
	"github.com/jacquesd/jacquesd/internal/layout"
	"github.com/jacquesd/jacquesd/internal/session"
	"github.com/jacquesd/jacquesd/internal/settings"
	"github.com/jacquesd/jacquesd/internal/tile"
)

// interSlotDelay is the pause between adapter calls during a multi-window
// operation (spec §4.9: "100 ms delay between operations").
const interSlotDelay = 100 * time.Millisecond

// SessionLookup is the slice of session.Registry the router depends on.
type SessionLookup interface {
	Get(id string) (*session.Session, bool)
	All() []*session.Session
	SetFocus(id string) bool
}

// TileStore is the slice of tile.Manager the router depends on.
type TileStore interface {
	Get(displayID string) (*tile.State, bool)
	AnyDisplayID() (string, bool)
	Set(displayID string, s *tile.State)
	Clear(displayID string)
	BuildFromManualTile(displayID string, workArea layout.Rect, sessionIDs []string) *tile.State
	RemoveSession(sessionID string)
}

// Broadcaster is the slice of hub.Hub the router pushes notifications and
// results through.
type Broadcaster interface {
	BroadcastFocusChanged(sessionID string, s *session.Session)
	BroadcastAutocompactToggled(enabled bool, warning string)
	SendResult(c *hub.Client, requestType string, requestID string, payload interface{})
}

// WorktreeInfo describes one git worktree, as reported by the external
// worktree collaborator.
type WorktreeInfo struct {
	Name   string `json:"name"`
	Path   string `json:"path"`
	Branch string `json:"branch"`
}

// WorktreeCreateRequest is passed to the worktree collaborator's Create.
type WorktreeCreateRequest struct {
	RepoRoot   string
	Name       string
	BaseBranch string
}

// WorktreeCollaborator is the external worktree-creation collaborator (spec
// §1: "the shell commands that actually create git worktrees ... treated as
// external collaborators"). create_worktree/list_worktrees/remove_worktree
// are thin pass-throughs onto this interface.
type WorktreeCollaborator interface {
	Create(ctx context.Context, req WorktreeCreateRequest) (WorktreeInfo, error)
	List(ctx context.Context, repoRoot string) ([]WorktreeInfo, error)
	Remove(ctx context.Context, repoRoot, name string) error
}

// LaunchRequest is passed to the external terminal launcher.
type LaunchRequest struct {
	Cwd                        string
	PreferredTerminal          string
	DangerouslySkipPermissions bool
	TargetBounds               *layout.Rect
}

// LaunchResult reports how a terminal was launched.
type LaunchResult struct {
	Method string
}

// Launcher is the external terminal-launching collaborator (spec §1: "the
// shell commands that ... launch new terminal emulators").
type Launcher interface {
	Launch(ctx context.Context, req LaunchRequest) (LaunchResult, error)
}

// Router implements hub.RequestHandler (spec §4.9).
type Router struct {
	sessions SessionLookup
	tiles    TileStore
	adapter  adapter.Adapter
	notifier Broadcaster
	worktree WorktreeCollaborator
	launcher Launcher

	autocompactPath  string
	notificationPath string

	boundsTolerance int
}

// New builds a Router. worktree and launcher may be nil; requests that need
// them then return an unsupported error rather than panicking, since both
// are optional external collaborators per spec §1.
func New(sessions SessionLookup, tiles TileStore, ad adapter.Adapter, notifier Broadcaster, worktree WorktreeCollaborator, launcher Launcher, autocompactPath, notificationPath string) *Router {
	return &Router{
		sessions:         sessions,
		tiles:            tiles,
		adapter:          ad,
		notifier:         notifier,
		worktree:         worktree,
		launcher:         launcher,
		autocompactPath:  autocompactPath,
		notificationPath: notificationPath,
		boundsTolerance:  50,
	}
}

// Handle dispatches one decoded client request. Every request type except
// select_session elicits exactly one *_result response; select_session
// answers only with a focus_changed broadcast, and only when focus changed.
func (rt *Router) Handle(c *hub.Client, req hub.ClientRequest) {
	switch req.Type {
	case "select_session":
		rt.handleSelectSession(req)
	case "focus_terminal":
		rt.handleFocusTerminal(c, req)
	case "tile_windows":
		rt.handleTileWindows(c, req)
	case "maximize_window":
		rt.handleMaximizeWindow(c, req)
	case "position_browser_layout":
		rt.handlePositionBrowserLayout(c, req)
	case "smart_tile_add":
		rt.handleSmartTileAdd(c, req)
	case "create_worktree":
		rt.handleCreateWorktree(c, req)
	case "list_worktrees":
		rt.handleListWorktrees(c, req)
	case "remove_worktree":
		rt.handleRemoveWorktree(c, req)
	case "launch_session":
		rt.handleLaunchSession(c, req)
	case "toggle_autocompact":
		rt.handleToggleAutocompact(c, req)
	case "update_notification_settings":
		rt.handleUpdateNotificationSettings(c, req)
	default:
		log.Printf("router: unknown request type %q", req.Type)
		rt.notifier.SendResult(c, req.Type, req.RequestID, map[string]string{"error": "unknown_request_type"})
	}
}

func decodePayload(req hub.ClientRequest, v interface{}) error {
	if len(req.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(req.Payload, v)
}

// errorKindOf reports an adapter.Error's Kind, or "other" for any other
// non-nil error, or "" for a nil error (spec §7 taxonomy item 3: "surface
// distinct error strings").
func errorKindOf(err error) string {
	if err == nil {
		return ""
	}
	if ae, ok := err.(*adapter.Error); ok {
		return string(ae.Kind)
	}
	return string(adapter.ErrOther)
}

func callCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), adapter.CallTimeout)
}

// select_session

type selectSessionPayload struct {
	SessionID string `json:"session_id"`
}

func (rt *Router) handleSelectSession(req hub.ClientRequest) {
	var p selectSessionPayload
	if err := decodePayload(req, &p); err != nil {
		log.Printf("router: select_session: bad payload: %v", err)
		return
	}
	if !rt.sessions.SetFocus(p.SessionID) {
		return
	}
	s, _ := rt.sessions.Get(p.SessionID)
	rt.notifier.BroadcastFocusChanged(p.SessionID, s)
}

// focus_terminal

type focusTerminalPayload struct {
	SessionID string `json:"session_id"`
}

type focusTerminalResult struct {
	Success bool   `json:"success"`
	Method  string `json:"method,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (rt *Router) handleFocusTerminal(c *hub.Client, req hub.ClientRequest) {
	var p focusTerminalPayload
	if err := decodePayload(req, &p); err != nil {
		rt.notifier.SendResult(c, req.Type, req.RequestID, focusTerminalResult{Error: "bad_payload"})
		return
	}
	s, ok := rt.sessions.Get(p.SessionID)
	if !ok || s.TerminalKey == "" {
		rt.notifier.SendResult(c, req.Type, req.RequestID, focusTerminalResult{Error: string(adapter.ErrNoWindow)})
		return
	}
	ctx, cancel := callCtx()
	defer cancel()
	if err := rt.adapter.Activate(ctx, s.TerminalKey); err != nil {
		rt.notifier.SendResult(c, req.Type, req.RequestID, focusTerminalResult{Error: errorKindOf(err)})
		return
	}
	rt.notifier.SendResult(c, req.Type, req.RequestID, focusTerminalResult{Success: true, Method: "activate"})
}

// tile_windows

type tileWindowsPayload struct {
	SessionIDs []string `json:"session_ids"`
	// Layout is accepted for protocol compatibility; §4.6 defines a single
	// grid algorithm keyed only by count, so there is currently no
	// alternate shape for this field to select.
	Layout    string `json:"layout,omitempty"`
	DisplayID string `json:"display_id,omitempty"`
}

type tileWindowsResult struct {
	Succeeded []string          `json:"succeeded"`
	Failed    map[string]string `json:"failed,omitempty"`
}

func (rt *Router) handleTileWindows(c *hub.Client, req hub.ClientRequest) {
	var p tileWindowsPayload
	if err := decodePayload(req, &p); err != nil || len(p.SessionIDs) == 0 {
		rt.notifier.SendResult(c, req.Type, req.RequestID, tileWindowsResult{Failed: map[string]string{"_": "bad_payload"}})
		return
	}

	display, err := rt.pickDisplay(p.DisplayID)
	if err != nil {
		rt.notifier.SendResult(c, req.Type, req.RequestID, tileWindowsResult{Failed: map[string]string{"_": errorKindOf(err)}})
		return
	}

	slots := layout.CalculateAllSlots(display.WorkArea, len(p.SessionIDs))
	result := tileWindowsResult{Failed: map[string]string{}}
	anySuccess := false

	for i, id := range p.SessionIDs {
		s, ok := rt.sessions.Get(id)
		if !ok || s.TerminalKey == "" {
			result.Failed[id] = string(adapter.ErrNoWindow)
			continue
		}
		rect := display.WorkArea
		if i < len(slots) {
			rect = slots[i].Rect
		}
		if err := rt.positionWithDelay(s.TerminalKey, rect, i); err != nil {
			result.Failed[id] = errorKindOf(err)
			continue
		}
		result.Succeeded = append(result.Succeeded, id)
		anySuccess = true
	}

	if anySuccess {
		rt.tiles.BuildFromManualTile(display.ID, display.WorkArea, p.SessionIDs)
	}
	if len(result.Failed) == 0 {
		result.Failed = nil
	}
	rt.notifier.SendResult(c, req.Type, req.RequestID, result)
}

func (rt *Router) positionWithDelay(terminalKey string, rect layout.Rect, index int) error {
	if index > 0 {
		time.Sleep(interSlotDelay)
	}
	ctx, cancel := callCtx()
	defer cancel()
	return rt.adapter.PositionWindow(ctx, terminalKey, rect)
}

// maximize_window

type maximizeWindowPayload struct {
	SessionID string `json:"session_id"`
	DisplayID string `json:"display_id,omitempty"`
}

type maximizeWindowResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

func (rt *Router) handleMaximizeWindow(c *hub.Client, req hub.ClientRequest) {
	var p maximizeWindowPayload
	if err := decodePayload(req, &p); err != nil {
		rt.notifier.SendResult(c, req.Type, req.RequestID, maximizeWindowResult{Error: "bad_payload"})
		return
	}
	s, ok := rt.sessions.Get(p.SessionID)
	if !ok || s.TerminalKey == "" {
		rt.notifier.SendResult(c, req.Type, req.RequestID, maximizeWindowResult{Error: string(adapter.ErrNoWindow)})
		return
	}
	display, err := rt.pickDisplay(p.DisplayID)
	if err != nil {
		rt.notifier.SendResult(c, req.Type, req.RequestID, maximizeWindowResult{Error: errorKindOf(err)})
		return
	}
	ctx, cancel := callCtx()
	defer cancel()
	if err := rt.adapter.PositionWindow(ctx, s.TerminalKey, display.WorkArea); err != nil {
		rt.notifier.SendResult(c, req.Type, req.RequestID, maximizeWindowResult{Error: errorKindOf(err)})
		return
	}
	rt.tiles.Clear(display.ID)
	rt.notifier.SendResult(c, req.Type, req.RequestID, maximizeWindowResult{Success: true})
}

// position_browser_layout

type positionBrowserLayoutPayload struct {
	SessionIDs []string `json:"session_ids"`
	Layout     string   `json:"layout"`
	DisplayID  string   `json:"display_id,omitempty"`
}

type positionBrowserLayoutResult struct {
	Success bool              `json:"success"`
	Failed  map[string]string `json:"failed,omitempty"`
	Error   string            `json:"error,omitempty"`
}

// browserSplit computes the fixed asymmetric split used by
// position_browser_layout: the browser takes the left 60% of the work
// area, the terminal(s) stack in the remaining right strip.
func browserSplit(workArea layout.Rect, terminalCount int) (browserRect layout.Rect, terminalRects []layout.Rect) {
	browserWidth := workArea.W * 3 / 5
	browserRect = layout.Rect{X: workArea.X, Y: workArea.Y, W: browserWidth, H: workArea.H}

	termX := workArea.X + browserWidth
	termW := workArea.W - browserWidth
	if terminalCount <= 0 {
		return browserRect, nil
	}
	termH := workArea.H / terminalCount
	for i := 0; i < terminalCount; i++ {
		h := termH
		if i == terminalCount-1 {
			h = workArea.H - termH*(terminalCount-1)
		}
		terminalRects = append(terminalRects, layout.Rect{
			X: termX,
			Y: workArea.Y + termH*i,
			W: termW,
			H: h,
		})
	}
	return browserRect, terminalRects
}

func (rt *Router) handlePositionBrowserLayout(c *hub.Client, req hub.ClientRequest) {
	var p positionBrowserLayoutPayload
	if err := decodePayload(req, &p); err != nil || len(p.SessionIDs) == 0 {
		rt.notifier.SendResult(c, req.Type, req.RequestID, positionBrowserLayoutResult{Error: "bad_payload"})
		return
	}

	browserPositioner, ok := adapter.SupportsBrowserPositioning(rt.adapter)
	if !ok {
		rt.notifier.SendResult(c, req.Type, req.RequestID, positionBrowserLayoutResult{Error: string(adapter.ErrUnsupported)})
		return
	}

	display, err := rt.pickDisplay(p.DisplayID)
	if err != nil {
		rt.notifier.SendResult(c, req.Type, req.RequestID, positionBrowserLayoutResult{Error: errorKindOf(err)})
		return
	}

	browserRect, terminalRects := browserSplit(display.WorkArea, len(p.SessionIDs))

	result := positionBrowserLayoutResult{Failed: map[string]string{}}
	ctx, cancel := callCtx()
	err = browserPositioner.PositionBrowserWindow(ctx, browserRect)
	cancel()
	if err != nil {
		result.Failed["browser"] = errorKindOf(err)
	}

	anyFailed := err != nil
	for i, id := range p.SessionIDs {
		time.Sleep(interSlotDelay)
		s, ok := rt.sessions.Get(id)
		if !ok || s.TerminalKey == "" {
			result.Failed[id] = string(adapter.ErrNoWindow)
			anyFailed = true
			continue
		}
		ctx, cancel := callCtx()
		perr := rt.adapter.PositionWindow(ctx, s.TerminalKey, terminalRects[i])
		cancel()
		if perr != nil {
			result.Failed[id] = errorKindOf(perr)
			anyFailed = true
		}
	}

	result.Success = !anyFailed
	if len(result.Failed) == 0 {
		result.Failed = nil
	}
	rt.notifier.SendResult(c, req.Type, req.RequestID, result)
}

// pickDisplay resolves a display_id argument to its full Display record,
// falling back to the primary display when no id is given.
func (rt *Router) pickDisplay(displayID string) (adapter.Display, error) {
	ctx, cancel := callCtx()
	defer cancel()
	displays, err := rt.adapter.EnumerateDisplays(ctx)
	if err != nil {
		return adapter.Display{}, err
	}
	if displayID != "" {
		for _, d := range displays {
			if d.ID == displayID {
				return d, nil
			}
		}
	}
	for _, d := range displays {
		if d.IsPrimary {
			return d, nil
		}
	}
	if len(displays) > 0 {
		return displays[0], nil
	}
	return adapter.Display{}, &adapter.Error{Kind: adapter.ErrNoWindow, Message: "no displays enumerated"}
}
