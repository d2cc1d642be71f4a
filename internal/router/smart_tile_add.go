package router

import (
	"time"

	"github.com/jacquesd/jacquesd/internal/adapter"
	"github.com/jacquesd/jacquesd/internal/hub"
	"github.com/jacquesd/jacquesd/internal/layout"
	"github.com/jacquesd/jacquesd/internal/tile"
)

type smartTileAddPayload struct {
	LaunchCwd                  string `json:"launch_cwd,omitempty"`
	NewSessionID               string `json:"new_session_id,omitempty"`
	DisplayID                  string `json:"display_id,omitempty"`
	DangerouslySkipPermissions bool   `json:"dangerously_skip_permissions,omitempty"`
}

type smartTileAddResult struct {
	Success       bool   `json:"success"`
	Repositioned  int    `json:"repositioned"`
	TotalTiled    int    `json:"total_tiled"`
	UsedFreeSpace bool   `json:"used_free_space"`
	LaunchMethod  string `json:"launch_method,omitempty"`
	Error         string `json:"error,omitempty"`
}

// handleSmartTileAdd implements the smart_tile_add algorithm (spec §4.9).
func (rt *Router) handleSmartTileAdd(c *hub.Client, req hub.ClientRequest) {
	var p smartTileAddPayload
	if err := decodePayload(req, &p); err != nil {
		rt.notifier.SendResult(c, req.Type, req.RequestID, smartTileAddResult{Error: "bad_payload"})
		return
	}
	rt.notifier.SendResult(c, req.Type, req.RequestID, rt.runSmartTileAdd(p))
}

// runSmartTileAdd executes the algorithm and returns its result without
// addressing a reply, so create_worktree can fold it into its own result
// (spec §4.9: "on success, if launch_session is not explicitly false, run
// smart_tile_add for the new path").
func (rt *Router) runSmartTileAdd(p smartTileAddPayload) smartTileAddResult {
	// Step 1: pick target display.
	displayID := p.DisplayID
	if displayID == "" {
		if id, ok := rt.tiles.AnyDisplayID(); ok {
			displayID = id
		}
	}
	display, err := rt.pickDisplay(displayID)
	if err != nil {
		return smartTileAddResult{Error: errorKindOf(err)}
	}

	// Step 2: read and validate existing tile state for that display.
	state, ok := rt.tiles.Get(display.ID)
	validState := ok && state != nil && len(state.Slots) > 0 && len(state.Slots) < 8 && rt.validateTileState(state)

	var targetRect layout.Rect
	repositioned := 0
	usedFreeSpace := false
	totalTiled := 0
	var plan *layout.TransitionPlan

	if validState {
		existingRects := make([]layout.Rect, len(state.Slots))
		for i, slot := range state.Slots {
			existingRects[i] = slot.Rect
		}
		// Step 3: plan the transition.
		plan = layout.PlanSmartTileTransition(existingRects, display.WorkArea)
		if plan == nil {
			validState = false
		}
	}

	if validState && plan != nil {
		// Step 4: execute repositions in order, 100ms apart, best-effort.
		sessionIDs := make([]string, len(state.Slots))
		for i, slot := range state.Slots {
			sessionIDs[i] = slot.SessionID
		}
		for i, reposition := range plan.Repositions {
			if i > 0 {
				time.Sleep(interSlotDelay)
			}
			if reposition.Index >= len(sessionIDs) {
				continue
			}
			s, ok := rt.sessions.Get(sessionIDs[reposition.Index])
			if !ok || s.TerminalKey == "" {
				continue
			}
			ctx, cancel := callCtx()
			err := rt.adapter.PositionWindow(ctx, s.TerminalKey, reposition.Rect)
			cancel()
			if err == nil {
				repositioned++
			}
		}
		targetRect = plan.NewRect

		newSessionIDs := append(append([]string(nil), sessionIDs...), p.NewSessionID)
		rt.tiles.BuildFromManualTile(display.ID, display.WorkArea, newSessionIDs)
		totalTiled = len(newSessionIDs)
	} else {
		// Step 5: free-space path.
		existingRects := rt.knownWindowRects(state)
		targetRect = layout.FindFreeSpace(display.WorkArea, existingRects)
		usedFreeSpace = true
	}

	// Step 6: launch or reposition the existing session.
	result := smartTileAddResult{
		Repositioned:  repositioned,
		TotalTiled:    totalTiled,
		UsedFreeSpace: usedFreeSpace,
	}

	switch {
	case p.LaunchCwd != "":
		if rt.launcher == nil {
			result.Error = string(adapter.ErrUnsupported)
			return result
		}
		ctx, cancel := callCtx()
		launchResult, err := rt.launcher.Launch(ctx, LaunchRequest{
			Cwd:                        p.LaunchCwd,
			DangerouslySkipPermissions: p.DangerouslySkipPermissions,
			TargetBounds:               &targetRect,
		})
		cancel()
		if err != nil {
			result.Error = errorKindOf(err)
			return result
		}
		result.LaunchMethod = launchResult.Method
		result.Success = true

	case p.NewSessionID != "":
		s, ok := rt.sessions.Get(p.NewSessionID)
		if !ok || s.TerminalKey == "" {
			result.Error = string(adapter.ErrNoWindow)
			return result
		}
		ctx, cancel := callCtx()
		err := rt.adapter.PositionWindow(ctx, s.TerminalKey, targetRect)
		cancel()
		if err != nil {
			result.Error = errorKindOf(err)
			return result
		}
		result.Success = true

	default:
		result.Success = true
	}

	return result
}

// validateTileState dispatches to the bounds-based (macOS) or
// existence-based (Windows/Linux) validation path depending on what the
// adapter can supply (spec §4.5).
func (rt *Router) validateTileState(state *tile.State) bool {
	if reader, ok := adapter.SupportsBounds(rt.adapter); ok {
		return tile.ValidateBounds(state, func(sessionID string) (layout.Rect, bool) {
			s, ok := rt.sessions.Get(sessionID)
			if !ok || s.TerminalKey == "" {
				return layout.Rect{}, false
			}
			ctx, cancel := callCtx()
			rect, found, err := reader.GetWindowBounds(ctx, s.TerminalKey)
			cancel()
			if err != nil || !found {
				return layout.Rect{}, false
			}
			return rect, true
		}, rt.boundsTolerance)
	}
	return tile.ValidateSessionsExist(state, func(sessionID string) bool {
		_, ok := rt.sessions.Get(sessionID)
		return ok
	})
}

// knownWindowRects gathers every rect the router can currently account for:
// the adapter's own view when it supports GetWindowBounds, falling back to
// the current tile state (spec §4.9 step 5).
func (rt *Router) knownWindowRects(state *tile.State) []layout.Rect {
	if reader, ok := adapter.SupportsBounds(rt.adapter); ok {
		var rects []layout.Rect
		for _, s := range rt.sessions.All() {
			if s.TerminalKey == "" {
				continue
			}
			ctx, cancel := callCtx()
			rect, found, err := reader.GetWindowBounds(ctx, s.TerminalKey)
			cancel()
			if err == nil && found {
				rects = append(rects, rect)
			}
		}
		return rects
	}
	if state == nil {
		return nil
	}
	rects := make([]layout.Rect, len(state.Slots))
	for i, slot := range state.Slots {
		rects[i] = slot.Rect
	}
	return rects
}
