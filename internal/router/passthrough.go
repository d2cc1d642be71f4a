package router

import (
	"github.com/jacquesd/jacquesd/internal/adapter"
	"github.com/jacquesd/jacquesd/internal/hub"
	"github.com/jacquesd/jacquesd/internal/settings"
)

// create_worktree / list_worktrees / remove_worktree

type createWorktreePayload struct {
	RepoRoot      string `json:"repo_root"`
	Name          string `json:"name"`
	BaseBranch    string `json:"base_branch,omitempty"`
	LaunchSession *bool  `json:"launch_session,omitempty"`
}

type createWorktreeResult struct {
	Success bool                `json:"success"`
	Path    string              `json:"path,omitempty"`
	Error   string              `json:"error,omitempty"`
	Launch  *smartTileAddResult `json:"launch,omitempty"`
}

func (rt *Router) handleCreateWorktree(c *hub.Client, req hub.ClientRequest) {
	var p createWorktreePayload
	if err := decodePayload(req, &p); err != nil {
		rt.notifier.SendResult(c, req.Type, req.RequestID, createWorktreeResult{Error: "bad_payload"})
		return
	}
	if rt.worktree == nil {
		rt.notifier.SendResult(c, req.Type, req.RequestID, createWorktreeResult{Error: string(adapter.ErrUnsupported)})
		return
	}

	ctx, cancel := callCtx()
	info, err := rt.worktree.Create(ctx, WorktreeCreateRequest{
		RepoRoot:   p.RepoRoot,
		Name:       p.Name,
		BaseBranch: p.BaseBranch,
	})
	cancel()
	if err != nil {
		rt.notifier.SendResult(c, req.Type, req.RequestID, createWorktreeResult{Error: string(adapter.ErrOther)})
		return
	}

	result := createWorktreeResult{Success: true, Path: info.Path}

	if p.LaunchSession == nil || *p.LaunchSession {
		launch := rt.runSmartTileAdd(smartTileAddPayload{LaunchCwd: info.Path})
		result.Launch = &launch
	}

	rt.notifier.SendResult(c, req.Type, req.RequestID, result)
}

type listWorktreesPayload struct {
	RepoRoot string `json:"repo_root"`
}

type listWorktreesResult struct {
	Worktrees []WorktreeInfo `json:"worktrees"`
	Error     string         `json:"error,omitempty"`
}

func (rt *Router) handleListWorktrees(c *hub.Client, req hub.ClientRequest) {
	var p listWorktreesPayload
	if err := decodePayload(req, &p); err != nil {
		rt.notifier.SendResult(c, req.Type, req.RequestID, listWorktreesResult{Error: "bad_payload"})
		return
	}
	if rt.worktree == nil {
		rt.notifier.SendResult(c, req.Type, req.RequestID, listWorktreesResult{Error: string(adapter.ErrUnsupported)})
		return
	}
	ctx, cancel := callCtx()
	worktrees, err := rt.worktree.List(ctx, p.RepoRoot)
	cancel()
	if err != nil {
		rt.notifier.SendResult(c, req.Type, req.RequestID, listWorktreesResult{Error: string(adapter.ErrOther)})
		return
	}
	rt.notifier.SendResult(c, req.Type, req.RequestID, listWorktreesResult{Worktrees: worktrees})
}

type removeWorktreePayload struct {
	RepoRoot string `json:"repo_root"`
	Name     string `json:"name"`
}

type removeWorktreeResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

func (rt *Router) handleRemoveWorktree(c *hub.Client, req hub.ClientRequest) {
	var p removeWorktreePayload
	if err := decodePayload(req, &p); err != nil {
		rt.notifier.SendResult(c, req.Type, req.RequestID, removeWorktreeResult{Error: "bad_payload"})
		return
	}
	if rt.worktree == nil {
		rt.notifier.SendResult(c, req.Type, req.RequestID, removeWorktreeResult{Error: string(adapter.ErrUnsupported)})
		return
	}
	ctx, cancel := callCtx()
	err := rt.worktree.Remove(ctx, p.RepoRoot, p.Name)
	cancel()
	if err != nil {
		rt.notifier.SendResult(c, req.Type, req.RequestID, removeWorktreeResult{Error: string(adapter.ErrOther)})
		return
	}
	rt.notifier.SendResult(c, req.Type, req.RequestID, removeWorktreeResult{Success: true})
}

// launch_session

type launchSessionPayload struct {
	Cwd                        string `json:"cwd"`
	PreferredTerminal          string `json:"preferred_terminal,omitempty"`
	DangerouslySkipPermissions bool   `json:"dangerously_skip_permissions,omitempty"`
}

type launchSessionResult struct {
	Success bool   `json:"success"`
	Method  string `json:"method,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (rt *Router) handleLaunchSession(c *hub.Client, req hub.ClientRequest) {
	var p launchSessionPayload
	if err := decodePayload(req, &p); err != nil {
		rt.notifier.SendResult(c, req.Type, req.RequestID, launchSessionResult{Error: "bad_payload"})
		return
	}
	if rt.launcher == nil {
		rt.notifier.SendResult(c, req.Type, req.RequestID, launchSessionResult{Error: string(adapter.ErrUnsupported)})
		return
	}
	ctx, cancel := callCtx()
	result, err := rt.launcher.Launch(ctx, LaunchRequest{
		Cwd:                        p.Cwd,
		PreferredTerminal:          p.PreferredTerminal,
		DangerouslySkipPermissions: p.DangerouslySkipPermissions,
	})
	cancel()
	if err != nil {
		rt.notifier.SendResult(c, req.Type, req.RequestID, launchSessionResult{Error: string(adapter.ErrOther)})
		return
	}
	rt.notifier.SendResult(c, req.Type, req.RequestID, launchSessionResult{Success: true, Method: result.Method})
}

// toggle_autocompact

type toggleAutocompactPayload struct {
	Enabled bool `json:"enabled"`
}

type toggleAutocompactResult struct {
	Enabled bool `json:"enabled"`
}

func (rt *Router) handleToggleAutocompact(c *hub.Client, req hub.ClientRequest) {
	var p toggleAutocompactPayload
	if err := decodePayload(req, &p); err != nil {
		rt.notifier.SendResult(c, req.Type, req.RequestID, toggleAutocompactResult{})
		return
	}
	current := settings.LoadAutocompact(rt.autocompactPath)
	updated := current.SetEnabled(p.Enabled)
	if err := settings.SaveAutocompact(rt.autocompactPath, updated); err != nil {
		rt.notifier.SendResult(c, req.Type, req.RequestID, toggleAutocompactResult{Enabled: current.Enabled()})
		return
	}
	rt.notifier.SendResult(c, req.Type, req.RequestID, toggleAutocompactResult{Enabled: updated.Enabled()})
	rt.notifier.BroadcastAutocompactToggled(updated.Enabled(), "")
}

// update_notification_settings

type updateNotificationSettingsPayload struct {
	DesktopEnabled bool `json:"desktop_enabled"`
	SoundEnabled   bool `json:"sound_enabled"`
}

func (rt *Router) handleUpdateNotificationSettings(c *hub.Client, req hub.ClientRequest) {
	var p updateNotificationSettingsPayload
	if err := decodePayload(req, &p); err != nil {
		rt.notifier.SendResult(c, req.Type, req.RequestID, settings.NotificationSettings{})
		return
	}
	s := settings.NotificationSettings{DesktopEnabled: p.DesktopEnabled, SoundEnabled: p.SoundEnabled}
	if err := settings.SaveNotificationSettings(rt.notificationPath, s); err != nil {
		rt.notifier.SendResult(c, req.Type, req.RequestID, settings.NotificationSettings{})
		return
	}
	rt.notifier.SendResult(c, req.Type, req.RequestID, s)
}
