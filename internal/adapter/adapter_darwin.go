//go:build darwin

package adapter

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/jacquesd/jacquesd/internal/layout"
)

// macAdapter drives window placement via osascript (System Events), using
// the same os/exec + exec.LookPath shape as the Linux and Windows adapters.
type macAdapter struct {
	displayCacheTTL time.Duration
	cachedAt        time.Time
	cachedDisplays  []Display
}

// NewPlatformAdapter returns the macOS adapter.
func NewPlatformAdapter() Adapter {
	return &macAdapter{displayCacheTTL: 30 * time.Second}
}

func (a *macAdapter) EnumerateDisplays(ctx context.Context) ([]Display, error) {
	if !a.cachedAt.IsZero() && time.Since(a.cachedAt) < a.displayCacheTTL && a.cachedDisplays != nil {
		return a.cachedDisplays, nil
	}

	out, err := runOsascript(ctx, `
tell application "Finder"
	set b to bounds of window of desktop
end tell
return b`)
	if err != nil {
		return nil, err
	}

	bounds, perr := parseRectCSV(out)
	if perr != nil {
		return nil, newError(ErrOther, "parsing display bounds: %v", perr)
	}

	displays := []Display{{
		ID:        "0",
		Bounds:    bounds,
		WorkArea:  layout.Rect{X: bounds.X, Y: bounds.Y + 23, W: bounds.W, H: bounds.H - 23},
		IsPrimary: true,
	}}
	a.cachedDisplays = displays
	a.cachedAt = time.Now()
	return displays, nil
}

func (a *macAdapter) PositionWindow(ctx context.Context, terminalKey string, rect layout.Rect) error {
	windowID, werr := a.resolveWindow(terminalKey)
	if werr != nil {
		return werr
	}
	script := fmt.Sprintf(`
tell application "System Events"
	set targetProc to first process whose unix id is %s
	set frontmost of targetProc to true
	tell window 1 of targetProc
		set position to {%d, %d}
		set size to {%d, %d}
	end tell
end tell`, windowID, rect.X, rect.Y, rect.W, rect.H)
	if _, err := runOsascript(ctx, script); err != nil {
		return err
	}
	return nil
}

func (a *macAdapter) GetWindowBounds(ctx context.Context, terminalKey string) (layout.Rect, bool, error) {
	windowID, werr := a.resolveWindow(terminalKey)
	if werr != nil {
		return layout.Rect{}, false, werr
	}
	script := fmt.Sprintf(`
tell application "System Events"
	set targetProc to first process whose unix id is %s
	tell window 1 of targetProc
		set p to position
		set s to size
	end tell
end tell
return {item 1 of p, item 2 of p, item 1 of s, item 2 of s}`, windowID)
	out, err := runOsascript(ctx, script)
	if err != nil {
		return layout.Rect{}, false, err
	}
	rect, perr := parseRectCSV(out)
	if perr != nil {
		return layout.Rect{}, false, nil
	}
	return rect, true, nil
}

func (a *macAdapter) PositionBrowserWindow(ctx context.Context, rect layout.Rect) error {
	script := fmt.Sprintf(`
tell application "Google Chrome"
	activate
	set bounds of front window to {%d, %d, %d, %d}
end tell`, rect.X, rect.Y, rect.Right(), rect.Bottom())
	_, err := runOsascript(ctx, script)
	return err
}

func (a *macAdapter) Activate(ctx context.Context, terminalKey string) error {
	windowID, werr := a.resolveWindow(terminalKey)
	if werr != nil {
		return werr
	}
	script := fmt.Sprintf(`
tell application "System Events"
	set frontmost of (first process whose unix id is %s) to true
end tell`, windowID)
	_, err := runOsascript(ctx, script)
	return err
}

func (a *macAdapter) resolveWindow(terminalKey string) (string, *Error) {
	return ResolveWindowOwner(terminalKey, MinAncestorDepth, a.probeOwnsWindow)
}

// probeOwnsWindow asks System Events whether pid has at least one window.
func (a *macAdapter) probeOwnsWindow(pid int32) (string, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), CallTimeout)
	defer cancel()
	script := fmt.Sprintf(`
tell application "System Events"
	try
		set targetProc to first process whose unix id is %d
		return (count of windows of targetProc) as string
	on error
		return "0"
	end try
end tell`, pid)
	out, err := runOsascript(ctx, script)
	if err != nil {
		return "", false
	}
	n, _ := strconv.Atoi(strings.TrimSpace(out))
	if n <= 0 {
		return "", false
	}
	return strconv.Itoa(int(pid)), true
}

func runOsascript(ctx context.Context, script string) (string, error) {
	path, err := exec.LookPath("osascript")
	if err != nil {
		return "", newError(ErrUnsupported, "osascript not found: %v", err)
	}

	ctx, cancel := context.WithTimeout(ctx, CallTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, path, "-e", script)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return "", newError(ErrTimeout, "osascript timed out after %s", CallTimeout)
	}
	if runErr != nil {
		return "", newError(ErrOther, "osascript: %v: %s", runErr, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// parseRectCSV parses AppleScript's "{x, y, w, h}" list echoed as
// comma-separated text back from osascript -e.
func parseRectCSV(s string) (layout.Rect, error) {
	s = strings.Trim(strings.TrimSpace(s), "{}")
	parts := strings.Split(s, ", ")
	if len(parts) != 4 {
		return layout.Rect{}, fmt.Errorf("expected 4 fields, got %d (%q)", len(parts), s)
	}
	vals := make([]int, 4)
	for i, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return layout.Rect{}, err
		}
		vals[i] = n
	}
	return layout.Rect{X: vals[0], Y: vals[1], W: vals[2], H: vals[3]}, nil
}
