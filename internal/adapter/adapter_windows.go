//go:build windows

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

// windowsAdapter drives window placement via a PowerShell helper script
// that wraps the Win32 user32 APIs (MoveWindow, GetWindowRect,
// SetForegroundWindow).
type windowsAdapter struct {
	displayCacheTTL time.Duration
	cachedAt        time.Time
	cachedDisplays  []Display
}

// NewPlatformAdapter returns the Windows adapter.
func NewPlatformAdapter() Adapter {
	return &windowsAdapter{displayCacheTTL: 30 * time.Second}
}

func (a *windowsAdapter) EnumerateDisplays(ctx context.Context) ([]Display, error) {
	if !a.cachedAt.IsZero() && time.Since(a.cachedAt) < a.displayCacheTTL && a.cachedDisplays != nil {
		return a.cachedDisplays, nil
	}

	out, err := runPowershell(ctx, `[System.Windows.Forms.Screen]::AllScreens | ForEach-Object {
		"$($_.Bounds.X),$($_.Bounds.Y),$($_.Bounds.Width),$($_.Bounds.Height),$($_.WorkingArea.X),$($_.WorkingArea.Y),$($_.WorkingArea.Width),$($_.WorkingArea.Height),$($_.Primary)"
	}`)
	if err != nil {
		return nil, err
	}

	var displays []Display
	for i, line := range strings.Split(strings.TrimSpace(out), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Split(line, ",")
		if len(fields) != 9 {
			continue
		}
		nums := make([]int, 8)
		ok := true
		for j := 0; j < 8; j++ {
			n, perr := strconv.Atoi(strings.TrimSpace(fields[j]))
			if perr != nil {
				ok = false
				break
			}
			nums[j] = n
		}
		if !ok {
			continue
		}
		displays = append(displays, Display{
			ID:        strconv.Itoa(i),
			Bounds:    layout.Rect{X: nums[0], Y: nums[1], W: nums[2], H: nums[3]},
			WorkArea:  layout.Rect{X: nums[4], Y: nums[5], W: nums[6], H: nums[7]},
			IsPrimary: strings.EqualFold(strings.TrimSpace(fields[8]), "True"),
		})
	}
	a.cachedDisplays = displays
	a.cachedAt = time.Now()
	return displays, nil
}

func (a *windowsAdapter) PositionWindow(ctx context.Context, terminalKey string, rect layout.Rect) error {
	hwnd, werr := a.resolveWindow(terminalKey)
	if werr != nil {
		return werr
	}
	script := fmt.Sprintf(`
Add-Type -Name Win32 -Namespace Native -MemberDefinition '[DllImport("user32.dll")] public static extern bool MoveWindow(IntPtr hWnd, int X, int Y, int nWidth, int nHeight, bool bRepaint);'
[Native.Win32]::MoveWindow([IntPtr]%s, %d, %d, %d, %d, $true)`, hwnd, rect.X, rect.Y, rect.W, rect.H)
	_, err := runPowershell(ctx, script)
	return err
}

func (a *windowsAdapter) GetWindowBounds(ctx context.Context, terminalKey string) (layout.Rect, bool, error) {
	hwnd, werr := a.resolveWindow(terminalKey)
	if werr != nil {
		return layout.Rect{}, false, werr
	}
	script := fmt.Sprintf(`
Add-Type -Name Win32b -Namespace Native -MemberDefinition '[DllImport("user32.dll")] public static extern bool GetWindowRect(IntPtr hWnd, out Native.RECT rect);'
$r = New-Object Native.RECT
[Native.Win32b]::GetWindowRect([IntPtr]%s, [ref]$r)
"$($r.Left),$($r.Top),$($r.Right - $r.Left),$($r.Bottom - $r.Top)"`, hwnd)
	out, err := runPowershell(ctx, script)
	if err != nil {
		return layout.Rect{}, false, err
	}
	rect, perr := parseRectCommas(out)
	if perr != nil {
		return layout.Rect{}, false, nil
	}
	return rect, true, nil
}

func (a *windowsAdapter) PositionBrowserWindow(ctx context.Context, rect layout.Rect) error {
	script := fmt.Sprintf(`
$p = Get-Process -Name chrome -ErrorAction SilentlyContinue | Select-Object -First 1
if ($p) {
	Add-Type -Name Win32c -Namespace Native -MemberDefinition '[DllImport("user32.dll")] public static extern bool MoveWindow(IntPtr hWnd, int X, int Y, int nWidth, int nHeight, bool bRepaint);'
	[Native.Win32c]::MoveWindow($p.MainWindowHandle, %d, %d, %d, %d, $true)
}`, rect.X, rect.Y, rect.W, rect.H)
	_, err := runPowershell(ctx, script)
	return err
}

func (a *windowsAdapter) Activate(ctx context.Context, terminalKey string) error {
	hwnd, werr := a.resolveWindow(terminalKey)
	if werr != nil {
		return werr
	}
	script := fmt.Sprintf(`
Add-Type -Name Win32d -Namespace Native -MemberDefinition '[DllImport("user32.dll")] public static extern bool SetForegroundWindow(IntPtr hWnd);'
[Native.Win32d]::SetForegroundWindow([IntPtr]%s)`, hwnd)
	_, err := runPowershell(ctx, script)
	return err
}

func (a *windowsAdapter) resolveWindow(terminalKey string) (string, *Error) {
	return ResolveWindowOwner(terminalKey, MinAncestorDepth, a.probeOwnsWindow)
}

// probeOwnsWindow asks PowerShell for the main window handle of a PID, the
// CONPTY/WINTERM equivalent of the macOS "has at least one window" check.
func (a *windowsAdapter) probeOwnsWindow(pid int32) (string, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), CallTimeout)
	defer cancel()
	script := fmt.Sprintf(`(Get-Process -Id %d -ErrorAction SilentlyContinue).MainWindowHandle.ToInt64()`, pid)
	out, err := runPowershell(ctx, script)
	if err != nil {
		return "", false
	}
	handle := strings.TrimSpace(out)
	if handle == "" || handle == "0" {
		return "", false
	}
	return handle, true
}

func runPowershell(ctx context.Context, script string) (string, error) {
	path, err := exec.LookPath("powershell.exe")
	if err != nil {
		return "", newError(ErrUnsupported, "powershell.exe not found: %v", err)
	}

	ctx, cancel := context.WithTimeout(ctx, CallTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, path, "-NoProfile", "-NonInteractive", "-Command", script)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return "", newError(ErrTimeout, "powershell timed out after %s", CallTimeout)
	}
	if runErr != nil {
		return "", newError(ErrOther, "powershell: %v: %s", runErr, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

func parseRectCommas(s string) (layout.Rect, error) {
	parts := strings.Split(strings.TrimSpace(s), ",")
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
