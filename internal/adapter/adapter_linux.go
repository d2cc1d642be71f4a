//go:build linux

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

// linuxAdapter drives window placement via xdotool, the X11 equivalent of
// the macOS osascript / Windows powershell helpers.
type linuxAdapter struct {
	displayCacheTTL time.Duration
	cachedAt        time.Time
	cachedDisplays  []Display
}

// NewPlatformAdapter returns the Linux (X11) adapter.
func NewPlatformAdapter() Adapter {
	return &linuxAdapter{displayCacheTTL: 30 * time.Second}
}

func (a *linuxAdapter) EnumerateDisplays(ctx context.Context) ([]Display, error) {
	if !a.cachedAt.IsZero() && time.Since(a.cachedAt) < a.displayCacheTTL && a.cachedDisplays != nil {
		return a.cachedDisplays, nil
	}

	out, err := runXrandr(ctx)
	if err != nil {
		return nil, err
	}
	displays := parseXrandrDisplays(out)
	a.cachedDisplays = displays
	a.cachedAt = time.Now()
	return displays, nil
}

func (a *linuxAdapter) PositionWindow(ctx context.Context, terminalKey string, rect layout.Rect) error {
	windowID, werr := a.resolveWindow(terminalKey)
	if werr != nil {
		return werr
	}
	_, err := runXdotool(ctx, "windowmove", windowID, strconv.Itoa(rect.X), strconv.Itoa(rect.Y))
	if err != nil {
		return err
	}
	_, err = runXdotool(ctx, "windowsize", windowID, strconv.Itoa(rect.W), strconv.Itoa(rect.H))
	return err
}

func (a *linuxAdapter) GetWindowBounds(ctx context.Context, terminalKey string) (layout.Rect, bool, error) {
	windowID, werr := a.resolveWindow(terminalKey)
	if werr != nil {
		return layout.Rect{}, false, werr
	}
	out, err := runXdotool(ctx, "getwindowgeometry", "--shell", windowID)
	if err != nil {
		return layout.Rect{}, false, err
	}
	rect, ok := parseXdotoolGeometry(out)
	return rect, ok, nil
}

func (a *linuxAdapter) PositionBrowserWindow(ctx context.Context, rect layout.Rect) error {
	out, err := runXdotool(ctx, "search", "--class", "chrome")
	if err != nil {
		return err
	}
	windowID := strings.TrimSpace(strings.Split(out, "\n")[0])
	if windowID == "" {
		return newError(ErrNoWindow, "no chrome window found")
	}
	if _, err := runXdotool(ctx, "windowmove", windowID, strconv.Itoa(rect.X), strconv.Itoa(rect.Y)); err != nil {
		return err
	}
	_, err = runXdotool(ctx, "windowsize", windowID, strconv.Itoa(rect.W), strconv.Itoa(rect.H))
	return err
}

func (a *linuxAdapter) Activate(ctx context.Context, terminalKey string) error {
	windowID, werr := a.resolveWindow(terminalKey)
	if werr != nil {
		return werr
	}
	_, err := runXdotool(ctx, "windowactivate", windowID)
	return err
}

func (a *linuxAdapter) resolveWindow(terminalKey string) (string, *Error) {
	return ResolveWindowOwner(terminalKey, MinAncestorDepth, a.probeOwnsWindow)
}

// probeOwnsWindow asks xdotool to search for a window owned by pid.
func (a *linuxAdapter) probeOwnsWindow(pid int32) (string, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), CallTimeout)
	defer cancel()
	out, err := runXdotool(ctx, "search", "--pid", strconv.Itoa(int(pid)))
	if err != nil {
		return "", false
	}
	windowID := strings.TrimSpace(strings.Split(strings.TrimSpace(out), "\n")[0])
	if windowID == "" {
		return "", false
	}
	return windowID, true
}

func runXdotool(ctx context.Context, args ...string) (string, error) {
	path, err := exec.LookPath("xdotool")
	if err != nil {
		return "", newError(ErrUnsupported, "xdotool not found: %v", err)
	}

	ctx, cancel := context.WithTimeout(ctx, CallTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, path, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return "", newError(ErrTimeout, "xdotool timed out after %s", CallTimeout)
	}
	if runErr != nil {
		return "", newError(ErrOther, "xdotool %v: %v: %s", args, runErr, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

func runXrandr(ctx context.Context) (string, error) {
	path, err := exec.LookPath("xrandr")
	if err != nil {
		return "", newError(ErrUnsupported, "xrandr not found: %v", err)
	}

	ctx, cancel := context.WithTimeout(ctx, CallTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, path, "--query")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", newError(ErrOther, "xrandr: %v: %s", err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// parseXrandrDisplays parses lines like:
//
//	HDMI-1 connected primary 1920x1080+0+0 ...
func parseXrandrDisplays(output string) []Display {
	var displays []Display
	for _, line := range strings.Split(output, "\n") {
		if !strings.Contains(line, " connected") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}
		name := fields[0]
		isPrimary := strings.Contains(line, "primary")

		var geometry string
		for _, f := range fields[2:] {
			if strings.Contains(f, "x") && strings.Contains(f, "+") {
				geometry = f
				break
			}
		}
		if geometry == "" {
			continue
		}
		rect, ok := parseXrandrGeometry(geometry)
		if !ok {
			continue
		}
		displays = append(displays, Display{
			ID:        name,
			Bounds:    rect,
			WorkArea:  rect,
			IsPrimary: isPrimary,
		})
	}
	return displays
}

func parseXrandrGeometry(s string) (layout.Rect, bool) {
	// "1920x1080+0+0"
	xIdx := strings.IndexByte(s, 'x')
	if xIdx < 0 {
		return layout.Rect{}, false
	}
	rest := s[xIdx+1:]
	plusParts := strings.SplitN(rest, "+", 3)
	if len(plusParts) != 3 {
		return layout.Rect{}, false
	}
	w, err1 := strconv.Atoi(s[:xIdx])
	h, err2 := strconv.Atoi(plusParts[0])
	x, err3 := strconv.Atoi(plusParts[1])
	y, err4 := strconv.Atoi(plusParts[2])
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
		return layout.Rect{}, false
	}
	return layout.Rect{X: x, Y: y, W: w, H: h}, true
}

// parseXdotoolGeometry parses the `--shell` output of
// `xdotool getwindowgeometry`: WINDOW=..., X=..., Y=..., WIDTH=..., HEIGHT=...
func parseXdotoolGeometry(output string) (layout.Rect, bool) {
	vals := map[string]int{}
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		kv := strings.SplitN(line, "=", 2)
		if len(kv) != 2 {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(kv[1]))
		if err != nil {
			continue
		}
		vals[kv[0]] = n
	}
	x, xok := vals["X"]
	y, yok := vals["Y"]
	w, wok := vals["WIDTH"]
	h, hok := vals["HEIGHT"]
	if !xok || !yok || !wok || !hok {
		return layout.Rect{}, false
	}
	return layout.Rect{X: x, Y: y, W: w, H: h}, true
}
