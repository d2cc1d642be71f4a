// Package adapter is the window adapter interface (spec §4.7, C7). The
// layout engine and request router consume only this capability set; the
// concrete implementation is chosen per platform at startup (AppleScript on
// macOS, PowerShell on Windows, xdotool on Linux).
package adapter

import (
	"context"
	"fmt"
	"time"

	"github.com/jacquesd/jacquesd/internal/layout"
)

// CallTimeout bounds every adapter invocation (spec §5: "≥ 10s on platforms
// where the OS call can hang").
const CallTimeout = 10 * time.Second

// Display describes one physical display (spec §4.7).
type Display struct {
	ID        string
	Bounds    layout.Rect
	WorkArea  layout.Rect
	IsPrimary bool
}

// ErrorKind classifies a window-adapter failure so the router can surface
// it verbatim to the requesting client (spec §7, taxonomy item 3).
type ErrorKind string

const (
	ErrNoWindow    ErrorKind = "no_window"
	ErrTimeout     ErrorKind = "timeout"
	ErrUnsupported ErrorKind = "unsupported"
	ErrOther       ErrorKind = "other"
)

// Error is the typed error every Adapter method returns. The router reads
// Kind for the *_result.error field rather than the message text.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func newError(kind ErrorKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Adapter is the required capability set (spec §4.7). enumerate_displays,
// position_window, and activate are mandatory; get_window_bounds and
// position_browser_window are optional and exposed via the BoundsReader and
// BrowserPositioner interfaces below, checked with a type assertion the way
// the router degrades gracefully when a platform lacks them (spec §9).
type Adapter interface {
	EnumerateDisplays(ctx context.Context) ([]Display, error)
	PositionWindow(ctx context.Context, terminalKey string, rect layout.Rect) error
	Activate(ctx context.Context, terminalKey string) error
}

// BoundsReader is an optional Adapter capability: reading back a window's
// actual on-screen rectangle. Required for bounds-based tile validation and
// for the free-space finder to see untracked windows (spec §4.7).
type BoundsReader interface {
	GetWindowBounds(ctx context.Context, terminalKey string) (layout.Rect, bool, error)
}

// BrowserPositioner is an optional Adapter capability used by
// position_browser_layout.
type BrowserPositioner interface {
	PositionBrowserWindow(ctx context.Context, rect layout.Rect) error
}

// SupportsBounds reports whether a is also a BoundsReader.
func SupportsBounds(a Adapter) (BoundsReader, bool) {
	b, ok := a.(BoundsReader)
	return b, ok
}

// SupportsBrowserPositioning reports whether a is also a BrowserPositioner.
func SupportsBrowserPositioning(a Adapter) (BrowserPositioner, bool) {
	b, ok := a.(BrowserPositioner)
	return b, ok
}
