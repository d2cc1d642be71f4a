package adapter

import (
	"github.com/jacquesd/jacquesd/internal/session"
	gopsprocess "github.com/shirou/gopsutil/v3/process"
)

// MinAncestorDepth is the minimum parent-chain walk depth spec §4.7 and §9
// require ("cap the depth (≥5)").
const MinAncestorDepth = 5

// WindowOwnerProbe reports whether pid owns a visible, titled top-level
// window, returning the platform window identifier (a terminal key variant
// or native handle string) if so. Platform adapters supply this.
type WindowOwnerProbe func(pid int32) (windowID string, ok bool)

// ResolveWindowOwner strips a DISCOVERED: prefix from terminalKey, extracts
// the encoded PID, then walks the parent-process chain up to maxDepth
// ancestors (clamped to at least MinAncestorDepth) looking for the first
// one that owns a window per probe. Console-hosted terminals frequently do
// not own their own window — the visible window belongs to an ancestor
// (spec §4.7, §9: "a correctness requirement, not an optimisation").
func ResolveWindowOwner(terminalKey string, maxDepth int, probe WindowOwnerProbe) (windowID string, err *Error) {
	if maxDepth < MinAncestorDepth {
		maxDepth = MinAncestorDepth
	}

	pid, ok := session.PIDFromTerminalKey(terminalKey)
	if !ok {
		return "", newError(ErrNoWindow, "terminal key %q encodes no PID", terminalKey)
	}

	current := pid
	for i := 0; i < maxDepth; i++ {
		if id, ok := probe(int32(current)); ok {
			return id, nil
		}
		proc, procErr := gopsprocess.NewProcess(int32(current))
		if procErr != nil {
			break
		}
		parent, ppidErr := proc.Ppid()
		if ppidErr != nil || parent <= 1 || parent == current {
			break
		}
		current = parent
	}
	return "", newError(ErrNoWindow, "no window found within %d ancestors of pid %d", maxDepth, pid)
}
