package session

import (
	"log"
	"os"
	"regexp"
	"strconv"
	"time"

	gopsprocess "github.com/shirou/gopsutil/v3/process"
)

// Reaper runs the two independent removal timers described in spec §4.2:
// a stale-activity sweep and a process-liveness probe. Both call through
// to Registry.Remove, which is idempotent and the only path (besides an
// explicit session_end) that can drop a session.
type Reaper struct {
	registry           *Registry
	staleInterval      time.Duration
	staleThreshold     time.Duration
	processInterval    time.Duration
	transcriptModTime  func(path string) (time.Time, bool)
	pidAlive           func(pid int) bool

	stopStale   chan struct{}
	stopProcess chan struct{}
}

// NewReaper wires a Reaper against registry. staleInterval/staleThreshold
// and processInterval default to spec §4.2's recommended values (5 minutes
// / 5 minutes / 30 seconds) when zero.
func NewReaper(registry *Registry, staleInterval, staleThreshold, processInterval time.Duration) *Reaper {
	if staleInterval <= 0 {
		staleInterval = 5 * time.Minute
	}
	if staleThreshold <= 0 {
		staleThreshold = 5 * time.Minute
	}
	if processInterval <= 0 {
		processInterval = 30 * time.Second
	}
	return &Reaper{
		registry:          registry,
		staleInterval:     staleInterval,
		staleThreshold:    staleThreshold,
		processInterval:   processInterval,
		transcriptModTime: defaultTranscriptModTime,
		pidAlive:          defaultPIDAlive,
		stopStale:         make(chan struct{}),
		stopProcess:       make(chan struct{}),
	}
}

// Start launches both reaping loops in their own goroutines. Both read
// from the registry (which is independently serialised) and never block a
// registry mutation.
func (r *Reaper) Start() {
	go r.staleLoop()
	go r.processLoop()
}

// Stop cancels both reaping loops.
func (r *Reaper) Stop() {
	close(r.stopStale)
	close(r.stopProcess)
}

func (r *Reaper) staleLoop() {
	ticker := time.NewTicker(r.staleInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.stopStale:
			return
		case <-ticker.C:
			r.sweepStale()
		}
	}
}

func (r *Reaper) sweepStale() {
	now := time.Now()
	for _, s := range r.registry.All() {
		if now.Sub(s.LastActivity) <= r.staleThreshold {
			continue
		}
		if s.TranscriptPath != "" {
			if mtime, ok := r.transcriptModTime(s.TranscriptPath); ok && now.Sub(mtime) <= r.staleThreshold {
				continue
			}
		}
		log.Printf("session %s: reaped (stale, last activity %s ago)", s.SessionID, now.Sub(s.LastActivity).Round(time.Second))
		r.registry.Remove(s.SessionID)
	}
}

func (r *Reaper) processLoop() {
	ticker := time.NewTicker(r.processInterval)
	defer ticker.Stop()
	for {
		select {
		case <-r.stopProcess:
			return
		case <-ticker.C:
			r.sweepDeadProcesses()
		}
	}
}

func (r *Reaper) sweepDeadProcesses() {
	for _, s := range r.registry.All() {
		pid, ok := PIDFromTerminalKey(s.TerminalKey)
		if !ok {
			continue
		}
		if r.pidAlive(pid) {
			continue
		}
		log.Printf("session %s: reaped (hosting pid %d gone)", s.SessionID, pid)
		r.registry.Remove(s.SessionID)
	}
}

// terminalKeyPIDPattern matches any terminal_key format that encodes a PID
// as a trailing ":<n>" (PID:1234, CONPTY:5678, WINTERM:9, ...), per spec §4.7.
var terminalKeyPIDPattern = regexp.MustCompile(`:(\d+)$`)

// PIDFromTerminalKey extracts a PID from a terminal_key that encodes one,
// stripping any leading "DISCOVERED:" prefix first. Keys that don't encode
// a PID (e.g. plain TTY:/dev/ttys003 or ITERM:<id>) return ok=false.
func PIDFromTerminalKey(terminalKey string) (int, bool) {
	key := terminalKey
	const discoveredPrefix = "DISCOVERED:"
	if len(key) > len(discoveredPrefix) && key[:len(discoveredPrefix)] == discoveredPrefix {
		key = key[len(discoveredPrefix):]
	}
	m := terminalKeyPIDPattern.FindStringSubmatch(key)
	if m == nil {
		return 0, false
	}
	pid, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return pid, true
}

// defaultPIDAlive checks process liveness via gopsutil, which (unlike a
// hand-rolled /proc reader) works on darwin and windows as well as linux.
func defaultPIDAlive(pid int) bool {
	running, err := gopsprocess.PidExists(int32(pid))
	if err != nil {
		return true // probe failure: don't reap on uncertainty
	}
	return running
}

func defaultTranscriptModTime(path string) (time.Time, bool) {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, false
	}
	return info.ModTime(), true
}
