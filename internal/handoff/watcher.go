// Package handoff watches each active project's handoff file and notifies
// the subscription hub the moment one appears or changes (spec §4.8, C8).
// One fsnotify watch is kept per session, on the handoff directory beneath
// that session's project root; a session_id's watch
// starts when its session registers and stops when it ends, releasing the
// underlying OS resource immediately.
package handoff

import (
	"errors"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the minimum coalescing window spec §4.8 requires
// ("≥2 s").
const DefaultDebounce = 2 * time.Second

// Notifier is called at most once per debounce window per session, the
// moment a handoff file appears or is modified.
type Notifier func(sessionID, path string)

// Watcher manages one fsnotify watch per watched session; two sessions in
// the same project each get their own watch.
type Watcher struct {
	relPath  string
	notify   Notifier
	debounce *debouncer

	mu      sync.Mutex
	watches map[string]*projectWatch // keyed by session_id, once established
	pending map[string]chan struct{} // keyed by session_id, while a retry is scheduled
}

type projectWatch struct {
	fsw  *fsnotify.Watcher
	done chan struct{}
}

// New creates a Watcher. relPath is the handoff file's path relative to a
// project's root (e.g. ".jacques/handoffs/session.json"), treated as
// opaque configuration per spec §4.8.
func New(relPath string, debounceWindow time.Duration, notify Notifier) *Watcher {
	return &Watcher{
		relPath:  relPath,
		notify:   notify,
		debounce: newDebouncer(debounceWindow),
		watches:  make(map[string]*projectWatch),
		pending:  make(map[string]chan struct{}),
	}
}

// Watch starts watching projectRoot for sessionID's handoff file. Calling
// Watch again for the same sessionID first stops the previous watch
// (idempotent restart, e.g. after a cwd change).
func (w *Watcher) Watch(sessionID, projectRoot string) error {
	w.Stop(sessionID)

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	dir := filepath.Dir(filepath.Join(projectRoot, w.relPath))
	if err := fsw.Add(dir); err != nil {
		// Transient filesystem error: log and retry shortly rather than
		// fail the whole watcher (spec §7, taxonomy item 5).
		log.Printf("handoff: watch %s for session %s failed, retrying: %v", dir, sessionID, err)
		fsw.Close()
		w.scheduleRetry(sessionID, projectRoot)
		return nil
	}

	pw := &projectWatch{fsw: fsw, done: make(chan struct{})}
	w.mu.Lock()
	w.watches[sessionID] = pw
	w.mu.Unlock()

	targetPath := filepath.Join(projectRoot, w.relPath)
	go w.run(sessionID, targetPath, pw)
	return nil
}

// scheduleRetry arms a cancellable retry for sessionID, recorded in
// w.pending so Stop can cancel it immediately if the session ends (or is
// re-watched) before the retry fires, rather than letting it re-arm
// against a session that's no longer wanted.
func (w *Watcher) scheduleRetry(sessionID, projectRoot string) {
	cancel := make(chan struct{})
	w.mu.Lock()
	w.pending[sessionID] = cancel
	w.mu.Unlock()

	go func() {
		select {
		case <-time.After(2 * time.Second):
		case <-cancel:
			return
		}

		w.mu.Lock()
		current, stillPending := w.pending[sessionID]
		if stillPending && current == cancel {
			delete(w.pending, sessionID)
		} else {
			stillPending = false
		}
		w.mu.Unlock()
		if !stillPending {
			return
		}

		if err := w.Watch(sessionID, projectRoot); err != nil {
			log.Printf("handoff: retry watch for session %s failed: %v", sessionID, err)
		}
	}()
}

func (w *Watcher) run(sessionID, targetPath string, pw *projectWatch) {
	for {
		select {
		case <-pw.done:
			return
		case event, ok := <-pw.fsw.Events:
			if !ok {
				return
			}
			if event.Name != targetPath {
				continue
			}
			if !(event.Op&(fsnotify.Create|fsnotify.Write) != 0) {
				continue
			}
			w.debounce.trigger(sessionID, func() {
				if w.notify != nil {
					w.notify(sessionID, targetPath)
				}
			})
		case err, ok := <-pw.fsw.Errors:
			if !ok {
				return
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				log.Printf("handoff: event overflow watching %s", targetPath)
				continue
			}
			log.Printf("handoff: watch error for %s: %v", targetPath, err)
		}
	}
}

// Stop releases the watch for sessionID, if any, and cancels a pending
// retry for it, if one is scheduled. Idempotent.
func (w *Watcher) Stop(sessionID string) {
	w.mu.Lock()
	pw, ok := w.watches[sessionID]
	delete(w.watches, sessionID)
	if cancel, pending := w.pending[sessionID]; pending {
		delete(w.pending, sessionID)
		close(cancel)
	}
	w.mu.Unlock()
	if !ok {
		return
	}
	close(pw.done)
	pw.fsw.Close()
}

// StopAll releases every active watch and cancels every pending retry,
// for shutdown.
func (w *Watcher) StopAll() {
	w.mu.Lock()
	sessionIDs := make(map[string]struct{}, len(w.watches)+len(w.pending))
	for id := range w.watches {
		sessionIDs[id] = struct{}{}
	}
	for id := range w.pending {
		sessionIDs[id] = struct{}{}
	}
	w.mu.Unlock()
	for id := range sessionIDs {
		w.Stop(id)
	}
	w.debounce.stopAll()
}
