package hub

import (
	"log"
	"sync"

	"github.com/gorilla/websocket"
)

// outboundKind classifies a queued frame for the backpressure policy
// (spec §4.3): critical frames are never dropped; session_update frames
// coalesce per session id and are shed first on overflow; telemetry frames
// are shed only when no session_update frame is left to drop.
type outboundKind int

const (
	kindCritical outboundKind = iota
	kindSessionUpdate
	kindTelemetry
)

type outboundFrame struct {
	kind      outboundKind
	sessionID string // only meaningful for kindSessionUpdate
	data      []byte
}

// maxClientQueue bounds a single client's pending frame count before the
// drop policy engages.
const maxClientQueue = 256

// Client is one connected UI subscriber. The hub is the only thing that
// constructs or closes a Client.
type Client struct {
	conn *websocket.Conn

	mu     sync.Mutex
	queue  []outboundFrame
	closed bool
	notify chan struct{}

	remoteAddr string
}

func newClient(conn *websocket.Conn) *Client {
	c := &Client{
		conn:       conn,
		notify:     make(chan struct{}, 1),
		remoteAddr: conn.RemoteAddr().String(),
	}
	go c.writePump()
	return c
}

func (c *Client) writePump() {
	defer c.conn.Close()
	for range c.notify {
		for {
			frame, ok := c.dequeue()
			if !ok {
				break
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame.data); err != nil {
				c.forceClose()
				return
			}
		}
	}
}

func (c *Client) dequeue() (outboundFrame, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.queue) == 0 {
		return outboundFrame{}, false
	}
	f := c.queue[0]
	c.queue = c.queue[1:]
	return f, true
}

// enqueue appends a frame, applying the coalescing/backpressure policy
// from spec §4.3. Critical frames (initial_state, *_result, session_removed,
// focus_changed, handoff_ready) are appended unconditionally.
func (c *Client) enqueue(f outboundFrame) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}

	if f.kind == kindSessionUpdate {
		// Coalesce: drop any already-queued update for the same session,
		// since each carries the full session state (spec §4.3).
		for i, existing := range c.queue {
			if existing.kind == kindSessionUpdate && existing.sessionID == f.sessionID {
				c.queue = append(c.queue[:i], c.queue[i+1:]...)
				break
			}
		}
	}

	c.queue = append(c.queue, f)

	if f.kind != kindCritical {
		c.applyBackpressure()
	}

	overflowed := len(c.queue) > maxClientQueue && !c.shedAnyDroppable()
	c.mu.Unlock()

	if overflowed {
		log.Printf("ws client %s too slow even after shedding, disconnecting", c.remoteAddr)
		c.close()
		return
	}

	select {
	case c.notify <- struct{}{}:
	default:
	}
}

// applyBackpressure drops the oldest session_update, then the oldest
// telemetry frame, while the queue is over its cap. Caller holds c.mu.
func (c *Client) applyBackpressure() {
	for len(c.queue) > maxClientQueue {
		if !c.dropOldest(kindSessionUpdate) && !c.dropOldest(kindTelemetry) {
			return
		}
	}
}

// shedAnyDroppable is the last-resort shed used when a single critical
// frame just pushed the queue over the cap: it tries to make room by
// dropping non-critical frames, returning false if none remain and the
// queue is still over cap. Caller holds c.mu.
func (c *Client) shedAnyDroppable() bool {
	for len(c.queue) > maxClientQueue {
		if !c.dropOldest(kindSessionUpdate) && !c.dropOldest(kindTelemetry) {
			return false
		}
	}
	return true
}

func (c *Client) dropOldest(kind outboundKind) bool {
	for i, f := range c.queue {
		if f.kind == kind {
			c.queue = append(c.queue[:i], c.queue[i+1:]...)
			return true
		}
	}
	return false
}

// close gracefully closes the client's connection and stops its writer.
func (c *Client) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()
	close(c.notify)
}

func (c *Client) forceClose() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()
}
