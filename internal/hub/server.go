package hub

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"

	"github.com/jacquesd/jacquesd/internal/session"
	"github.com/gorilla/websocket"
)

// RequestHandler is implemented by the request router (spec §4.9, C9). The
// hub calls it once per decoded ClientRequest and never inspects the
// request itself; Handle is responsible for calling back into Hub.SendResult
// (or broadcasting, for select_session) using the same Client handle.
type RequestHandler interface {
	Handle(c *Client, req ClientRequest)
}

// Server exposes the loopback WebSocket subscription endpoint (spec §6:
// "a loopback WebSocket endpoint, default port 4242").
type Server struct {
	hub            *Hub
	handler        RequestHandler
	allowedOrigins map[string]bool
	allowedHosts   map[string]bool

	// snapshot supplies the registry's current state for a new
	// connection's initial_state frame (spec §4.3).
	snapshot func() (sessions []*session.Session, focusedID string)
}

// NewServer creates a Server around h. snapshot is called once per new
// connection to build its initial_state frame.
func NewServer(h *Hub, handler RequestHandler, allowedOrigins []string, snapshot func() ([]*session.Session, string)) *Server {
	s := &Server{
		hub:            h,
		handler:        handler,
		allowedOrigins: make(map[string]bool),
		allowedHosts:   make(map[string]bool),
		snapshot:       snapshot,
	}
	for _, origin := range allowedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		s.allowedOrigins[trimmed] = true
		if parsed, err := url.Parse(trimmed); err == nil && parsed.Host != "" {
			s.allowedHosts[parsed.Host] = true
		}
	}
	return s
}

// SetupRoutes registers the WebSocket endpoint on mux.
func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", s.handleWS)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{CheckOrigin: s.checkOrigin}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("hub: ws upgrade error: %v", err)
		return
	}

	log.Printf("hub: client connected: %s", r.RemoteAddr)
	var sessions []*session.Session
	var focusedID string
	if s.snapshot != nil {
		sessions, focusedID = s.snapshot()
	}
	c := s.hub.AddClient(conn, sessions, focusedID)

	go func() {
		defer func() {
			s.hub.RemoveClient(c)
			log.Printf("hub: client disconnected: %s", r.RemoteAddr)
		}()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var req ClientRequest
			if err := json.Unmarshal(data, &req); err != nil {
				log.Printf("hub: malformed client request from %s: %v", r.RemoteAddr, err)
				continue
			}
			if req.Type == "" {
				continue
			}
			if s.handler != nil {
				s.handler.Handle(c, req)
			}
		}
	}()
}

// checkOrigin enforces spec §1's "binds only to loopback, trusted local
// user" posture: same-host, localhost, and loopback-literal origins are
// always allowed; an explicit allow-list can widen this for e.g. a dev
// server on a different port.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	if len(s.allowedOrigins) > 0 {
		if s.allowedOrigins[origin] {
			return true
		}
		if parsed, err := url.Parse(origin); err == nil && parsed.Host != "" {
			return s.allowedHosts[parsed.Host]
		}
		return false
	}

	parsed, err := url.Parse(origin)
	if err != nil {
		return false
	}
	host := parsed.Host
	if host == "" {
		return false
	}
	if host == r.Host {
		return true
	}
	for _, prefix := range []string{"localhost:", "127.0.0.1:", "[::1]:"} {
		if strings.HasPrefix(host, prefix) {
			return true
		}
	}
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}

// ListenAndServe binds the given loopback host:port and serves mux,
// matching spec §6's "binds only to loopback" requirement at the call
// site (the caller is expected to pass a loopback host, e.g. "127.0.0.1").
func ListenAndServe(host string, port int, mux *http.ServeMux) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	log.Printf("hub: listening on %s", addr)
	return http.ListenAndServe(addr, mux)
}
