package panel

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"log"
	"net"
	"net/http"
	"time"
)

// Server exposes the panel over HTTP: the page at "/", the protocol at "/ws"
// and a health probe at "/healthz".
type Server struct {
	addr      string
	transport *WebSocketTransport
	assets    fs.FS
	server    *http.Server
	listener  net.Listener
}

// NewServer builds a server. assets may be nil, in which case "/" is not
// served.
func NewServer(addr string, transport *WebSocketTransport, assets fs.FS) *Server {
	return &Server{
		addr:      addr,
		transport: transport,
		assets:    assets,
	}
}

// Handler returns the routing for the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.Handle("/ws", s.transport)
	if s.assets != nil {
		mux.Handle("/", http.FileServer(http.FS(s.assets)))
	}
	return mux
}

func (s *Server) Start() error {
	if s.transport == nil {
		return fmt.Errorf("panel server transport is nil")
	}
	if s.addr == "" {
		return fmt.Errorf("panel server addr is empty")
	}
	if s.server != nil {
		return nil
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.addr, err)
	}

	s.listener = listener
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if serveErr := s.server.Serve(listener); serveErr != nil && serveErr != http.ErrServerClosed {
			log.Printf("[CommitKit][WS] serve error: %v", serveErr)
		}
	}()

	log.Printf("[CommitKit][WS] Listening on http://%s", listener.Addr())
	return nil
}

// Addr returns the bound address once started, else the configured one.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Stop disconnects every client and shuts the HTTP server down.
func (s *Server) Stop(ctx context.Context) error {
	if s.transport != nil {
		s.transport.Close()
	}
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeServerJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
		return
	}
	writeServerJSON(w, http.StatusOK, map[string]any{"ok": true, "clients": s.transport.Clients()})
}

func writeServerJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("[CommitKit][WS] encode response: %v", err)
	}
}
