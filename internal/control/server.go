// Package control serves a small loopback HTTP endpoint exposing the
// coordinator's status for humans and scripts. It never touches CDP
// traffic; that stays on the byte-transparent proxy.
package control

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"browserpilot/internal/coordinator"
	"browserpilot/internal/logging"
)

// Server is the control endpoint.
type Server struct {
	coord *coordinator.Coordinator
	srv   *http.Server
}

// New builds a control server for the coordinator.
func New(coord *coordinator.Coordinator) *Server {
	return &Server{coord: coord}
}

// Handler returns the routed handler, usable standalone in tests.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", s.handleHealthz)
	r.Get("/status", s.handleStatus)
	r.Get("/browsers", s.handleBrowsers)
	return r
}

// Start binds 127.0.0.1:port and serves until Shutdown.
func (s *Server) Start(port int) error {
	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return fmt.Errorf("control: bind port %d: %w", port, err)
	}
	s.srv = &http.Server{Handler: s.Handler()}
	go func() {
		if err := s.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			logging.Errorf("control: serve: %v", err)
		}
	}()
	logging.Infof("control: listening on %s", ln.Addr())
	return nil
}

// Shutdown stops the server, bounded by a short drain window.
func (s *Server) Shutdown() {
	if s.srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.srv.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Write([]byte("ok"))
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.coord.Status())
}

func (s *Server) handleBrowsers(w http.ResponseWriter, _ *http.Request) {
	w.Write([]byte(s.coord.ListBrowsers() + "\n"))
}
