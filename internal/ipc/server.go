package ipc

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"browserpilot/internal/logging"
)

// connReadTimeout bounds how long a connected client may take to deliver
// its one request line.
const connReadTimeout = 5 * time.Second

// Handler processes one request and produces its response. Implementations
// must be safe for concurrent use.
type Handler func(Request) Response

// Server is the editor-host half of the IPC transport: a per-workspace
// local-socket server speaking one newline-JSON request per connection.
// The editor extension owns this in production; the coordinator's tests
// and any embedding host use it directly.
type Server struct {
	path string
	ln   net.Listener

	mu     sync.Mutex
	closed bool
}

// NewServer binds the endpoint at path, removing a stale socket file
// left by a dead server first.
func NewServer(path string) (*Server, error) {
	if runtime.GOOS != "windows" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("ipc: create socket dir: %w", err)
		}
		_ = os.Remove(path)
	}
	ln, err := listen(path)
	if err != nil {
		return nil, fmt.Errorf("ipc: listen %s: %w", path, err)
	}
	return &Server{path: path, ln: ln}, nil
}

// Path returns the endpoint path the server is bound to.
func (s *Server) Path() string {
	return s.path
}

// Serve accepts connections until Close, dispatching each request to h.
// ping is answered internally; everything else goes to the handler.
func (s *Server) Serve(h Handler) {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return // listener closed
		}
		go s.handleConn(conn, h)
	}
}

// Start runs Serve on its own goroutine.
func (s *Server) Start(h Handler) {
	go s.Serve(h)
}

// Close shuts the listener and removes the socket file.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	err := s.ln.Close()
	if runtime.GOOS != "windows" {
		_ = os.Remove(s.path)
	}
	return err
}

func (s *Server) handleConn(conn net.Conn, h Handler) {
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(connReadTimeout))

	line, err := bufio.NewReader(conn).ReadBytes('\n')
	if err != nil {
		logging.Debugf("ipc: read request: %v", err)
		return
	}

	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		// A garbled line still gets a response so the client can tell
		// "broken request" from "dead server".
		_ = writeMessage(conn, errorResponse("", "malformed request"))
		return
	}

	var resp Response
	switch req.Type {
	case TypePing:
		resp = Response{ID: req.ID, Type: TypeOK}
	default:
		resp = h(req)
		resp.ID = req.ID
	}
	_ = writeMessage(conn, resp)
}

// EditorHost is a reference Handler maintaining EditorState the way the
// editor extension does: get_state returns the current record, navigate
// updates the displayed URL, the element-select notifications flip a flag.
type EditorHost struct {
	mu        sync.Mutex
	state     EditorState
	selecting bool

	// OnNavigate, when set, is invoked for navigate requests before the
	// state is updated. Returning an error yields an error response.
	OnNavigate func(url string) error
}

// NewEditorHost returns a host publishing the given initial state.
func NewEditorHost(state EditorState) *EditorHost {
	return &EditorHost{state: state}
}

// SetState replaces the published state.
func (e *EditorHost) SetState(state EditorState) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = state
}

// State returns the current published state.
func (e *EditorHost) State() EditorState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Selecting reports whether element selection is active.
func (e *EditorHost) Selecting() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.selecting
}

// Handle implements Handler.
func (e *EditorHost) Handle(req Request) Response {
	switch req.Type {
	case TypeGetState:
		e.mu.Lock()
		payload, _ := json.Marshal(e.state)
		e.mu.Unlock()
		return Response{Type: TypeState, Payload: payload}

	case TypeNavigate:
		var nav NavigatePayload
		if err := json.Unmarshal(req.Payload, &nav); err != nil || nav.URL == "" {
			return errorResponse(req.ID, "navigate: url required")
		}
		if e.OnNavigate != nil {
			if err := e.OnNavigate(nav.URL); err != nil {
				return errorResponse(req.ID, err.Error())
			}
		}
		e.mu.Lock()
		e.state.ActiveBrowserURL = nav.URL
		e.mu.Unlock()
		return Response{Type: TypeOK}

	case TypeStartElementSelect:
		e.mu.Lock()
		e.selecting = true
		e.mu.Unlock()
		return Response{Type: TypeOK}

	case TypeCancelElementSelect:
		e.mu.Lock()
		e.selecting = false
		e.mu.Unlock()
		return Response{Type: TypeOK}

	default:
		return errorResponse(req.ID, fmt.Sprintf("unknown request type %q", req.Type))
	}
}
