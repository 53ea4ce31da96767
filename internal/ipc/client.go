package ipc

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"

	"browserpilot/internal/logging"
)

// Default client timeouts.
const (
	DefaultTimeout = 5 * time.Second
	ProbeTimeout   = 2 * time.Second
)

// ErrUnavailable wraps every client-side transport failure: socket
// missing, connection refused, timeout, premature close, malformed JSON.
// Callers fall back to the protocol-level path when they see it.
var ErrUnavailable = errors.New("ipc: endpoint unavailable")

// Send connects to path, writes one request, reads one response line,
// and closes. The whole exchange is bounded by timeout.
func Send(path string, req Request, timeout time.Duration) (Response, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	conn, err := dial(path, timeout)
	if err != nil {
		return Response{}, fmt.Errorf("%w: connect %s: %v", ErrUnavailable, path, err)
	}
	defer conn.Close()

	deadline := time.Now().Add(timeout)
	_ = conn.SetDeadline(deadline)

	if err := writeMessage(conn, req); err != nil {
		return Response{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	resp, err := readResponse(bufio.NewReader(conn))
	if err != nil {
		return Response{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return resp, nil
}

// Probe reports whether a live server answers a ping at path within the
// probe timeout.
func Probe(path string) bool {
	resp, err := Send(path, Request{Type: TypePing}, ProbeTimeout)
	return err == nil && resp.Type == TypeOK
}

// GetState fetches the editor-published state from path.
func GetState(path string, timeout time.Duration) (EditorState, error) {
	resp, err := Send(path, Request{Type: TypeGetState}, timeout)
	if err != nil {
		return EditorState{}, err
	}
	if resp.Type != TypeState {
		return EditorState{}, fmt.Errorf("ipc: unexpected response type %q", resp.Type)
	}
	var state EditorState
	if err := json.Unmarshal(resp.Payload, &state); err != nil {
		return EditorState{}, fmt.Errorf("ipc: decode state: %w", err)
	}
	return state, nil
}

// Discover returns a healthy endpoint path for the workspace. The
// workspace-derived path is probed first; failing that, every socket file
// in the data directory is probed, and files nothing listens on are
// reaped. Returns ok=false when no healthy endpoint exists.
func Discover(workspace string) (string, bool) {
	path, err := SocketPath(workspace)
	if err == nil {
		if Probe(path) {
			return path, true
		}
		reapStale(path)
	}

	// Named pipes vanish with their server; there is nothing to
	// enumerate or reap on Windows.
	if runtime.GOOS == "windows" {
		return "", false
	}

	dir, err := DataDir()
	if err != nil {
		return "", false
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", false
	}
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(name, "ipc-") || !strings.HasSuffix(name, ".sock") {
			continue
		}
		candidate := filepath.Join(dir, name)
		if candidate == path {
			continue // already probed above
		}
		if Probe(candidate) {
			return candidate, true
		}
		reapStale(candidate)
	}
	return "", false
}

// reapStale unlinks a socket file that exists but has no listener.
func reapStale(path string) {
	if runtime.GOOS == "windows" {
		return
	}
	if _, err := os.Stat(path); err != nil {
		return
	}
	logging.Infof("ipc: reaping stale socket %s", path)
	_ = os.Remove(path)
}
