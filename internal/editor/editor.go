// Package editor detects and tracks the editor extension's per-workspace
// IPC endpoint, and exposes the client half of the navigate /
// element-select protocol. The coordinator treats everything here as
// advisory: the editor may be absent, refuse connections, or die
// mid-session, and every caller has a protocol-level fallback.
package editor

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"browserpilot/internal/ipc"
	"browserpilot/internal/logging"
)

// Environment is the detected editor-host state, refreshed
// opportunistically.
type Environment struct {
	Detected         bool
	CDPPort          int
	SocketPath       string
	ExtensionVersion string
	ActiveBrowserURL string
}

// Monitor discovers the editor endpoint for a workspace and keeps a
// cached Environment current. A filesystem watch on the IPC data
// directory notices the extension's socket appearing or vanishing without
// polling.
type Monitor struct {
	workspace string

	mu  sync.Mutex
	env Environment

	watcher   *fsnotify.Watcher
	done      chan struct{}
	closeOnce sync.Once
}

// NewMonitor returns a monitor for the workspace root.
func NewMonitor(workspace string) *Monitor {
	return &Monitor{workspace: workspace, done: make(chan struct{})}
}

// Refresh probes for the editor endpoint and, when live, pulls its state.
// Returns the refreshed environment.
func (m *Monitor) Refresh() Environment {
	env := Environment{}
	if path, ok := ipc.Discover(m.workspace); ok {
		env.Detected = true
		env.SocketPath = path
		if state, err := ipc.GetState(path, ipc.DefaultTimeout); err == nil {
			env.CDPPort = state.CDPPort
			env.ExtensionVersion = state.ExtensionVersion
			env.ActiveBrowserURL = state.ActiveBrowserURL
		} else {
			logging.Debugf("editor: get_state: %v", err)
		}
	}

	m.mu.Lock()
	m.env = env
	m.mu.Unlock()
	return env
}

// Env returns the cached environment.
func (m *Monitor) Env() Environment {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.env
}

// Live reports whether the cached endpoint still answers a ping. A dead
// endpoint clears the cache.
func (m *Monitor) Live() bool {
	m.mu.Lock()
	path := m.env.SocketPath
	m.mu.Unlock()
	if path == "" {
		return false
	}
	if ipc.Probe(path) {
		return true
	}
	m.mu.Lock()
	m.env = Environment{}
	m.mu.Unlock()
	return false
}

// Watch starts the data-directory watcher. Socket files appearing or
// disappearing trigger a Refresh. Safe to skip: Refresh still works
// without it.
func (m *Monitor) Watch() error {
	dir, err := ipc.DataDir()
	if err != nil {
		return err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return err
	}
	m.watcher = watcher

	go func() {
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !strings.HasSuffix(ev.Name, ".sock") {
					continue
				}
				if ev.Op&(fsnotify.Create|fsnotify.Remove) != 0 {
					logging.Debugf("editor: socket change %s", ev)
					m.Refresh()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logging.Debugf("editor: watch: %v", err)
			case <-m.done:
				return
			}
		}
	}()
	return nil
}

// Close stops the watcher. Safe to call more than once.
func (m *Monitor) Close() {
	m.closeOnce.Do(func() {
		close(m.done)
		if m.watcher != nil {
			_ = m.watcher.Close()
		}
	})
}

// Navigate asks the editor to display url. The request is retried once:
// a single failure usually means the extension restarted between probe
// and send.
func (m *Monitor) Navigate(url string) error {
	payload, _ := json.Marshal(ipc.NavigatePayload{URL: url})
	req := ipc.Request{Type: ipc.TypeNavigate, Payload: payload}
	resp, err := m.send(req)
	if err != nil {
		return err
	}
	if resp.Type != ipc.TypeOK {
		return respError(resp)
	}
	m.mu.Lock()
	m.env.ActiveBrowserURL = url
	m.mu.Unlock()
	return nil
}

// NotifyElementSelect tells the editor element selection started or was
// cancelled. Best-effort.
func (m *Monitor) NotifyElementSelect(start bool) {
	t := ipc.TypeStartElementSelect
	if !start {
		t = ipc.TypeCancelElementSelect
	}
	if _, err := m.send(ipc.Request{Type: t}); err != nil {
		logging.Debugf("editor: %s: %v", t, err)
	}
}

// send issues one request to the cached endpoint, retrying exactly once
// on transport failure.
func (m *Monitor) send(req ipc.Request) (ipc.Response, error) {
	m.mu.Lock()
	path := m.env.SocketPath
	m.mu.Unlock()
	if path == "" {
		return ipc.Response{}, ipc.ErrUnavailable
	}

	resp, err := ipc.Send(path, req, ipc.DefaultTimeout)
	if err == nil {
		return resp, nil
	}
	time.Sleep(100 * time.Millisecond)
	return ipc.Send(path, req, ipc.DefaultTimeout)
}

func respError(resp ipc.Response) error {
	var ep ipc.ErrorPayload
	if len(resp.Payload) > 0 && json.Unmarshal(resp.Payload, &ep) == nil && ep.Message != "" {
		return fmt.Errorf("editor: %s", ep.Message)
	}
	return fmt.Errorf("editor: request failed (%s)", resp.Type)
}
