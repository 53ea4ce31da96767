package coordinator

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"browserpilot/internal/browser"
	"browserpilot/internal/config"
	"browserpilot/internal/ipc"
	"browserpilot/internal/rendezvous"
)

// fakeBackend is a loopback TCP echo server standing in for a browser's
// debugging endpoint.
func fakeBackend(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				_, _ = io.Copy(c, c)
			}(conn)
		}
	}()
	return ln.Addr().(*net.TCPAddr).Port
}

// testCoordinator wires a coordinator whose launcher spawns fake
// backends instead of real browsers.
func testCoordinator(t *testing.T, cfg *config.Resolved) (*Coordinator, *atomic.Int32) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("TMPDIR redirection")
	}
	t.Setenv("TMPDIR", t.TempDir())

	var launches atomic.Int32
	c := New(cfg)
	c.detectFn = func() []browser.Descriptor {
		return []browser.Descriptor{
			{Name: "Fake Chrome", Kind: browser.KindChrome, Path: "/fake/chrome", SpeaksCDP: true},
			{Name: "Fake Edge", Kind: browser.KindEdge, Path: "/fake/edge", SpeaksCDP: true},
		}
	}
	c.freePortFn = func() (int, error) { return fakeBackend(t), nil }
	c.launchFn = func(ctx context.Context, desc browser.Descriptor, port int, opts browser.Options) (*browser.Instance, error) {
		launches.Add(1)
		return &browser.Instance{
			Desc:      desc,
			Engine:    desc.Engine(),
			DebugPort: port,
		}, nil
	}
	t.Cleanup(c.Shutdown)
	return c, &launches
}

func disabledEditorConfig(t *testing.T) *config.Resolved {
	return &config.Resolved{
		Headless:      true,
		Workspace:     t.TempDir(),
		DisableEditor: true,
	}
}

func TestStartWritesRendezvous(t *testing.T) {
	c, _ := testCoordinator(t, disabledEditorConfig(t))
	require.NoError(t, c.Start(context.Background()))

	rec, ok := rendezvous.Read()
	require.True(t, ok)
	assert.Equal(t, c.ProxyPort(), rec.Port)
	assert.Equal(t, os.Getpid(), rec.PID)
}

func TestShutdownClearsRendezvous(t *testing.T) {
	c, _ := testCoordinator(t, disabledEditorConfig(t))
	require.NoError(t, c.Start(context.Background()))

	c.Shutdown()
	_, ok := rendezvous.Read()
	assert.False(t, ok)
}

func TestLazyLaunchSingleSpawn(t *testing.T) {
	c, launches := testCoordinator(t, disabledEditorConfig(t))
	require.NoError(t, c.Start(context.Background()))

	// Two concurrent initial connections through the proxy: one spawn.
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", c.ProxyPort()))
			if err != nil {
				t.Errorf("dial proxy: %v", err)
				return
			}
			defer conn.Close()
			if _, err := conn.Write([]byte("ping")); err != nil {
				t.Errorf("write: %v", err)
				return
			}
			buf := make([]byte, 4)
			if _, err := io.ReadFull(conn, buf); err != nil {
				t.Errorf("read: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), launches.Load())
}

func TestLaunchStopRestartPortStability(t *testing.T) {
	c, launches := testCoordinator(t, disabledEditorConfig(t))
	require.NoError(t, c.Start(context.Background()))
	proxyPort := c.ProxyPort()

	msg, err := c.LaunchBrowser(context.Background(), "chrome", nil)
	require.NoError(t, err)
	assert.Contains(t, msg, "Fake Chrome")
	assert.Equal(t, proxyPort, c.ProxyPort())

	status := c.Status()
	assert.True(t, status.BrowserRunning)
	assert.Equal(t, "chromium", status.Engine)
	firstInternal := status.InternalPort

	msg, err = c.RestartBrowser(context.Background())
	require.NoError(t, err)
	assert.Contains(t, msg, "restarted")
	assert.Equal(t, proxyPort, c.ProxyPort(), "proxy port is invariant across restart")
	assert.NotEqual(t, firstInternal, c.Status().InternalPort, "restart gets a fresh internal port")

	msg, err = c.StopBrowser()
	require.NoError(t, err)
	assert.Contains(t, msg, "stopped")
	assert.False(t, c.Status().BrowserRunning)
	assert.Equal(t, proxyPort, c.ProxyPort())

	assert.Equal(t, int32(2), launches.Load())
}

func TestLaunchBrowserSwitchesBackend(t *testing.T) {
	c, _ := testCoordinator(t, disabledEditorConfig(t))
	require.NoError(t, c.Start(context.Background()))

	_, err := c.LaunchBrowser(context.Background(), "chrome", nil)
	require.NoError(t, err)
	chromePort := c.Status().InternalPort

	_, err = c.LaunchBrowser(context.Background(), "edge", nil)
	require.NoError(t, err)
	edgePort := c.Status().InternalPort

	assert.NotEqual(t, chromePort, edgePort)
	assert.Equal(t, "Fake Edge", c.Status().BrowserName)

	// Rendezvous still advertises the same stable proxy port.
	rec, ok := rendezvous.Read()
	require.True(t, ok)
	assert.Equal(t, c.ProxyPort(), rec.Port)
}

func TestLaunchBrowserUnknownKind(t *testing.T) {
	c, _ := testCoordinator(t, disabledEditorConfig(t))
	require.NoError(t, c.Start(context.Background()))

	_, err := c.LaunchBrowser(context.Background(), "firefox", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, browser.ErrNoBrowser)
}

func TestStopWithoutBrowser(t *testing.T) {
	c, _ := testCoordinator(t, disabledEditorConfig(t))
	require.NoError(t, c.Start(context.Background()))

	msg, err := c.StopBrowser()
	require.NoError(t, err)
	assert.Equal(t, "no browser running", msg)
}

func editorConfig(t *testing.T, workspace string) *config.Resolved {
	return &config.Resolved{
		Headless:  true,
		Workspace: workspace,
	}
}

func TestNavigateViaEditorIPC(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix-socket IPC tests")
	}
	t.Setenv("XDG_DATA_HOME", t.TempDir())

	workspace := filepath.Join("/ws", "editor-nav")
	path, err := ipc.SocketPath(workspace)
	require.NoError(t, err)
	srv, err := ipc.NewServer(path)
	require.NoError(t, err)
	defer srv.Close()
	host := ipc.NewEditorHost(ipc.EditorState{ExtensionVersion: "1.0.0"})
	srv.Start(host.Handle)

	c, launches := testCoordinator(t, editorConfig(t, workspace))
	require.NoError(t, c.Start(context.Background()))

	msg, err := c.Navigate(context.Background(), "https://example.com")
	require.NoError(t, err)
	assert.Contains(t, msg, "editor")

	// The IPC path handled it: no CDP session, no browser spawn.
	assert.Equal(t, int32(0), launches.Load())
	assert.Equal(t, "https://example.com", host.State().ActiveBrowserURL)
	assert.Equal(t, "https://example.com", c.ActiveURL())
}

func TestEditorCDPPortBecomesInitialBackend(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix-socket IPC tests")
	}
	t.Setenv("XDG_DATA_HOME", t.TempDir())

	backendPort := fakeBackend(t)

	workspace := filepath.Join("/ws", "editor-cdp")
	path, err := ipc.SocketPath(workspace)
	require.NoError(t, err)
	srv, err := ipc.NewServer(path)
	require.NoError(t, err)
	defer srv.Close()
	srv.Start(ipc.NewEditorHost(ipc.EditorState{CDPPort: backendPort}).Handle)

	c, launches := testCoordinator(t, editorConfig(t, workspace))
	require.NoError(t, c.Start(context.Background()))

	// A proxy connection reaches the editor's CDP endpoint without any
	// spawn.
	conn, err := net.Dial("tcp", fmt.Sprintf("127.0.0.1:%d", c.ProxyPort()))
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Write([]byte("echo"))
	require.NoError(t, err)
	buf := make([]byte, 4)
	_, err = io.ReadFull(conn, buf)
	require.NoError(t, err)
	assert.Equal(t, "echo", string(buf))

	assert.Equal(t, int32(0), launches.Load())
	assert.Equal(t, "detected (ipc+cdp)", c.Status().Editor)
}

func TestLaunchBrowserWithEditorAndNoKind(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix-socket IPC tests")
	}
	t.Setenv("XDG_DATA_HOME", t.TempDir())

	workspace := filepath.Join("/ws", "editor-nokind")
	path, err := ipc.SocketPath(workspace)
	require.NoError(t, err)
	srv, err := ipc.NewServer(path)
	require.NoError(t, err)
	defer srv.Close()
	srv.Start(ipc.NewEditorHost(ipc.EditorState{}).Handle)

	c, launches := testCoordinator(t, editorConfig(t, workspace))
	require.NoError(t, c.Start(context.Background()))

	msg, err := c.LaunchBrowser(context.Background(), "", nil)
	require.NoError(t, err)
	assert.Contains(t, msg, "editor browser")
	assert.Equal(t, int32(0), launches.Load(), "no spawn when deferring to the editor")

	// An explicit kind wins over the editor.
	_, err = c.LaunchBrowser(context.Background(), "chrome", nil)
	require.NoError(t, err)
	assert.Equal(t, int32(1), launches.Load())
}

func TestStatusTextStopped(t *testing.T) {
	c, _ := testCoordinator(t, disabledEditorConfig(t))
	require.NoError(t, c.Start(context.Background()))

	text := c.StatusText()
	assert.Contains(t, text, "browser: stopped")
	assert.Contains(t, text, fmt.Sprintf("proxy port: %d", c.ProxyPort()))
	assert.Contains(t, text, "editor: not detected")
}

func TestListBrowsersIncludesEditorEntry(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix-socket IPC tests")
	}
	t.Setenv("XDG_DATA_HOME", t.TempDir())

	workspace := filepath.Join("/ws", "list")
	path, err := ipc.SocketPath(workspace)
	require.NoError(t, err)
	srv, err := ipc.NewServer(path)
	require.NoError(t, err)
	defer srv.Close()
	srv.Start(ipc.NewEditorHost(ipc.EditorState{CDPPort: 52100}).Handle)

	c, _ := testCoordinator(t, editorConfig(t, workspace))
	require.NoError(t, c.Start(context.Background()))

	out := c.ListBrowsers()
	assert.Contains(t, out, "VS Code embedded browser")
	assert.Contains(t, out, "Fake Chrome")
}

func TestRestartWithoutBrowserFails(t *testing.T) {
	c, _ := testCoordinator(t, disabledEditorConfig(t))
	require.NoError(t, c.Start(context.Background()))

	_, err := c.RestartBrowser(context.Background())
	require.Error(t, err)
}

func TestEnsureBackendReusesRunningInstance(t *testing.T) {
	c, launches := testCoordinator(t, disabledEditorConfig(t))
	require.NoError(t, c.Start(context.Background()))

	first, err := c.ensureBackend(context.Background())
	require.NoError(t, err)
	second, err := c.ensureBackend(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), launches.Load())

	// Backend survives a brief wait; nothing re-spawns behind our back.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), launches.Load())
}
