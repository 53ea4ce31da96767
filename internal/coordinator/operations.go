package coordinator

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"browserpilot/internal/browser"
	"browserpilot/internal/logging"
	"browserpilot/internal/session"
)

// defaultSelectTimeout bounds the element picker when the caller gives
// no timeout.
const defaultSelectTimeout = 30 * time.Second

// ListBrowsers formats the detected browsers, with a synthetic entry for
// the editor's embedded browser when its IPC endpoint is live.
func (c *Coordinator) ListBrowsers() string {
	var lines []string
	if env, live := c.editorEnv(); live {
		entry := "editor — VS Code embedded browser (via IPC"
		if env.CDPPort > 0 {
			entry += fmt.Sprintf(", cdp port %d", env.CDPPort)
		}
		entry += ")"
		lines = append(lines, entry)
	}
	for _, d := range c.detectFn() {
		lines = append(lines, fmt.Sprintf("%s — %s (%s)", d.Kind, d.Name, d.Path))
	}
	if len(lines) == 0 {
		return "no supported browsers found"
	}
	return strings.Join(lines, "\n")
}

// StatusReport is the coordinator's externally visible state.
type StatusReport struct {
	BrowserRunning bool   `json:"browserRunning"`
	BrowserName    string `json:"browserName,omitempty"`
	Engine         string `json:"engine,omitempty"`
	InternalPort   int    `json:"internalPort,omitempty"`
	ProxyPort      int    `json:"proxyPort"`
	Connections    int    `json:"connections"`
	Editor         string `json:"editor"`
	ActiveURL      string `json:"activeUrl,omitempty"`
}

// Status assembles the current state.
func (c *Coordinator) Status() StatusReport {
	report := StatusReport{
		ProxyPort:   c.proxy.Port(),
		Connections: c.proxy.ConnCount(),
		Editor:      "not detected",
		ActiveURL:   c.ActiveURL(),
	}

	c.mu.Lock()
	if c.instance != nil {
		report.BrowserRunning = true
		report.BrowserName = c.instance.Desc.Name
		report.Engine = string(c.instance.Engine)
		report.InternalPort = c.instance.DebugPort
	}
	c.mu.Unlock()

	if env, live := c.editorEnv(); live {
		if env.CDPPort > 0 {
			report.Editor = "detected (ipc+cdp)"
		} else {
			report.Editor = "detected (ipc)"
		}
	}
	return report
}

// StatusText renders Status for humans.
func (c *Coordinator) StatusText() string {
	r := c.Status()
	var b strings.Builder
	if r.BrowserRunning {
		fmt.Fprintf(&b, "browser: %s (%s) running on internal port %d\n",
			r.BrowserName, r.Engine, r.InternalPort)
	} else {
		b.WriteString("browser: stopped\n")
	}
	fmt.Fprintf(&b, "proxy port: %d\n", r.ProxyPort)
	fmt.Fprintf(&b, "editor: %s", r.Editor)
	if r.ActiveURL != "" {
		fmt.Fprintf(&b, "\nactive url: %s", r.ActiveURL)
	}
	return b.String()
}

// LaunchBrowser starts a browser of the given kind (empty = auto). With
// a live editor and no explicit kind, nothing is launched: the editor's
// browser is already the backend. An explicit kind always wins over the
// editor.
func (c *Coordinator) LaunchBrowser(ctx context.Context, kind string, headless *bool) (string, error) {
	if kind == "" {
		if _, live := c.editorEnv(); live {
			return "using editor browser; pass a browser kind to launch a separate instance", nil
		}
	}

	opts := browser.Options{Headless: c.cfg.Headless, NoSandbox: c.cfg.NoSandbox}
	if headless != nil {
		opts.Headless = *headless
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.instance != nil {
		c.instance.Stop()
		c.instance = nil
	}

	port, err := c.launchLocked(ctx, browser.Kind(kind), opts)
	if err != nil {
		return "", err
	}

	// New backend, then drop every old pair so downstream clients
	// reconnect on the stable port against the new browser.
	c.proxy.SetBackend(port)
	c.proxy.CloseConnections()

	return fmt.Sprintf("launched %s (internal port %d, proxy port %d)",
		c.instance.Desc.Name, port, c.proxy.Port()), nil
}

// StopBrowser stops the running instance and clears the backend.
func (c *Coordinator) StopBrowser() (string, error) {
	c.mu.Lock()
	inst := c.instance
	c.instance = nil
	c.mu.Unlock()

	if inst == nil {
		return "no browser running", nil
	}
	inst.Stop()
	c.proxy.ClearBackend()
	return fmt.Sprintf("stopped %s", inst.Desc.Name), nil
}

// RestartBrowser stops and relaunches with the remembered options. The
// proxy port is invariant across the restart.
func (c *Coordinator) RestartBrowser(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.instance == nil {
		return "", fmt.Errorf("no browser running; use launch instead")
	}
	kind, opts := c.lastKind, c.lastOpts
	c.instance.Stop()
	c.instance = nil

	port, err := c.launchLocked(ctx, kind, opts)
	if err != nil {
		return "", err
	}
	c.proxy.SetBackend(port)
	c.proxy.CloseConnections()

	return fmt.Sprintf("restarted %s (internal port %d, proxy port %d)",
		c.instance.Desc.Name, port, c.proxy.Port()), nil
}

// Navigate drives the editor's browser via IPC when live, falling back
// to a CDP session against the backend.
func (c *Coordinator) Navigate(ctx context.Context, url string) (string, error) {
	if _, live := c.editorEnv(); live {
		err := c.editor.Navigate(url)
		if err == nil {
			c.setActiveURL(url)
			return fmt.Sprintf("navigated editor browser to %s", url), nil
		}
		logging.Debugf("coordinator: editor navigate failed, falling back to CDP: %v", err)
	}

	sess, err := c.openSession(ctx)
	if err != nil {
		return "", err
	}
	defer sess.Close()

	if err := sess.Navigate(ctx, url); err != nil {
		return "", err
	}
	c.setActiveURL(url)
	return fmt.Sprintf("navigated to %s", url), nil
}

// SelectElement runs the in-page element picker, notifying the editor
// around it (best-effort).
func (c *Coordinator) SelectElement(ctx context.Context, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		timeout = defaultSelectTimeout
	}

	if _, live := c.editorEnv(); live {
		c.editor.NotifyElementSelect(true)
		defer c.editor.NotifyElementSelect(false)
	}

	sess, err := c.openSession(ctx)
	if err != nil {
		return "", err
	}
	defer sess.Close()

	opCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	picked, err := sess.SelectElement(opCtx)
	if err != nil {
		return "", err
	}
	out, err := json.MarshalIndent(picked, "", "  ")
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// GetDOM extracts page HTML, optionally scoped by selector or depth.
func (c *Coordinator) GetDOM(ctx context.Context, selector string, depth int) (string, error) {
	sess, err := c.openSession(ctx)
	if err != nil {
		return "", err
	}
	defer sess.Close()
	return sess.GetDOM(ctx, selector, depth)
}

// ScreenshotRequest extends the session options with an output override.
type ScreenshotRequest struct {
	session.ScreenshotOptions
	OutputDir string
}

// ScreenshotResult is the saved capture.
type ScreenshotResult struct {
	Path string
	Data []byte
}

// Screenshot captures per the request's precedence (clip > selector >
// fullPage > viewport) and saves the image at a workspace-stable path.
func (c *Coordinator) Screenshot(ctx context.Context, req ScreenshotRequest) (*ScreenshotResult, error) {
	sess, err := c.openSession(ctx)
	if err != nil {
		return nil, err
	}
	defer sess.Close()

	data, err := sess.Screenshot(ctx, req.ScreenshotOptions)
	if err != nil {
		return nil, err
	}

	dir := req.OutputDir
	if dir == "" {
		dir = c.screenshotDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create screenshot dir: %w", err)
	}

	_, ext := session.ResolveFormat(req.Format)
	name := "screenshot-" + time.Now().UTC().Format("2006-01-02T15-04-05Z") + "." + ext
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, fmt.Errorf("save screenshot: %w", err)
	}
	return &ScreenshotResult{Path: path, Data: data}, nil
}

// Fetch performs an in-browser HTTP request from the target origin's
// page context.
func (c *Coordinator) Fetch(ctx context.Context, opts session.FetchOptions) (string, error) {
	sess, err := c.openSession(ctx)
	if err != nil {
		return "", err
	}
	defer sess.Close()
	return sess.Fetch(ctx, opts)
}

// openSession resolves a backend and opens a CDP session against it.
func (c *Coordinator) openSession(ctx context.Context) (*session.Session, error) {
	port, err := c.ensureBackend(ctx)
	if err != nil {
		return nil, err
	}
	return session.Open(ctx, port)
}
