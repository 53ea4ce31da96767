// Package coordinator wires the detector, launcher, proxy, editor IPC,
// and rendezvous record together and exposes the control operations the
// host can invoke. It is the single owner of the running browser
// instance and of shutdown ordering.
package coordinator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"browserpilot/internal/browser"
	"browserpilot/internal/config"
	"browserpilot/internal/editor"
	"browserpilot/internal/ipc"
	"browserpilot/internal/logging"
	"browserpilot/internal/proxy"
	"browserpilot/internal/rendezvous"
)

// Coordinator is the controller at the center of the daemon.
type Coordinator struct {
	cfg *config.Resolved

	proxy  *proxy.Proxy
	editor *editor.Monitor // nil when editor detection is disabled

	mu       sync.Mutex
	instance *browser.Instance
	lastKind browser.Kind
	lastOpts browser.Options

	urlMu     sync.Mutex
	activeURL string

	// Seams for tests; production values are the package functions.
	detectFn   func() []browser.Descriptor
	launchFn   func(ctx context.Context, desc browser.Descriptor, port int, opts browser.Options) (*browser.Instance, error)
	freePortFn func() (int, error)
}

// New builds an unstarted coordinator from resolved config.
func New(cfg *config.Resolved) *Coordinator {
	return &Coordinator{
		cfg:        cfg,
		proxy:      proxy.New(),
		detectFn:   browser.Detect,
		launchFn:   browser.Launch,
		freePortFn: browser.FreePort,
	}
}

// Start runs the startup sequence: editor detection, proxy bind,
// lazy-launch registration, initial backend from the editor's CDP port,
// rendezvous publication. Only the proxy bind is fatal.
func (c *Coordinator) Start(ctx context.Context) error {
	if !c.cfg.DisableEditor {
		c.editor = editor.NewMonitor(c.cfg.Workspace)
		env := c.editor.Refresh()
		if env.Detected {
			logging.Infof("coordinator: editor host detected at %s", env.SocketPath)
		}
		if err := c.editor.Watch(); err != nil {
			logging.Debugf("coordinator: editor watch unavailable: %v", err)
		}
	}

	port, err := c.proxy.Listen(c.cfg.ProxyPort)
	if err != nil {
		return err
	}

	c.proxy.OnLazyLaunch(c.lazyLaunch)

	if c.editor != nil {
		if env := c.editor.Env(); env.CDPPort > 0 {
			logging.Infof("coordinator: using editor CDP port %d as initial backend", env.CDPPort)
			c.proxy.SetBackend(env.CDPPort)
		}
	}

	rendezvous.Write(rendezvous.Record{Port: port, PID: os.Getpid()})
	return nil
}

// ProxyPort returns the proxy's stable listen port.
func (c *Coordinator) ProxyPort() int {
	return c.proxy.Port()
}

// Shutdown tears the coordinator down in dependency order: browser first
// (so nothing reconnects to a zombie backend), then proxy, then the
// rendezvous record.
func (c *Coordinator) Shutdown() {
	c.mu.Lock()
	inst := c.instance
	c.instance = nil
	c.mu.Unlock()

	if inst != nil {
		logging.Infof("coordinator: stopping browser (pid %d)", inst.PID())
		inst.Stop()
	}
	_ = c.proxy.Close()
	rendezvous.Clear()
	if c.editor != nil {
		c.editor.Close()
	}
}

// lazyLaunch is the proxy's launch callback and the shared backend
// bootstrap for control operations. Serialised on c.mu, so a racing
// proxy connection and control operation still produce exactly one
// spawn.
func (c *Coordinator) lazyLaunch(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.instance != nil {
		return c.instance.DebugPort, nil
	}
	if env, live := c.editorEnv(); live && env.CDPPort > 0 {
		return env.CDPPort, nil
	}
	return c.launchLocked(ctx, browser.Kind(c.cfg.Browser), browser.Options{
		Headless:  c.cfg.Headless,
		NoSandbox: c.cfg.NoSandbox,
	})
}

// launchLocked picks a binary and spawns it. Caller holds c.mu.
func (c *Coordinator) launchLocked(ctx context.Context, kind browser.Kind, opts browser.Options) (int, error) {
	desc := c.pickDescriptor(kind)
	if desc == nil {
		if kind != "" {
			return 0, fmt.Errorf("%w for kind %q", browser.ErrNoBrowser, kind)
		}
		return 0, browser.ErrNoBrowser
	}

	port, err := c.freePortFn()
	if err != nil {
		return 0, err
	}

	inst, err := c.launchFn(ctx, *desc, port, opts)
	if err != nil {
		return 0, err
	}

	c.instance = inst
	c.lastKind = kind
	c.lastOpts = opts
	return inst.DebugPort, nil
}

// pickDescriptor resolves the explicit executable override or runs the
// detector.
func (c *Coordinator) pickDescriptor(kind browser.Kind) *browser.Descriptor {
	if c.cfg.ExecutablePath != "" {
		k := browser.ClassifyName(filepath.Base(c.cfg.ExecutablePath))
		d := browser.Descriptor{
			Name:       filepath.Base(c.cfg.ExecutablePath),
			Kind:       k,
			Path:       c.cfg.ExecutablePath,
			SpeaksCDP:  k != browser.KindFirefox,
			SpeaksBiDi: k == browser.KindFirefox,
		}
		return &d
	}
	return browser.Pick(c.detectFn(), kind)
}

// editorEnv returns the cached editor environment and whether the
// endpoint is still alive.
func (c *Coordinator) editorEnv() (editor.Environment, bool) {
	if c.editor == nil {
		return editor.Environment{}, false
	}
	if !c.editor.Live() {
		return editor.Environment{}, false
	}
	return c.editor.Env(), true
}

// ensureBackend guarantees the proxy has a forwarding target, lazily
// launching if needed, and returns the backend port for direct session
// use.
func (c *Coordinator) ensureBackend(ctx context.Context) (int, error) {
	if port := c.proxy.Backend(); port != 0 {
		return port, nil
	}
	port, err := c.lazyLaunch(ctx)
	if err != nil {
		return 0, err
	}
	c.proxy.SetBackend(port)
	return port, nil
}

func (c *Coordinator) setActiveURL(url string) {
	c.urlMu.Lock()
	c.activeURL = url
	c.urlMu.Unlock()
}

// ActiveURL returns the last URL the coordinator navigated to.
func (c *Coordinator) ActiveURL() string {
	c.urlMu.Lock()
	defer c.urlMu.Unlock()
	return c.activeURL
}

// screenshotDir returns the workspace-stable directory screenshots are
// saved under.
func (c *Coordinator) screenshotDir() string {
	return filepath.Join(os.TempDir(), "browser-coordinator", "screenshots",
		ipc.WorkspaceHash(c.cfg.Workspace))
}
